package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/stretchr/testify/require"
)

type producerMock struct {
	produced []*kafka.Message
	reply    func(msg *kafka.Message) kafka.Event
	err      error
}

func (m *producerMock) Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error {
	if m.err != nil {
		return m.err
	}
	m.produced = append(m.produced, msg)
	if m.reply != nil {
		if ev := m.reply(msg); ev != nil {
			deliveryChan <- ev
		}
	}
	return nil
}

func TestKafkaSinkPublishesKeyedByAccount(t *testing.T) {
	producer := &producerMock{reply: func(msg *kafka.Message) kafka.Event { return msg }}
	sink := NewKafkaSink(producer, "rewardtask.audit")

	err := sink.Write(context.Background(), Entry{
		ActorID:   "admin-1",
		AccountID: "acc-1",
		Action:    ActionOrderReject,
		Summary:   "order rejected",
	})
	require.NoError(t, err)
	require.Len(t, producer.produced, 1)

	msg := producer.produced[0]
	require.Equal(t, "rewardtask.audit", *msg.TopicPartition.Topic)
	require.Equal(t, []byte("acc-1"), msg.Key)
	require.Equal(t, "action", msg.Headers[0].Key)

	var got Entry
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	require.Equal(t, ActionOrderReject, got.Action)
	require.Equal(t, "admin-1", got.ActorID)
}

func TestKafkaSinkDeliveryFailure(t *testing.T) {
	deliveryErr := kafka.NewError(kafka.ErrMsgTimedOut, "message timed out", false)
	producer := &producerMock{reply: func(msg *kafka.Message) kafka.Event {
		msg.TopicPartition.Error = deliveryErr
		return msg
	}}

	err := NewKafkaSink(producer, "t").Write(context.Background(), Entry{AccountID: "acc-1"})
	require.Error(t, err)
	require.Equal(t, deliveryErr.Error(), err.Error())
}

func TestKafkaSinkProduceError(t *testing.T) {
	producer := &producerMock{err: errors.New("queue full")}

	err := NewKafkaSink(producer, "t").Write(context.Background(), Entry{AccountID: "acc-1"})
	require.EqualError(t, err, "queue full")
}

func TestKafkaSinkContextCancelled(t *testing.T) {
	producer := &producerMock{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewKafkaSink(producer, "t").Write(ctx, Entry{AccountID: "acc-1"})
	require.ErrorIs(t, err, context.Canceled)
}
