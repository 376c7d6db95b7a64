package audit

import (
	"context"
	"encoding/json"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

// Producer is the part of *kafka.Producer the sink needs.
type Producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
}

// KafkaSink publishes entries to a topic keyed by account, so a consumer sees
// the entries of one account in order.
type KafkaSink struct {
	producer Producer
	topic    string
}

func NewKafkaSink(producer Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func NewKafkaProducer(addrs string) (*kafka.Producer, error) {
	return kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  addrs,
		"acks":               "all",
		"enable.idempotence": true,
	})
}

// Write waits for the broker to acknowledge e or for ctx to end.
func (s *KafkaSink) Write(ctx context.Context, e Entry) error {
	value, err := json.Marshal(e)
	if err != nil {
		return err
	}

	delivery := make(chan kafka.Event, 1)
	err = s.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &s.topic, Partition: kafka.PartitionAny},
		Key:            []byte(e.AccountID),
		Value:          value,
		Headers:        []kafka.Header{{Key: "action", Value: []byte(e.Action)}},
	}, delivery)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev := <-delivery:
		switch m := ev.(type) {
		case *kafka.Message:
			return m.TopicPartition.Error
		case kafka.Error:
			return m
		default:
			return nil
		}
	}
}
