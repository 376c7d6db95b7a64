package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type lockerMock struct {
	acquired bool
	err      error
	setKey   string
	setValue interface{}
	// holder is the value stored under the lock when the release runs.
	holder  interface{}
	deleted []string
}

func (m *lockerMock) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	m.setKey = key
	m.setValue = value
	if m.acquired && m.holder == nil {
		m.holder = value
	}
	return redis.NewBoolResult(m.acquired, m.err)
}

func (m *lockerMock) Eval(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	if len(args) != 1 || args[0] != m.holder {
		return redis.NewCmdResult(int64(0), nil)
	}
	m.deleted = append(m.deleted, keys...)
	return redis.NewCmdResult(int64(len(keys)), nil)
}

func TestExclusive(t *testing.T) {
	run := func(m *lockerMock) (bool, error) {
		ran := false
		err := Exclusive(m, "verify_ledger", time.Minute, func(context.Context) error {
			ran = true
			return nil
		})(context.Background())
		return ran, err
	}

	t.Run("acquired", func(t *testing.T) {
		m := &lockerMock{acquired: true}
		ran, err := run(m)
		require.NoError(t, err)
		require.True(t, ran)
		require.Equal(t, "lock:verify_ledger", m.setKey)
		require.Equal(t, []string{"lock:verify_ledger"}, m.deleted)
	})

	t.Run("expired and taken over", func(t *testing.T) {
		m := &lockerMock{acquired: true, holder: "other-worker"}
		ran, err := run(m)
		require.NoError(t, err)
		require.True(t, ran)
		require.NotEqual(t, m.holder, m.setValue)
		require.Empty(t, m.deleted)
	})

	t.Run("held elsewhere", func(t *testing.T) {
		m := &lockerMock{}
		ran, err := run(m)
		require.NoError(t, err)
		require.False(t, ran)
		require.Empty(t, m.deleted)
	})

	t.Run("redis down", func(t *testing.T) {
		m := &lockerMock{err: errors.New("connection refused")}
		ran, err := run(m)
		require.Error(t, err)
		require.False(t, ran)
	})
}
