package mq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/MiniChat/config"
	"github.com/Gopher0727/MiniChat/internal/utils"
)

func TestNewKafkaProducer_Disabled(t *testing.T) {
	p, err := NewKafkaProducer(&config.KafkaConfig{Enabled: false}, nil)
	require.NoError(t, err)
	assert.IsType(t, NopPublisher{}, p)
	assert.NoError(t, p.Publish(context.Background(), Event{Type: EventMessagePosted}))
	assert.NoError(t, p.Close())
}

func TestKafkaProducer_Publish(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "minichat.events" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "7" {
			return errors.New("unexpected key " + string(key))
		}
		raw, _ := msg.Value.Encode()
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return err
		}
		if ev.Type != EventMessagePosted || ev.Text != "hi" {
			return errors.New("unexpected payload")
		}
		return nil
	})

	p := NewKafkaProducerFrom(sp, "minichat.events", nil)
	err := p.Publish(context.Background(), Event{
		Type:   EventMessagePosted,
		UserID: 7,
		Text:   "hi",
		At:     time.Now(),
	})
	assert.NoError(t, err)
	assert.NoError(t, p.Close())
}

func TestKafkaProducer_PublishFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewKafkaProducerFrom(sp, "minichat.events", nil)
	err := p.Publish(context.Background(), Event{Type: EventUserRegistered, UserID: 1})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	assert.NoError(t, p.Close())
}

func TestKafkaProducer_CanceledContext(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	p := NewKafkaProducerFrom(sp, "t", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, Event{}), context.Canceled)
	assert.NoError(t, p.Close())
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingPublisher) Close() error { return nil }

func TestAsyncPublisher(t *testing.T) {
	rec := &recordingPublisher{err: errors.New("broker down")}
	pool := utils.NewWorkerPool(2, 8, nil)
	pool.Start()

	async := NewAsyncPublisher(rec, pool, nil)
	for range 5 {
		// 下游失败不会传递给调用方
		assert.NoError(t, async.Publish(context.Background(), Event{Type: EventPresenceChanged}))
	}
	pool.Stop()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.events, 5)

	// 池停止后发布被丢弃，同样不返回错误
	assert.NoError(t, async.Publish(context.Background(), Event{}))
	assert.NoError(t, async.Close())
}

func TestEventKey(t *testing.T) {
	assert.Equal(t, "42", Event{UserID: 42}.Key())
}
