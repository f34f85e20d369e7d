package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/Gopher0727/MiniChat/config"
	"github.com/Gopher0727/MiniChat/internal/utils"
)

type EventType string

const (
	EventMessagePosted   EventType = "message.posted"
	EventUserRegistered  EventType = "user.registered"
	EventPresenceChanged EventType = "presence.changed"
)

// Event 聊天领域事件，以用户 ID 作为分区键保证同一用户的事件有序
type Event struct {
	// ID 由发布方生成的全局唯一事件 ID，消费方用来去重
	ID        int64     `json:"id,string"`
	Type      EventType `json:"type"`
	UserID    uint      `json:"user_id"`
	UserName  string    `json:"user_name,omitempty"`
	MessageID uint      `json:"message_id,omitempty"`
	Text      string    `json:"text,omitempty"`
	Online    *bool     `json:"online,omitempty"`
	At        time.Time `json:"at"`
}

func (e Event) Key() string {
	return strconv.FormatUint(uint64(e.UserID), 10)
}

// Publisher 事件发布接口
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type KafkaProducer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewKafkaProducer 按配置连接 Kafka；kafka.enabled 为 false 时返回 NopPublisher
func NewKafkaProducer(cfg *config.KafkaConfig, logger *zap.Logger) (Publisher, error) {
	if !cfg.Enabled {
		return NopPublisher{}, nil
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Net.DialTimeout = 10 * time.Second
	saramaConfig.Net.ReadTimeout = 10 * time.Second
	saramaConfig.Net.WriteTimeout = 10 * time.Second
	saramaConfig.Metadata.Retry.Max = 3
	saramaConfig.Metadata.Retry.Backoff = 250 * time.Millisecond

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("启动 Sarama 生产者失败: %w", err)
	}
	return NewKafkaProducerFrom(producer, cfg.Topic, logger), nil
}

// NewKafkaProducerFrom 使用已有的 SyncProducer，测试中传入 sarama/mocks
func NewKafkaProducerFrom(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaProducer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaProducer{producer: producer, topic: topic, logger: logger}
}

func (k *KafkaProducer) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	bytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(event.Key()),
		Value: sarama.ByteEncoder(bytes),
	}

	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("发送消息到 kafka 失败: %w", err)
	}

	k.logger.Debug("event published",
		zap.String("type", string(event.Type)),
		zap.String("topic", k.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (k *KafkaProducer) Close() error {
	return k.producer.Close()
}

// NopPublisher 未配置 Kafka 时使用
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// AsyncPublisher 通过协程池异步发布，发布失败只记日志，不影响请求结果
type AsyncPublisher struct {
	next   Publisher
	pool   *utils.WorkerPool
	logger *zap.Logger
}

func NewAsyncPublisher(next Publisher, pool *utils.WorkerPool, logger *zap.Logger) *AsyncPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AsyncPublisher{next: next, pool: pool, logger: logger}
}

func (a *AsyncPublisher) Publish(_ context.Context, event Event) error {
	err := a.pool.Submit(func() {
		// 请求的 ctx 在响应后就会被取消，这里使用独立的超时
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.next.Publish(ctx, event); err != nil {
			a.logger.Warn("failed to publish event",
				zap.String("type", string(event.Type)),
				zap.Uint("user_id", event.UserID),
				zap.Error(err),
			)
		}
	})
	if err != nil {
		a.logger.Warn("event dropped", zap.String("type", string(event.Type)), zap.Error(err))
	}
	return nil
}

// Close 关闭下游发布者。协程池由调用方负责停止
func (a *AsyncPublisher) Close() error {
	return a.next.Close()
}
