package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/d60-Lab/sale-promotion/pkg/logger"
)

// Message 一封待发送的确认邮件；模板渲染与投递由下游邮件服务负责
type Message struct {
	To         string `json:"to"`
	OwnerID    string `json:"owner_id"`
	EmailType  string `json:"email_type"`
	DedupeKey  string `json:"dedupe_key"`
	SaleID     string `json:"sale_id"`
	SaleTitle  string `json:"sale_title"`
	IsFeatured bool   `json:"is_featured"`
}

// Sender 邮件发送接口
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSender 将邮件任务写入 Kafka，按 dedupe key 分区
type KafkaSender struct {
	writer messageWriter
}

func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	return &KafkaSender{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 10 * time.Second,
	}}
}

func (s *KafkaSender) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.DedupeKey),
		Value: data,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "email_type", Value: []byte(msg.EmailType)},
		},
	})
}

func (s *KafkaSender) Close() error { return s.writer.Close() }

// LogSender 未配置 broker 时使用，只记录日志
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg Message) error {
	logger.Info("email send (log only)",
		zap.String("email_type", msg.EmailType),
		zap.String("owner_id", msg.OwnerID),
		zap.String("sale_id", msg.SaleID),
		zap.String("dedupe_key", msg.DedupeKey),
	)
	return nil
}
