// Package queue publishes messages to Kafka.
package queue

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

// ProducerConfig configures a Producer. Username enables SASL/PLAIN.
type ProducerConfig struct {
	Brokers  []string
	Topic    string
	Username string
	Password string
	TLS      bool
}

// Producer writes messages to a single topic.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer returns a synchronous producer that waits for all replicas.
func NewProducer(cfg ProducerConfig) *Producer {
	transport := &kafka.Transport{}
	if cfg.Username != "" {
		transport.SASL = plain.Mechanism{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}
	if cfg.TLS {
		transport.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireAll,
			Async:                  false,
			Transport:              transport,
			WriteTimeout:           10 * time.Second,
			AllowAutoTopicCreation: true,
		},
	}
}

// Publish writes one message.
func (p *Producer) Publish(ctx context.Context, key, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", p.writer.Topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
