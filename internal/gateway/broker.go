package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

// Broker carries confirmed messages between the hub and every gateway
// instance serving the feed.
type Broker interface {
	Publish(ctx context.Context, frame []byte) error
	// Consume blocks, handing each published frame to fn, until ctx is done
	// or the broker fails.
	Consume(ctx context.Context, fn func(frame []byte)) error
	Close() error
}

// localBroker fans out in-process; used when no Kafka brokers are configured.
type localBroker struct {
	ch chan []byte
}

func NewLocalBroker() Broker {
	return &localBroker{ch: make(chan []byte, 256)}
}

func (b *localBroker) Publish(ctx context.Context, frame []byte) error {
	select {
	case b.ch <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *localBroker) Consume(ctx context.Context, fn func(frame []byte)) error {
	for {
		select {
		case frame := <-b.ch:
			fn(frame)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *localBroker) Close() error { return nil }

// kafkaBroker publishes to a topic and reads it back with a per-instance
// consumer group so every gateway sees every message.
type kafkaBroker struct {
	writer *kafka.Writer
	reader *kafka.Reader
}

func NewKafkaBroker(brokers []string, topic, instance string) Broker {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     "feed-gateway-" + instance, // unique group for fanout (broadcast to all gateways)
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     250 * time.Millisecond,
	})
	return &kafkaBroker{writer: writer, reader: reader}
}

func (b *kafkaBroker) Publish(ctx context.Context, frame []byte) error {
	return b.writer.WriteMessages(ctx, kafka.Message{Value: frame, Time: time.Now()})
}

func (b *kafkaBroker) Consume(ctx context.Context, fn func(frame []byte)) error {
	for {
		m, err := b.reader.ReadMessage(ctx)
		if err != nil {
			return err
		}
		fn(m.Value)
	}
}

func (b *kafkaBroker) Close() error {
	return errors.Join(b.writer.Close(), b.reader.Close())
}
