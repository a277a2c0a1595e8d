package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/kisansahayak/agrimonitor/internal/core/domain"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber connects to NATS for durable consumption.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	if err := ensureStreams(js); err != nil {
		conn.Close()
		return nil, err
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribeAssetAttachFailed delivers attach failures to handler. Messages
// are acked on success and redelivered up to three times otherwise.
func (s *Subscriber) SubscribeAssetAttachFailed(ctx context.Context, handler func(ctx context.Context, event *domain.ReadingEvent) error) error {
	sub, err := s.js.Subscribe(SubjectAssetAttachFailed, func(msg *nats.Msg) {
		var event domain.ReadingEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			_ = msg.Term()
			return
		}
		if err := handler(ctx, &event); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("asset-reattach"),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
