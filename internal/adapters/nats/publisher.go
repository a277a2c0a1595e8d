package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kisansahayak/agrimonitor/internal/core/domain"
)

// Subjects. Reading events are keyed by field so clients can follow one field.
const (
	SubjectReadings          = "agrimonitor.readings"
	SubjectAssetAttachFailed = "agrimonitor.assets.attach_failed"
)

// ReadingSubject returns the subject for readings of a field.
func ReadingSubject(fieldID int64) string {
	return SubjectReadings + "." + strconv.FormatInt(fieldID, 10)
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and ensures the event streams exist.
func NewPublisher(url string) (*Publisher, error) {
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

	return &Publisher{conn: conn, js: js}, nil
}

func ensureStreams(js nats.JetStreamContext) error {
	streams := []nats.StreamConfig{
		{
			Name:      "FIELD_READINGS",
			Subjects:  []string{SubjectReadings + ".>"},
			Retention: nats.LimitsPolicy,
			MaxAge:    7 * 24 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "ASSET_EVENTS",
			Subjects:  []string{"agrimonitor.assets.>"},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    72 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist, try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}
	return nil
}

// PublishReadingCreated announces a stored reading.
func (p *Publisher) PublishReadingCreated(ctx context.Context, event *domain.ReadingEvent) error {
	return p.publish(ctx, ReadingSubject(event.FieldID), event)
}

// PublishAssetAttachFailed announces a reading whose image was not attached.
func (p *Publisher) PublishAssetAttachFailed(ctx context.Context, event *domain.ReadingEvent) error {
	return p.publish(ctx, SubjectAssetAttachFailed, event)
}

func (p *Publisher) publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := p.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection, e.g. for the WebSocket relay.
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("agrimonitor"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
