package http

import (
	"github.com/kisansahayak/agrimonitor/internal/adapters/postgres"
	"github.com/kisansahayak/agrimonitor/internal/adapters/valkey"
	"github.com/kisansahayak/agrimonitor/internal/core/usecases"
	"github.com/nats-io/nats.go"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Fields   *usecases.FieldService
	Readings *usecases.ReadingService

	// Infrastructure probed by the readiness check. Any of them may be nil.
	NATS  *nats.Conn
	DB    *postgres.DB
	Cache *valkey.Cache

	// MaxImageBytes caps decoded reading images. Zero means 10 MiB.
	MaxImageBytes int
}
