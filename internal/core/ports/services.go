package ports

import (
	"context"
	"errors"

	"github.com/kisansahayak/agrimonitor/internal/core/domain"
)

// Classifier sends an image and instruction prompt to a vision model and
// returns its raw text answer.
type Classifier interface {
	Classify(ctx context.Context, image []byte, mimeType, prompt string) (string, error)
}

// BlobStore is a durable store addressed by public identifiers.
type BlobStore interface {
	Upload(ctx context.Context, data []byte, folder, desiredID string) (string, error)
	ResolveURL(publicID string) string
	Remove(ctx context.Context, publicID string) error
}

// WeatherEndpoint selects an upstream weather resource.
type WeatherEndpoint string

const (
	EndpointWeather  WeatherEndpoint = "weather"
	EndpointForecast WeatherEndpoint = "forecast"
)

// WeatherResponse is an upstream status code and raw body.
type WeatherResponse struct {
	StatusCode int
	Body       []byte
}

// WeatherClient fetches raw weather payloads.
type WeatherClient interface {
	Fetch(ctx context.Context, lat, lon float64, endpoint WeatherEndpoint) (WeatherResponse, error)
}

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishReadingCreated(ctx context.Context, event *domain.ReadingEvent) error
	PublishAssetAttachFailed(ctx context.Context, event *domain.ReadingEvent) error
}

// EventSubscriber consumes domain events from a message broker.
type EventSubscriber interface {
	SubscribeAssetAttachFailed(ctx context.Context, handler func(ctx context.Context, event *domain.ReadingEvent) error) error
}

// ErrCacheMiss is returned by CacheService.Get for absent keys.
var ErrCacheMiss = errors.New("cache miss")

// CacheService provides a shared key/value cache.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
