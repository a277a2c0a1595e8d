package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/kisansahayak/agrimonitor/internal/core/ports"
	"github.com/kisansahayak/agrimonitor/internal/pkg/metrics"
	"github.com/kisansahayak/agrimonitor/internal/pkg/ttlcache"
)

// WeatherError is the payload returned in place of weather data when the
// upstream call does not succeed.
type WeatherError struct {
	Error      string `json:"error"`
	StatusCode int    `json:"status_code"`
}

// WeatherService serves current weather and forecasts through a TTL memo.
type WeatherService struct {
	client ports.WeatherClient
	cache  *ttlcache.Cache[json.RawMessage]
}

// NewWeatherService creates a new WeatherService.
func NewWeatherService(client ports.WeatherClient, cache *ttlcache.Cache[json.RawMessage]) *WeatherService {
	if cache == nil {
		cache = ttlcache.New[json.RawMessage](ttlcache.DefaultTTL)
	}
	cache.OnLookup = func(key string, hit bool) {
		op := "weather_" + key[strings.LastIndexByte(key, ':')+1:]
		if hit {
			metrics.CacheHits.WithLabelValues(op).Inc()
		} else {
			metrics.CacheMisses.WithLabelValues(op).Inc()
		}
	}
	return &WeatherService{client: client, cache: cache}
}

// Current returns the current conditions at a coordinate.
func (s *WeatherService) Current(ctx context.Context, lat, lon float64) json.RawMessage {
	return s.lookup(ctx, lat, lon, ports.EndpointWeather)
}

// Forecast returns the multi-day forecast at a coordinate.
func (s *WeatherService) Forecast(ctx context.Context, lat, lon float64) json.RawMessage {
	return s.lookup(ctx, lat, lon, ports.EndpointForecast)
}

// WeatherCacheKey builds the memo key. Coordinates are formatted exactly,
// without rounding.
func WeatherCacheKey(lat, lon float64, endpoint ports.WeatherEndpoint) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + ":" + strconv.FormatFloat(lon, 'f', -1, 64) + ":" + string(endpoint)
}

func (s *WeatherService) lookup(ctx context.Context, lat, lon float64, endpoint ports.WeatherEndpoint) json.RawMessage {
	key := WeatherCacheKey(lat, lon, endpoint)
	return s.cache.Get(key, func() json.RawMessage {
		// The result is shared with later callers; one caller giving up must
		// not poison the entry.
		return s.fetch(context.WithoutCancel(ctx), lat, lon, endpoint)
	})
}

func (s *WeatherService) fetch(ctx context.Context, lat, lon float64, endpoint ports.WeatherEndpoint) json.RawMessage {
	if s.client == nil {
		return errorPayload("weather client not configured", http.StatusServiceUnavailable)
	}

	resp, err := s.client.Fetch(ctx, lat, lon, endpoint)
	if err != nil {
		slog.WarnContext(ctx, "weather fetch failed", "endpoint", endpoint, "error", err)
		return errorPayload(err.Error(), http.StatusBadGateway)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.WarnContext(ctx, "weather upstream error", "endpoint", endpoint, "status", resp.StatusCode)
		return errorPayload(upstreamMessage(resp), resp.StatusCode)
	}

	if !json.Valid(resp.Body) {
		return errorPayload("invalid weather payload", http.StatusBadGateway)
	}
	return json.RawMessage(resp.Body)
}

// upstreamMessage pulls the provider's own error text when it sent one.
func upstreamMessage(resp ports.WeatherResponse) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body, &body); err == nil && body.Message != "" {
		return body.Message
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return fmt.Sprintf("upstream status %d", resp.StatusCode)
}

func errorPayload(msg string, status int) json.RawMessage {
	data, _ := json.Marshal(WeatherError{Error: msg, StatusCode: status})
	return data
}
