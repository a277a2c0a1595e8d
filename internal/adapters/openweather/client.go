package openweather

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kisansahayak/agrimonitor/internal/core/ports"
	"github.com/kisansahayak/agrimonitor/internal/pkg/metrics"
)

// DefaultBaseURL is the OpenWeatherMap 2.5 API root.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5"

// maxBody caps how much of an upstream response is read.
const maxBody = 4 << 20

// Client implements ports.WeatherClient against OpenWeatherMap. Calls are
// paced by a token bucket so a burst of cache misses cannot exhaust the
// provider quota.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Options configures a Client.
type Options struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	RPS     float64
	Burst   int
}

// New creates an OpenWeatherMap client.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RPS <= 0 {
		opts.RPS = 1
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Client{
		apiKey:     opts.APIKey,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.RPS), opts.Burst),
	}
}

// Fetch calls the endpoint for a coordinate with metric units. Non-2xx
// statuses are returned as responses, not errors.
func (c *Client) Fetch(ctx context.Context, lat, lon float64, endpoint ports.WeatherEndpoint) (ports.WeatherResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return ports.WeatherResponse{}, fmt.Errorf("rate limit wait canceled: %w", err)
	}

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+string(endpoint)+"?"+params.Encode(), nil)
	if err != nil {
		return ports.WeatherResponse{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.WeatherUpstream.WithLabelValues(string(endpoint), "error").Inc()
		return ports.WeatherResponse{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		metrics.WeatherUpstream.WithLabelValues(string(endpoint), "error").Inc()
		return ports.WeatherResponse{}, fmt.Errorf("read response body: %w", err)
	}

	metrics.WeatherUpstream.WithLabelValues(string(endpoint), strconv.Itoa(resp.StatusCode)).Inc()
	return ports.WeatherResponse{StatusCode: resp.StatusCode, Body: body}, nil
}
