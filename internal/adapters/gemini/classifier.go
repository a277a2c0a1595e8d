package gemini

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/kisansahayak/agrimonitor/internal/pkg/metrics"
)

// DefaultModel is the vision model used when none is configured.
const DefaultModel = "gemini-1.5-flash-latest"

// Classifier implements ports.Classifier with the Gemini API.
type Classifier struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// New creates a Gemini classifier.
func New(ctx context.Context, apiKey, model string, timeout time.Duration) (*Classifier, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Classifier{client: client, model: model, timeout: timeout}, nil
}

// Classify sends image and prompt as one user turn and returns the model's
// text answer.
func (c *Classifier) Classify(ctx context.Context, image []byte, mimeType, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image, mimeType),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}

	start := time.Now()
	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	metrics.ClassifierLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text := result.Text()
	if text == "" {
		return "", errors.New("gemini returned no text")
	}
	return text, nil
}
