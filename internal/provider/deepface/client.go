package deepface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds the configuration for the DeepFace client
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	Model      string
	Detector   string
	RetryCount int
	// BackoffBase is the first retry delay, doubled on every further attempt
	BackoffBase time.Duration
	// Normalize scales embeddings to unit length so that Euclidean distances
	// fall in [0, 2] regardless of the model.
	Normalize bool
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		BaseURL:     "http://localhost:5005",
		Timeout:     30 * time.Second,
		Model:       "Facenet512",
		Detector:    "retinaface",
		RetryCount:  3,
		BackoffBase: time.Second,
		Normalize:   true,
	}
}

// Client is the HTTP client for DeepFace API
type Client struct {
	httpClient *http.Client
	config     Config
}

// NewClient creates a new DeepFace client
func NewClient(config Config) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config: config,
	}
}

// Represent calls POST /represent using the configured detector. With
// enforce set, DeepFace rejects images without a detectable face.
func (c *Client) Represent(ctx context.Context, imageBase64 string, enforce bool) (*RepresentResponse, error) {
	return c.represent(ctx, imageBase64, c.config.Detector, enforce)
}

// RepresentAligned calls POST /represent with detection skipped, for images
// that are already a face crop.
func (c *Client) RepresentAligned(ctx context.Context, imageBase64 string) (*RepresentResponse, error) {
	return c.represent(ctx, imageBase64, DetectorSkip, false)
}

func (c *Client) represent(ctx context.Context, imageBase64, detector string, enforce bool) (*RepresentResponse, error) {
	req := RepresentRequest{
		Img:              imageBase64,
		Model:            c.config.Model,
		Detector:         detector,
		EnforceDetection: enforce,
	}

	var resp RepresentResponse
	if err := c.doRequestWithRetry(ctx, http.MethodPost, "/represent", req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// Health calls GET /, which the DeepFace API answers without loading a model
func (c *Client) Health(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, "/", nil, nil)
}

const maxBackoff = 30 * time.Second

// backoff returns BackoffBase, 2x, 4x... for attempts 1, 2, 3... up to maxBackoff
func (c *Client) backoff(attempt int) time.Duration {
	base := c.config.BackoffBase
	if base <= 0 {
		base = time.Second
	}
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// statusError is returned for non-2xx responses
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("deepface returned status %d: %s", e.StatusCode, e.Body)
}

// doRequestWithRetry executes HTTP request with retry logic
func (c *Client) doRequestWithRetry(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff(attempt)):
			}
		}

		lastErr = c.doRequest(ctx, method, path, body, result)
		if lastErr == nil {
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Only retry on server errors (5xx) and transport failures
		if isClientError(lastErr) || errors.Is(lastErr, ErrInvalidResponse) {
			return lastErr
		}
	}

	return fmt.Errorf("%w: %v", ErrDeepFaceUnavailable, lastErr)
}

// isClientError checks if the error is a 4xx client error
func isClientError(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.StatusCode >= 400 && se.StatusCode < 500
	}
	return false
}

// doRequest executes a single HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	url := c.config.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &statusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
	}

	return nil
}
