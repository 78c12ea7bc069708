package inference

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

// Config holds the configuration for the inference sidecar client
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
	MaxFaces   int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		BaseURL:    "http://localhost:5006",
		Timeout:    10 * time.Second,
		RetryCount: 2,
		MaxFaces:   5,
	}
}

// Client is the HTTP client for the YOLO and FaceMesh sidecar
type Client struct {
	httpClient *http.Client
	config     Config
}

// NewClient creates a new inference client
func NewClient(config Config) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config: config,
	}
}

// Detect calls POST /detect
func (c *Client) Detect(ctx context.Context, imageBase64 string) (*DetectResponse, error) {
	var resp DetectResponse
	if err := c.doRequestWithRetry(ctx, "/detect", DetectRequest{Img: imageBase64}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Landmarks calls POST /landmarks
func (c *Client) Landmarks(ctx context.Context, imageBase64 string) (*LandmarksResponse, error) {
	req := LandmarksRequest{Img: imageBase64, MaxFaces: c.config.MaxFaces}

	var resp LandmarksResponse
	if err := c.doRequestWithRetry(ctx, "/landmarks", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health calls GET /health
func (c *Client) Health(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, "/health", nil, nil)
}

const (
	baseBackoff = 200 * time.Millisecond
	maxBackoff  = 5 * time.Second
)

// calculateBackoff returns 200ms, 400ms, 800ms... up to maxBackoff
func calculateBackoff(attempt int) time.Duration {
	d := baseBackoff
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
	return fmt.Sprintf("inference returned status %d: %s", e.StatusCode, e.Body)
}

func (c *Client) doRequestWithRetry(ctx context.Context, path string, body interface{}, result interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(calculateBackoff(attempt)):
			}
		}

		lastErr = c.doRequest(ctx, http.MethodPost, path, body, result)
		if lastErr == nil {
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		var se *statusError
		if errors.As(lastErr, &se) && se.StatusCode < 500 {
			return lastErr
		}
		if errors.Is(lastErr, ErrInvalidResponse) {
			return lastErr
		}
	}

	return fmt.Errorf("%w: %v", ErrInferenceUnavailable, lastErr)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, bodyReader)
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
