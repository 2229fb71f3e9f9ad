// Package queue talks to an HTTP job-queue gateway that fronts the hosted
// generation models.
//
// Contract:
//
//	POST {base}/jobs              -> {"id": "..."}
//	GET  {base}/jobs/{id}         -> {"status", "position", "logs", "output", "error"}
//	POST {base}/jobs/{id}/cancel  -> any 2xx
package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"genstudio/internal/domain"
	"genstudio/internal/providers"
)

// ErrMissingAPIKey indicates that no credentials are configured.
var ErrMissingAPIKey = errors.New("queue: api key is required")

// KeyFunc resolves the gateway API key at call time.
type KeyFunc func(ctx context.Context) (string, error)

// Options configures the gateway client.
type Options struct {
	BaseURL        string
	APIKey         string
	KeyFunc        KeyFunc
	HTTPClient     *http.Client
	Logger         *zerolog.Logger
	RequestTimeout time.Duration
}

// Client implements providers.Client against the gateway.
type Client struct {
	baseURL    string
	apiKey     string
	keyFunc    KeyFunc
	httpClient *http.Client
	logger     zerolog.Logger
}

type createRequest struct {
	Model string `json:"model"`
	providers.Payload
}

type createResponse struct {
	ID string `json:"id"`
}

type statusResponse struct {
	Status   string          `json:"status"`
	Position *int            `json:"position,omitempty"`
	Logs     []logLine       `json:"logs,omitempty"`
	Output   *outputResponse `json:"output,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// logLine accepts both plain strings and {"message": "..."} objects.
type logLine string

func (l *logLine) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = logLine(s)
		return nil
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*l = logLine(obj.Message)
	return nil
}

type outputResponse struct {
	URL             string  `json:"url"`
	MIME            string  `json:"mime"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	DurationSeconds float64 `json:"duration_seconds"`
	ThumbnailURL    string  `json:"thumbnail_url"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// NewClient constructs a client with defaults for anything left unset.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("queue: base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("queue: invalid base url: %w", err)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		keyFunc:    opts.KeyFunc,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// CreateJob submits a job and returns the gateway's job id.
func (c *Client) CreateJob(ctx context.Context, modelID string, payload providers.Payload) (string, error) {
	body, err := json.Marshal(createRequest{Model: modelID, Payload: payload})
	if err != nil {
		return "", fmt.Errorf("queue: encode request: %w", err)
	}
	var decoded createResponse
	if err := c.do(ctx, http.MethodPost, "/jobs", body, &decoded); err != nil {
		return "", err
	}
	id := strings.TrimSpace(decoded.ID)
	if id == "" {
		return "", providers.Unavailable(errors.New("queue: empty job id"))
	}
	c.logger.Debug().Str("model_id", modelID).Str("provider_job_id", id).Msg("queue: job created")
	return id, nil
}

// GetStatus fetches the current report for a job.
func (c *Client) GetStatus(ctx context.Context, providerJobID string) (*providers.Status, error) {
	var decoded statusResponse
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(providerJobID), nil, &decoded); err != nil {
		return nil, err
	}
	state, ok := parseState(decoded.Status)
	if !ok {
		return nil, providers.Unavailable(fmt.Errorf("queue: unknown status %q", decoded.Status))
	}
	status := &providers.Status{
		State:    state,
		Position: decoded.Position,
		Error:    strings.TrimSpace(decoded.Error),
	}
	for _, line := range decoded.Logs {
		status.Logs = append(status.Logs, string(line))
	}
	if out := decoded.Output; out != nil && state == domain.ProviderSucceeded {
		status.Output = &providers.Output{
			URL:             strings.TrimSpace(out.URL),
			MIME:            out.MIME,
			Width:           out.Width,
			Height:          out.Height,
			DurationSeconds: out.DurationSeconds,
			ThumbnailURL:    strings.TrimSpace(out.ThumbnailURL),
		}
	}
	return status, nil
}

// Cancel asks the gateway to stop a job. Callers treat failures as advisory.
func (c *Client) Cancel(ctx context.Context, providerJobID string) error {
	return c.do(ctx, http.MethodPost, "/jobs/"+url.PathEscape(providerJobID)+"/cancel", nil, nil)
}

func parseState(raw string) (domain.ProviderState, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued", "pending", "in_queue":
		return domain.ProviderQueued, true
	case "running", "processing", "in_progress":
		return domain.ProviderRunning, true
	case "succeeded", "success", "completed":
		return domain.ProviderSucceeded, true
	case "failed", "error", "cancelled", "canceled":
		return domain.ProviderFailed, true
	}
	return "", false
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	key, err := c.key(ctx)
	if err != nil {
		return err
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("queue: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Key "+key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return providers.Unavailable(fmt.Errorf("queue: http request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return providers.Unavailable(fmt.Errorf("queue: read response: %w", err))
	}
	if resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return providers.Unavailable(fmt.Errorf("queue: decode response: %w", err))
	}
	return nil
}

func (c *Client) key(ctx context.Context) (string, error) {
	if c.apiKey != "" {
		return c.apiKey, nil
	}
	if c.keyFunc != nil {
		key, err := c.keyFunc(ctx)
		if err != nil {
			return "", providers.Unavailable(fmt.Errorf("queue: load api key: %w", err))
		}
		if key = strings.TrimSpace(key); key != "" {
			return key, nil
		}
	}
	return "", providers.Errorf(domain.KindUnauthorized, "generation provider is not configured", ErrMissingAPIKey)
}

func statusError(code int, raw []byte) error {
	kind := providers.KindForStatus(code)
	cause := fmt.Errorf("queue: status %d: %s", code, strings.TrimSpace(string(raw)))

	var detail errorResponse
	_ = json.Unmarshal(raw, &detail)
	msg := strings.TrimSpace(detail.Message)
	if msg == "" {
		msg = strings.TrimSpace(detail.Detail)
	}
	switch kind {
	case domain.KindBadRequest:
		if msg == "" {
			msg = "generation provider rejected the request"
		}
	case domain.KindRateLimit:
		msg = "generation provider is busy, try again later"
	case domain.KindUnauthorized, domain.KindForbidden:
		msg = "generation provider refused the credentials"
	case domain.KindNotFound:
		msg = "generation job not found at provider"
	default:
		msg = "generation provider is unavailable"
	}
	return providers.Errorf(kind, msg, cause)
}
