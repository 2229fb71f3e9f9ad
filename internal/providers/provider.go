// Package providers defines the boundary to external generation providers.
// Implementations live in sub-packages and never leak vendor schemas past it.
package providers

import (
	"context"
	"net/http"

	"genstudio/internal/domain"
)

// Payload is what a provider receives for a new job. Input URLs are already
// signed delivery URLs; providers never see internal storage references.
type Payload struct {
	Reference      string                      `json:"reference,omitempty"`
	MediaKind      domain.MediaKind            `json:"media_kind"`
	GenerationType domain.GenerationType       `json:"generation_type"`
	Prompt         string                      `json:"prompt,omitempty"`
	NegativePrompt string                      `json:"negative_prompt,omitempty"`
	Inputs         map[domain.InputKind]string `json:"inputs,omitempty"`
	Parameters     map[string]any              `json:"parameters,omitempty"`
}

// Output describes the media a provider produced. Either URL or Data is set.
type Output struct {
	URL             string
	Data            []byte
	MIME            string
	Width           int
	Height          int
	DurationSeconds float64
	ThumbnailURL    string
	ThumbnailData   []byte
	ThumbnailMIME   string
}

// Status is one provider report for a job.
type Status struct {
	State    domain.ProviderState
	Position *int
	Logs     []string
	Output   *Output
	Error    string
}

// Client is the contract every provider adapter satisfies.
type Client interface {
	CreateJob(ctx context.Context, modelID string, payload Payload) (string, error)
	GetStatus(ctx context.Context, providerJobID string) (*Status, error)
	Cancel(ctx context.Context, providerJobID string) error
}

// KindForStatus maps a provider HTTP status onto the shared taxonomy.
func KindForStatus(code int) domain.Kind {
	switch {
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return domain.KindBadRequest
	case code == http.StatusUnauthorized:
		return domain.KindUnauthorized
	case code == http.StatusForbidden:
		return domain.KindForbidden
	case code == http.StatusNotFound:
		return domain.KindNotFound
	case code == http.StatusTooManyRequests:
		return domain.KindRateLimit
	default:
		return domain.KindUpstreamUnavailable
	}
}

// Errorf builds a classified provider error on the job surface.
func Errorf(kind domain.Kind, message string, cause error) error {
	return domain.NewError(kind, domain.SurfaceJob, message, cause)
}

// Unavailable wraps a transport failure.
func Unavailable(cause error) error {
	return Errorf(domain.KindUpstreamUnavailable, "generation provider is unavailable", cause)
}
