package infra

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger constructs the process logger. Every line carries the service
// name so API and worker output can be told apart in one stream.
func NewLogger(appEnv, service string) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if parsed, err := zerolog.ParseLevel(raw); err == nil {
			level = parsed
		}
	}

	logger := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Logger()

	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return logger
}

// Logger aliases zerolog.Logger for packages that only need the type.
type Logger = zerolog.Logger

type logTagsKey struct{}

// logTags are correlation ids that follow a context into lower layers such
// as the SQL runner.
type logTags struct {
	requestID string
	jobID     string
}

func tagsFrom(ctx context.Context) logTags {
	t, _ := ctx.Value(logTagsKey{}).(logTags)
	return t
}

// WithRequestID tags ctx with the HTTP request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	t := tagsFrom(ctx)
	t.requestID = id
	return context.WithValue(ctx, logTagsKey{}, t)
}

// WithJobID tags ctx with the generation job being worked on.
func WithJobID(ctx context.Context, id string) context.Context {
	t := tagsFrom(ctx)
	if t.jobID == id {
		return ctx
	}
	t.jobID = id
	return context.WithValue(ctx, logTagsKey{}, t)
}

// RequestIDFrom returns the request id carried by ctx, if any.
func RequestIDFrom(ctx context.Context) string {
	return tagsFrom(ctx).requestID
}

// JobIDFrom returns the job id carried by ctx, if any.
func JobIDFrom(ctx context.Context) string {
	return tagsFrom(ctx).jobID
}

// withTags adds the correlation ids of ctx to ev. A nil event stays nil.
func withTags(ctx context.Context, ev *zerolog.Event) *zerolog.Event {
	t := tagsFrom(ctx)
	if t.requestID != "" {
		ev = ev.Str("request_id", t.requestID)
	}
	if t.jobID != "" {
		ev = ev.Str("job_id", t.jobID)
	}
	return ev
}
