// Package materializer turns durable storage references into short-lived
// delivery URLs. It never fails loudly: anything it cannot sign becomes nil
// and the caller decides what "nothing to show" means.
package materializer

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"genstudio/internal/domain"
	"genstudio/internal/metrics"
	"genstudio/internal/storage"
)

const (
	DefaultExpiry = time.Hour
	MinExpiry     = time.Minute
	MaxExpiry     = 24 * time.Hour

	MinQuality   = 20
	MaxQuality   = 100
	MaxDimension = 2500

	batchConcurrency = 8
)

// Format is an output image format.
type Format string

const (
	FormatOrigin Format = "origin"
	FormatWebP   Format = "webp"
	FormatAVIF   Format = "avif"
	FormatJPEG   Format = "jpeg"
	FormatPNG    Format = "png"
)

// ResizeMode controls how an image is fitted to the requested box.
type ResizeMode string

const (
	ResizeCover   ResizeMode = "cover"
	ResizeContain ResizeMode = "contain"
	ResizeFill    ResizeMode = "fill"
)

// Transform is a caller-requested image transform. Zero fields are unset.
type Transform struct {
	Width   int        `json:"width,omitempty"`
	Height  int        `json:"height,omitempty"`
	Quality int        `json:"quality,omitempty"`
	Format  Format     `json:"format,omitempty"`
	Resize  ResizeMode `json:"resize,omitempty"`
}

// Options are the delivery parameters of one URL.
type Options struct {
	Expiry    time.Duration `json:"-"`
	Download  bool          `json:"download,omitempty"`
	Transform *Transform    `json:"transform,omitempty"`
}

// DeliveryURL is a signed, expiring URL. ExpiresAt is zero for external URLs
// passed through unchanged.
type DeliveryURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Materializer signs references through a storage signer.
type Materializer struct {
	signer storage.Signer
	logger zerolog.Logger
	now    func() time.Time
}

// New builds a materializer.
func New(signer storage.Signer, logger zerolog.Logger) *Materializer {
	return &Materializer{signer: signer, logger: logger, now: time.Now}
}

// Normalize applies defaults and clamps so equal requests sign identically.
func Normalize(opts Options) Options {
	out := Options{Download: opts.Download, Expiry: opts.Expiry}
	switch {
	case out.Expiry <= 0:
		out.Expiry = DefaultExpiry
	case out.Expiry < MinExpiry:
		out.Expiry = MinExpiry
	case out.Expiry > MaxExpiry:
		out.Expiry = MaxExpiry
	}
	if opts.Transform == nil {
		return out
	}
	t := Transform{
		Width:   clamp(opts.Transform.Width, 0, MaxDimension),
		Height:  clamp(opts.Transform.Height, 0, MaxDimension),
		Quality: opts.Transform.Quality,
		Format:  Format(strings.ToLower(strings.TrimSpace(string(opts.Transform.Format)))),
		Resize:  ResizeMode(strings.ToLower(strings.TrimSpace(string(opts.Transform.Resize)))),
	}
	if t.Quality != 0 {
		t.Quality = clamp(t.Quality, MinQuality, MaxQuality)
	}
	switch t.Format {
	case FormatWebP, FormatAVIF, FormatJPEG, FormatPNG:
	default:
		t.Format = FormatOrigin
	}
	switch t.Resize {
	case ResizeCover, ResizeContain, ResizeFill:
	default:
		t.Resize = ResizeCover
	}
	out.Transform = &t
	return out
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

// IsExternal reports whether ref is already a fully qualified external URL.
func IsExternal(ref string) bool {
	lower := strings.ToLower(strings.TrimSpace(ref))
	return strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://")
}

// Materialize returns a delivery URL for ref, or nil when ref is empty or
// cannot be signed.
func (m *Materializer) Materialize(ctx context.Context, ref string, opts Options) *DeliveryURL {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		metrics.DeliveryURLs.WithLabelValues("empty").Inc()
		return nil
	}
	if IsExternal(ref) {
		metrics.DeliveryURLs.WithLabelValues("passthrough").Inc()
		return &DeliveryURL{URL: ref}
	}
	if strings.Contains(ref, "://") || strings.HasPrefix(strings.ToLower(ref), "data:") {
		metrics.DeliveryURLs.WithLabelValues("rejected").Inc()
		return nil
	}

	opts = Normalize(opts)
	signOpts := storage.SignOptions{Expiry: opts.Expiry, Download: opts.Download}
	if t := opts.Transform; t != nil {
		st := storage.Transform{Width: t.Width, Height: t.Height, Quality: t.Quality, Resize: string(t.Resize)}
		if t.Format != FormatOrigin {
			st.Format = string(t.Format)
		}
		signOpts.Transform = &st
	}
	expiresAt := m.now().Add(opts.Expiry)
	signed, err := m.signer.Sign(ctx, ref, signOpts)
	if err != nil {
		metrics.DeliveryURLs.WithLabelValues("error").Inc()
		m.logger.Warn().Err(err).Str("surface", string(domain.SurfaceStorage)).Msg("materializer: sign failed")
		return nil
	}
	metrics.DeliveryURLs.WithLabelValues("signed").Inc()
	return &DeliveryURL{URL: signed, ExpiresAt: expiresAt.UTC()}
}

// MaterializeAll signs refs concurrently. The result has one entry per input,
// in input order; entries that could not be materialized are nil.
func (m *Materializer) MaterializeAll(ctx context.Context, refs []string, opts Options) []*DeliveryURL {
	out := make([]*DeliveryURL, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, ref := range refs {
		g.Go(func() error {
			out[i] = m.Materialize(gctx, ref, opts)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
