// Package storage holds the object storage drivers. References handed out by
// this package are internal keys; only a Signer turns them into URLs.
package storage

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// Store writes objects and returns their durable reference. Delete of a
// missing object is not an error.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, ref string) error
}

// Signer produces time-limited delivery URLs for references.
type Signer interface {
	Sign(ctx context.Context, ref string, opts SignOptions) (string, error)
}

// Transform is a normalized image transform request.
type Transform struct {
	Width   int
	Height  int
	Quality int
	Format  string
	Resize  string
}

// Values encodes the transform as canonical query parameters. Encoding is
// sorted by key so equal transforms always produce equal strings.
func (t Transform) Values() url.Values {
	v := url.Values{}
	if t.Width > 0 {
		v.Set("w", strconv.Itoa(t.Width))
	}
	if t.Height > 0 {
		v.Set("h", strconv.Itoa(t.Height))
	}
	if t.Quality > 0 {
		v.Set("q", strconv.Itoa(t.Quality))
	}
	if t.Format != "" {
		v.Set("fm", t.Format)
	}
	if t.Resize != "" {
		v.Set("fit", t.Resize)
	}
	return v
}

// SignOptions are the per-URL delivery parameters.
type SignOptions struct {
	Expiry    time.Duration
	Download  bool
	Transform *Transform
}

// Driver is a store that can also sign its own references.
type Driver interface {
	Store
	Signer
}
