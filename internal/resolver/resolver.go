// Package resolver classifies catalog models into generation types and
// validates generation requests against the chosen model.
package resolver

import (
	"sync"

	"genstudio/internal/catalog"
	"genstudio/internal/domain"
)

// Predicate decides whether a descriptor can serve one generation type.
type Predicate func(domain.ModelDescriptor) bool

// predicates holds exactly one rule per generation type.
var predicates = map[domain.GenerationType]Predicate{
	domain.TextToImage: func(d domain.ModelDescriptor) bool {
		return d.MediaKind == domain.MediaKindImage && !d.RequiresReferenceInput
	},
	domain.TextToVideo: func(d domain.ModelDescriptor) bool {
		return d.MediaKind == domain.MediaKindVideo && !d.RequiresReferenceInput
	},
	domain.ImageToImage: func(d domain.ModelDescriptor) bool {
		return d.MediaKind == domain.MediaKindImage && d.AcceptsImageInput
	},
	domain.ImageToVideo: func(d domain.ModelDescriptor) bool {
		return d.MediaKind == domain.MediaKindVideo && d.AcceptsImageInput
	},
	domain.VideoToVideo: func(d domain.ModelDescriptor) bool {
		return d.MediaKind == domain.MediaKindVideo && d.AcceptsVideoInput
	},
	domain.Inpaint: func(d domain.ModelDescriptor) bool {
		return d.MediaKind == domain.MediaKindImage && d.AcceptsImageInput && d.HasFeature(domain.FeatureInpaint)
	},
	domain.Lipsync: func(d domain.ModelDescriptor) bool {
		return d.MediaKind == domain.MediaKindVideo && d.AcceptsVideoInput && d.HasFeature(domain.FeatureLipsync)
	},
}

// Classify returns every generation type the descriptor supports, in
// canonical order. A descriptor may legitimately fall into several types.
func Classify(d domain.ModelDescriptor) []domain.GenerationType {
	var out []domain.GenerationType
	for _, t := range domain.GenerationTypes {
		if pred, ok := predicates[t]; ok && pred(d) {
			out = append(out, t)
		}
	}
	return out
}

func classifiedAs(d domain.ModelDescriptor, t domain.GenerationType) bool {
	pred, ok := predicates[t]
	return ok && pred(d)
}

// Requirements lists the reference inputs of a model.
type Requirements struct {
	Required []domain.InputKind `json:"required"`
	Optional []domain.InputKind `json:"optional"`
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithPriorities overrides the catalog's priority list for the given types.
func WithPriorities(p map[domain.GenerationType][]string) Option {
	return func(r *Resolver) {
		for t, ids := range p {
			r.priorities[t] = append([]string(nil), ids...)
		}
	}
}

// Resolver answers model/generation-type questions over a catalog. The
// per-type buckets are computed lazily and cached until Invalidate.
type Resolver struct {
	catalog    *catalog.Catalog
	priorities map[domain.GenerationType][]string

	mu      sync.RWMutex
	buckets map[domain.GenerationType][]domain.ModelDescriptor

	schemas schemaCache
}

// New builds a resolver over the catalog.
func New(cat *catalog.Catalog, opts ...Option) *Resolver {
	r := &Resolver{
		catalog:    cat,
		priorities: make(map[domain.GenerationType][]string),
	}
	for _, t := range domain.GenerationTypes {
		r.priorities[t] = cat.Priorities(t)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Catalog exposes the underlying catalog.
func (r *Resolver) Catalog() *catalog.Catalog {
	return r.catalog
}

// Invalidate drops the cached classification; the next read rebuilds it.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.buckets = nil
	r.mu.Unlock()
	r.schemas.reset()
}

func (r *Resolver) classification() map[domain.GenerationType][]domain.ModelDescriptor {
	r.mu.RLock()
	buckets := r.buckets
	r.mu.RUnlock()
	if buckets != nil {
		return buckets
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.buckets != nil {
		return r.buckets
	}
	built := make(map[domain.GenerationType][]domain.ModelDescriptor, len(domain.GenerationTypes))
	for _, m := range r.catalog.Models() {
		for _, t := range Classify(m) {
			built[t] = append(built[t], m)
		}
	}
	r.buckets = built
	return built
}

// ModelsFor returns every model classified under t, in catalog order.
func (r *Resolver) ModelsFor(t domain.GenerationType) []domain.ModelDescriptor {
	bucket := r.classification()[t]
	out := make([]domain.ModelDescriptor, len(bucket))
	for i, m := range bucket {
		out[i] = m.Clone()
	}
	return out
}

// Recommend returns priority-listed models first in priority order, then the
// remaining matches in catalog order, truncated to limit. A non-positive limit
// returns every match.
func (r *Resolver) Recommend(t domain.GenerationType, limit int) []domain.ModelDescriptor {
	matches := r.ModelsFor(t)
	byID := make(map[string]int, len(matches))
	for i, m := range matches {
		byID[m.ID] = i
	}

	out := make([]domain.ModelDescriptor, 0, len(matches))
	used := make(map[string]bool, len(matches))
	for _, id := range r.priorities[t] {
		idx, ok := byID[id]
		if !ok || used[id] {
			continue
		}
		used[id] = true
		out = append(out, matches[idx])
	}
	for _, m := range matches {
		if !used[m.ID] {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// RequirementsOf returns the reference inputs of a model. Unknown models and
// models without reference inputs yield empty sets.
func (r *Resolver) RequirementsOf(modelID string) Requirements {
	req := Requirements{Required: []domain.InputKind{}, Optional: []domain.InputKind{}}
	m, ok := r.catalog.Lookup(modelID)
	if !ok {
		return req
	}
	req.Required = append(req.Required, m.RequiredInputs...)
	req.Optional = append(req.Optional, m.OptionalInputs...)
	return req
}

// Supports reports whether the model serves the generation type. Unknown
// model ids answer false.
func (r *Resolver) Supports(modelID string, t domain.GenerationType) bool {
	m, ok := r.catalog.Lookup(modelID)
	if !ok {
		return false
	}
	return classifiedAs(m, t)
}
