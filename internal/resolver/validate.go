package resolver

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"genstudio/internal/domain"
)

// Validate checks a request against the catalog before any job exists. Every
// failure is a bad_request on the model-resolution surface.
func (r *Resolver) Validate(req domain.GenerationRequest) (domain.ModelDescriptor, error) {
	if !req.GenerationType.Valid() {
		return domain.ModelDescriptor{}, domain.BadRequest("unknown generation type %q", req.GenerationType)
	}
	model, ok := r.catalog.Lookup(req.ModelID)
	if !ok {
		return domain.ModelDescriptor{}, domain.BadRequest("unknown model %q", req.ModelID)
	}
	if !classifiedAs(model, req.GenerationType) {
		return domain.ModelDescriptor{}, domain.BadRequest("model %q does not support %s", model.ID, req.GenerationType)
	}
	if req.GenerationType.RequiresPrompt() && strings.TrimSpace(req.Prompt) == "" {
		return domain.ModelDescriptor{}, domain.BadRequest("prompt is required for %s", req.GenerationType)
	}

	supplied := make(map[domain.InputKind]bool, len(req.Inputs))
	for _, in := range req.Inputs {
		if !in.Kind.Valid() {
			return domain.ModelDescriptor{}, domain.BadRequest("unknown input kind %q", in.Kind)
		}
		if supplied[in.Kind] {
			return domain.ModelDescriptor{}, domain.BadRequest("input %s supplied more than once", in.Kind)
		}
		if !model.Requires(in.Kind) && !model.Accepts(in.Kind) {
			return domain.ModelDescriptor{}, domain.BadRequest("model %q does not accept %s input", model.ID, in.Kind)
		}
		if !domain.OwnsStorageRef(req.OwnerID, in.StorageRef) {
			return domain.ModelDescriptor{}, domain.BadRequest("input %s must reference one of your stored assets", in.Kind)
		}
		supplied[in.Kind] = true
	}

	var missing []string
	for _, kind := range model.RequiredInputs {
		if !supplied[kind] {
			missing = append(missing, string(kind))
		}
	}
	if len(missing) > 0 {
		return domain.ModelDescriptor{}, domain.BadRequest("missing required input: %s", strings.Join(missing, ", "))
	}

	if err := r.validateParameters(model, req.Parameters); err != nil {
		return domain.ModelDescriptor{}, err
	}
	return model, nil
}

func (r *Resolver) validateParameters(model domain.ModelDescriptor, params map[string]any) error {
	if len(model.Settings) == 0 {
		return nil
	}
	schema, err := r.schemas.get(model)
	if err != nil {
		return fmt.Errorf("resolver: compile settings schema for %s: %w", model.ID, err)
	}
	doc := params
	if doc == nil {
		doc = map[string]any{}
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return domain.BadRequest("parameters could not be validated: %v", err)
	}
	if result.Valid() {
		return nil
	}
	details := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		details = append(details, e.String())
	}
	return domain.BadRequest("invalid parameters: %s", strings.Join(details, "; "))
}

// schemaCache compiles each model's settings schema once.
type schemaCache struct {
	mu      sync.Mutex
	entries map[string]*gojsonschema.Schema
}

func (c *schemaCache) get(model domain.ModelDescriptor) (*gojsonschema.Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.entries[model.ID]; ok {
		return s, nil
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(model.Settings))
	if err != nil {
		return nil, err
	}
	if c.entries == nil {
		c.entries = make(map[string]*gojsonschema.Schema)
	}
	c.entries[model.ID] = s
	return s, nil
}

func (c *schemaCache) reset() {
	c.mu.Lock()
	c.entries = nil
	c.mu.Unlock()
}
