package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"genstudio/internal/domain"
	"genstudio/internal/resolver"
)

type modelDTO struct {
	ID              string                  `json:"id"`
	Name            string                  `json:"name,omitempty"`
	MediaKind       domain.MediaKind        `json:"media_kind"`
	GenerationTypes []domain.GenerationType `json:"generation_types"`
	Required        []domain.InputKind      `json:"required_inputs"`
	Optional        []domain.InputKind      `json:"optional_inputs"`
	Settings        map[string]any          `json:"settings,omitempty"`
}

func toModelDTO(m domain.ModelDescriptor) modelDTO {
	types := resolver.Classify(m)
	if types == nil {
		types = []domain.GenerationType{}
	}
	dto := modelDTO{
		ID:              m.ID,
		Name:            m.Name,
		MediaKind:       m.MediaKind,
		GenerationTypes: types,
		Required:        append([]domain.InputKind{}, m.RequiredInputs...),
		Optional:        append([]domain.InputKind{}, m.OptionalInputs...),
		Settings:        m.Settings,
	}
	return dto
}

// ListModels answers GET /v1/models. Without generation_type it lists the
// whole catalog; with it, the matching models in catalog order, or in
// recommendation order when recommended=true.
func (a *App) ListModels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			a.error(w, r, domain.BadRequest("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	var models []domain.ModelDescriptor
	rawType := strings.TrimSpace(q.Get("generation_type"))
	switch {
	case rawType == "":
		models = a.Resolver.Catalog().Models()
	default:
		t, ok := domain.ParseGenerationType(rawType)
		if !ok {
			a.error(w, r, domain.BadRequest("unknown generation type %q", rawType))
			return
		}
		if recommended, _ := strconv.ParseBool(q.Get("recommended")); recommended {
			models = a.Resolver.Recommend(t, limit)
		} else {
			models = a.Resolver.ModelsFor(t)
		}
	}
	if limit > 0 && len(models) > limit {
		models = models[:limit]
	}

	items := make([]modelDTO, 0, len(models))
	for _, m := range models {
		items = append(items, toModelDTO(m))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// ModelRequirements answers GET /v1/models/{id}/requirements.
func (a *App) ModelRequirements(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := a.Resolver.Catalog().Lookup(id); !ok {
		a.error(w, r, domain.NewError(domain.KindNotFound, domain.SurfaceModelResolution, "model not found", nil))
		return
	}
	a.json(w, http.StatusOK, a.Resolver.RequirementsOf(id))
}
