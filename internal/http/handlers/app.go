package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"genstudio/internal/domain"
	"genstudio/internal/materializer"
	"genstudio/internal/middleware"
	"genstudio/internal/orchestrator"
	"genstudio/internal/resolver"
)

// App holds the collaborators behind the HTTP surface.
type App struct {
	Resolver     *resolver.Resolver
	Orchestrator *orchestrator.Orchestrator
	Assets       domain.AssetRepository
	Materializer *materializer.Materializer
	Logger       zerolog.Logger
	// DeliveryTTL is the default lifetime of delivery URLs.
	DeliveryTTL time.Duration
	// Heartbeat is the idle interval between SSE keep-alive comments.
	Heartbeat time.Duration
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.NewError(domain.KindBadRequest, domain.SurfaceJob, "invalid payload", err)
	}
	return nil
}

func (a *App) ownerID(r *http.Request) string {
	return middleware.OwnerIDFromContext(r.Context())
}

const maxBodyBytes = 1 << 20
