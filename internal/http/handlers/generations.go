package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"genstudio/internal/domain"
	"genstudio/internal/materializer"
)

type generateRequest struct {
	ModelID        string                  `json:"model_id"`
	GenerationType string                  `json:"generation_type"`
	ProjectID      string                  `json:"project_id"`
	Prompt         string                  `json:"prompt"`
	NegativePrompt string                  `json:"negative_prompt"`
	Inputs         []domain.ReferenceInput `json:"inputs"`
	Parameters     map[string]any          `json:"parameters"`
}

type jobDTO struct {
	ID             string                `json:"id"`
	Status         domain.JobStatus      `json:"status"`
	ModelID        string                `json:"model_id"`
	GenerationType domain.GenerationType `json:"generation_type"`
	ProjectID      string                `json:"project_id,omitempty"`
	Progress       domain.Progress       `json:"progress"`
	Error          *domain.JobError      `json:"error,omitempty"`
	Output         *outputDTO            `json:"output,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
	CompletedAt    *time.Time            `json:"completed_at,omitempty"`
}

type outputDTO struct {
	AssetID  string                    `json:"asset_id"`
	Type     domain.MediaKind          `json:"type,omitempty"`
	Metadata *domain.AssetMetadata     `json:"metadata,omitempty"`
	Delivery *materializer.DeliveryURL `json:"delivery,omitempty"`
	Preview  *materializer.DeliveryURL `json:"preview,omitempty"`
}

func toJobDTO(job *domain.GenerationJob) jobDTO {
	dto := jobDTO{
		ID:             job.ID,
		Status:         job.Status,
		ModelID:        job.Request.ModelID,
		GenerationType: job.Request.GenerationType,
		ProjectID:      job.Request.ProjectID,
		Progress:       job.Progress,
		Error:          job.Error,
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
		CompletedAt:    job.CompletedAt,
	}
	if job.OutputAssetID != "" {
		dto.Output = &outputDTO{AssetID: job.OutputAssetID}
	}
	return dto
}

// CreateGeneration answers POST /v1/generations. A job the provider refused
// is still created and is returned failed.
func (a *App) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	var body generateRequest
	if err := a.decode(w, r, &body); err != nil {
		a.error(w, r, err)
		return
	}
	job, err := a.Orchestrator.Submit(r.Context(), domain.GenerationRequest{
		OwnerID:        a.ownerID(r),
		ModelID:        body.ModelID,
		GenerationType: domain.GenerationType(body.GenerationType),
		ProjectID:      body.ProjectID,
		Prompt:         body.Prompt,
		NegativePrompt: body.NegativePrompt,
		Inputs:         body.Inputs,
		Parameters:     body.Parameters,
	})
	if err != nil {
		a.error(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/generations/"+job.ID)
	a.json(w, http.StatusAccepted, toJobDTO(job))
}

// GetGeneration answers GET /v1/generations/{id}. Completed jobs carry
// delivery URLs for their output asset.
func (a *App) GetGeneration(w http.ResponseWriter, r *http.Request) {
	job, err := a.Orchestrator.Job(r.Context(), a.ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		a.error(w, r, err)
		return
	}
	dto := toJobDTO(job)
	if dto.Output != nil {
		asset, err := a.Assets.GetByID(r.Context(), job.OutputAssetID)
		if err != nil {
			a.Logger.Warn().Err(err).Str("job_id", job.ID).Str("asset_id", job.OutputAssetID).Msg("load output asset")
		} else {
			dto.Output.Type = asset.Type
			dto.Output.Metadata = &asset.Metadata
			dto.Output.Delivery = a.Materializer.ForAsset(r.Context(), asset, materializer.AssetRequest{Playback: true, Expiry: a.DeliveryTTL})
			dto.Output.Preview = a.Materializer.ForAsset(r.Context(), asset, materializer.AssetRequest{Preset: materializer.PresetMedium, Expiry: a.DeliveryTTL})
		}
	}
	a.json(w, http.StatusOK, dto)
}

// CancelGeneration answers POST /v1/generations/{id}/cancel.
func (a *App) CancelGeneration(w http.ResponseWriter, r *http.Request) {
	job, err := a.Orchestrator.Cancel(r.Context(), a.ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		a.error(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toJobDTO(job))
}
