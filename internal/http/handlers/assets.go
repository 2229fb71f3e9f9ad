package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"genstudio/internal/domain"
	"genstudio/internal/materializer"
)

const maxBatchRefs = 100

// GetAsset answers GET /v1/assets/{id} with the asset record. Storage
// references are never exposed.
func (a *App) GetAsset(w http.ResponseWriter, r *http.Request) {
	asset, err := a.ownedAsset(r)
	if err != nil {
		a.error(w, r, err)
		return
	}
	a.json(w, http.StatusOK, asset)
}

// AssetURL answers GET /v1/assets/{id}/url. Query parameters: preset,
// playback, download, w, h, q, format, resize and expires_in (seconds).
func (a *App) AssetURL(w http.ResponseWriter, r *http.Request) {
	asset, err := a.ownedAsset(r)
	if err != nil {
		a.error(w, r, err)
		return
	}
	req, err := a.assetRequest(r)
	if err != nil {
		a.error(w, r, err)
		return
	}
	url := a.Materializer.ForAsset(r.Context(), asset, req)
	if url == nil {
		a.error(w, r, domain.NewError(domain.KindNotFound, domain.SurfaceAsset, "no deliverable object for asset", nil))
		return
	}
	a.json(w, http.StatusOK, url)
}

func (a *App) ownedAsset(r *http.Request) (*domain.Asset, error) {
	asset, err := a.Assets.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	if asset.OwnerID != a.ownerID(r) {
		return nil, domain.NewError(domain.KindForbidden, domain.SurfaceAsset, "asset belongs to another owner", nil)
	}
	return asset, nil
}

func (a *App) assetRequest(r *http.Request) (materializer.AssetRequest, error) {
	q := r.URL.Query()
	req := materializer.AssetRequest{Expiry: a.DeliveryTTL}

	if raw := q.Get("preset"); raw != "" {
		p, ok := materializer.ParsePreset(raw)
		if !ok {
			return req, badQuery("unknown preset %q", raw)
		}
		req.Preset = p
	}
	var err error
	if req.Playback, err = boolParam(q.Get("playback"), "playback"); err != nil {
		return req, err
	}
	if req.Download, err = boolParam(q.Get("download"), "download"); err != nil {
		return req, err
	}
	if raw := q.Get("expires_in"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			return req, badQuery("expires_in must be a positive number of seconds")
		}
		req.Expiry = time.Duration(secs) * time.Second
	}

	t, err := transformParams(q.Get("w"), q.Get("h"), q.Get("q"))
	if err != nil {
		return req, err
	}
	t.Format = materializer.Format(q.Get("format"))
	t.Resize = materializer.ResizeMode(q.Get("resize"))
	if t != (materializer.Transform{}) {
		req.Transform = &t
	}
	return req, nil
}

func transformParams(w, h, q string) (materializer.Transform, error) {
	var t materializer.Transform
	for _, p := range []struct {
		name string
		raw  string
		dst  *int
	}{{"w", w, &t.Width}, {"h", h, &t.Height}, {"q", q, &t.Quality}} {
		if p.raw == "" {
			continue
		}
		n, err := strconv.Atoi(p.raw)
		if err != nil || n < 0 {
			return t, badQuery("%s must be a non-negative integer", p.name)
		}
		*p.dst = n
	}
	return t, nil
}

func boolParam(raw, name string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, badQuery("%s must be a boolean", name)
	}
	return v, nil
}

func badQuery(format string, args ...any) error {
	e := domain.BadRequest(format, args...)
	e.Surface = domain.SurfaceAsset
	return e
}

type deliveryRequest struct {
	Refs             []string                `json:"refs"`
	Download         bool                    `json:"download"`
	ExpiresInSeconds int                     `json:"expires_in"`
	Transform        *materializer.Transform `json:"transform"`
}

// DeliveryURLs answers POST /v1/delivery-urls. Entries line up with the
// submitted refs; a ref the caller may not read, or that cannot be signed,
// yields null. External URLs pass through unchanged.
func (a *App) DeliveryURLs(w http.ResponseWriter, r *http.Request) {
	var body deliveryRequest
	if err := a.decode(w, r, &body); err != nil {
		a.error(w, r, err)
		return
	}
	if len(body.Refs) > maxBatchRefs {
		a.error(w, r, badQuery("at most %d refs per request", maxBatchRefs))
		return
	}
	if body.ExpiresInSeconds < 0 {
		a.error(w, r, badQuery("expires_in must not be negative"))
		return
	}
	opts := materializer.Options{
		Expiry:    a.DeliveryTTL,
		Download:  body.Download,
		Transform: body.Transform,
	}
	if body.ExpiresInSeconds > 0 {
		opts.Expiry = time.Duration(body.ExpiresInSeconds) * time.Second
	}

	owner := a.ownerID(r)
	refs := make([]string, len(body.Refs))
	for i, ref := range body.Refs {
		if materializer.IsExternal(ref) || domain.OwnsStorageRef(owner, ref) {
			refs[i] = ref
		}
	}
	urls := a.Materializer.MaterializeAll(r.Context(), refs, opts)
	a.json(w, http.StatusOK, map[string]any{"items": urls})
}
