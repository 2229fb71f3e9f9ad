package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"genstudio/internal/domain"
	"genstudio/internal/providers"
)

// DefaultMaxImportBytes caps a single downloaded provider output.
const DefaultMaxImportBytes = 512 << 20

// Imported is the durable location and metadata of an imported output.
type Imported struct {
	StorageRef   string
	ThumbnailRef string
	Metadata     domain.AssetMetadata
}

// Importer copies provider output into object storage under keys derived
// from the job, so repeating an import overwrites instead of duplicating.
type Importer struct {
	store      Store
	httpClient *http.Client
	maxBytes   int64
}

// NewImporter builds an importer writing to store.
func NewImporter(store Store, httpClient *http.Client) *Importer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Importer{store: store, httpClient: httpClient, maxBytes: DefaultMaxImportBytes}
}

// OutputKey returns the storage key for a job's output.
func OutputKey(ownerID, jobID, name, mimeType string) string {
	return fmt.Sprintf("generated/%s/%s/%s%s", url.PathEscape(ownerID), url.PathEscape(jobID), name, extensionForMIME(mimeType))
}

// Discard removes the objects of an import whose job will never use them.
func (im *Importer) Discard(ctx context.Context, refs ...string) error {
	var errs []error
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if err := im.store.Delete(ctx, ref); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Import stores the output and its optional thumbnail.
func (im *Importer) Import(ctx context.Context, ownerID, jobID string, kind domain.MediaKind, out *providers.Output) (*Imported, error) {
	if out == nil {
		return nil, domain.NewError(domain.KindUpstreamUnavailable, domain.SurfaceStorage, "provider returned no output", nil)
	}
	data, mimeType, err := im.payload(ctx, out.Data, out.URL, out.MIME)
	if err != nil {
		return nil, err
	}
	ref, err := im.store.Put(ctx, OutputKey(ownerID, jobID, "output", mimeType), data, mimeType)
	if err != nil {
		return nil, storageError(err)
	}

	meta := domain.AssetMetadata{
		MIME:            mimeType,
		Bytes:           int64(len(data)),
		Width:           out.Width,
		Height:          out.Height,
		DurationSeconds: out.DurationSeconds,
	}
	if kind == domain.MediaKindImage && (meta.Width == 0 || meta.Height == 0) {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			meta.Width, meta.Height = cfg.Width, cfg.Height
		}
	}
	result := &Imported{StorageRef: ref, Metadata: meta}

	if len(out.ThumbnailData) > 0 || out.ThumbnailURL != "" {
		thumb, thumbMIME, err := im.payload(ctx, out.ThumbnailData, out.ThumbnailURL, out.ThumbnailMIME)
		if err != nil {
			return nil, err
		}
		thumbRef, err := im.store.Put(ctx, OutputKey(ownerID, jobID, "thumbnail", thumbMIME), thumb, thumbMIME)
		if err != nil {
			return nil, storageError(err)
		}
		result.ThumbnailRef = thumbRef
	}
	return result, nil
}

func (im *Importer) payload(ctx context.Context, data []byte, src, mimeType string) ([]byte, string, error) {
	if len(data) == 0 {
		if strings.TrimSpace(src) == "" {
			return nil, "", domain.NewError(domain.KindUpstreamUnavailable, domain.SurfaceStorage, "provider returned no output", nil)
		}
		var contentType string
		var err error
		data, contentType, err = im.download(ctx, src)
		if err != nil {
			return nil, "", err
		}
		if mimeType == "" {
			mimeType = contentType
		}
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = parsed
	}
	return data, mimeType, nil
}

func (im *Importer) download(ctx context.Context, src string) ([]byte, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(src))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, "", domain.NewError(domain.KindUpstreamUnavailable, domain.SurfaceStorage, "provider returned an invalid output url", fmt.Errorf("storage: invalid url %q", src))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("storage: build download request: %w", err)
	}
	resp, err := im.httpClient.Do(req)
	if err != nil {
		return nil, "", downloadError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", downloadError(fmt.Errorf("storage: download status %d", resp.StatusCode))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, im.maxBytes+1))
	if err != nil {
		return nil, "", downloadError(err)
	}
	if int64(len(data)) > im.maxBytes {
		return nil, "", domain.NewError(domain.KindBadRequest, domain.SurfaceStorage, "generated media is too large", errors.New("storage: output exceeds import limit"))
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func downloadError(err error) error {
	return domain.NewError(domain.KindUpstreamUnavailable, domain.SurfaceStorage, "could not fetch generated media", err)
}

func storageError(err error) error {
	return domain.NewError(domain.KindUpstreamUnavailable, domain.SurfaceStorage, "could not store generated media", err)
}

func extensionForMIME(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "video/quicktime":
		return ".mov"
	default:
		return ".bin"
	}
}
