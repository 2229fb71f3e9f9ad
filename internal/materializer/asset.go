package materializer

import (
	"context"
	"strings"
	"time"

	"genstudio/internal/domain"
)

// Preset is a size tier for previews.
type Preset string

const (
	PresetSmall  Preset = "small"
	PresetMedium Preset = "medium"
	PresetLarge  Preset = "large"
)

var presets = map[Preset]Transform{
	PresetSmall:  {Width: 256, Quality: 70, Format: FormatWebP, Resize: ResizeCover},
	PresetMedium: {Width: 768, Quality: 80, Format: FormatWebP, Resize: ResizeCover},
	PresetLarge:  {Width: 1536, Quality: 85, Format: FormatWebP, Resize: ResizeContain},
}

// ParsePreset returns the preset named by raw.
func ParsePreset(raw string) (Preset, bool) {
	p := Preset(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := presets[p]
	return p, ok
}

// AssetRequest selects what to deliver for an asset.
type AssetRequest struct {
	Preset Preset
	// Playback asks for the full video rather than a preview.
	Playback  bool
	Download  bool
	Expiry    time.Duration
	Transform *Transform
}

// ForAsset materializes the right object for an asset. Video previews resolve
// against the thumbnail; the video itself is only signed for playback or
// download.
func (m *Materializer) ForAsset(ctx context.Context, asset *domain.Asset, req AssetRequest) *DeliveryURL {
	if asset == nil {
		return nil
	}
	opts := Options{Expiry: req.Expiry, Download: req.Download, Transform: req.Transform}
	if preset, ok := presets[req.Preset]; ok {
		t := preset
		opts.Transform = &t
	}

	if asset.Type == domain.MediaKindVideo {
		if req.Playback || req.Download {
			opts.Transform = nil
			return m.Materialize(ctx, asset.StorageRef, opts)
		}
		if asset.ThumbnailRef == "" {
			return nil
		}
		return m.Materialize(ctx, asset.ThumbnailRef, opts)
	}
	return m.Materialize(ctx, asset.StorageRef, opts)
}
