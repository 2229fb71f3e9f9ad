// Package synthetic is a deterministic in-process provider used when no
// gateway is configured. Jobs advance one step per status call.
package synthetic

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"genstudio/internal/domain"
	"genstudio/internal/providers"
)

// Options configures the synthetic provider.
type Options struct {
	// Steps is the number of status calls before a job succeeds.
	Steps  int
	Logger *zerolog.Logger
}

type job struct {
	modelID   string
	payload   providers.Payload
	seed      string
	polls     int
	cancelled bool
}

// Provider implements providers.Client without any network I/O.
type Provider struct {
	steps  int
	logger zerolog.Logger

	mu   sync.Mutex
	jobs map[string]*job
}

// New constructs a synthetic provider.
func New(opts Options) *Provider {
	steps := opts.Steps
	if steps < 1 {
		steps = 3
	}
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Provider{steps: steps, logger: logger, jobs: make(map[string]*job)}
}

func (p *Provider) CreateJob(_ context.Context, modelID string, payload providers.Payload) (string, error) {
	id := uuid.NewString()
	p.mu.Lock()
	p.jobs[id] = &job{
		modelID: modelID,
		payload: payload,
		seed:    seedOf(modelID, payload.GenerationType, payload.Prompt, payload.Reference),
	}
	p.mu.Unlock()
	p.logger.Debug().Str("model_id", modelID).Str("provider_job_id", id).Msg("synthetic: job accepted")
	return id, nil
}

func (p *Provider) GetStatus(_ context.Context, providerJobID string) (*providers.Status, error) {
	p.mu.Lock()
	j, ok := p.jobs[providerJobID]
	if !ok {
		p.mu.Unlock()
		return nil, providers.Errorf(domain.KindNotFound, "generation job not found at provider", fmt.Errorf("synthetic: unknown job %s", providerJobID))
	}
	if j.cancelled {
		p.mu.Unlock()
		return &providers.Status{State: domain.ProviderFailed, Error: "job was cancelled"}, nil
	}
	j.polls++
	polls, seed, payload := j.polls, j.seed, j.payload
	p.mu.Unlock()

	switch {
	case polls >= p.steps:
		return &providers.Status{
			State:  domain.ProviderSucceeded,
			Logs:   []string{"done"},
			Output: render(payload, seed),
		}, nil
	case polls == 1:
		pos := p.steps - 1
		return &providers.Status{State: domain.ProviderQueued, Position: &pos, Logs: []string{"queued"}}, nil
	}
	return &providers.Status{
		State: domain.ProviderRunning,
		Logs:  []string{fmt.Sprintf("step %d/%d", polls, p.steps)},
	}, nil
}

func (p *Provider) Cancel(_ context.Context, providerJobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if j, ok := p.jobs[providerJobID]; ok {
		j.cancelled = true
	}
	return nil
}

func render(payload providers.Payload, seed string) *providers.Output {
	aspect, _ := payload.Parameters["aspect_ratio"].(string)
	width, height := dimensionsFor(aspect)
	still := renderStill(width, height, seed)
	if payload.MediaKind == domain.MediaKindVideo {
		return &providers.Output{
			Data:            placeholderVideo(seed, payload.Prompt),
			MIME:            "video/mp4",
			Width:           width,
			Height:          height,
			DurationSeconds: float64(clipLength(payload.Prompt)),
			ThumbnailData:   still,
			ThumbnailMIME:   "image/png",
		}
	}
	return &providers.Output{Data: still, MIME: "image/png", Width: width, Height: height}
}

func seedOf(parts ...any) string {
	h := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(h, "%v|", part)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// dimensionsFor keeps renders small; the output only has to be a valid image.
func dimensionsFor(aspect string) (int, int) {
	switch strings.TrimSpace(aspect) {
	case "16:9":
		return 640, 360
	case "9:16":
		return 360, 640
	case "4:3":
		return 512, 384
	case "3:4":
		return 384, 512
	}
	parts := strings.Split(aspect, ":")
	if len(parts) == 2 {
		a, errA := strconv.Atoi(strings.TrimSpace(parts[0]))
		b, errB := strconv.Atoi(strings.TrimSpace(parts[1]))
		if errA == nil && errB == nil && a > 0 && b > 0 {
			return 512, max(1, 512*b/a)
		}
	}
	return 512, 512
}

func renderStill(width, height int, seed string) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{swatch(seed, 0)}, image.Point{}, draw.Src)

	band := max(16, height/12)
	accent := &image.Uniform{swatch(seed, 1)}
	for y := 0; y < height; y += band * 2 {
		draw.Draw(img, image.Rect(0, y, width, min(height, y+band)), accent, image.Point{}, draw.Over)
	}
	diagonal := swatch(seed, 2)
	for x := 0; x < max(width, height); x += max(16, width/32) {
		for y := 0; y < height && x+y < width; y++ {
			img.Set(x+y, y, diagonal)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func swatch(seed string, shift int) color.RGBA {
	if len(seed) < 6 {
		seed = "808080"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	hexPart := doubled[start : start+6]
	channel := func(s string) uint8 {
		v, err := strconv.ParseUint(s, 16, 8)
		if err != nil {
			return 0
		}
		return uint8(v)
	}
	return color.RGBA{R: channel(hexPart[0:2]), G: channel(hexPart[2:4]), B: channel(hexPart[4:6]), A: 255}
}

func placeholderVideo(seed, prompt string) []byte {
	return []byte(strings.Join([]string{
		"synthetic video placeholder",
		"seed: " + seed,
		"prompt: " + strings.TrimSpace(prompt),
	}, "\n"))
}

func clipLength(prompt string) int {
	words := len(strings.Fields(prompt))
	return min(45, max(5, words/3))
}

var _ providers.Client = (*Provider)(nil)
