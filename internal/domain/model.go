package domain

import "strings"

// MediaKind enumerates the output media a model produces.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// Valid reports whether k is a known media kind.
func (k MediaKind) Valid() bool {
	return k == MediaKindImage || k == MediaKindVideo
}

// InputKind enumerates the typed reference inputs a model can consume.
type InputKind string

const (
	InputReferenceImage InputKind = "reference-image"
	InputFirstFrame     InputKind = "first-frame"
	InputLastFrame      InputKind = "last-frame"
	InputReferenceVideo InputKind = "reference-video"
)

// InputKinds lists every input kind in canonical order.
var InputKinds = []InputKind{
	InputReferenceImage,
	InputFirstFrame,
	InputLastFrame,
	InputReferenceVideo,
}

// Valid reports whether k is a known input kind.
func (k InputKind) Valid() bool {
	for _, known := range InputKinds {
		if k == known {
			return true
		}
	}
	return false
}

// IsVideo reports whether the input carries video rather than a still frame.
func (k InputKind) IsVideo() bool {
	return k == InputReferenceVideo
}

// GenerationType is the input-modality to output-modality category of a request.
type GenerationType string

const (
	TextToImage  GenerationType = "text-to-image"
	TextToVideo  GenerationType = "text-to-video"
	ImageToImage GenerationType = "image-to-image"
	ImageToVideo GenerationType = "image-to-video"
	VideoToVideo GenerationType = "video-to-video"
	Inpaint      GenerationType = "inpaint"
	Lipsync      GenerationType = "lipsync"
)

// GenerationTypes lists the closed set of generation types in canonical order.
var GenerationTypes = []GenerationType{
	TextToImage,
	TextToVideo,
	ImageToImage,
	ImageToVideo,
	VideoToVideo,
	Inpaint,
	Lipsync,
}

// ParseGenerationType normalizes free-form input into a known generation type.
func ParseGenerationType(raw string) (GenerationType, bool) {
	candidate := GenerationType(strings.ToLower(strings.TrimSpace(raw)))
	for _, t := range GenerationTypes {
		if t == candidate {
			return t, true
		}
	}
	return "", false
}

// Valid reports whether t belongs to the closed set.
func (t GenerationType) Valid() bool {
	_, ok := ParseGenerationType(string(t))
	return ok
}

// RequiresPrompt reports whether requests of this type must carry a text prompt.
func (t GenerationType) RequiresPrompt() bool {
	return t == TextToImage || t == TextToVideo
}

// Model features that unlock generation types beyond the capability flags.
const (
	FeatureInpaint = "inpaint"
	FeatureLipsync = "lipsync"
)

// ModelDescriptor is the static metadata of one third-party generation model.
// Descriptors are owned by the catalog and never mutated after load.
type ModelDescriptor struct {
	ID                     string         `yaml:"id" json:"id"`
	Name                   string         `yaml:"name" json:"name"`
	MediaKind              MediaKind      `yaml:"media_kind" json:"media_kind"`
	AcceptsImageInput      bool           `yaml:"accepts_image_input" json:"accepts_image_input"`
	AcceptsVideoInput      bool           `yaml:"accepts_video_input" json:"accepts_video_input"`
	RequiresReferenceInput bool           `yaml:"requires_reference_input" json:"requires_reference_input"`
	RequiredInputs         []InputKind    `yaml:"required_inputs" json:"required_inputs"`
	OptionalInputs         []InputKind    `yaml:"optional_inputs" json:"optional_inputs"`
	Features               []string       `yaml:"features" json:"features,omitempty"`
	Settings               map[string]any `yaml:"settings" json:"settings,omitempty"`
}

// HasFeature reports whether the descriptor advertises the named feature.
func (d ModelDescriptor) HasFeature(feature string) bool {
	for _, f := range d.Features {
		if strings.EqualFold(f, feature) {
			return true
		}
	}
	return false
}

// Requires reports whether kind is a required input of the model.
func (d ModelDescriptor) Requires(kind InputKind) bool {
	return containsKind(d.RequiredInputs, kind)
}

// Accepts reports whether the model consumes kind, either as required or optional input.
func (d ModelDescriptor) Accepts(kind InputKind) bool {
	return containsKind(d.RequiredInputs, kind) || containsKind(d.OptionalInputs, kind)
}

// Clone returns a deep copy so callers cannot reach into catalog-owned slices.
func (d ModelDescriptor) Clone() ModelDescriptor {
	out := d
	out.RequiredInputs = append([]InputKind(nil), d.RequiredInputs...)
	out.OptionalInputs = append([]InputKind(nil), d.OptionalInputs...)
	out.Features = append([]string(nil), d.Features...)
	out.Settings = cloneMap(d.Settings)
	return out
}

func containsKind(kinds []InputKind, kind InputKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return cloneMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return typed
	}
}
