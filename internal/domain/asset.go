package domain

import (
	"strings"
	"time"
)

// SourceType records how an asset came into existence.
type SourceType string

const (
	SourceUpload     SourceType = "upload"
	SourceGeneration SourceType = "generation"
)

// AssetMetadata describes the stored media.
type AssetMetadata struct {
	MIME            string  `json:"mime,omitempty"`
	Bytes           int64   `json:"bytes,omitempty"`
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// Provenance is the weak back-reference from an asset to what produced it.
type Provenance struct {
	SourceType         SourceType `json:"source_type"`
	SourceGenerationID string     `json:"source_generation_id,omitempty"`
}

// Asset represents a stored media object. StorageRef and ThumbnailRef are
// internal storage references, never public URLs.
type Asset struct {
	ID           string        `json:"id"`
	OwnerID      string        `json:"owner_id"`
	Type         MediaKind     `json:"type"`
	StorageRef   string        `json:"-"`
	ThumbnailRef string        `json:"-"`
	Metadata     AssetMetadata `json:"metadata"`
	Provenance   Provenance    `json:"provenance"`
	CreatedAt    time.Time     `json:"created_at"`
}

// NewAsset is the input for creating an asset record.
type NewAsset struct {
	OwnerID      string
	Type         MediaKind
	StorageRef   string
	ThumbnailRef string
	Metadata     AssetMetadata
	Provenance   Provenance
}

// Storage prefixes of owner-scoped objects. The owner id is the second path
// segment, as in uploads/<owner>/cat.png or generated/<owner>/<job>/output.png.
const (
	UploadsPrefix   = "uploads"
	GeneratedPrefix = "generated"
)

// OwnsStorageRef reports whether ref is an internal storage reference under
// one of owner's prefixes. External URLs, inline payloads and paths that
// climb out of the prefix never qualify.
func OwnsStorageRef(owner, ref string) bool {
	if owner == "" {
		return false
	}
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "/")
	if strings.Contains(ref, "..") || strings.Contains(ref, ":") {
		return false
	}
	parts := strings.SplitN(ref, "/", 3)
	if len(parts) != 3 || parts[1] != owner || parts[2] == "" {
		return false
	}
	return parts[0] == UploadsPrefix || parts[0] == GeneratedPrefix
}
