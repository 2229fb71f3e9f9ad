// Package catalog holds the immutable list of generation model descriptors.
// A Catalog is built once at startup and passed by reference; it is safe for
// concurrent reads without locking.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"genstudio/internal/domain"
)

//go:embed default_models.yaml
var defaultCatalog []byte

// File is the on-disk catalog layout.
type File struct {
	Models     []domain.ModelDescriptor            `yaml:"models"`
	Priorities map[domain.GenerationType][]string `yaml:"priorities"`
}

// Catalog is an ordered, read-only set of model descriptors.
type Catalog struct {
	models     []domain.ModelDescriptor
	index      map[string]int
	priorities map[domain.GenerationType][]string
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog file from disk. An empty path loads the embedded default.
func Load(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	return New(f.Models, f.Priorities)
}

// New validates the descriptors and builds a catalog that owns deep copies of them.
func New(models []domain.ModelDescriptor, priorities map[domain.GenerationType][]string) (*Catalog, error) {
	c := &Catalog{
		models:     make([]domain.ModelDescriptor, 0, len(models)),
		index:      make(map[string]int, len(models)),
		priorities: make(map[domain.GenerationType][]string, len(priorities)),
	}
	for i, m := range models {
		m.ID = strings.TrimSpace(m.ID)
		if err := validateDescriptor(m); err != nil {
			return nil, fmt.Errorf("catalog: model #%d: %w", i, err)
		}
		if _, dup := c.index[m.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate model id %q", m.ID)
		}
		c.index[m.ID] = len(c.models)
		c.models = append(c.models, m.Clone())
	}
	for t, ids := range priorities {
		if !t.Valid() {
			return nil, fmt.Errorf("catalog: priorities: unknown generation type %q", t)
		}
		c.priorities[t] = append([]string(nil), ids...)
	}
	return c, nil
}

func validateDescriptor(m domain.ModelDescriptor) error {
	if m.ID == "" {
		return errors.New("id is required")
	}
	if !m.MediaKind.Valid() {
		return fmt.Errorf("%s: unknown media kind %q", m.ID, m.MediaKind)
	}
	seen := make(map[domain.InputKind]bool)
	for _, k := range m.RequiredInputs {
		if !k.Valid() {
			return fmt.Errorf("%s: unknown required input %q", m.ID, k)
		}
		seen[k] = true
	}
	for _, k := range m.OptionalInputs {
		if !k.Valid() {
			return fmt.Errorf("%s: unknown optional input %q", m.ID, k)
		}
		if seen[k] {
			return fmt.Errorf("%s: input %q is both required and optional", m.ID, k)
		}
	}
	if m.Settings != nil {
		if t, ok := m.Settings["type"]; ok && t != "object" {
			return fmt.Errorf("%s: settings schema must describe an object", m.ID)
		}
		if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(m.Settings)); err != nil {
			return fmt.Errorf("%s: invalid settings schema: %w", m.ID, err)
		}
	}
	return nil
}

// Models returns copies of every descriptor in catalog order.
func (c *Catalog) Models() []domain.ModelDescriptor {
	out := make([]domain.ModelDescriptor, len(c.models))
	for i, m := range c.models {
		out[i] = m.Clone()
	}
	return out
}

// Lookup returns the descriptor with the given id.
func (c *Catalog) Lookup(id string) (domain.ModelDescriptor, bool) {
	idx, ok := c.index[strings.TrimSpace(id)]
	if !ok {
		return domain.ModelDescriptor{}, false
	}
	return c.models[idx].Clone(), true
}

// Position returns the catalog order of a model, or -1.
func (c *Catalog) Position(id string) int {
	if idx, ok := c.index[id]; ok {
		return idx
	}
	return -1
}

// Len returns the number of descriptors.
func (c *Catalog) Len() int {
	return len(c.models)
}

// Priorities returns the preferred model ids configured for a generation type.
func (c *Catalog) Priorities(t domain.GenerationType) []string {
	return append([]string(nil), c.priorities[t]...)
}
