// Package catalog provides the declarative model registry for modelmux.
//
// The catalog loads a YAML file with two sections — PROVIDERS and MODELS —
// into an immutable-after-load, thread-safe lookup keyed by "PROVIDER/name".
// It answers model lookups for the dispatch core and yields per-model
// provider adapters from a closed factory table.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/modelmux/modelmux/internal/provider"
	"github.com/modelmux/modelmux/pkg/models"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is the in-memory view of known providers and models. Reads vastly
// outnumber writes; AddModel mutates under a short critical section.
type Catalog struct {
	mu        sync.RWMutex
	providers map[string]*models.Provider // key: provider name (upper)
	models    map[string]*models.Model    // key: "PROVIDER/name"
}

type catalogFile struct {
	Providers map[string]providerEntry `yaml:"PROVIDERS"`
	Models    map[string]modelEntry    `yaml:"MODELS"`
}

type providerEntry struct {
	Config map[string]any `yaml:"config"`
}

type modelEntry struct {
	InternalModelID  string              `yaml:"internal_model_id"`
	MaxTokens        int                 `yaml:"max_tokens"`
	MaxOutputTokens  int                 `yaml:"max_output_tokens"`
	FixedTemperature bool                `yaml:"fixed_temperature"`
	Capabilities     models.Capabilities `yaml:"capabilities"`
	Config           map[string]any      `yaml:"config"`
	Price            models.Price        `yaml:"price"`
}

// Load reads the catalog from path. An empty path falls back to the embedded
// default catalog.
func Load(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
	}
	return Parse(data)
}

// Parse builds a catalog from raw YAML.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{
		providers: make(map[string]*models.Provider, len(file.Providers)),
		models:    make(map[string]*models.Model, len(file.Models)),
	}

	for name, entry := range file.Providers {
		upper := strings.ToUpper(name)
		if !provider.Known(upper) {
			return nil, fmt.Errorf("catalog: unknown provider %q", name)
		}
		c.providers[upper] = &models.Provider{Name: upper, Config: entry.Config}
	}

	for id, entry := range file.Models {
		providerName, modelName, err := splitModelID(id)
		if err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		ref, ok := c.providers[strings.ToUpper(providerName)]
		if !ok {
			return nil, fmt.Errorf("catalog: model %q references provider %q which is not in PROVIDERS", id, providerName)
		}
		m := &models.Model{
			Provider:         ref.Name,
			Name:             modelName,
			InternalModelID:  entry.InternalModelID,
			MaxTokens:        entry.MaxTokens,
			MaxOutputTokens:  entry.MaxOutputTokens,
			FixedTemperature: entry.FixedTemperature,
			Capabilities:     entry.Capabilities,
			Config:           entry.Config,
			Price:            entry.Price,
			ProviderRef:      ref,
		}
		c.models[m.ID()] = m
	}

	log.Info().
		Int("providers", len(c.providers)).
		Int("models", len(c.models)).
		Msg("Model catalog loaded")

	return c, nil
}

// splitModelID validates a "PROVIDER/name" id: exactly one slash separating
// non-empty components.
func splitModelID(id string) (providerName, modelName string, err error) {
	parts := strings.Split(id, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid model id %q: want \"PROVIDER/name\"", id)
	}
	return parts[0], parts[1], nil
}

// GetModel looks up a model by "PROVIDER/name" (provider match
// case-insensitive, name exact) or by bare name (first match).
func (c *Catalog) GetModel(id string) (*models.Model, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if strings.Contains(id, "/") {
		providerName, modelName, err := splitModelID(id)
		if err != nil {
			return nil, models.NewError(models.KindModelNotFound, "%v", err)
		}
		key := strings.ToUpper(providerName) + "/" + modelName
		if m, ok := c.models[key]; ok {
			return m, nil
		}
		return nil, models.NewError(models.KindModelNotFound, "model %q not found in catalog", id)
	}

	// Bare name: first match, stable over iteration order.
	var keys []string
	for key := range c.models {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if c.models[key].Name == id {
			return c.models[key], nil
		}
	}
	return nil, models.NewError(models.KindModelNotFound, "model %q not found in catalog", id)
}

// AddModel inserts or replaces a model by id and reconciles the provider
// record (providers are deduplicated by name).
func (c *Catalog) AddModel(m *models.Model) error {
	if m.Provider == "" || m.Name == "" {
		return fmt.Errorf("catalog: model needs provider and name")
	}
	upper := strings.ToUpper(m.Provider)
	if !provider.Known(upper) {
		return fmt.Errorf("catalog: unknown provider %q", m.Provider)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ref, ok := c.providers[upper]
	if !ok {
		ref = &models.Provider{Name: upper}
		if m.ProviderRef != nil {
			ref.Config = m.ProviderRef.Config
		}
		c.providers[upper] = ref
	}
	m.Provider = upper
	m.ProviderRef = ref
	c.models[m.ID()] = m
	return nil
}

// ListProviders returns all provider records sorted by name.
func (c *Catalog) ListProviders() []*models.Provider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*models.Provider, 0, len(c.providers))
	for _, p := range c.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListModels returns models, optionally filtered by provider name
// (case-insensitive), sorted by id.
func (c *Catalog) ListModels(providerName string) []*models.Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	upper := strings.ToUpper(providerName)
	out := make([]*models.Model, 0, len(c.models))
	for _, m := range c.models {
		if upper != "" && m.Provider != upper {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// ModelCount returns the number of catalog models.
func (c *Catalog) ModelCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.models)
}

// AdapterFor returns a fresh provider adapter bound to the given model,
// selected from the closed dispatch table.
func (c *Catalog) AdapterFor(m *models.Model) (provider.Adapter, error) {
	return provider.ForModel(m)
}
