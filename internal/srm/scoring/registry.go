package scoring

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Registry 已校验的评估目录集合，进程启动时加载一次
type Registry struct {
	defaultID string
	catalogs  map[string]*Catalog
}

// NewRegistry validates every catalog and indexes it by id. An invalid
// catalog is a startup error.
func NewRegistry(defaultID string, catalogs ...Catalog) (*Registry, error) {
	r := &Registry{defaultID: defaultID, catalogs: make(map[string]*Catalog, len(catalogs))}
	for i := range catalogs {
		c := catalogs[i].Clone()
		c.applyDefaults()
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("catalog %q: %w", c.ID, err)
		}
		if _, dup := r.catalogs[c.ID]; dup {
			return nil, fmt.Errorf("catalog %q registered twice: %w", c.ID, ErrDuplicateCategory)
		}
		r.catalogs[c.ID] = c
	}
	if _, ok := r.catalogs[defaultID]; !ok {
		return nil, fmt.Errorf("%w: default %q", ErrUnknownCatalog, defaultID)
	}
	return r, nil
}

// DefaultID returns the id used when an assignment does not name a catalog.
func (r *Registry) DefaultID() string { return r.defaultID }

// Get returns a copy of the catalog so callers cannot mutate configuration.
func (r *Registry) Get(id string) (*Catalog, error) {
	if id == "" {
		id = r.defaultID
	}
	c, ok := r.catalogs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCatalog, id)
	}
	return c.Clone(), nil
}

// List returns all catalogs ordered by id.
func (r *Registry) List() []*Catalog {
	out := make([]*Catalog, 0, len(r.catalogs))
	for _, c := range r.catalogs {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type catalogFile struct {
	Default  string    `yaml:"default"`
	Catalogs []Catalog `yaml:"catalogs"`
}

// LoadRegistry reads catalogs from a YAML file. A missing file falls back to
// the built-in pharmaceutical catalog.
func LoadRegistry(path, defaultID string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) || path == "" {
		return NewRegistry(DefaultCatalogID, DefaultCatalog())
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return ParseRegistry(data, defaultID)
}

// ParseRegistry decodes a catalog file body.
func ParseRegistry(data []byte, defaultID string) (*Registry, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}
	if defaultID == "" {
		defaultID = f.Default
	}
	if defaultID == "" && len(f.Catalogs) > 0 {
		defaultID = f.Catalogs[0].ID
	}
	return NewRegistry(defaultID, f.Catalogs...)
}
