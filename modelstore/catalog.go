package modelstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/radon-h2020/radon-defect-predictor/artifact"
	"github.com/radon-h2020/radon-defect-predictor/core"
	"github.com/radon-h2020/radon-defect-predictor/pkg/metrics"
)

const defaultCatalogSize = 8

// Catalog manages one store per model name, typically the script
// language, under a common root. Decoded models are kept in an LRU
// cache and concurrent loads of the same name collapse into a single
// store read.
type Catalog struct {
	open    func(name string) core.ModelStore
	cache   *lru.Cache[string, *core.SelectedModel]
	group   singleflight.Group
	logger  *zap.Logger
	metrics *metrics.PipelineMetrics
	root    string
}

// NewCatalog builds a file-system backed catalog rooted at root, one
// subdirectory per model name. size bounds the decoded-model cache;
// zero means a small default. logger and metrics may be nil.
func NewCatalog(root string, size int, logger *zap.Logger, m *metrics.PipelineMetrics) (*Catalog, error) {
	c, err := newCatalog(size, logger, m)
	if err != nil {
		return nil, err
	}
	c.root = root
	c.open = func(name string) core.ModelStore {
		return NewFS(filepath.Join(root, name), c.logger, c.metrics)
	}
	return c, nil
}

// NewCatalogWith builds a catalog over an arbitrary store opener.
func NewCatalogWith(open func(name string) core.ModelStore, size int, logger *zap.Logger, m *metrics.PipelineMetrics) (*Catalog, error) {
	c, err := newCatalog(size, logger, m)
	if err != nil {
		return nil, err
	}
	c.open = open
	return c, nil
}

func newCatalog(size int, logger *zap.Logger, m *metrics.PipelineMetrics) (*Catalog, error) {
	if size <= 0 {
		size = defaultCatalogSize
	}
	cache, err := lru.New[string, *core.SelectedModel](size)
	if err != nil {
		return nil, fmt.Errorf("create model cache: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		cache:   cache,
		logger:  logger.With(zap.String("component", "catalog")),
		metrics: m,
	}, nil
}

func checkName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return fmt.Errorf("invalid model name %q", name)
	}
	return nil
}

// Load returns the model stored under name. Repeated loads hit the
// decoded-model cache; concurrent first loads share one store read.
func (c *Catalog) Load(ctx context.Context, name string) (*core.SelectedModel, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if m, ok := c.cache.Get(name); ok {
		c.metrics.RecordModelLoad("cache", "ok")
		return m, nil
	}

	v, err, shared := c.group.Do(name, func() (any, error) {
		m, err := c.open(name).Load(ctx)
		if err != nil {
			return nil, err
		}
		c.cache.Add(name, m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("load deduplicated", zap.String("name", name))
	}
	return v.(*core.SelectedModel), nil
}

// Save publishes the model under name and refreshes the cache entry.
func (c *Catalog) Save(ctx context.Context, name string, m *core.SelectedModel) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := c.open(name).Save(ctx, m); err != nil {
		return err
	}
	c.cache.Add(name, m)
	return nil
}

// Invalidate drops the cached model for name. The next load hits the
// underlying store again.
func (c *Catalog) Invalidate(name string) {
	c.cache.Remove(name)
}

// Names lists the complete model pairs under a file-system catalog
// root, sorted. Catalogs built over a custom opener have no listing.
func (c *Catalog) Names() ([]string, error) {
	if c.root == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(c.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list catalog %s: %w: %w", c.root, core.ErrIO, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		manifest := filepath.Join(c.root, e.Name(), artifact.ManifestFileName)
		if _, err := os.Stat(manifest); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
