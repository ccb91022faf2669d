// Package extractor turns IaC script source into the flat metric rows
// the pipeline consumes. Extractors register by language; lookups are
// case-insensitive.
package extractor

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/radon-h2020/radon-defect-predictor/core"
)

// UnsupportedLanguageError reports a language no extractor covers.
type UnsupportedLanguageError struct {
	Language  string
	Supported []string
}

func (e *UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("unsupported language %q (supported: %s)",
		e.Language, strings.Join(e.Supported, ", "))
}

// Registry maps languages to metric extractors.
type Registry struct {
	mu     sync.RWMutex
	byLang map[string]core.MetricExtractor
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{byLang: make(map[string]core.MetricExtractor)}
}

// Default returns a registry with every built-in extractor registered.
func Default() *Registry {
	r := NewRegistry()
	if err := r.Register(NewAnsible()); err != nil {
		panic(err)
	}
	return r
}

// Register adds an extractor. Registering a language twice is an
// error.
func (r *Registry) Register(e core.MetricExtractor) error {
	key := strings.ToLower(strings.TrimSpace(e.Language()))
	if key == "" {
		return fmt.Errorf("extractor has no language")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byLang[key]; ok {
		return fmt.Errorf("extractor for %q already registered", key)
	}
	r.byLang[key] = e
	return nil
}

// For returns the extractor for language. TOSCA models exist in the
// pre-trained catalog but have no extractor here, so TOSCA gets a
// dedicated answer pointing at the metrics-table path.
func (r *Registry) For(language string) (core.MetricExtractor, error) {
	key := strings.ToLower(strings.TrimSpace(language))
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byLang[key]; ok {
		return e, nil
	}
	if key == "tosca" {
		return nil, fmt.Errorf("tosca metric extraction is not implemented; provide a precomputed metrics table instead")
	}
	return nil, &UnsupportedLanguageError{Language: key, Supported: r.languagesLocked()}
}

// Languages lists the registered languages, sorted.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.languagesLocked()
}

func (r *Registry) languagesLocked() []string {
	out := make([]string, 0, len(r.byLang))
	for k := range r.byLang {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
