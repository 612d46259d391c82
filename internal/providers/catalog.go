package providers

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Providers []Capability `yaml:"providers"`
}

// LoadCatalog reads a YAML provider list and registers every entry over
// the current catalog. Nothing is registered unless every entry is valid.
//
//	providers:
//	  - id: openai-gpt-5
//	    maxBatchImages: 10
//	    ...
func (r *Registry) LoadCatalog(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read provider catalog: %w", err)
	}
	return r.LoadCatalogBytes(data)
}

// LoadCatalogBytes is LoadCatalog over an in-memory document.
func (r *Registry) LoadCatalogBytes(data []byte) (int, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("parse provider catalog: %w", err)
	}
	for i, c := range file.Providers {
		if err := c.Validate(); err != nil {
			return 0, fmt.Errorf("provider catalog entry %d: %w", i, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range file.Providers {
		r.put(c)
	}
	return len(file.Providers), nil
}
