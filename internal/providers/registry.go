// Package providers holds the static capability catalog of AI rating
// providers: batch limits, parallelism and per-image cost.
package providers

import (
	"fmt"
	"sort"
	"sync"
)

// Capability describes what one provider can do and what it costs.
type Capability struct {
	ID                 string  `yaml:"id" json:"id"`
	Vendor             string  `yaml:"vendor" json:"vendor"`
	DisplayName        string  `yaml:"displayName" json:"displayName"`
	Description        string  `yaml:"description,omitempty" json:"description,omitempty"`
	Offline            bool    `yaml:"offline" json:"offline"`
	MaxBatchImages     int     `yaml:"maxBatchImages" json:"maxBatchImages"`
	MaxParallelBatches int     `yaml:"maxParallelBatches" json:"maxParallelBatches"`
	CostPer1K          float64 `yaml:"estimatedCostPer1KImages" json:"estimatedCostPer1KImages"`
}

// Validate checks the capability limits.
func (c Capability) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("provider id is required")
	}
	if c.MaxBatchImages <= 0 {
		return fmt.Errorf("provider %s: maxBatchImages must be positive, got %d", c.ID, c.MaxBatchImages)
	}
	if c.MaxParallelBatches <= 0 {
		return fmt.Errorf("provider %s: maxParallelBatches must be positive, got %d", c.ID, c.MaxParallelBatches)
	}
	if c.CostPer1K < 0 {
		return fmt.Errorf("provider %s: cost must not be negative, got %g", c.ID, c.CostPer1K)
	}
	return nil
}

// Seed provider ids.
const (
	AppleIntelligence = "apple-intelligence"
	OpenAIGPT5        = "openai-gpt-5"
	Gemini25Flash     = "gemini-2-5-flash"
)

// Seeds returns the built-in provider catalog.
func Seeds() []Capability {
	return []Capability{
		{
			ID:                 AppleIntelligence,
			Vendor:             "Apple",
			DisplayName:        "Apple Intelligence (on-device)",
			Description:        "Runs on the local machine. No network, no cost.",
			Offline:            true,
			MaxBatchImages:     10,
			MaxParallelBatches: 2,
			CostPer1K:          0,
		},
		{
			ID:                 OpenAIGPT5,
			Vendor:             "OpenAI",
			DisplayName:        "OpenAI GPT-5",
			Description:        "Highest quality ratings with detailed descriptions.",
			MaxBatchImages:     20,
			MaxParallelBatches: 5,
			CostPer1K:          120,
		},
		{
			ID:                 Gemini25Flash,
			Vendor:             "Google",
			DisplayName:        "Gemini 2.5 Flash",
			Description:        "Fast, lower-cost ratings.",
			MaxBatchImages:     20,
			MaxParallelBatches: 6,
			CostPer1K:          95,
		},
	}
}

// Registry is a concurrency-safe provider catalog. Registration order is
// kept so cost ties sort deterministically.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]Capability
}

// NewRegistry returns a registry loaded with Seeds.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Reset()
	return r
}

// Reset restores the seed catalog.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.byID = make(map[string]Capability)
	for _, c := range Seeds() {
		r.put(c)
	}
}

func (r *Registry) put(c Capability) {
	if _, ok := r.byID[c.ID]; !ok {
		r.order = append(r.order, c.ID)
	}
	r.byID[c.ID] = c
}

// Register adds or replaces a provider.
func (r *Registry) Register(c Capability) error {
	if err := c.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(c)
	return nil
}

// Get returns the capability for id.
func (r *Registry) Get(id string) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

// List returns every provider in registration order.
func (r *Registry) List() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Capability, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// SortByCost returns every provider ascending by per-image cost.
func (r *Registry) SortByCost() []Capability {
	list := r.List()
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CostPer1K < list[j].CostPer1K
	})
	return list
}

// EstimateCost returns the fractional credit cost of rating count images
// with provider id. Unknown providers cost nothing.
func (r *Registry) EstimateCost(id string, count int) float64 {
	c, ok := r.Get(id)
	if !ok || count <= 0 {
		return 0
	}
	return c.CostPer1K * float64(count) / 1000
}
