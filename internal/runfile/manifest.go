// Package runfile reads job manifests and writes job reports for the CLI.
package runfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/CodexForgeBR/cull-engine/internal/ai"
)

// Manifest describes one culling job. Prompt fields are optional and are
// overridden by CLI flags.
type Manifest struct {
	ShootID      string     `json:"shootId,omitempty" yaml:"shootId,omitempty"`
	Prompt       string     `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	SystemPrompt string     `json:"systemPrompt,omitempty" yaml:"systemPrompt,omitempty"`
	Images       []ai.Image `json:"images" yaml:"images"`
}

// LoadManifest reads a manifest from path. Files ending in .json are parsed
// as JSON, everything else as YAML. A document that is a bare list is read
// as the image list.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	m, err := parseManifest(data, strings.EqualFold(filepath.Ext(path), ".json"))
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

func parseManifest(data []byte, isJSON bool) (*Manifest, error) {
	trimmed := bytes.TrimSpace(data)
	bareList := bytes.HasPrefix(trimmed, []byte("[")) || bytes.HasPrefix(trimmed, []byte("- ")) || bytes.HasPrefix(trimmed, []byte("-\n"))

	var m Manifest
	switch {
	case isJSON && bareList:
		err := json.Unmarshal(trimmed, &m.Images)
		return &m, err
	case isJSON:
		err := json.Unmarshal(trimmed, &m)
		return &m, err
	case bareList:
		err := yaml.Unmarshal(trimmed, &m.Images)
		return &m, err
	default:
		err := yaml.Unmarshal(trimmed, &m)
		return &m, err
	}
}

// Validate checks that the manifest has images and that every image has a
// unique id.
func (m *Manifest) Validate() error {
	if len(m.Images) == 0 {
		return fmt.Errorf("no images")
	}
	seen := make(map[string]bool, len(m.Images))
	for i, img := range m.Images {
		if img.ID == "" {
			return fmt.Errorf("image %d has no id", i)
		}
		if seen[img.ID] {
			return fmt.Errorf("duplicate image id %q", img.ID)
		}
		seen[img.ID] = true
	}
	return nil
}

// IDs returns the image ids in manifest order.
func (m *Manifest) IDs() []string {
	ids := make([]string, len(m.Images))
	for i, img := range m.Images {
		ids[i] = img.ID
	}
	return ids
}
