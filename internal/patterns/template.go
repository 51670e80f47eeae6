// Package patterns implements the pattern confidence engine: declarative
// templates matched against story signals, scored through the sandbox.
package patterns

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/agentic-news/reaper/internal/domain"
)

// ErrTemplateParse indicates a malformed template file. Unlike a missing
// file, malformed content is fatal.
var ErrTemplateParse = errors.New("pattern template file is malformed")

type templateFile struct {
	Patterns []*domain.PatternTemplate `yaml:"patterns"`
}

// LoadTemplates reads pattern templates from a YAML file. A missing file is
// not an error: the engine starts with an empty template set and a warning.
// The returned slice preserves file order, which decides tie-breaks when
// matches are sorted by confidence.
func LoadTemplates(path string) ([]*domain.PatternTemplate, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("pattern template file not found, starting with empty template set", "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern template file %s: %w", path, err)
	}

	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	seen := make(map[string]bool, len(f.Patterns))
	for i, tpl := range f.Patterns {
		if tpl == nil || tpl.ID == "" {
			return nil, fmt.Errorf("%w: pattern at index %d has no id", ErrTemplateParse, i)
		}
		if seen[tpl.ID] {
			return nil, fmt.Errorf("%w: duplicate pattern id %q", ErrTemplateParse, tpl.ID)
		}
		seen[tpl.ID] = true

		for name, w := range tpl.ConfidenceWeights {
			if w < 0 {
				return nil, fmt.Errorf("%w: pattern %q has negative weight for signal %q", ErrTemplateParse, tpl.ID, name)
			}
		}
	}

	return f.Patterns, nil
}
