// Package themes assigns each post a single reporting theme from keyword and
// phrase signals. Theme sets are data: they are loaded from YAML (or JSON in
// API requests) and validated before any classification runs.
package themes

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/DeafMist/content-radar/backend/internal/models"
	"github.com/DeafMist/content-radar/backend/internal/processing"
)

//go:embed default_themes.yaml
var defaultThemes []byte

// ErrEmptySet is returned for a theme set without themes.
var ErrEmptySet = errors.New("theme signal configuration is empty")

// Signal is a keyword or phrase that votes for a theme. In YAML and JSON a
// signal is either a bare string (weight 1) or {phrase, weight}.
type Signal struct {
	Phrase string  `yaml:"phrase" json:"phrase"`
	Weight float64 `yaml:"weight,omitempty" json:"weight,omitempty"`

	tokens []string
}

// UnmarshalYAML accepts the scalar shorthand.
func (s *Signal) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*s = Signal{Phrase: value.Value}
		return nil
	}
	type plain Signal
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*s = Signal(p)
	return nil
}

// UnmarshalJSON accepts the string shorthand.
func (s *Signal) UnmarshalJSON(data []byte) error {
	var phrase string
	if err := json.Unmarshal(data, &phrase); err == nil {
		*s = Signal{Phrase: phrase}
		return nil
	}
	type plain Signal
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Signal(p)
	return nil
}

// Theme is one reporting category.
type Theme struct {
	Label   string   `yaml:"label" json:"label"`
	Signals []Signal `yaml:"signals" json:"signals"`
}

// Set is an ordered, versioned list of themes.
type Set struct {
	Version string  `yaml:"version" json:"version,omitempty"`
	Themes  []Theme `yaml:"themes" json:"themes"`

	prepared bool
}

// Default returns the built-in theme set.
func Default() *Set {
	set, err := Load(defaultThemes)
	if err != nil {
		panic(fmt.Sprintf("invalid embedded theme set: %v", err))
	}
	return set
}

// Load parses and validates a YAML theme set.
func Load(data []byte) (*Set, error) {
	var set Set
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse theme set: %w", err)
	}
	if err := set.Prepare(); err != nil {
		return nil, err
	}
	return &set, nil
}

// LoadFile reads a YAML theme set from disk.
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read theme set: %w", err)
	}
	return Load(data)
}

// FromSignals builds a set from labels in enumeration order and their
// signals.
func FromSignals(order []string, signals map[string][]string) (*Set, error) {
	set := &Set{}
	for _, label := range order {
		theme := Theme{Label: label}
		for _, phrase := range signals[label] {
			theme.Signals = append(theme.Signals, Signal{Phrase: phrase})
		}
		set.Themes = append(set.Themes, theme)
	}
	if err := set.Prepare(); err != nil {
		return nil, err
	}
	return set, nil
}

// Prepare normalizes signal phrases with the post normalizer, defaults
// weights to 1 and validates the set. It must run before classification.
func (s *Set) Prepare() error {
	for i := range s.Themes {
		theme := &s.Themes[i]
		theme.Label = strings.TrimSpace(theme.Label)
		for j := range theme.Signals {
			sig := &theme.Signals[j]
			sig.tokens = processing.Tokens(processing.Normalize(sig.Phrase))
			if sig.Weight == 0 {
				sig.Weight = 1
			}
		}
	}
	s.prepared = true
	return s.Validate()
}

// Validate rejects empty sets, unlabeled or duplicate themes, the reserved
// uncategorized label, themes without usable signals and negative weights.
func (s *Set) Validate() error {
	if s == nil || len(s.Themes) == 0 {
		return ErrEmptySet
	}
	if !s.prepared {
		return errors.New("theme set must be prepared before use")
	}
	seen := make(map[string]struct{}, len(s.Themes))
	for _, theme := range s.Themes {
		if theme.Label == "" {
			return errors.New("theme label is required")
		}
		if theme.Label == models.UncategorizedTheme {
			return fmt.Errorf("theme label %q is reserved", theme.Label)
		}
		if _, ok := seen[theme.Label]; ok {
			return fmt.Errorf("duplicate theme label %q", theme.Label)
		}
		seen[theme.Label] = struct{}{}

		usable := 0
		for _, sig := range theme.Signals {
			if sig.Weight < 0 {
				return fmt.Errorf("theme %q signal %q has negative weight", theme.Label, sig.Phrase)
			}
			if len(sig.tokens) > 0 {
				usable++
			}
		}
		if usable == 0 {
			return fmt.Errorf("theme %q has no signals", theme.Label)
		}
	}
	return nil
}

// Labels lists theme labels in enumeration order.
func (s *Set) Labels() []string {
	labels := make([]string, 0, len(s.Themes))
	for _, theme := range s.Themes {
		labels = append(labels, theme.Label)
	}
	return labels
}
