package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/DeafMist/content-radar/backend/internal/fingerprint"
	"github.com/DeafMist/content-radar/backend/internal/models"
	"github.com/DeafMist/content-radar/backend/internal/similarity"
	"github.com/DeafMist/content-radar/backend/internal/themes"
)

// MaxWindowDays keeps a run inside a 31-day span including the target day.
const MaxWindowDays = 30

// Config is supplied in full before a run starts and never changes during it.
type Config struct {
	DuplicateThreshold     float64              `json:"duplicate_threshold"`
	NearDuplicateThreshold float64              `json:"near_duplicate_threshold"`
	Themes                 *themes.Set          `json:"theme_signal_sets"`
	Strategy               fingerprint.Strategy `json:"fingerprint_strategy"`
	WindowDays             int                  `json:"comparison_window_days"`
	// TargetDate (YYYY-MM-DD) defaults to the day of the latest post.
	TargetDate             string `json:"target_date,omitempty"`
	NormalizeThemeByLength bool   `json:"normalize_theme_by_length,omitempty"`
	AlertLimit             int    `json:"alert_limit,omitempty"`

	Location         *time.Location             `json:"-"`
	Lexical          fingerprint.LexicalOptions `json:"-"`
	EmbeddingDim     int                        `json:"-"`
	Embeddings       *fingerprint.Table         `json:"-"`
	KeywordLimit     int                        `json:"-"`
	KeywordMinLength int                        `json:"-"`
	SnippetLength    int                        `json:"-"`
}

// DefaultConfig matches the dashboard's historical settings.
func DefaultConfig() Config {
	th := similarity.DefaultThresholds()
	opts := fingerprint.DefaultOptions()
	return Config{
		DuplicateThreshold:     th.Duplicate,
		NearDuplicateThreshold: th.NearDuplicate,
		Themes:                 themes.Default(),
		Strategy:               fingerprint.Lexical,
		WindowDays:             MaxWindowDays,
		Location:               time.UTC,
		Lexical:                opts.Lexical,
		EmbeddingDim:           opts.EmbeddingDim,
		KeywordLimit:           10,
		KeywordMinLength:       3,
		SnippetLength:          100,
	}
}

// Thresholds returns the similarity thresholds of the config.
func (c Config) Thresholds() similarity.Thresholds {
	return similarity.Thresholds{Duplicate: c.DuplicateThreshold, NearDuplicate: c.NearDuplicateThreshold}
}

// Validate fails fast on anything that would make a run meaningless.
func (c Config) Validate() error {
	if err := c.Thresholds().Validate(); err != nil {
		return &ConfigurationError{Field: "thresholds", Err: err}
	}
	if c.Themes == nil {
		return &ConfigurationError{Field: "theme_signal_sets", Err: themes.ErrEmptySet}
	}
	if err := c.Themes.Validate(); err != nil {
		return &ConfigurationError{Field: "theme_signal_sets", Err: err}
	}
	if _, err := fingerprint.ParseStrategy(string(c.Strategy)); err != nil {
		return &ConfigurationError{Field: "fingerprint_strategy", Err: err}
	}
	if c.WindowDays < 0 || c.WindowDays > MaxWindowDays {
		return &ConfigurationError{Field: "comparison_window_days", Err: fmt.Errorf("must be between 0 and %d, got %d", MaxWindowDays, c.WindowDays)}
	}
	if c.TargetDate != "" {
		if _, err := time.Parse(models.DateLayout, c.TargetDate); err != nil {
			return &ConfigurationError{Field: "target_date", Err: err}
		}
	}
	if c.AlertLimit < 0 {
		return &ConfigurationError{Field: "alert_limit", Err: errors.New("cannot be negative")}
	}
	return nil
}

func (c Config) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

func (c Config) fingerprintOptions() fingerprint.Options {
	opts := fingerprint.DefaultOptions()
	if c.Lexical.MaxN > 0 {
		opts.Lexical = c.Lexical
	}
	if c.EmbeddingDim > 0 {
		opts.EmbeddingDim = c.EmbeddingDim
	}
	opts.Embeddings = c.Embeddings
	return opts
}
