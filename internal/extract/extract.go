// Package extract turns scanned ticket pages into candidate field values.
// A Reader splits a source file into per-page text; an Extractor proposes
// CandidateValues from that text. Candidates carry a confidence score and
// are tiered by the resolver, never trusted outright.
package extract

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ridgehaul/ticketflow/internal/model"
	"github.com/ridgehaul/ticketflow/pkg/anthropic"
)

// Page is the raw text of one scanned page.
type Page struct {
	SourceFile string
	PageNumber int // 1-based
	Text       string
}

// Reader splits a source file into pages of text.
type Reader interface {
	ReadPages(ctx context.Context, path string) ([]Page, error)
}

// Extractor proposes candidate field values for one page.
type Extractor interface {
	ExtractPage(ctx context.Context, page Page) ([]model.CandidateValue, error)
}

// Config selects and tunes the extraction provider.
type Config struct {
	Provider      string  `yaml:"provider" mapstructure:"provider"` // "pattern" or "anthropic"
	Model         string  `yaml:"model" mapstructure:"model"`
	MaxTokens     int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst         int     `yaml:"burst" mapstructure:"burst"`
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg Config, apiKey string) (Extractor, error) {
	switch cfg.Provider {
	case "pattern", "":
		return NewPatternExtractor(), nil
	case "anthropic":
		if apiKey == "" {
			return nil, eris.New("extract: anthropic provider requires an API key")
		}
		return NewLLMExtractor(anthropic.NewClient(apiKey), cfg), nil
	default:
		return nil, eris.Errorf("extract: unknown provider %q", cfg.Provider)
	}
}

// candidate builds a CandidateValue tiered by its confidence.
func candidate(field, value string, confidence float64, at time.Time) model.CandidateValue {
	return model.CandidateValue{
		Field:      field,
		Value:      value,
		Tier:       model.TierForConfidence(confidence),
		Confidence: confidence,
		ProducedAt: at,
	}
}
