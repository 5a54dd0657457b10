// Package metadata derives STRUCTURED_METADATA candidates from a source
// file's path. Scale houses drop scans into per-hauler, per-day folders, so
// the path itself carries trustworthy field values the page text may
// contradict. Rules live in a YAML schema so each site can describe its own
// folder layout without a code change.
package metadata

import (
	"os"
	"regexp"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/ridgehaul/ticketflow/internal/model"
)

// structuredConfidence is the fixed confidence attached to path-derived
// candidates. The tier, not the score, is what ranks them; the score only
// breaks ties within the tier.
const structuredConfidence = 0.95

// Rule maps one path pattern onto field values. Named capture groups in
// Pattern become candidate fields; Fields adds constants for every match.
type Rule struct {
	Name       string            `yaml:"name"`
	Pattern    string            `yaml:"pattern"`
	DateLayout string            `yaml:"date_layout,omitempty"`
	Fields     map[string]string `yaml:"fields,omitempty"`

	re *regexp.Regexp
}

// Schema is an ordered set of rules. Every matching rule contributes
// candidates; later rules do not shadow earlier ones.
type Schema struct {
	Rules []Rule `yaml:"rules"`
}

// LoadSchema reads and compiles a schema from a YAML file.
func LoadSchema(path string) (*Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "metadata: read schema %s", path)
	}
	return ParseSchema(raw)
}

// ParseSchema parses and compiles schema YAML.
func ParseSchema(raw []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, eris.Wrap(err, "metadata: parse schema")
	}
	for i := range s.Rules {
		re, err := regexp.Compile(s.Rules[i].Pattern)
		if err != nil {
			return nil, eris.Wrapf(err, "metadata: compile rule %q", s.Rules[i].Name)
		}
		s.Rules[i].re = re
	}
	return &s, nil
}

// Candidates evaluates every rule against the source path and returns the
// structured-metadata candidates it yields. Capture groups named like a
// known field produce that field; a group named like the rule's DateLayout
// target is reformatted through the layout before emission.
func (s *Schema) Candidates(sourcePath string, now time.Time) []model.CandidateValue {
	var out []model.CandidateValue
	at := now.UTC()

	for _, rule := range s.Rules {
		m := rule.re.FindStringSubmatch(sourcePath)
		if m == nil {
			continue
		}
		for i, name := range rule.re.SubexpNames() {
			if name == "" || m[i] == "" {
				continue
			}
			value := m[i]
			if name == model.FieldTicketDate && rule.DateLayout != "" {
				parsed, err := time.Parse(rule.DateLayout, value)
				if err != nil {
					continue
				}
				value = parsed.Format("01/02/2006")
			}
			out = append(out, structuredCandidate(name, value, at))
		}
		for field, value := range rule.Fields {
			out = append(out, structuredCandidate(field, value, at))
		}
	}
	return out
}

func structuredCandidate(field, value string, at time.Time) model.CandidateValue {
	return model.CandidateValue{
		Field:      field,
		Value:      value,
		Tier:       model.TierStructuredMetadata,
		Confidence: structuredConfidence,
		ProducedAt: at,
	}
}
