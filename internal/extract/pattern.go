package extract

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/ridgehaul/ticketflow/internal/model"
)

// fieldPattern matches one labeled value on a scanned page. Labeled
// matches score medium confidence; the looser bare patterns score low,
// so the resolver prefers any structured or manual source over them.
type fieldPattern struct {
	field      string
	re         *regexp.Regexp
	confidence float64
}

var labeledPatterns = []fieldPattern{
	{model.FieldTicketNumber, regexp.MustCompile(`(?im)^\s*(?:ticket|tkt)\s*(?:no|num|number|#)?\s*[:#]\s*([A-Z0-9][A-Z0-9-]*)`), 0.85},
	{model.FieldHaulerID, regexp.MustCompile(`(?im)^\s*(?:hauler|carrier|trucking co\.?)\s*[:#]?\s*(\S.*\S|\S)\s*$`), 0.80},
	{model.FieldTicketDate, regexp.MustCompile(`(?im)^\s*(?:date|ticket date)\s*[:#]?\s*(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`), 0.85},
	{model.FieldMaterial, regexp.MustCompile(`(?im)^\s*material\s*[:#]?\s*(\S.*\S|\S)\s*$`), 0.80},
	{model.FieldQuantity, regexp.MustCompile(`(?im)^\s*(?:qty|quantity|net|tons|loads)\s*[:#]?\s*([\d.]+)`), 0.75},
	{model.FieldManifestNumber, regexp.MustCompile(`(?im)^\s*manifest\s*(?:no|num|number|#)?\s*[:#]?\s*([A-Z0-9][A-Z0-9-]*)`), 0.85},
	{model.FieldOriginSite, regexp.MustCompile(`(?im)^\s*(?:origin|from|pickup)\s*[:#]?\s*(\S.*\S|\S)\s*$`), 0.75},
	{model.FieldDestination, regexp.MustCompile(`(?im)^\s*(?:destination|to|dump site|disposal)\s*[:#]?\s*(\S.*\S|\S)\s*$`), 0.75},
}

var barePatterns = []fieldPattern{
	// A bare hash-prefixed token anywhere on the page.
	{model.FieldTicketNumber, regexp.MustCompile(`#\s*([0-9]{4,})`), 0.55},
	// A bare date anywhere on the page.
	{model.FieldTicketDate, regexp.MustCompile(`\b(\d{1,2}/\d{1,2}/\d{4})\b`), 0.50},
}

// PatternExtractor proposes candidates by matching labeled lines and a few
// bare token shapes against the page text. It is the offline provider:
// deterministic, free, and deliberately conservative about confidence.
type PatternExtractor struct {
	now func() time.Time
}

// NewPatternExtractor creates a PatternExtractor.
func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{now: time.Now}
}

// ExtractPage matches the page text against the known field patterns. It
// never returns an error: a page with no matches yields no candidates and
// the resolver reports the missing fields downstream.
func (e *PatternExtractor) ExtractPage(_ context.Context, page Page) ([]model.CandidateValue, error) {
	at := e.now().UTC()
	var out []model.CandidateValue
	seen := make(map[string]bool)

	for _, p := range labeledPatterns {
		if m := p.re.FindStringSubmatch(page.Text); m != nil {
			out = append(out, candidate(p.field, strings.TrimSpace(m[1]), p.confidence, at))
			seen[p.field] = true
		}
	}
	// Bare patterns only fill fields the labeled pass missed.
	for _, p := range barePatterns {
		if seen[p.field] {
			continue
		}
		if m := p.re.FindStringSubmatch(page.Text); m != nil {
			out = append(out, candidate(p.field, strings.TrimSpace(m[1]), p.confidence, at))
		}
	}
	return out, nil
}
