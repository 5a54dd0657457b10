// Package pipeline drives ticket processing: per-file page extraction,
// field resolution, compliance and duplicate checks, persistence, and
// review routing, under the batch orchestrator's retry and rollback
// policy.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ridgehaul/ticketflow/internal/compliance"
	"github.com/ridgehaul/ticketflow/internal/dedupe"
	"github.com/ridgehaul/ticketflow/internal/extract"
	"github.com/ridgehaul/ticketflow/internal/metadata"
	"github.com/ridgehaul/ticketflow/internal/metrics"
	"github.com/ridgehaul/ticketflow/internal/model"
	"github.com/ridgehaul/ticketflow/internal/resilience"
	"github.com/ridgehaul/ticketflow/internal/resolve"
	"github.com/ridgehaul/ticketflow/internal/review"
	"github.com/ridgehaul/ticketflow/internal/store"
)

// regulatedMaterials flags material values that legally require a disposal
// manifest. Matching is substring, case-insensitive, against the resolved
// material field.
var regulatedMaterials = []string{
	"hazardous",
	"contaminated",
	"asbestos",
	"petroleum",
	"lead",
	"manifested",
}

// dateLayouts are accepted ticket-date spellings, tried in order.
var dateLayouts = []string{"01/02/2006", "1/2/2006", "01-02-2006", "2006-01-02"}

// Pipeline processes one file at a time. Safe for concurrent use by the
// orchestrator's workers; cross-file coordination happens only through the
// keyed duplicate mutex and the store.
type Pipeline struct {
	store     store.Store
	reader    extract.Reader
	extractor extract.Extractor
	schema    *metadata.Schema // nil when no path schema is configured
	detector  *dedupe.Detector
	router    *review.Router
	dupKeys   *keyedMutex
	now       func() time.Time
}

// New creates a Pipeline. schema may be nil.
func New(st store.Store, reader extract.Reader, extractor extract.Extractor, schema *metadata.Schema, window time.Duration) *Pipeline {
	return &Pipeline{
		store:     st,
		reader:    reader,
		extractor: extractor,
		schema:    schema,
		detector:  dedupe.NewDetector(st, window),
		router:    review.NewRouter(st),
		dupKeys:   newKeyedMutex(),
		now:       time.Now,
	}
}

// ProcessFile runs the full per-file pipeline and returns the counts it
// contributed. The error return is the file's terminal verdict: transient
// errors bubble up for the orchestrator's retry policy, everything the
// pipeline can degrade into a review entry is not an error.
func (p *Pipeline) ProcessFile(ctx context.Context, runID, sourceName, localPath string) (model.RunCounts, error) {
	var counts model.RunCounts
	log := zap.L().With(zap.String("run_id", runID), zap.String("source_file", sourceName))

	pages, err := p.reader.ReadPages(ctx, localPath)
	if err != nil {
		return counts, eris.Wrapf(err, "pipeline: read pages of %s", sourceName)
	}
	if len(pages) == 0 {
		log.Warn("file has no pages")
		return counts, nil
	}

	corrections, err := p.store.ListCorrections(ctx, sourceName)
	if err != nil {
		return counts, eris.Wrapf(err, "pipeline: load corrections for %s", sourceName)
	}
	byPage := make(map[int][]model.Correction)
	for _, c := range corrections {
		byPage[c.PageNumber] = append(byPage[c.PageNumber], c)
	}

	var pathCandidates []model.CandidateValue
	if p.schema != nil {
		pathCandidates = p.schema.Candidates(sourceName, p.now())
	}

	for _, page := range pages {
		page.SourceFile = sourceName
		delta, err := p.processPage(ctx, runID, page, pathCandidates, byPage[page.PageNumber])
		counts.Add(delta)
		counts.Pages++
		if err != nil {
			return counts, err
		}
	}
	return counts, nil
}

// processPage runs one page through extract, resolve, validate, dedupe,
// persist. Per-page degradation: a validation failure routes the page to
// review and moves on; a transient failure fails the whole file for retry;
// a terminal failure aborts the run.
func (p *Pipeline) processPage(ctx context.Context, runID string, page extract.Page, pathCandidates []model.CandidateValue, corrections []model.Correction) (model.RunCounts, error) {
	var counts model.RunCounts
	ref := review.PageRef{RunID: runID, SourceFile: page.SourceFile, PageNumber: page.PageNumber}

	extracted, err := p.extractor.ExtractPage(ctx, page)
	if err != nil {
		metrics.PagesExtracted.WithLabelValues("failed").Inc()
		// Transient failures go back up for retry; terminal ones abort the
		// run. Anything else is this page's problem: record it and continue.
		if resilience.IsTransient(err) || resilience.IsTerminal(err) {
			return counts, eris.Wrapf(err, "pipeline: extract page %d", page.PageNumber)
		}
		if _, rerr := p.router.Route(ctx, ref, model.ReasonExtractionFailed, map[string]string{"error": err.Error()}); rerr != nil {
			return counts, rerr
		}
		counts.ReviewEntries++
		counts.Errors++
		metrics.ReviewEntries.WithLabelValues(string(model.ReasonExtractionFailed)).Inc()
		return counts, nil
	}
	metrics.PagesExtracted.WithLabelValues("ok").Inc()

	candidates := make([]model.CandidateValue, 0, len(extracted)+len(pathCandidates)+len(corrections))
	candidates = append(candidates, extracted...)
	candidates = append(candidates, pathCandidates...)
	for _, c := range corrections {
		candidates = append(candidates, c.Candidate())
	}

	fields := resolve.ResolveAll(candidates, model.RequiredFields)
	ticket, missing := p.assembleTicket(runID, page, fields)

	// Required fields that failed to resolve route to review but do not
	// block persistence of what was readable.
	for _, field := range missing {
		if _, err := p.router.Route(ctx, ref, model.ReasonMissingField, map[string]string{"field": field}); err != nil {
			return counts, err
		}
		counts.ReviewEntries++
		ticket.RequiresReview = true
		metrics.ReviewEntries.WithLabelValues(string(model.ReasonMissingField)).Inc()
	}

	// Compliance before dedupe: a regulated ticket without a manifest must
	// be flagged even if it also turns out to be a duplicate.
	comp := compliance.Validate(ticket)
	if comp.MissingEvidence {
		ticket.RequiresReview = true
	}

	// A low-trust winner on a required field is worth a note.
	infoFields := lowTrustRequired(fields)

	dupOf, err := p.persistWithDedupe(ctx, ticket)
	if err != nil {
		return counts, err
	}
	counts.TicketsCreated++
	metrics.TicketsPersisted.Inc()
	ref.TicketID = ticket.ID

	if comp.MissingEvidence {
		if _, err := p.router.Route(ctx, ref, model.ReasonMissingEvidence, comp.Evidence); err != nil {
			return counts, err
		}
		counts.ReviewEntries++
		metrics.ReviewEntries.WithLabelValues(string(model.ReasonMissingEvidence)).Inc()
	}

	if dupOf != nil {
		link := &model.DuplicateLink{
			TicketID:     ticket.ID,
			DuplicateOf:  *dupOf,
			TicketNumber: ticket.TicketNumber,
			HaulerKey:    ticket.HaulerKey,
			RunID:        runID,
		}
		if err := p.store.InsertDuplicateLink(ctx, link); err != nil {
			return counts, eris.Wrap(err, "pipeline: link duplicate")
		}
		if _, err := p.router.Route(ctx, ref, model.ReasonDuplicate, map[string]string{
			"duplicate_of":  *dupOf,
			"ticket_number": ticket.TicketNumber,
			"hauler_key":    ticket.HaulerKey,
		}); err != nil {
			return counts, err
		}
		counts.DuplicatesFound++
		counts.ReviewEntries++
		metrics.DuplicatesFound.Inc()
		metrics.ReviewEntries.WithLabelValues(string(model.ReasonDuplicate)).Inc()
	}

	for _, field := range infoFields {
		if _, err := p.router.Route(ctx, ref, model.ReasonInferredSource, map[string]string{
			"field": field,
			"tier":  fields[field].Tier.String(),
		}); err != nil {
			return counts, err
		}
		counts.ReviewEntries++
		metrics.ReviewEntries.WithLabelValues(string(model.ReasonInferredSource)).Inc()
	}

	return counts, nil
}

// persistWithDedupe checks for a prior ticket and inserts the new one under
// a per-key lock, serializing the lookup-then-insert race: two workers
// holding identical tickets from different files must produce one original
// and one linked duplicate, never two originals.
func (p *Pipeline) persistWithDedupe(ctx context.Context, t *model.Ticket) (*string, error) {
	var dupOf *string
	if t.TicketNumber != "" && t.HaulerKey != "" {
		key := t.TicketNumber + "\x00" + t.HaulerKey
		p.dupKeys.Lock(key)
		defer p.dupKeys.Unlock(key)

		var err error
		dupOf, err = p.detector.Check(ctx, t.TicketNumber, t.HaulerID, t.TicketDate)
		if err != nil {
			return nil, err
		}
		if dupOf != nil {
			t.RequiresReview = true
		}
	}

	if err := p.store.CreateTicket(ctx, t); err != nil {
		return nil, eris.Wrapf(err, "pipeline: persist ticket %s page %d", t.SourceFile, t.PageNumber)
	}
	return dupOf, nil
}

// assembleTicket builds the domain record from resolved fields and reports
// which required fields are missing.
func (p *Pipeline) assembleTicket(runID string, page extract.Page, fields map[string]model.ResolvedField) (*model.Ticket, []string) {
	t := &model.Ticket{
		RunID:      runID,
		SourceFile: page.SourceFile,
		PageNumber: page.PageNumber,
		Fields:     fields,
		CreatedAt:  p.now().UTC(),
	}

	var missing []string
	for _, req := range model.RequiredFields {
		if fields[req].Missing() {
			missing = append(missing, req)
		}
	}

	t.TicketNumber = fields[model.FieldTicketNumber].Value
	t.HaulerID = fields[model.FieldHaulerID].Value
	t.HaulerKey = dedupe.NormalizeHauler(t.HaulerID)
	t.ManifestNumber = fields[model.FieldManifestNumber].Value
	t.Regulated = isRegulated(fields[model.FieldMaterial].Value)

	if raw := fields[model.FieldTicketDate].Value; raw != "" {
		if date, ok := parseTicketDate(raw); ok {
			t.TicketDate = date
		} else {
			missing = append(missing, model.FieldTicketDate)
		}
	}
	if t.TicketDate.IsZero() {
		// Dedupe needs some date anchor; the scan's processing time is the
		// conservative fallback and the page is already flagged.
		t.TicketDate = p.now().UTC().Truncate(24 * time.Hour)
	}
	return t, missing
}

func parseTicketDate(raw string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return d.UTC(), true
		}
	}
	return time.Time{}, false
}

func isRegulated(material string) bool {
	m := strings.ToLower(material)
	for _, kw := range regulatedMaterials {
		if strings.Contains(m, kw) {
			return true
		}
	}
	return false
}

// lowTrustRequired lists required fields whose winning value came from a
// low-confidence extraction, worth an informational review note.
func lowTrustRequired(fields map[string]model.ResolvedField) []string {
	var out []string
	for _, req := range model.RequiredFields {
		rf := fields[req]
		if !rf.Missing() && rf.Tier == model.TierExtractedLow {
			out = append(out, req)
		}
	}
	return out
}
