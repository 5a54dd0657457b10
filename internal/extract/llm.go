package extract

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ridgehaul/ticketflow/internal/model"
	"github.com/ridgehaul/ticketflow/internal/resilience"
	"github.com/ridgehaul/ticketflow/pkg/anthropic"
)

const extractionSystemPrompt = `You read the text of one scanned material-haul ticket page and return the field values you can find as a JSON array. Each element is {"field": <name>, "value": <string>, "confidence": <0..1>}.

Known fields: ticket_number, hauler_id, ticket_date, material, quantity, manifest_number, origin_site, destination.

Rules:
- Only report fields actually present on the page. Never guess.
- ticket_date must be formatted MM/DD/YYYY.
- confidence reflects how legible and unambiguous the value is on the page.
- Respond with the JSON array only, no prose.`

// llmCandidate is the wire shape the model responds with.
type llmCandidate struct {
	Field      string  `json:"field"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// LLMExtractor proposes candidates by asking a language model to read the
// page. Calls are rate limited and run through a circuit breaker so a dead
// backend fails the batch fast instead of slowly.
type LLMExtractor struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	limiter   *rate.Limiter
	breaker   *resilience.Breaker
	now       func() time.Time
}

// NewLLMExtractor creates an LLMExtractor.
func NewLLMExtractor(client anthropic.Client, cfg Config) *LLMExtractor {
	mdl := cfg.Model
	if mdl == "" {
		mdl = "claude-haiku-4-5-20251001"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 4
	}
	return &LLMExtractor{
		client:    client,
		model:     mdl,
		maxTokens: maxTokens,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		breaker:   resilience.NewBreaker(resilience.CircuitConfig{}),
		now:       time.Now,
	}
}

// ExtractPage sends the page text to the model and parses the candidates
// it reports. Backend failures surface as transient errors; an unparseable
// response is the page's problem and surfaces as a validation error.
func (e *LLMExtractor) ExtractPage(ctx context.Context, page Page) ([]model.CandidateValue, error) {
	if strings.TrimSpace(page.Text) == "" {
		return nil, nil
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "extract: rate limit wait")
	}

	var resp *anthropic.MessageResponse
	err := e.breaker.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = e.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     e.model,
			MaxTokens: e.maxTokens,
			System:    extractionSystemPrompt,
			Messages:  []anthropic.Message{{Role: "user", Content: page.Text}},
		})
		return callErr
	})
	if err != nil {
		return nil, eris.Wrapf(err, "extract: page %d of %s", page.PageNumber, page.SourceFile)
	}
	resp.Usage.LogCost(e.model, "extract")

	cands, err := parseCandidates(resp.Text)
	if err != nil {
		zap.L().Warn("unparseable extraction response",
			zap.String("source_file", page.SourceFile),
			zap.Int("page", page.PageNumber),
			zap.Error(err))
		// A garbled response is this page's problem: route it to review,
		// never retry it, never abort the run over it.
		return nil, resilience.NewValidationError("response",
			eris.Wrapf(err, "extract: parse response for page %d of %s", page.PageNumber, page.SourceFile))
	}

	at := e.now().UTC()
	out := make([]model.CandidateValue, 0, len(cands))
	for _, c := range cands {
		if c.Field == "" || strings.TrimSpace(c.Value) == "" {
			continue
		}
		out = append(out, candidate(c.Field, strings.TrimSpace(c.Value), clamp01(c.Confidence), at))
	}
	return out, nil
}

// parseCandidates pulls the JSON array out of the response text. Models
// occasionally wrap the array in a code fence despite instructions.
func parseCandidates(text string) ([]llmCandidate, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if start := strings.Index(text, "["); start > 0 {
		text = text[start:]
	}

	var out []llmCandidate
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, eris.Wrap(err, "unmarshal candidates")
	}
	return out, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
