package resolve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridgehaul/ticketflow/internal/model"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func cand(value string, tier model.SourceTier, conf float64, at time.Time) model.CandidateValue {
	return model.CandidateValue{
		Field:      model.FieldTicketNumber,
		Value:      value,
		Tier:       tier,
		Confidence: conf,
		ProducedAt: at,
	}
}

func TestResolve_ManualAlwaysWins(t *testing.T) {
	candidates := []model.CandidateValue{
		cand("T-200", model.TierExtractedHigh, 0.99, t0.Add(48*time.Hour)),
		cand("T-100", model.TierManual, 0.5, t0),
		cand("T-300", model.TierStructuredMetadata, 1.0, t0.Add(24*time.Hour)),
	}

	rf := Resolve(model.FieldTicketNumber, candidates)
	assert.Equal(t, "T-100", rf.Value)
	assert.Equal(t, model.TierManual, rf.Tier)
	assert.Len(t, rf.Rejected, 2)
}

func TestResolve_TieBreakByConfidence(t *testing.T) {
	candidates := []model.CandidateValue{
		cand("T-80", model.TierExtractedHigh, 0.80, t0),
		cand("T-95", model.TierExtractedHigh, 0.95, t0),
	}

	rf := Resolve(model.FieldTicketNumber, candidates)
	assert.Equal(t, "T-95", rf.Value)
	assert.InDelta(t, 0.95, rf.Confidence, 1e-9)
}

func TestResolve_TieBreakByRecency(t *testing.T) {
	candidates := []model.CandidateValue{
		cand("older", model.TierExtractedMedium, 0.8, t0),
		cand("newer", model.TierExtractedMedium, 0.8, t0.Add(time.Minute)),
	}

	rf := Resolve(model.FieldTicketNumber, candidates)
	assert.Equal(t, "newer", rf.Value)
}

func TestResolve_EmptyCandidateFallsThrough(t *testing.T) {
	candidates := []model.CandidateValue{
		cand("   ", model.TierStructuredMetadata, 1.0, t0),
		cand("T-42", model.TierExtractedLow, 0.3, t0),
	}

	rf := Resolve(model.FieldTicketNumber, candidates)
	assert.Equal(t, "T-42", rf.Value)
	assert.Equal(t, model.TierExtractedLow, rf.Tier)
	// The empty candidate is still retained for audit.
	assert.Len(t, rf.Rejected, 1)
}

func TestResolve_NoCandidates(t *testing.T) {
	rf := Resolve(model.FieldManifestNumber, nil)
	assert.True(t, rf.Missing())
	assert.Equal(t, model.TierSystemDefault, rf.Tier)
	assert.Zero(t, rf.Confidence)
}

func TestResolve_AllEmpty(t *testing.T) {
	candidates := []model.CandidateValue{
		cand("", model.TierManual, 1.0, t0),
		cand("", model.TierExtractedHigh, 0.95, t0),
	}

	rf := Resolve(model.FieldTicketNumber, candidates)
	assert.True(t, rf.Missing())
	assert.Equal(t, model.TierSystemDefault, rf.Tier)
	assert.Len(t, rf.Rejected, 2)
}

func TestResolve_Pure(t *testing.T) {
	candidates := []model.CandidateValue{
		cand("T-1", model.TierExtractedHigh, 0.91, t0),
		cand("T-2", model.TierExtractedMedium, 0.75, t0.Add(time.Hour)),
		cand("T-3", model.TierStructuredMetadata, 1.0, t0),
	}

	first := Resolve(model.FieldTicketNumber, candidates)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Resolve(model.FieldTicketNumber, candidates))
	}
	// Input order must not matter either.
	reordered := []model.CandidateValue{candidates[2], candidates[0], candidates[1]}
	assert.Equal(t, first.Value, Resolve(model.FieldTicketNumber, reordered).Value)
	assert.Equal(t, first.Tier, Resolve(model.FieldTicketNumber, reordered).Tier)
}

func TestResolve_RejectedOrderedBestFirst(t *testing.T) {
	candidates := []model.CandidateValue{
		cand("low", model.TierExtractedLow, 0.2, t0),
		cand("high", model.TierExtractedHigh, 0.95, t0),
		cand("med", model.TierExtractedMedium, 0.8, t0),
	}

	rf := Resolve(model.FieldTicketNumber, candidates)
	require.Len(t, rf.Rejected, 2)
	assert.Equal(t, "med", rf.Rejected[0].Value)
	assert.Equal(t, "low", rf.Rejected[1].Value)
}

func TestResolveAll_IncludesRequiredWithoutCandidates(t *testing.T) {
	candidates := []model.CandidateValue{
		cand("T-9", model.TierExtractedHigh, 0.92, t0),
	}

	fields := ResolveAll(candidates, model.RequiredFields)
	require.Contains(t, fields, model.FieldHaulerID)
	assert.True(t, fields[model.FieldHaulerID].Missing())
	assert.Equal(t, "T-9", fields[model.FieldTicketNumber].Value)
}
