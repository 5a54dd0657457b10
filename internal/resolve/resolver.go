// Package resolve merges conflicting candidate values for a ticket field
// into one authoritative value with provenance.
package resolve

import (
	"sort"

	"github.com/ridgehaul/ticketflow/internal/model"
)

// Resolve picks the authoritative value for field among candidates.
//
// Precedence is by source tier; within a tier the higher confidence wins,
// and on equal confidence the most recently produced candidate wins. Empty
// candidates are never selected and fall through to the next best. When
// nothing usable remains the field resolves to the empty value at
// SYSTEM_DEFAULT with confidence 0.
//
// Resolve is pure: identical inputs always yield identical output, which is
// what makes batch reprocessing idempotent. The input slice is not mutated.
func Resolve(field string, candidates []model.CandidateValue) model.ResolvedField {
	usable := make([]model.CandidateValue, 0, len(candidates))
	rejected := make([]model.CandidateValue, 0, len(candidates))
	for _, c := range candidates {
		if c.Empty() {
			rejected = append(rejected, c)
			continue
		}
		usable = append(usable, c)
	}

	if len(usable) == 0 {
		sortCandidates(rejected)
		return model.ResolvedField{
			Field:    field,
			Tier:     model.TierSystemDefault,
			Rejected: rejected,
		}
	}

	sortCandidates(usable)
	winner := usable[0]
	rejected = append(rejected, usable[1:]...)
	sortCandidates(rejected)

	return model.ResolvedField{
		Field:      field,
		Value:      winner.Value,
		Tier:       winner.Tier,
		Confidence: winner.Confidence,
		Rejected:   rejected,
	}
}

// ResolveAll resolves every field that has at least one candidate, plus the
// given required fields even when no candidate exists for them.
func ResolveAll(candidates []model.CandidateValue, required []string) map[string]model.ResolvedField {
	byField := make(map[string][]model.CandidateValue)
	for _, c := range candidates {
		byField[c.Field] = append(byField[c.Field], c)
	}
	for _, f := range required {
		if _, ok := byField[f]; !ok {
			byField[f] = nil
		}
	}

	out := make(map[string]model.ResolvedField, len(byField))
	for field, cs := range byField {
		out[field] = Resolve(field, cs)
	}
	return out
}

// sortCandidates orders best-first: tier desc, confidence desc, produced-at
// desc. The sort is stable so equal candidates keep their input order.
func sortCandidates(cs []model.CandidateValue) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Tier != cs[j].Tier {
			return cs[i].Tier > cs[j].Tier
		}
		if cs[i].Confidence != cs[j].Confidence {
			return cs[i].Confidence > cs[j].Confidence
		}
		return cs[i].ProducedAt.After(cs[j].ProducedAt)
	})
}
