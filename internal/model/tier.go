package model

import "github.com/rotisserie/eris"

// SourceTier ranks where a candidate value came from. Higher values take
// precedence during field resolution. The ordering is numeric on purpose:
// string comparison of tier names caused silent precedence bugs in the
// legacy importer.
type SourceTier int

const (
	// TierSystemDefault is the fallback when no source produced a value.
	TierSystemDefault SourceTier = iota
	// TierExtractedLow is an OCR candidate with confidence below 0.7.
	TierExtractedLow
	// TierExtractedMedium is an OCR candidate with confidence in [0.7, 0.9).
	TierExtractedMedium
	// TierExtractedHigh is an OCR candidate with confidence of 0.9 or above.
	TierExtractedHigh
	// TierStructuredMetadata is parsed from the file's name or folder path.
	TierStructuredMetadata
	// TierManual is a prior human correction. Never superseded by any
	// automated source, however recent or confident.
	TierManual
)

var tierNames = map[SourceTier]string{
	TierSystemDefault:      "SYSTEM_DEFAULT",
	TierExtractedLow:       "EXTRACTED_LOW_CONFIDENCE",
	TierExtractedMedium:    "EXTRACTED_MEDIUM_CONFIDENCE",
	TierExtractedHigh:      "EXTRACTED_HIGH_CONFIDENCE",
	TierStructuredMetadata: "STRUCTURED_METADATA",
	TierManual:             "MANUAL",
}

func (t SourceTier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseSourceTier converts a stored tier name back to its enum value.
func ParseSourceTier(s string) (SourceTier, error) {
	for t, name := range tierNames {
		if name == s {
			return t, nil
		}
	}
	return TierSystemDefault, eris.Errorf("model: unknown source tier %q", s)
}

// TierForConfidence maps an extraction confidence score onto the three
// EXTRACTED_* tiers.
func TierForConfidence(conf float64) SourceTier {
	switch {
	case conf >= 0.9:
		return TierExtractedHigh
	case conf >= 0.7:
		return TierExtractedMedium
	default:
		return TierExtractedLow
	}
}
