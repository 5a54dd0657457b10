// Package dedupe answers whether an equivalent ticket already exists within
// a trailing time window. It never mutates state: the caller owns link
// creation and review flagging.
package dedupe

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Lookup is the single store query the detector depends on. It returns the
// id of a prior ticket with the same (ticket number, hauler key) persisted
// in [since, until], or "" when none exists.
type Lookup interface {
	FindDuplicateCandidate(ctx context.Context, ticketNumber, haulerKey string, since, until time.Time) (string, error)
}

// Detector checks candidate ticket keys against prior tickets.
type Detector struct {
	lookup Lookup
	window time.Duration
}

// NewDetector creates a Detector with the given trailing window.
func NewDetector(lookup Lookup, window time.Duration) *Detector {
	return &Detector{lookup: lookup, window: window}
}

var haulerFolder = cases.Fold()

// NormalizeHauler canonicalizes a hauler identifier for key comparison:
// unicode NFKC, case folding, and whitespace collapse. Scale houses type
// the same hauler a dozen different ways.
func NormalizeHauler(id string) string {
	s := norm.NFKC.String(id)
	s = haulerFolder.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// Check reports whether a ticket with the same number and hauler already
// exists within the trailing window ending at date. It returns the prior
// ticket's id, or nil when the candidate is not a duplicate.
//
// The key is the pair: the same ticket number under a different hauler is
// not a duplicate.
func (d *Detector) Check(ctx context.Context, ticketNumber, haulerID string, date time.Time) (*string, error) {
	number := strings.TrimSpace(ticketNumber)
	key := NormalizeHauler(haulerID)
	if number == "" || key == "" {
		return nil, nil
	}

	since := date.Add(-d.window)
	id, err := d.lookup.FindDuplicateCandidate(ctx, number, key, since, date)
	if err != nil {
		return nil, eris.Wrapf(err, "dedupe: check %s/%s", number, key)
	}
	if id == "" {
		return nil, nil
	}
	return &id, nil
}

// Window returns the configured trailing window.
func (d *Detector) Window() time.Duration {
	return d.window
}
