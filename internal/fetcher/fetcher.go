// Package fetcher stages scan files for a processing run. A Source lists
// the files available in one drop location and makes each available on the
// local filesystem; the orchestrator never cares whether that location was
// a mounted folder or a scale house's FTP server.
package fetcher

import (
	"context"
)

// Source enumerates and stages scan files.
type Source interface {
	// List returns the source-relative names of processable files.
	List(ctx context.Context) ([]string, error)

	// Stage makes the named file available locally and returns its path.
	Stage(ctx context.Context, name string) (string, error)
}
