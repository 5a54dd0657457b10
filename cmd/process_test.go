package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	names []string
}

func (s *staticSource) List(context.Context) ([]string, error) { return s.names, nil }
func (s *staticSource) Stage(_ context.Context, name string) (string, error) {
	return name, nil
}

func TestLimitedSource(t *testing.T) {
	inner := &staticSource{names: []string{"a.pdf", "b.pdf", "c.pdf"}}

	limited := &limitedSource{Source: inner, max: 2}
	names, err := limited.List(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, names)

	// Limit above the list size passes everything through.
	limited = &limitedSource{Source: inner, max: 10}
	names, err = limited.List(t.Context())
	require.NoError(t, err)
	assert.Len(t, names, 3)

	// Staging delegates untouched.
	local, err := limited.Stage(t.Context(), "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", local)
}
