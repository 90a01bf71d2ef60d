package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-arcade/guild/internal/engine/repo"
)

func TestParseFilters(t *testing.T) {
	where, err := parseFilters([]string{"published=true", "discoverable=false", "organiser=acme", "name=a=b"})
	require.NoError(t, err)
	assert.Equal(t, repo.Where{
		"published":    true,
		"discoverable": false,
		"organiser":    "acme",
		"name":         "a=b",
	}, where)

	where, err = parseFilters(nil)
	require.NoError(t, err)
	assert.Empty(t, where)

	for _, bad := range []string{"published", "=true"} {
		_, err = parseFilters([]string{bad})
		assert.Error(t, err, bad)
	}
}
