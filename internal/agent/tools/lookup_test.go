package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor-platform/pkg/errors"
)

func lookupValue(t *testing.T, args map[string]any) map[string]any {
	t.Helper()
	v, err := NewLookup().Execute(context.Background(), args)
	require.NoError(t, err, args)
	return v.(map[string]any)
}

func TestLookup_ExactMatch(t *testing.T) {
	v := lookupValue(t, map[string]any{"name": "c"})
	assert.Equal(t, 299792458.0, v["value"])
	assert.Equal(t, "m/s", v["unit"])

	// 精确匹配区分大小写：G 与 g 是不同常数
	assert.Equal(t, 6.67430e-11, lookupValue(t, map[string]any{"name": "G"})["value"])
	assert.Equal(t, 9.81, lookupValue(t, map[string]any{"name": "g"})["value"])

	v = lookupValue(t, map[string]any{"name": "speed of light"})
	assert.Equal(t, "c", v["key"])
	assert.Equal(t, "299792458", v["formatted"])
}

func TestLookup_NormalizedMatch(t *testing.T) {
	v := lookupValue(t, map[string]any{"name": "  Speed   Of Light "})
	assert.Equal(t, "c", v["key"])

	v = lookupValue(t, map[string]any{"name": "Planck's constant"})
	assert.Equal(t, "h", v["key"])

	v = lookupValue(t, map[string]any{"name": "Kinetic Energy"})
	assert.Equal(t, "formula", v["kind"])
	assert.Equal(t, "KE = 0.5·m·v²", v["formula"])

	v = lookupValue(t, map[string]any{"name": "newton second law"})
	assert.Equal(t, "newton_second_law", v["key"])
}

func TestLookup_KindFilter(t *testing.T) {
	v := lookupValue(t, map[string]any{"name": "momentum", "kind": "formula"})
	assert.Equal(t, "p = m·v", v["formula"])

	_, err := NewLookup().Execute(context.Background(), map[string]any{"name": "momentum", "kind": "constant"})
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err))
}

func TestLookup_NotFoundSuggestions(t *testing.T) {
	_, err := NewLookup().Execute(context.Background(), map[string]any{"name": "speed of lihgt"})
	require.Error(t, err)
	e := errors.AsError(err)
	assert.Equal(t, errors.CodeNotFound, e.Code)
	assert.False(t, e.Retryable)
	suggestions, ok := e.Details["suggestions"].([]string)
	require.True(t, ok)
	require.NotEmpty(t, suggestions)
	assert.LessOrEqual(t, len(suggestions), maxSuggestions)
	assert.Equal(t, "speed of light", suggestions[0])
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein("abc", "abc"))
	assert.Equal(t, 3, levenshtein("", "abc"))
	assert.Equal(t, 3, levenshtein("kitten", "sitting"))
	assert.Equal(t, 1, levenshtein("flaw", "flaws"))
}
