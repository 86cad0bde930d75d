package jsonx

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeepParsePassesThroughNonStrings(t *testing.T) {
	m := map[string]any{"a": float64(1)}
	require.Equal(t, m, DeepParse(m, DefaultMaxDepth))
	require.Equal(t, float64(7), DeepParse(float64(7), DefaultMaxDepth))
	require.Nil(t, DeepParse(nil, DefaultMaxDepth))
}

func TestDeepParseSingleEncoding(t *testing.T) {
	got := DeepParse(`{"a":1}`, DefaultMaxDepth)
	require.Equal(t, map[string]any{"a": float64(1)}, got)
}

func TestDeepParseDoubleEncoding(t *testing.T) {
	inner, err := json.Marshal(map[string]any{"a": 1, "b": []string{"x"}})
	require.NoError(t, err)
	outer, err := json.Marshal(string(inner))
	require.NoError(t, err)

	got := DeepParse(string(outer), DefaultMaxDepth)
	require.Equal(t, map[string]any{"a": float64(1), "b": []any{"x"}}, got)
}

func TestDeepParseFirstAttemptFailureIsNil(t *testing.T) {
	require.Nil(t, DeepParse("{not json", DefaultMaxDepth))
}

func TestDeepParseEncodedPlainStringIsNotNil(t *testing.T) {
	encoded, err := json.Marshal("not-json")
	require.NoError(t, err)

	// The first attempt succeeds and yields "not-json"; the second attempt
	// fails, so the previously parsed value wins.
	require.Equal(t, "not-json", DeepParse(string(encoded), DefaultMaxDepth))
}

func TestDeepParseDepthBudgetReturnsLastParsed(t *testing.T) {
	// "x" encoded four times; with a budget of 2 the result is still a
	// JSON-encoded string.
	value := "x"
	encoded := value
	for i := 0; i < 4; i++ {
		raw, err := json.Marshal(encoded)
		require.NoError(t, err)
		encoded = string(raw)
	}

	got := DeepParse(encoded, 2)
	s, ok := got.(string)
	require.True(t, ok)

	var next any
	require.NoError(t, json.Unmarshal([]byte(s), &next))
}
