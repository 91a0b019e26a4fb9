package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	ct := Normalize("  main \t  engine \n overheating  ")

	assert.Equal(t, "main engine overheating", ct.Normalized)
	assert.Equal(t, []string{"main", "engine", "overheating"}, ct.Tokens)
}

func TestNormalizeEmptyInput(t *testing.T) {
	ct := Normalize("")

	assert.Equal(t, "", ct.Normalized)
	assert.Empty(t, ct.Tokens)
	assert.Empty(t, ct.TokenSpans)
}

func TestNormalizeTokenSpansIndexNormalizedText(t *testing.T) {
	ct := Normalize("check sea water pump impeller")

	require.Len(t, ct.TokenSpans, len(ct.Tokens))
	for i, span := range ct.TokenSpans {
		assert.Equal(t, ct.Tokens[i], ct.Normalized[span.Start:span.End])
	}
}

func TestNormalizeDropsPunctuationOnlyTokens(t *testing.T) {
	ct := Normalize("impeller, gasket - seal")

	for _, tok := range ct.Tokens {
		assert.True(t, hasLetterOrDigit(tok), "token %q carries no letter or digit", tok)
	}
	assert.Contains(t, ct.Tokens, "impeller")
	assert.Contains(t, ct.Tokens, "gasket")
	assert.Contains(t, ct.Tokens, "seal")
}

func TestNormalizePreservesOriginal(t *testing.T) {
	raw := "  Battery   bank  "
	ct := Normalize(raw)

	assert.Equal(t, raw, ct.Original)
	assert.Equal(t, "Battery bank", ct.Normalized)
}
