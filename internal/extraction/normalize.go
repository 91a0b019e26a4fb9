package extraction

import (
	"strings"
	"unicode"

	prose "github.com/jdkato/prose/v2"
)

// CleanedText carries the normalized query plus a token index used by the
// extractor and the coverage controller. Token spans are character offsets
// into Normalized.
type CleanedText struct {
	Original   string
	Normalized string
	Tokens     []string
	TokenSpans []Span
}

// Normalize collapses whitespace and tokenizes the query. Tokenization goes
// through prose; a plain whitespace split covers the rare inputs prose
// rejects. Punctuation-only tokens are dropped since they never carry
// entity content.
func Normalize(text string) CleanedText {
	normalized := collapseWhitespace(text)

	ct := CleanedText{
		Original:   text,
		Normalized: normalized,
	}
	if normalized == "" {
		return ct
	}

	tokens := tokenize(normalized)

	cursor := 0
	for _, tok := range tokens {
		if !hasLetterOrDigit(tok) {
			continue
		}
		idx := strings.Index(normalized[cursor:], tok)
		if idx < 0 {
			continue
		}
		start := cursor + idx
		end := start + len(tok)
		ct.Tokens = append(ct.Tokens, tok)
		ct.TokenSpans = append(ct.TokenSpans, Span{Start: start, End: end})
		cursor = end
	}

	return ct
}

func tokenize(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithExtraction(false),
		prose.WithTagging(false),
		prose.WithSegmentation(false),
	)
	if err != nil {
		return strings.Fields(text)
	}

	proseTokens := doc.Tokens()
	tokens := make([]string, 0, len(proseTokens))
	for _, t := range proseTokens {
		tokens = append(tokens, t.Text)
	}
	return tokens
}

func collapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func hasLetterOrDigit(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
