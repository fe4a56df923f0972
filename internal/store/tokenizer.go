package store

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultStopWords are dropped from indexed text and queries. Bulletins are
// mostly Spanish, with English used in some annexes.
var DefaultStopWords = []string{
	// Spanish
	"al", "con", "de", "del", "el", "en", "es", "la", "las", "lo", "los",
	"para", "por", "que", "se", "su", "sus", "un", "una", "uno", "unos",
	"unas", "y", "o", "a", "e", "ni", "como", "mas", "pero", "sin", "sobre",
	"este", "esta", "estos", "estas", "ese", "esa", "le", "les", "ha", "han",
	// English
	"an", "and", "are", "as", "at", "be", "by", "for", "from", "in", "is",
	"it", "of", "on", "or", "the", "to", "with",
}

var defaultStopWordMap = BuildStopWordMap(DefaultStopWords)

// FoldRune lowercases r and strips its combining marks, so "Á" becomes "a".
// Runes that decompose into more than one base rune are returned unchanged
// (lowercased) to keep one folded rune per original rune.
func FoldRune(r rune) rune {
	r = unicode.ToLower(r)
	if r < unicode.MaxASCII {
		return r
	}
	decomposed := []rune(norm.NFD.String(string(r)))
	var base rune
	bases := 0
	for _, d := range decomposed {
		if unicode.Is(unicode.Mn, d) {
			continue
		}
		base = d
		bases++
	}
	if bases != 1 {
		return r
	}
	return base
}

// FoldText lowercases text and removes diacritics.
func FoldText(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		return strings.ToLower(text)
	}
	return strings.ToLower(folded)
}

// Tokenize splits text into folded word tokens of at least two runes and
// removes the default stop words. Indexing and querying use the same
// function so that FTS matching is accent- and case-insensitive.
func Tokenize(text string) []string {
	return FilterStopWords(tokenizeFolded(FoldText(text)), defaultStopWordMap)
}

// TokenizeAll is Tokenize without stop word removal.
func TokenizeAll(text string) []string {
	return tokenizeFolded(FoldText(text))
}

func tokenizeFolded(folded string) []string {
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) >= 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// UniqueTokens returns tokens without duplicates, keeping first occurrence order.
func UniqueTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[strings.ToLower(token)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts a slice of stop words to a map for efficient lookup.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[FoldText(word)] = struct{}{}
	}
	return m
}
