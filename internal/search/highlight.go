package search

import (
	"strings"
	"unicode"

	"github.com/Aman-CERP/bulletinsearch/internal/store"
)

// Highlighter defaults
const (
	DefaultHighlightRunes = 240
	DefaultHighlightOpen  = "<mark>"
	DefaultHighlightClose = "</mark>"
	ellipsis              = "…"
)

// Highlighter builds a bounded snippet around the first query-term match
// and wraps every match inside it. Matching is on whole words, ignoring
// case and accents, so "aragon" marks "Aragón".
type Highlighter struct {
	MaxRunes int
	Open     string
	Close    string
}

// NewHighlighter returns a highlighter with the default window and marks.
func NewHighlighter() *Highlighter {
	return &Highlighter{
		MaxRunes: DefaultHighlightRunes,
		Open:     DefaultHighlightOpen,
		Close:    DefaultHighlightClose,
	}
}

// span is a half-open rune range of one matched word.
type span struct{ start, end int }

// Highlight returns the snippet for text. Without a match it returns the
// leading MaxRunes of text.
func (h *Highlighter) Highlight(text string, terms []string) string {
	maxRunes := h.MaxRunes
	if maxRunes <= 0 {
		maxRunes = DefaultHighlightRunes
	}

	runes := []rune(text)
	matches := findMatches(runes, terms)

	var start, end int
	if len(matches) == 0 {
		start, end = 0, min(len(runes), maxRunes)
		end = snapEnd(runes, end, 0)
	} else {
		start, end = window(runes, matches[0], maxRunes)
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString(ellipsis)
	}
	pos := start
	for _, m := range matches {
		if m.start < start || m.end > end {
			continue
		}
		b.WriteString(string(runes[pos:m.start]))
		b.WriteString(h.Open)
		b.WriteString(string(runes[m.start:m.end]))
		b.WriteString(h.Close)
		pos = m.end
	}
	b.WriteString(string(runes[pos:end]))
	if end < len(runes) {
		b.WriteString(ellipsis)
	}
	return b.String()
}

// findMatches returns the words of runes whose folded form is a term, in order.
func findMatches(runes []rune, terms []string) []span {
	if len(terms) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		if t = store.FoldText(strings.TrimSpace(t)); t != "" {
			want[t] = struct{}{}
		}
	}

	var matches []span
	var word []rune
	wordStart := -1
	flush := func(end int) {
		if wordStart >= 0 {
			if _, ok := want[string(word)]; ok {
				matches = append(matches, span{start: wordStart, end: end})
			}
		}
		word = word[:0]
		wordStart = -1
	}

	for i, r := range runes {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if wordStart < 0 {
				wordStart = i
			}
			word = append(word, store.FoldRune(r))
			continue
		}
		if unicode.Is(unicode.Mn, r) && wordStart >= 0 {
			// Combining mark of a decomposed letter: part of the word, folded away.
			continue
		}
		flush(i)
	}
	flush(len(runes))
	return matches
}

// window returns a range of at most maxRunes centered on first, snapped
// inward to whitespace without cutting first.
func window(runes []rune, first span, maxRunes int) (int, int) {
	n := len(runes)
	if n <= maxRunes {
		return 0, n
	}

	center := (first.start + first.end) / 2
	start := center - maxRunes/2
	if start < 0 {
		start = 0
	}
	if start+maxRunes > n {
		start = n - maxRunes
	}
	if start > first.start {
		start = first.start
	}
	end := min(start+maxRunes, n)
	if end < first.end {
		end = first.end
	}

	return snapStart(runes, start, first.start), snapEnd(runes, end, first.end)
}

// snapStart moves start forward past the next whitespace, not beyond limit.
func snapStart(runes []rune, start, limit int) int {
	if start == 0 || unicode.IsSpace(runes[start-1]) {
		return start
	}
	for i := start; i < limit; i++ {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return start
}

// snapEnd moves end back to the previous whitespace, not before limit.
func snapEnd(runes []rune, end, limit int) int {
	if end >= len(runes) || unicode.IsSpace(runes[end]) {
		return end
	}
	for i := end - 1; i > limit; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return end
}
