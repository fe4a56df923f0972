package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize_SplitsOnDelimiters(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect []string
	}{
		{
			name:   "whitespace",
			input:  "convocatoria ayudas",
			expect: []string{"convocatoria", "ayudas"},
		},
		{
			name:   "punctuation",
			input:  "Orden (núm. 45/2025), anexo",
			expect: []string{"orden", "num", "45", "2025", "anexo"},
		},
		{
			name:   "stop words dropped",
			input:  "Resolución de la Dirección General",
			expect: []string{"resolucion", "direccion", "general"},
		},
		{
			name:   "short tokens dropped",
			input:  "a b cd",
			expect: []string{"cd"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, Tokenize(tt.input))
		})
	}
}

func TestTokenize_EmptyInput(t *testing.T) {
	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("  ,;  "))
}

func TestTokenizeAll_KeepsStopWords(t *testing.T) {
	assert.Equal(t, []string{"de", "la", "orden"}, TokenizeAll("de la Orden"))
}

func TestFoldText_RemovesDiacritics(t *testing.T) {
	assert.Equal(t, "aragon canon pinguino", FoldText("Aragón CAÑÓN pingüino"))
}

func TestFoldRune_PreservesOneToOneMapping(t *testing.T) {
	tests := []struct {
		in   rune
		want rune
	}{
		{'Á', 'a'},
		{'ñ', 'n'},
		{'Ü', 'u'},
		{'x', 'x'},
		{'€', '€'},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FoldRune(tt.in), string(tt.in))
	}
}

func TestUniqueTokens_KeepsFirstOccurrence(t *testing.T) {
	assert.Equal(t, []string{"b", "a"}, UniqueTokens([]string{"b", "a", "b"}))
}

func TestFilterStopWords_CustomMap(t *testing.T) {
	stop := BuildStopWordMap([]string{"BOLETÍN"})
	assert.Equal(t, []string{"oficial"}, FilterStopWords([]string{"boletin", "oficial"}, stop))
}
