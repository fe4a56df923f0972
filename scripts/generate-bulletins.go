//go:build ignore

// Package main generates synthetic bulletin chunk records for load tests.
// Usage: go run scripts/generate-bulletins.go -records 50000 -output testdata/bench/records.jsonl
//
// The output is the JSONL format read by `bulletinsearch index`. Output is
// deterministic for a given seed.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	numRecords = flag.Int("records", 10000, "Number of chunk records to generate")
	perDoc     = flag.Int("per-doc", 8, "Maximum chunks per bulletin document")
	output     = flag.String("output", "-", "Output file (- for stdout)")
	seed       = flag.Int64("seed", 42, "Random seed for reproducibility")
)

type metadata struct {
	SectionType    string   `json:"section_type,omitempty"`
	Topic          string   `json:"topic,omitempty"`
	Language       string   `json:"language,omitempty"`
	HasTables      bool     `json:"has_tables"`
	HasAmounts     bool     `json:"has_amounts"`
	Entities       []string `json:"entities,omitempty"`
	Year           string   `json:"year,omitempty"`
	Month          string   `json:"month,omitempty"`
	JurisdictionID int64    `json:"jurisdiction_id,omitempty"`
}

type record struct {
	ChunkID    string   `json:"chunk_id"`
	DocumentID string   `json:"document_id"`
	Text       string   `json:"text"`
	Metadata   metadata `json:"metadata"`
}

var (
	sectionTypes = []string{"resolution", "order", "announcement", "decree", "correction", "agreement"}

	topics = map[string][]string{
		"employment":     {"subvenciones", "trabajadores autónomos", "contratación indefinida", "formación profesional", "empleo juvenil"},
		"housing":        {"rehabilitación de vivienda", "ayudas al alquiler", "vivienda protegida", "eficiencia energética", "parque residencial"},
		"infrastructure": {"licitación de obras", "red de carreteras", "mantenimiento de puentes", "transporte público", "abastecimiento de agua"},
		"health":         {"centros de salud", "personal sanitario", "listas de espera", "vacunación", "material sanitario"},
		"education":      {"becas de estudio", "centros docentes", "profesorado interino", "comedores escolares", "transporte escolar"},
	}

	entities = []string{
		"Junta de Andalucía", "Consejería de Fomento", "Consejería de Empleo",
		"Servicio Andaluz de Salud", "Ayuntamiento de Sevilla", "Diputación de Málaga",
	}

	openings = []string{
		"Resolución de la Dirección General por la que se convocan",
		"Orden por la que se aprueban las bases reguladoras de",
		"Anuncio de licitación relativo a",
		"Corrección de errores de la disposición sobre",
		"Acuerdo del Consejo de Gobierno por el que se autoriza",
	}

	fillers = []string{
		"en régimen de concurrencia competitiva",
		"para el ejercicio presupuestario vigente",
		"conforme a lo dispuesto en la normativa aplicable",
		"con cargo a los créditos del programa correspondiente",
		"en el ámbito territorial de la comunidad autónoma",
	}
)

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	w := os.Stdout
	if *output != "-" {
		if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
			fatal(err)
		}
		f, err := os.Create(*output)
		if err != nil {
			fatal(err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)

	topicNames := make([]string, 0, len(topics))
	for name := range topics {
		topicNames = append(topicNames, name)
	}
	// Map iteration order is random; sort for a stable seed.
	sort.Strings(topicNames)

	written, doc := 0, 0
	for written < *numRecords {
		doc++
		year := 2015 + rng.Intn(10)
		docID := fmt.Sprintf("boja-%d-%03d", year, doc%1000)
		topic := topicNames[rng.Intn(len(topicNames))]
		section := sectionTypes[rng.Intn(len(sectionTypes))]
		month := fmt.Sprintf("%02d", 1+rng.Intn(12))

		chunks := 1 + rng.Intn(*perDoc)
		for c := 1; c <= chunks && written < *numRecords; c++ {
			r := record{
				ChunkID:    fmt.Sprintf("%s-%d#%d", docID, doc, c),
				DocumentID: fmt.Sprintf("%s-%d", docID, doc),
				Text:       sentence(rng, topics[topic]),
				Metadata: metadata{
					SectionType:    section,
					Topic:          topic,
					Language:       "es",
					HasTables:      rng.Intn(5) == 0,
					HasAmounts:     rng.Intn(3) == 0,
					Entities:       pick(rng, entities, rng.Intn(3)),
					Year:           fmt.Sprintf("%d", year),
					Month:          month,
					JurisdictionID: int64(1 + rng.Intn(8)),
				},
			}
			if err := enc.Encode(r); err != nil {
				fatal(err)
			}
			written++
		}
	}

	if err := bw.Flush(); err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stderr, "Generated %d records in %d documents\n", written, doc)
}

func sentence(rng *rand.Rand, terms []string) string {
	var b strings.Builder
	b.WriteString(openings[rng.Intn(len(openings))])
	for _, term := range pick(rng, terms, 1+rng.Intn(3)) {
		b.WriteString(" ")
		b.WriteString(term)
		b.WriteString(" ")
		b.WriteString(fillers[rng.Intn(len(fillers))])
	}
	if rng.Intn(3) == 0 {
		fmt.Fprintf(&b, " por un importe total de %d euros", 1000*(1+rng.Intn(5000)))
	}
	b.WriteString(".")
	return b.String()
}

func pick(rng *rand.Rand, from []string, n int) []string {
	if n <= 0 {
		return nil
	}
	idx := rng.Perm(len(from))
	out := make([]string, 0, n)
	for _, i := range idx[:min(n, len(from))] {
		out = append(out, from[i])
	}
	return out
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
