// Package chunk defines the bulletin chunk records consumed by retrieval.
//
// Records are produced upstream (PDF extraction, cleaning, chunking and
// metadata enrichment) and are read-only here. The same ChunkRecord.ID is
// stored in every index backend and is the join key for rank fusion.
package chunk

import (
	"fmt"
	"strings"
)

// Metadata field names, shared by filters, payload keys and SQL columns.
const (
	FieldSectionType    = "section_type"
	FieldTopic          = "topic"
	FieldLanguage       = "language"
	FieldHasTables      = "has_tables"
	FieldHasAmounts     = "has_amounts"
	FieldEntities       = "entities"
	FieldDocumentID     = "document_id"
	FieldJurisdictionID = "jurisdiction_id"
	FieldYear           = "year"
	FieldMonth          = "month"

	// FieldDate is the combined "YYYY-MM" field used by backends that
	// cannot store year and month separately.
	FieldDate = "date"
)

// Metadata holds the filterable attributes of a chunk.
type Metadata struct {
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

// Date returns the combined date value: "YYYY-MM", "YYYY" without a month,
// or "" without a year.
func (m Metadata) Date() string {
	if m.Year == "" {
		return ""
	}
	if m.Month == "" {
		return m.Year
	}
	return m.Year + "-" + m.Month
}

// HasEntity reports whether the chunk mentions the given entity.
func (m Metadata) HasEntity(entity string) bool {
	for _, e := range m.Entities {
		if e == entity {
			return true
		}
	}
	return false
}

// ChunkRecord is a retrievable unit of a bulletin.
type ChunkRecord struct {
	ID         string   `json:"chunk_id"`
	DocumentID string   `json:"document_id"`
	Text       string   `json:"text"`
	Metadata   Metadata `json:"metadata"`
}

// Validate checks the fields every backend relies on.
func (r *ChunkRecord) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("chunk record has empty chunk_id")
	}
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("chunk %s has empty text", r.ID)
	}
	if r.Metadata.Month != "" && r.Metadata.Year == "" {
		return fmt.Errorf("chunk %s has month without year", r.ID)
	}
	return nil
}
