// Package filter implements the technique-agnostic metadata filter and its
// translation into vector-store predicates and SQL WHERE clauses.
//
// A SearchFilter is built once at the request boundary, validated there, and
// passed by value through the pipeline. Translator turns it into one
// predicate per backend and reports every field a backend could not express.
package filter

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Aman-CERP/bulletinsearch/internal/chunk"
)

var yearPattern = regexp.MustCompile(`^[0-9]{4}$`)

// SearchFilter is an immutable set of optional metadata constraints.
// The zero value matches everything.
type SearchFilter struct {
	sectionType    string
	topic          string
	language       string
	hasTables      *bool
	hasAmounts     *bool
	entities       []string
	documentID     string
	jurisdictionID int64
	year           string
	month          string
}

// Option sets one field while building a SearchFilter.
type Option func(*builder)

type builder struct {
	f        SearchFilter
	entities []string
	// rawMonth and jurisdiction are validated after all options ran.
	rawMonth        string
	jurisdiction    int64
	jurisdictionSet bool
}

// WithSectionType constrains section_type by equality.
func WithSectionType(v string) Option { return func(b *builder) { b.f.sectionType = v } }

// WithTopic constrains topic by equality.
func WithTopic(v string) Option { return func(b *builder) { b.f.topic = v } }

// WithLanguage constrains language by equality. Values are lowercased.
func WithLanguage(v string) Option { return func(b *builder) { b.f.language = v } }

// WithHasTables constrains has_tables.
func WithHasTables(v bool) Option { return func(b *builder) { b.f.hasTables = &v } }

// WithHasAmounts constrains has_amounts.
func WithHasAmounts(v bool) Option { return func(b *builder) { b.f.hasAmounts = &v } }

// WithEntities requires at least one of the given entities.
func WithEntities(v ...string) Option {
	return func(b *builder) { b.entities = append(b.entities, v...) }
}

// WithDocumentID restricts results to one document.
func WithDocumentID(v string) Option { return func(b *builder) { b.f.documentID = v } }

// WithJurisdictionID constrains jurisdiction_id. It must be positive.
func WithJurisdictionID(v int64) Option {
	return func(b *builder) {
		b.jurisdiction = v
		b.jurisdictionSet = true
	}
}

// WithYear constrains year ("YYYY").
func WithYear(v string) Option { return func(b *builder) { b.f.year = v } }

// WithMonth constrains month (1-12). It requires WithYear.
func WithMonth(v string) Option { return func(b *builder) { b.rawMonth = v } }

// New builds and validates a SearchFilter.
func New(opts ...Option) (SearchFilter, error) {
	b := &builder{}
	for _, opt := range opts {
		opt(b)
	}
	return b.build()
}

// MustNew is New for tests and static filters. It panics on invalid input.
func MustNew(opts ...Option) SearchFilter {
	f, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return f
}

func (b *builder) build() (SearchFilter, error) {
	f := b.f
	f.sectionType = strings.TrimSpace(f.sectionType)
	f.topic = strings.TrimSpace(f.topic)
	f.language = strings.ToLower(strings.TrimSpace(f.language))
	f.documentID = strings.TrimSpace(f.documentID)
	f.year = strings.TrimSpace(f.year)

	if f.year != "" && !yearPattern.MatchString(f.year) {
		return SearchFilter{}, &InvalidFilterError{Field: chunk.FieldYear, Value: f.year, Reason: "year must have four digits"}
	}

	if month := strings.TrimSpace(b.rawMonth); month != "" {
		if f.year == "" {
			return SearchFilter{}, &InvalidFilterError{Field: chunk.FieldMonth, Value: month, Reason: "month requires year"}
		}
		n, err := strconv.Atoi(month)
		if err != nil || n < 1 || n > 12 {
			return SearchFilter{}, &InvalidFilterError{Field: chunk.FieldMonth, Value: month, Reason: "month must be between 1 and 12"}
		}
		f.month = fmt.Sprintf("%02d", n)
	}

	if b.jurisdictionSet {
		if b.jurisdiction <= 0 {
			return SearchFilter{}, &InvalidFilterError{
				Field:  chunk.FieldJurisdictionID,
				Value:  strconv.FormatInt(b.jurisdiction, 10),
				Reason: "jurisdiction_id must be positive",
			}
		}
		f.jurisdictionID = b.jurisdiction
	}

	if len(b.entities) > 0 {
		seen := make(map[string]struct{}, len(b.entities))
		entities := make([]string, 0, len(b.entities))
		for _, e := range b.entities {
			e = strings.TrimSpace(e)
			if e == "" {
				return SearchFilter{}, &InvalidFilterError{Field: chunk.FieldEntities, Reason: "entities must not be empty"}
			}
			if _, dup := seen[e]; dup {
				continue
			}
			seen[e] = struct{}{}
			entities = append(entities, e)
		}
		sort.Strings(entities)
		f.entities = entities
	}

	return f, nil
}

// Params is the wire form of a filter. Field names are part of the public
// search API and must not change.
type Params struct {
	SectionType    *string  `json:"section_type,omitempty" yaml:"section_type,omitempty"`
	Topic          *string  `json:"topic,omitempty" yaml:"topic,omitempty"`
	Language       *string  `json:"language,omitempty" yaml:"language,omitempty"`
	HasTables      *bool    `json:"has_tables,omitempty" yaml:"has_tables,omitempty"`
	HasAmounts     *bool    `json:"has_amounts,omitempty" yaml:"has_amounts,omitempty"`
	Entities       []string `json:"entities,omitempty" yaml:"entities,omitempty"`
	DocumentID     *string  `json:"document_id,omitempty" yaml:"document_id,omitempty"`
	JurisdictionID *int64   `json:"jurisdiction_id,omitempty" yaml:"jurisdiction_id,omitempty"`
	Year           *string  `json:"year,omitempty" yaml:"year,omitempty"`
	Month          *string  `json:"month,omitempty" yaml:"month,omitempty"`
}

// FromParams validates wire parameters into a SearchFilter.
func FromParams(p Params) (SearchFilter, error) {
	var opts []Option
	if p.SectionType != nil {
		opts = append(opts, WithSectionType(*p.SectionType))
	}
	if p.Topic != nil {
		opts = append(opts, WithTopic(*p.Topic))
	}
	if p.Language != nil {
		opts = append(opts, WithLanguage(*p.Language))
	}
	if p.HasTables != nil {
		opts = append(opts, WithHasTables(*p.HasTables))
	}
	if p.HasAmounts != nil {
		opts = append(opts, WithHasAmounts(*p.HasAmounts))
	}
	if p.Entities != nil {
		opts = append(opts, WithEntities(p.Entities...))
	}
	if p.DocumentID != nil {
		opts = append(opts, WithDocumentID(*p.DocumentID))
	}
	if p.JurisdictionID != nil {
		opts = append(opts, WithJurisdictionID(*p.JurisdictionID))
	}
	if p.Year != nil {
		opts = append(opts, WithYear(*p.Year))
	}
	if p.Month != nil {
		opts = append(opts, WithMonth(*p.Month))
	}
	return New(opts...)
}

// SectionType returns the section_type constraint, or "".
func (f SearchFilter) SectionType() string { return f.sectionType }

// Topic returns the topic constraint, or "".
func (f SearchFilter) Topic() string { return f.topic }

// Language returns the language constraint, or "".
func (f SearchFilter) Language() string { return f.language }

// HasTables returns the has_tables constraint and whether it is set.
func (f SearchFilter) HasTables() (value, ok bool) {
	if f.hasTables == nil {
		return false, false
	}
	return *f.hasTables, true
}

// HasAmounts returns the has_amounts constraint and whether it is set.
func (f SearchFilter) HasAmounts() (value, ok bool) {
	if f.hasAmounts == nil {
		return false, false
	}
	return *f.hasAmounts, true
}

// Entities returns a copy of the any-of entity set, sorted.
func (f SearchFilter) Entities() []string {
	if len(f.entities) == 0 {
		return nil
	}
	out := make([]string, len(f.entities))
	copy(out, f.entities)
	return out
}

// DocumentID returns the document_id constraint, or "".
func (f SearchFilter) DocumentID() string { return f.documentID }

// JurisdictionID returns the jurisdiction_id constraint, or 0.
func (f SearchFilter) JurisdictionID() int64 { return f.jurisdictionID }

// Year returns the year constraint, or "".
func (f SearchFilter) Year() string { return f.year }

// Month returns the two-digit month constraint, or "".
func (f SearchFilter) Month() string { return f.month }

// Fields lists the constrained fields in canonical order.
func (f SearchFilter) Fields() []string {
	var fields []string
	add := func(set bool, name string) {
		if set {
			fields = append(fields, name)
		}
	}
	add(f.sectionType != "", chunk.FieldSectionType)
	add(f.topic != "", chunk.FieldTopic)
	add(f.language != "", chunk.FieldLanguage)
	add(f.hasTables != nil, chunk.FieldHasTables)
	add(f.hasAmounts != nil, chunk.FieldHasAmounts)
	add(len(f.entities) > 0, chunk.FieldEntities)
	add(f.documentID != "", chunk.FieldDocumentID)
	add(f.jurisdictionID != 0, chunk.FieldJurisdictionID)
	add(f.year != "", chunk.FieldYear)
	add(f.month != "", chunk.FieldMonth)
	return fields
}

// IsEmpty reports whether the filter constrains nothing.
func (f SearchFilter) IsEmpty() bool {
	return len(f.Fields()) == 0
}

// Matches is the reference semantics of the filter: every set field must
// hold, and entities match when any one of them is present.
func (f SearchFilter) Matches(r *chunk.ChunkRecord) bool {
	m := r.Metadata
	if f.sectionType != "" && m.SectionType != f.sectionType {
		return false
	}
	if f.topic != "" && m.Topic != f.topic {
		return false
	}
	if f.language != "" && m.Language != f.language {
		return false
	}
	if f.hasTables != nil && m.HasTables != *f.hasTables {
		return false
	}
	if f.hasAmounts != nil && m.HasAmounts != *f.hasAmounts {
		return false
	}
	if len(f.entities) > 0 {
		found := false
		for _, e := range f.entities {
			if m.HasEntity(e) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.documentID != "" && r.DocumentID != f.documentID {
		return false
	}
	if f.jurisdictionID != 0 && m.JurisdictionID != f.jurisdictionID {
		return false
	}
	if f.year != "" && m.Year != f.year {
		return false
	}
	if f.month != "" && m.Month != f.month {
		return false
	}
	return true
}
