package search

import (
	"cmp"
	"slices"

	"github.com/Aman-CERP/bulletinsearch/internal/store"
)

// DefaultRRFConstant is the k in 1/(k+rank).
const DefaultRRFConstant = 60

// Source names for ranked lists.
const (
	SourceSemantic = "semantic"
	SourceKeyword  = "keyword"
)

// RankedList is one technique's ranked hits, best first.
type RankedList struct {
	Source string
	Hits   []*store.RankedHit
}

// FusedResult is one chunk after fusion.
type FusedResult struct {
	ChunkID string
	// Score is the raw sum of 1/(k+rank) over the lists holding the chunk.
	Score float64
	// Ranks maps each contributing source to the 1-based position in its list.
	Ranks    map[string]int
	BestRank int
	// MatchedTerms come from the first hit that carried any.
	MatchedTerms []string
}

// RRFFusion merges ranked lists with Reciprocal Rank Fusion. Only rank
// positions matter; the lists' own scores are ignored.
type RRFFusion struct {
	K int
}

func NewRRFFusion() *RRFFusion {
	return &RRFFusion{K: DefaultRRFConstant}
}

// NewRRFFusionWithK uses DefaultRRFConstant for k <= 0.
func NewRRFFusionWithK(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse merges any number of lists without modifying them. A chunk repeated
// within one list keeps its first position. The result is never nil and is
// ordered by score, then number of contributing lists, then best rank,
// then chunk id.
func (f *RRFFusion) Fuse(lists ...RankedList) []*FusedResult {
	k := f.K
	if k <= 0 {
		k = DefaultRRFConstant
	}

	byID := map[string]*FusedResult{}
	out := []*FusedResult{}
	for _, l := range lists {
		for pos, hit := range l.Hits {
			if hit == nil {
				continue
			}
			r, ok := byID[hit.ChunkID]
			if !ok {
				r = &FusedResult{ChunkID: hit.ChunkID, Ranks: make(map[string]int, 2)}
				byID[hit.ChunkID] = r
				out = append(out, r)
			}
			if _, seen := r.Ranks[l.Source]; seen {
				continue
			}

			rank := pos + 1
			r.Ranks[l.Source] = rank
			r.Score += 1 / float64(k+rank)
			if r.BestRank == 0 || rank < r.BestRank {
				r.BestRank = rank
			}
			if len(r.MatchedTerms) == 0 && len(hit.MatchedTerms) > 0 {
				r.MatchedTerms = slices.Clone(hit.MatchedTerms)
			}
		}
	}

	slices.SortFunc(out, func(a, b *FusedResult) int {
		return cmp.Or(
			cmp.Compare(b.Score, a.Score),
			cmp.Compare(len(b.Ranks), len(a.Ranks)),
			cmp.Compare(a.BestRank, b.BestRank),
			cmp.Compare(a.ChunkID, b.ChunkID),
		)
	})
	return out
}
