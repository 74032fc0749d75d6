package search

import (
	"sort"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/identity"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/storage"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/vectorstore"
)

// Component keys reported per result.
const (
	ComponentText = "text"
)

// Candidate is one record's fused score with the scores that produced it.
type Candidate struct {
	UUID   string
	Score  float64
	Text   float64
	Vector float64
	// Components holds the raw score from each source that returned the record.
	Components map[string]float64
}

// BranchHits are the hits one fan-out branch returned.
type BranchHits struct {
	Branch Branch
	Hits   []vectorstore.Hit
}

// CombineVector sums weighted branch scores per record. A record missing from a
// branch gets 0 from it. Components carries each branch's raw score.
func CombineVector(branches []BranchHits) map[string]*Candidate {
	out := make(map[string]*Candidate)
	for _, b := range branches {
		for _, h := range b.Hits {
			c := candidate(out, h.UUID)
			c.Vector += b.Branch.Weight * h.Score
			c.Components[string(b.Branch.Field)] = h.Score
		}
	}
	return out
}

// Fuse unions text hits with vector candidates and scores each as
// text*textWeight + vector*vectorWeight. Results are sorted by score desc, then uuid.
func Fuse(text []storage.TextHit, vectors map[string]*Candidate, textWeight, vectorWeight float64) []*Candidate {
	all := make(map[string]*Candidate, len(text)+len(vectors))
	for id, c := range vectors {
		all[id] = c
	}
	for _, h := range text {
		c := candidate(all, h.UUID)
		if h.Score > c.Text {
			c.Text = h.Score
		}
		c.Components[ComponentText] = c.Text
	}

	results := make([]*Candidate, 0, len(all))
	for _, c := range all {
		c.Score = textWeight*c.Text + vectorWeight*c.Vector
		results = append(results, c)
	}
	SortCandidates(results)
	return results
}

// SortCandidates orders by score desc with uuid as the tie-break.
func SortCandidates(cs []*Candidate) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Score != cs[j].Score {
			return cs[i].Score > cs[j].Score
		}
		return cs[i].UUID < cs[j].UUID
	})
}

func candidate(m map[string]*Candidate, uuid string) *Candidate {
	c, ok := m[uuid]
	if !ok {
		c = &Candidate{UUID: uuid, Components: make(map[string]float64, len(identity.Fields)+1)}
		m[uuid] = c
	}
	return c
}
