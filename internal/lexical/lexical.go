// Package lexical implements Okapi BM25 ranking over tokenized memory text
// (spec.md §4.3). Tokenization delegates to Bleve's standard analyzer
// (lowercasing, unicode segmentation, English stopword removal); the BM25
// scoring itself is hand-rolled so k1/b stay precisely tunable the way
// spec.md requires, which a generic full-text engine would not expose.
package lexical

import (
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Doc is the concatenable text fields BM25 indexes for one memory.
type Doc struct {
	ID       int64
	Content  string
	Rationale string
	Context  string
	Tags     []string
	FilePath string
}

func (d Doc) text() string {
	var b strings.Builder
	b.WriteString(d.Content)
	b.WriteByte(' ')
	b.WriteString(d.Rationale)
	b.WriteByte(' ')
	b.WriteString(d.Context)
	b.WriteByte(' ')
	b.WriteString(strings.Join(d.Tags, " "))
	b.WriteByte(' ')
	b.WriteString(d.FilePath)
	return b.String()
}

// Index is an incremental BM25 index over Doc text.
type Index struct {
	mu sync.RWMutex

	k1 float64
	b  float64

	mapping  *mapping.IndexMappingImpl
	analyzer *analysis.Analyzer
	postings map[string]map[int64]int // term -> docID -> term frequency
	docLen   map[int64]int
	totalLen int
	docCount int
}

// New creates an empty BM25 index with the given tunables.
func New(k1, b float64) *Index {
	im := bleve.NewIndexMapping()
	return &Index{
		k1:       k1,
		b:        b,
		mapping:  im,
		analyzer: im.AnalyzerNamed(im.DefaultAnalyzer),
		postings: make(map[string]map[int64]int),
		docLen:   make(map[int64]int),
	}
}

func (ix *Index) tokenize(text string) []string {
	stream := ix.analyzer.Analyze([]byte(text))
	terms := make([]string, 0, len(stream))
	for _, tok := range stream {
		terms = append(terms, string(tok.Term))
	}
	return terms
}

// Add inserts or replaces a document's postings.
func (ix *Index) Add(d Doc) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.removeLocked(d.ID)

	terms := ix.tokenize(d.text())
	freq := make(map[string]int, len(terms))
	for _, t := range terms {
		freq[t]++
	}
	for t, f := range freq {
		bucket, ok := ix.postings[t]
		if !ok {
			bucket = make(map[int64]int)
			ix.postings[t] = bucket
		}
		bucket[d.ID] = f
	}
	ix.docLen[d.ID] = len(terms)
	ix.totalLen += len(terms)
	ix.docCount++
}

// Remove evicts a document's postings at once, deleting its entry from
// every term bucket; eviction is not deferred.
func (ix *Index) Remove(id int64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(id)
}

func (ix *Index) removeLocked(id int64) {
	length, ok := ix.docLen[id]
	if !ok {
		return
	}
	for _, bucket := range ix.postings {
		delete(bucket, id)
	}
	delete(ix.docLen, id)
	ix.totalLen -= length
	ix.docCount--
}

// Scored is a single BM25 result.
type Scored struct {
	ID    int64
	Score float64
}

// Search returns the top-k documents by BM25 score for the query text.
func (ix *Index) Search(query string, topK int) []Scored {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.docCount == 0 {
		return nil
	}
	avgLen := float64(ix.totalLen) / float64(ix.docCount)

	terms := ix.tokenize(query)
	scores := make(map[int64]float64)
	for _, term := range terms {
		bucket, ok := ix.postings[term]
		if !ok {
			continue
		}
		df := len(bucket)
		idf := math.Log(1 + (float64(ix.docCount)-float64(df)+0.5)/(float64(df)+0.5))
		for id, tf := range bucket {
			dl := float64(ix.docLen[id])
			denom := float64(tf) + ix.k1*(1-ix.b+ix.b*dl/avgLen)
			scores[id] += idf * (float64(tf) * (ix.k1 + 1) / denom)
		}
	}

	out := make([]Scored, 0, len(scores))
	for id, sc := range scores {
		out = append(out, Scored{ID: id, Score: sc})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}
