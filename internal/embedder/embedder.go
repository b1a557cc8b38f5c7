// Package embedder implements the asymmetric query/document encoder
// contract from spec.md §4.2: two prefixed encoders producing fixed-dimension
// unit-norm vectors. The specific model is explicitly out of scope (spec.md
// §1); this package provides a self-contained deterministic encoder — signed
// feature hashing of whitespace/punctuation tokens into a fixed-width
// accumulator, L2-normalized — so the rest of the engine (LexicalIndex,
// VectorIndex, HybridRetriever) can be built and tested against a stable,
// reproducible embedding contract without external model weights.
package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"runtime"
	"strings"
	"sync"

	"github.com/daem0nmcp/daem0nmcp/internal/errs"
)

// Vec is a fixed-dimension unit-norm embedding vector.
type Vec []float32

// Embedder encodes text into Vec via asymmetric prefixed encoders, processed
// on a bounded worker pool sized to the number of physical cores (spec.md §5).
type Embedder struct {
	dimension      int
	queryPrefix    string
	documentPrefix string

	jobs chan job
	wg   sync.WaitGroup
	once sync.Once
}

type job struct {
	text   string
	result chan<- Vec
}

// New creates an Embedder with the given dimension, prefixes, and bounded
// worker queue capacity. Workers are sized to GOMAXPROCS (spec.md §5's
// "worker pool sized to the number of physical cores").
func New(dimension int, queryPrefix, documentPrefix string, queueCap int) *Embedder {
	e := &Embedder{
		dimension:      dimension,
		queryPrefix:    queryPrefix,
		documentPrefix: documentPrefix,
		jobs:           make(chan job, queueCap),
	}
	workers := runtime.GOMAXPROCS(0)
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

func (e *Embedder) worker() {
	defer e.wg.Done()
	for j := range e.jobs {
		j.result <- e.encode(j.text)
	}
}

// Close stops accepting new work and waits for in-flight encodes to finish.
func (e *Embedder) Close() {
	e.once.Do(func() { close(e.jobs) })
	e.wg.Wait()
}

// EncodeQuery encodes text for use as a retrieval query.
func (e *Embedder) EncodeQuery(ctx context.Context, text string) (Vec, error) {
	return e.submit(ctx, e.queryPrefix+text)
}

// EncodeDocument encodes text for insertion into the index.
func (e *Embedder) EncodeDocument(ctx context.Context, text string) (Vec, error) {
	return e.submit(ctx, e.documentPrefix+text)
}

func (e *Embedder) submit(ctx context.Context, prefixed string) (Vec, error) {
	result := make(chan Vec, 1)
	select {
	case e.jobs <- job{text: prefixed, result: result}:
	default:
		return nil, errs.New(errs.Overloaded, "embedder worker queue is saturated").
			WithRemediation("retry shortly or increase embedding.worker_queue_capacity")
	}

	select {
	case v := <-result:
		return v, nil
	case <-ctx.Done():
		return nil, errs.Wrap(errs.InternalError, ctx.Err(), "encoding cancelled")
	}
}

// encode performs the deterministic feature-hashing embedding. Tokens are
// hashed into signed buckets (the hashing-trick), summed, then L2-normalized
// so steady-state latency stays sub-millisecond per short string.
func (e *Embedder) encode(text string) Vec {
	v := make([]float64, e.dimension)
	for _, tok := range tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		bucket := int(sum % uint64(e.dimension))
		sign := 1.0
		if (sum>>63)&1 == 1 {
			sign = -1.0
		}
		v[bucket] += sign
	}

	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)

	out := make(Vec, e.dimension)
	if norm == 0 {
		// A zero vector has no direction; fall back to a fixed unit vector
		// along the first axis so cosine similarity stays well-defined.
		out[0] = 1
		return out
	}
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

// Cosine computes cosine similarity between two equal-length unit vectors.
func Cosine(a, b Vec) float64 {
	var dot float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
