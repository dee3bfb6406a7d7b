// Package ann implements the approximate-nearest-neighbour contract (spec
// component C): build a cosine index over a fixed vector set, search it for
// the top-k raw cosine matches, and round-trip it to bytes.
//
// The implementation wraps github.com/coder/hnsw, the same pure-Go HNSW
// library the teacher repo uses for its vector store.
package ann

import (
	"bufio"
	"bytes"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// Config holds the tunable HNSW parameters. Zero values are replaced with
// the teacher's defaults on Build/Deserialize.
type Config struct {
	Dimensions int
	M          int
	EfSearch   int
}

// DefaultConfig returns the teacher's known-good HNSW defaults.
func DefaultConfig(dimensions int) Config {
	return Config{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   20,
	}
}

// Index is a cosine-similarity ANN index over a dense id space [0, N).
// It is safe for concurrent Search calls; Build/Deserialize produce a new
// Index value rather than mutating in place, matching the spec's
// "deterministic given the same vectors and parameters" requirement.
type Index struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config Config
	n      int
}

// Build constructs an approximate cosine index over vectors, whose
// position in the slice is its chunk_id. All vectors must share the same
// dimension; Build does not re-normalise — callers are expected to pass
// unit-norm vectors per spec §4.B.
func Build(vectors [][]float32, cfg Config) (*Index, error) {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	for i, v := range vectors {
		if cfg.Dimensions != 0 && len(v) != cfg.Dimensions {
			return nil, fmt.Errorf("ann: vector %d has dimension %d, want %d", i, len(v), cfg.Dimensions)
		}
		graph.Add(hnsw.MakeNode(uint64(i), v))
	}

	return &Index{graph: graph, config: cfg, n: len(vectors)}, nil
}

// Search returns up to k ids with raw cosine similarity scores in
// [-1, 1], descending. Empty indexes return empty, non-nil slices.
func (idx *Index) Search(q []float32, k int) (ids []int, scores []float32, err error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.graph == nil || idx.graph.Len() == 0 || k <= 0 {
		return []int{}, []float32{}, nil
	}
	if idx.config.Dimensions != 0 && len(q) != idx.config.Dimensions {
		return nil, nil, fmt.Errorf("ann: query dimension %d, want %d", len(q), idx.config.Dimensions)
	}

	nodes := idx.graph.Search(q, k)
	ids = make([]int, 0, len(nodes))
	scores = make([]float32, 0, len(nodes))
	for _, node := range nodes {
		distance := idx.graph.Distance(q, node.Value)
		// Cosine distance as computed by coder/hnsw is in [0, 2];
		// raw cosine similarity is 1 - distance, in [-1, 1].
		score := 1.0 - distance
		ids = append(ids, int(node.Key))
		scores = append(scores, score)
	}
	return ids, scores, nil
}

// Len returns the number of vectors in the index.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.n
}

// header is the config prefix of the gob-free wire format:
// [config][exported hnsw graph bytes]. N is not encoded — the spec
// requires the caller to pass it explicitly to Deserialize.
type header struct {
	M          int
	EfSearch   int
	Dimensions int
}

// Serialize round-trips the index to bytes via the underlying graph's own
// exporter, prefixed with a small fixed-size config header.
func (idx *Index) Serialize() ([]byte, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var buf bytes.Buffer
	writeHeader(&buf, header{M: idx.config.M, EfSearch: idx.config.EfSearch, Dimensions: idx.config.Dimensions})
	if idx.graph != nil {
		if err := idx.graph.Export(&buf); err != nil {
			return nil, fmt.Errorf("ann: export graph: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// Deserialize reconstructs an Index from bytes produced by Serialize. N is
// passed explicitly per spec §4.C since the wire format does not encode it.
func Deserialize(data []byte, n int) (*Index, error) {
	buf := bytes.NewReader(data)
	h, err := readHeader(buf)
	if err != nil {
		return nil, fmt.Errorf("ann: read header: %w", err)
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	if h.M != 0 {
		graph.M = h.M
	} else {
		graph.M = 16
	}
	if h.EfSearch != 0 {
		graph.EfSearch = h.EfSearch
	} else {
		graph.EfSearch = 20
	}
	graph.Ml = 0.25

	reader := bufio.NewReader(buf)
	if reader.Buffered() > 0 || buf.Len() > 0 {
		if err := graph.Import(reader); err != nil {
			return nil, fmt.Errorf("ann: import graph: %w", err)
		}
	}

	return &Index{
		graph:  graph,
		config: Config{Dimensions: h.Dimensions, M: graph.M, EfSearch: graph.EfSearch},
		n:      n,
	}, nil
}

func writeHeader(buf *bytes.Buffer, h header) {
	writeInt(buf, h.M)
	writeInt(buf, h.EfSearch)
	writeInt(buf, h.Dimensions)
}

func readHeader(r *bytes.Reader) (header, error) {
	m, err := readInt(r)
	if err != nil {
		return header{}, err
	}
	ef, err := readInt(r)
	if err != nil {
		return header{}, err
	}
	dim, err := readInt(r)
	if err != nil {
		return header{}, err
	}
	return header{M: m, EfSearch: ef, Dimensions: dim}, nil
}

func writeInt(buf *bytes.Buffer, v int) {
	var b [8]byte
	u := uint64(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
	buf.Write(b[:])
}

func readInt(r *bytes.Reader) (int, error) {
	var b [8]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, err
	}
	var u uint64
	for i := 0; i < 8; i++ {
		u |= uint64(b[i]) << (8 * i)
	}
	return int(u), nil
}

// normalize returns a unit-norm copy of v. Exposed for callers (the blob
// store, the embedder's fallback providers) that need to guarantee
// unit-norm vectors before Build.
func normalize(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return v
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = val * inv
	}
	return out
}

// Normalize is the exported form of normalize.
func Normalize(v []float32) []float32 { return normalize(v) }
