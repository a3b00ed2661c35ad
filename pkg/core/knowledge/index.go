package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"creditiq/pkg/core/ingest"
	"creditiq/pkg/core/llm"
	"creditiq/pkg/core/logging"

	"github.com/philippgille/chromem-go"
	"github.com/sirupsen/logrus"
)

const DefaultEmbedBatchSize = 16

// Index is a read-only similarity index over the chunks of one document.
type Index struct {
	DocumentHash string
	Chunks       []Chunk
	Dimension    int

	vectors    [][]float32
	collection *chromem.Collection
	byID       map[string]int
}

// NewIndexFromVectors builds an index from chunks and their precomputed
// embeddings, one per chunk in the same order.
func NewIndexFromVectors(ctx context.Context, docHash string, chunks []Chunk, vectors [][]float32) (*Index, error) {
	if len(chunks) == 0 {
		return nil, errors.New("index needs at least one chunk")
	}
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dim {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}

	db := chromem.NewDB()
	col, err := db.CreateCollection("doc-"+docKey(docHash), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	ids := make([]string, len(chunks))
	contents := make([]string, len(chunks))
	metadatas := make([]map[string]string, len(chunks))
	byID := make(map[string]int, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		contents[i] = c.Text
		metadatas[i] = map[string]string{
			"position": strconv.Itoa(c.Position),
			"type":     string(c.Type),
		}
		byID[c.ID] = i
	}
	if err := col.Add(ctx, ids, vectors, metadatas, contents); err != nil {
		return nil, fmt.Errorf("add chunks: %w", err)
	}

	return &Index{
		DocumentHash: docHash,
		Chunks:       chunks,
		Dimension:    dim,
		vectors:      vectors,
		collection:   col,
		byID:         byID,
	}, nil
}

// Count is the number of indexed chunks.
func (ix *Index) Count() int {
	if ix == nil {
		return 0
	}
	return len(ix.Chunks)
}

// Vectors returns the embedding of each chunk, in chunk order.
func (ix *Index) Vectors() [][]float32 { return ix.vectors }

// Search returns the k chunks nearest to vec, by similarity descending and
// position ascending on ties. k is clamped to [1, Count].
func (ix *Index) Search(ctx context.Context, vec []float32, k int) ([]Hit, error) {
	if len(vec) != ix.Dimension {
		return nil, fmt.Errorf("query vector has dimension %d, index has %d", len(vec), ix.Dimension)
	}
	if k > ix.Count() {
		k = ix.Count()
	}
	if k < 1 {
		k = 1
	}

	results, err := ix.collection.QueryEmbedding(ctx, vec, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		i, ok := ix.byID[r.ID]
		if !ok {
			continue
		}
		hits = append(hits, Hit{Chunk: ix.Chunks[i], Similarity: r.Similarity})
	}
	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].Similarity != hits[b].Similarity {
			return hits[a].Similarity > hits[b].Similarity
		}
		return hits[a].Chunk.Position < hits[b].Chunk.Position
	})
	return hits, nil
}

// Indexer chunks documents and embeds the chunks.
type Indexer struct {
	embedder  llm.Embedder
	chunker   Chunker
	batchSize int
	cache     IndexCache
	progress  func(done, total int)
	log       *logrus.Entry
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithChunker overrides chunk size and overlap.
func WithChunker(c Chunker) IndexerOption {
	return func(ix *Indexer) { ix.chunker = NewChunker(c.Size, c.Overlap) }
}

// WithBatchSize sets how many chunks go into one embedding call.
func WithBatchSize(n int) IndexerOption {
	return func(ix *Indexer) {
		if n > 0 {
			ix.batchSize = n
		}
	}
}

// WithCache reuses indexes of documents seen before.
func WithCache(c IndexCache) IndexerOption {
	return func(ix *Indexer) { ix.cache = c }
}

// WithEmbedProgress reports embedded chunk counts.
func WithEmbedProgress(fn func(done, total int)) IndexerOption {
	return func(ix *Indexer) { ix.progress = fn }
}

// WithIndexLogger sets the log entry.
func WithIndexLogger(e *logrus.Entry) IndexerOption {
	return func(ix *Indexer) { ix.log = e }
}

// NewIndexer creates an indexer over embedder.
func NewIndexer(embedder llm.Embedder, opts ...IndexerOption) *Indexer {
	ix := &Indexer{
		embedder:  embedder,
		chunker:   NewChunker(DefaultChunkSize, DefaultChunkOverlap),
		batchSize: DefaultEmbedBatchSize,
	}
	for _, opt := range opts {
		opt(ix)
	}
	ix.log = logging.OrDiscard(ix.log)
	return ix
}

// BuildIndex indexes doc. Blank text gives a nil index and no error: callers
// must treat nil as "cannot proceed".
func (ix *Indexer) BuildIndex(ctx context.Context, doc *ingest.Document) (*Index, error) {
	if doc == nil {
		return nil, nil
	}
	chunks := ix.chunker.Split(doc.Hash, doc.Text)
	if len(chunks) == 0 {
		ix.log.WithField("source", doc.Source).Warn("document has no text to index")
		return nil, nil
	}

	key := ix.cacheKey(doc.Hash)
	if ix.cache != nil && doc.Hash != "" {
		cached, ok, err := ix.cache.Get(ctx, key)
		switch {
		case err != nil:
			ix.log.WithError(err).Warn("index cache lookup failed")
		case ok && sameLayout(cached.Chunks, chunks):
			ix.log.WithField("hash", doc.Hash).Info("reusing cached index")
			return cached, nil
		case ok:
			ix.log.WithField("hash", doc.Hash).Warn("cached index has a different chunk layout, rebuilding")
		}
	}

	vectors, err := ix.embed(ctx, chunks)
	if err != nil {
		return nil, err
	}
	index, err := NewIndexFromVectors(ctx, doc.Hash, chunks, vectors)
	if err != nil {
		return nil, err
	}

	if ix.cache != nil && doc.Hash != "" {
		if err := ix.cache.Put(ctx, key, index); err != nil {
			ix.log.WithError(err).Warn("index cache store failed")
		}
	}
	ix.log.WithFields(logrus.Fields{
		"source":    doc.Source,
		"chunks":    len(chunks),
		"dimension": index.Dimension,
	}).Info("index built")
	return index, nil
}

// cacheKey identifies an index by document, embedding model and chunking.
func (ix *Indexer) cacheKey(docHash string) string {
	return fmt.Sprintf("%s|%s|%d/%d", docHash, llm.EmbeddingModel(ix.embedder), ix.chunker.Size, ix.chunker.Overlap)
}

func sameLayout(a, b []Chunk) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Start != b[i].Start || a[i].End != b[i].End {
			return false
		}
	}
	return true
}

func (ix *Indexer) embed(ctx context.Context, chunks []Chunk) ([][]float32, error) {
	if ix.embedder == nil {
		return nil, errors.New("no embedder configured")
	}
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += ix.batchSize {
		end := start + ix.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		batch, err := ix.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(batch), len(texts))
		}
		vectors = append(vectors, batch...)
		if ix.progress != nil {
			ix.progress(end, len(chunks))
		}
	}
	return vectors, nil
}
