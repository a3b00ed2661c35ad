// Package knowledge chunks filing text, indexes it for similarity search and
// answers retrieval-augmented queries over the index.
package knowledge

import "fmt"

// ChunkType identifies the content type of a chunk.
type ChunkType string

const (
	ChunkParagraph ChunkType = "PARAGRAPH" // body text
	ChunkTable     ChunkType = "TABLE"     // serialized table rows
)

// Chunk is a contiguous span of document text. Start and End are rune
// offsets into the document; Text is the span with outer blanks trimmed.
// Chunks are never modified after the chunker creates them.
type Chunk struct {
	ID       string    `json:"id"`
	Position int       `json:"position"`
	Start    int       `json:"start"`
	End      int       `json:"end"`
	Text     string    `json:"text"`
	PrevID   string    `json:"prev_id,omitempty"`
	NextID   string    `json:"next_id,omitempty"`
	Type     ChunkType `json:"type"`
}

// IsTable reports whether the chunk lies in the serialized tables section.
func (c Chunk) IsTable() bool { return c.Type == ChunkTable }

// Hit is a retrieved chunk with its similarity to the query.
type Hit struct {
	Chunk      Chunk   `json:"chunk"`
	Similarity float32 `json:"similarity"`
}

func chunkID(docKey string, position int) string {
	return fmt.Sprintf("%s-%04d", docKey, position)
}

// docKey shortens a document hash for use in chunk IDs.
func docKey(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	if hash == "" {
		return "doc"
	}
	return hash
}
