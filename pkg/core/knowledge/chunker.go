package knowledge

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"creditiq/pkg/core/ingest"
)

const (
	DefaultChunkSize    = 1024
	DefaultChunkOverlap = 256
)

// Chunker splits text into overlapping rune windows. It is deterministic:
// the same text and settings always give the same chunks.
type Chunker struct {
	Size    int
	Overlap int
}

// NewChunker normalises the settings. A non-positive size takes the default
// and an overlap that would stall the window is reduced to a quarter of size.
func NewChunker(size, overlap int) Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}
	return Chunker{Size: size, Overlap: overlap}
}

// Split chunks text. docHash keys the chunk IDs. Windows end at the last
// whitespace inside their final tenth when there is one.
func (c Chunker) Split(docHash, text string) []Chunk {
	c = NewChunker(c.Size, c.Overlap)
	runes := []rune(text)
	n := len(runes)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	tableStart := n + 1
	if i := strings.LastIndex(text, ingest.TablesMarker); i >= 0 {
		tableStart = utf8.RuneCountInString(text[:i])
	}

	key := docKey(docHash)
	var chunks []Chunk
	start := 0
	for start < n {
		end := start + c.Size
		if end >= n {
			end = n
		} else {
			end = c.boundary(runes, start, end)
		}

		if body := strings.TrimSpace(string(runes[start:end])); body != "" {
			typ := ChunkParagraph
			if bodyStart(runes, start, end) >= tableStart {
				typ = ChunkTable
			}
			chunks = append(chunks, Chunk{
				Position: len(chunks),
				Start:    start,
				End:      end,
				Text:     body,
				Type:     typ,
			})
		}

		if end == n {
			break
		}
		next := end - c.Overlap
		if next <= start {
			next = end
		}
		start = next
	}

	for i := range chunks {
		chunks[i].ID = chunkID(key, i)
		if i > 0 {
			chunks[i].PrevID = chunkID(key, i-1)
		}
		if i < len(chunks)-1 {
			chunks[i].NextID = chunkID(key, i+1)
		}
	}
	return chunks
}

// bodyStart is the offset of the first non-space rune in runes[start:end].
func bodyStart(runes []rune, start, end int) int {
	for start < end && unicode.IsSpace(runes[start]) {
		start++
	}
	return start
}

// boundary moves end back to the last whitespace in the window's final tenth.
func (c Chunker) boundary(runes []rune, start, end int) int {
	floor := end - c.Size/10
	if floor <= start {
		floor = start + 1
	}
	for i := end; i > floor; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}
