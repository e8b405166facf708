package chunker

import (
	"fmt"
	"regexp"
	"strconv"

	"ragkit/internal/domain"
)

// Default chunking parameters, in characters.
const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// Options configures how a document is split into chunks.
type Options struct {
	ChunkSize          int
	Overlap            int
	PreserveBoundaries bool
}

// sentence terminator followed by whitespace
var boundaryRe = regexp.MustCompile(`[.!?]+\s+`)

// Split cuts a document into overlapping character windows. Each chunk
// carries the parent's metadata plus its offsets and sequence index.
// Successive windows satisfy next_start = previous_end - overlap.
func Split(doc domain.Document, opts Options) ([]domain.Chunk, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Overlap < 0 {
		opts.Overlap = 0
	}
	if opts.Overlap >= opts.ChunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than chunk size %d",
			domain.ErrInvalidConfiguration, opts.Overlap, opts.ChunkSize)
	}

	text := doc.Text
	if len(text) <= opts.ChunkSize {
		return []domain.Chunk{{
			Text:     text,
			Start:    0,
			End:      len(text),
			Index:    0,
			Metadata: chunkMetadata(doc.Metadata, 0, 0, len(text)),
		}}, nil
	}

	var chunks []domain.Chunk
	start := 0
	idx := 0
	for start < len(text) {
		end := start + opts.ChunkSize
		if end > len(text) {
			end = len(text)
		}
		if opts.PreserveBoundaries && end < len(text) {
			// Pull the right edge back to the last sentence terminator in
			// the window, but only if that leaves room to advance.
			ends := boundaryRe.FindAllStringIndex(text[start:end], -1)
			if len(ends) > 0 {
				adjusted := start + ends[len(ends)-1][1]
				if adjusted-opts.Overlap > start {
					end = adjusted
				}
			}
		}
		chunks = append(chunks, domain.Chunk{
			Text:     text[start:end],
			Start:    start,
			End:      end,
			Index:    idx,
			Metadata: chunkMetadata(doc.Metadata, idx, start, end),
		})
		if end == len(text) {
			break
		}
		start = end - opts.Overlap
		idx++
	}
	return chunks, nil
}

func chunkMetadata(parent map[string]string, idx, start, end int) map[string]string {
	m := make(map[string]string, len(parent)+3)
	for k, v := range parent {
		m[k] = v
	}
	m["chunk"] = strconv.Itoa(idx)
	m["chunk_start"] = strconv.Itoa(start)
	m["chunk_end"] = strconv.Itoa(end)
	return m
}
