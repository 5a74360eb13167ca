package knowledge

import (
	"strings"
	"unicode"
)

// Chunking defaults.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunk is an indexed slice of one document.
type Chunk struct {
	Doc  Document
	Text string
}

// SplitText cuts text into pieces of at most size runes, each starting overlap runes before
// the end of the previous one. Cuts move back to the nearest whitespace when one exists in
// the second half of the window.
func SplitText(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	var out []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			end = len(runes)
		} else {
			for i := end; i > start+size/2; i-- {
				if unicode.IsSpace(runes[i-1]) {
					end = i
					break
				}
			}
		}
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			out = append(out, piece)
		}
		if end == len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// ChunkDocuments splits every document's text into chunks.
func ChunkDocuments(docs []Document, size, overlap int) []Chunk {
	var out []Chunk
	for _, d := range docs {
		for _, piece := range SplitText(d.Text(), size, overlap) {
			out = append(out, Chunk{Doc: d, Text: piece})
		}
	}
	return out
}
