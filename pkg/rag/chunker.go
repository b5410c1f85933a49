package rag

// Chunker splits document text into overlapping, character-measured chunks so
// context survives across chunk boundaries.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker builds a chunker. Overlap must be smaller than size.
func NewChunker(size, overlap int) Chunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = 200
	}
	return Chunker{size: size, overlap: overlap}
}

// Split returns the ordered chunks of text. Empty input yields no chunks.
func (c Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	step := c.size - c.overlap

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}

	return chunks
}
