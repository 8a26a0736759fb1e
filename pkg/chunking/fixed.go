package chunking

import "strings"

// fixedSizeChunker slides a fixed-width character window with optional
// overlap between consecutive windows.
type fixedSizeChunker struct {
	config Config
}

func (c *fixedSizeChunker) Strategy() Strategy { return StrategyFixedSize }

func (c *fixedSizeChunker) Chunk(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return []Chunk{}
	}

	runes := []rune(text)
	size := c.config.Size
	overlap := c.config.Overlap
	if overlap >= size {
		// An overlap at or above the window size would stall the
		// window. Clamp so every step advances.
		overlap = size - 1
	}

	var texts []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		span := strings.TrimSpace(string(runes[start:end]))
		if span != "" {
			texts = append(texts, span)
		}
		if end >= len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return assignIndexes(texts)
}
