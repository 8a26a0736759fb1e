package chunking

import (
	"regexp"
	"strings"
)

var paragraphBreakRe = regexp.MustCompile(`\n\s*\n`)

// paragraphChunker groups whole paragraphs into chunks. A paragraph
// larger than the size limit becomes a chunk on its own.
type paragraphChunker struct {
	config Config
}

func (c *paragraphChunker) Strategy() Strategy { return StrategyParagraph }

func (c *paragraphChunker) Chunk(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return []Chunk{}
	}

	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return []Chunk{}
	}

	var texts []string
	var current []string
	currentLen := 0

	for _, paragraph := range paragraphs {
		joined := len(paragraph)
		if currentLen > 0 {
			joined += currentLen + 2
		}
		if currentLen > 0 && joined > c.config.Size {
			texts = append(texts, strings.Join(current, "\n\n"))
			current = nil
			currentLen = 0
		}
		current = append(current, paragraph)
		if currentLen > 0 {
			currentLen += 2
		}
		currentLen += len(paragraph)
	}
	if len(current) > 0 {
		texts = append(texts, strings.Join(current, "\n\n"))
	}
	return assignIndexes(texts)
}

func splitParagraphs(text string) []string {
	var paragraphs []string
	for _, p := range paragraphBreakRe.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}
