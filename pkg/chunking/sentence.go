package chunking

import (
	"strings"
	"unicode"
)

// sentenceChunker groups whole sentences into chunks, carrying a tail
// of sentences between chunks as overlap.
type sentenceChunker struct {
	config Config
}

func (c *sentenceChunker) Strategy() Strategy { return StrategySentence }

func (c *sentenceChunker) Chunk(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return []Chunk{}
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return []Chunk{}
	}

	var texts []string
	var current []string
	currentLen := 0

	for _, sentence := range sentences {
		if currentLen > 0 && currentLen+1+len(sentence) > c.config.Size {
			texts = append(texts, strings.Join(current, " "))
			current, currentLen = overlapTail(current, c.config.Overlap)
		}
		current = append(current, sentence)
		if currentLen > 0 {
			currentLen++
		}
		currentLen += len(sentence)
	}
	if len(current) > 0 {
		texts = append(texts, strings.Join(current, " "))
	}
	return assignIndexes(texts)
}

// overlapTail returns the last overlap sentences. Overlap counts
// sentences, not characters.
func overlapTail(sentences []string, overlap int) ([]string, int) {
	if overlap <= 0 {
		return nil, 0
	}
	if overlap > len(sentences) {
		overlap = len(sentences)
	}
	tail := make([]string, overlap)
	copy(tail, sentences[len(sentences)-overlap:])
	total := 0
	for i, sentence := range tail {
		if i > 0 {
			total++
		}
		total += len(sentence)
	}
	return tail, total
}

// splitSentences breaks text at sentence terminators followed by
// whitespace. Terminators stay attached to their sentence.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// Consume a run of terminators ("?!", "...").
		j := i
		for j+1 < len(runes) {
			n := runes[j+1]
			if n == '.' || n == '!' || n == '?' {
				j++
			} else {
				break
			}
		}
		if j+1 < len(runes) && !unicode.IsSpace(runes[j+1]) {
			i = j
			continue
		}
		sentence := strings.TrimSpace(string(runes[start : j+1]))
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		i = j
		start = j + 1
	}
	if start < len(runes) {
		sentence := strings.TrimSpace(string(runes[start:]))
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
	}
	return sentences
}
