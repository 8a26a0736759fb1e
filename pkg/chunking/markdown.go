package chunking

import (
	"regexp"
	"strings"
)

var mdHeadingRe = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)

// markdownChunker splits text at markdown headings. Every chunk carries
// its heading context: the lines of all enclosing headings are prefixed
// to the chunk text, and the breadcrumb field records their titles from
// shallowest to deepest.
type markdownChunker struct {
	config Config
}

func (c *markdownChunker) Strategy() Strategy { return StrategyMarkdown }

type mdHeading struct {
	level int
	line  string
	title string
}

type mdSection struct {
	headings []mdHeading
	body     []string
}

func (c *markdownChunker) Chunk(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return []Chunk{}
	}

	sections := splitSections(text)

	var chunks []Chunk
	var pending strings.Builder
	var pendingCrumb string
	var pendingHeadings []mdHeading

	flush := func() {
		if pending.Len() == 0 {
			return
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Text: pending.String(), Breadcrumb: pendingCrumb})
		pending.Reset()
		pendingHeadings = nil
	}

	for _, section := range sections {
		body := strings.TrimSpace(strings.Join(section.body, "\n"))
		if body == "" {
			continue
		}

		prefix := headingPrefix(section.headings)
		breadcrumb := headingBreadcrumb(section.headings)

		full := body
		if prefix != "" {
			full = prefix + "\n\n" + body
		}
		if len(full) > c.config.Size {
			flush()
			// Oversize section: split the body and repeat the heading
			// context on every piece.
			budget := c.config.Size - len(prefix) - 2
			if budget < 1 {
				budget = c.config.Size
			}
			for _, piece := range splitOversize(body, budget, c.config.Overlap) {
				pieceText := piece
				if prefix != "" {
					pieceText = prefix + "\n\n" + piece
				}
				chunks = append(chunks, Chunk{Index: len(chunks), Text: pieceText, Breadcrumb: breadcrumb})
			}
			continue
		}

		// Small sections merge into the pending chunk while they fit.
		// Only headings not already carried by the pending chunk are
		// repeated, so every body still appears under its full
		// heading context.
		if pending.Len() > 0 {
			addition := body
			if delta := headingPrefix(newHeadings(pendingHeadings, section.headings)); delta != "" {
				addition = delta + "\n\n" + body
			}
			if pending.Len()+2+len(addition) <= c.config.Size {
				pending.WriteString("\n\n")
				pending.WriteString(addition)
				pendingCrumb = breadcrumb
				pendingHeadings = section.headings
				continue
			}
			flush()
		}
		pending.WriteString(full)
		pendingCrumb = breadcrumb
		pendingHeadings = section.headings
	}
	flush()

	if chunks == nil {
		return []Chunk{}
	}
	return chunks
}

// newHeadings returns the headings of next that prev does not already
// carry, comparing the shared stack prefix by level and line.
func newHeadings(prev, next []mdHeading) []mdHeading {
	i := 0
	for i < len(prev) && i < len(next) && prev[i].level == next[i].level && prev[i].line == next[i].line {
		i++
	}
	return next[i:]
}

// splitSections walks lines, opening a new section at every heading.
// The heading stack tracks enclosing headings: a heading of level N
// closes all open headings of level N or deeper.
func splitSections(text string) []mdSection {
	var sections []mdSection
	var stack []mdHeading

	current := mdSection{}
	flush := func() {
		sections = append(sections, current)
	}

	for _, line := range strings.Split(text, "\n") {
		m := mdHeadingRe.FindStringSubmatch(line)
		if m == nil {
			current.body = append(current.body, line)
			continue
		}
		flush()
		level := len(m[1])
		for len(stack) > 0 && stack[len(stack)-1].level >= level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, mdHeading{level: level, line: strings.TrimSpace(line), title: strings.TrimSpace(m[2])})
		current = mdSection{headings: append([]mdHeading(nil), stack...)}
	}
	flush()
	return sections
}

func headingPrefix(headings []mdHeading) string {
	lines := make([]string, 0, len(headings))
	for _, h := range headings {
		lines = append(lines, h.line)
	}
	return strings.Join(lines, "\n\n")
}

func headingBreadcrumb(headings []mdHeading) string {
	titles := make([]string, 0, len(headings))
	for _, h := range headings {
		titles = append(titles, h.title)
	}
	return strings.Join(titles, " > ")
}

// splitOversize breaks a section body that exceeds the size budget,
// by paragraph first and by sentence for any paragraph that is still
// too large on its own.
func splitOversize(body string, size, overlap int) []string {
	paragraphCfg := Config{Strategy: StrategyParagraph, Size: size}
	paragraphCfg.SetDefaults()
	chunker := &paragraphChunker{config: paragraphCfg}

	var pieces []string
	for _, chunk := range chunker.Chunk(body) {
		if len(chunk.Text) <= size {
			pieces = append(pieces, chunk.Text)
			continue
		}
		sentenceCfg := Config{Strategy: StrategySentence, Size: size, Overlap: overlap}
		sentenceCfg.SetDefaults()
		sc := &sentenceChunker{config: sentenceCfg}
		sub := sc.Chunk(chunk.Text)
		if len(sub) == 0 {
			pieces = append(pieces, chunk.Text)
			continue
		}
		for _, s := range sub {
			pieces = append(pieces, s.Text)
		}
	}
	return pieces
}
