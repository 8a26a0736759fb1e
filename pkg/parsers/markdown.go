package parsers

import (
	"os"
	"regexp"
	"strings"
)

var (
	inlineCodeRe   = regexp.MustCompile("`([^`]+)`")
	imageRe        = regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`)
	linkRe         = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	boldRe         = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicRe       = regexp.MustCompile(`\*(.+?)\*`)
	headingRe      = regexp.MustCompile(`^(#{1,6})\s+`)
	orderedItemRe  = regexp.MustCompile(`^(\s*)(\d+)\.\s+(.*)$`)
	bulletItemRe   = regexp.MustCompile(`^(\s*)[-*+]\s+(.*)$`)
	tableSepRe     = regexp.MustCompile(`^\|?[\s:|-]+\|?$`)
	multiBlankRe   = regexp.MustCompile(`\n{3,}`)
	frontMatterSep = "---"
)

// parseMarkdown converts a markdown file to normalized plain text.
//
// Heading lines keep their markers so downstream header-aware chunking
// can rebuild the document structure. Fenced code is re-indented so a
// "# comment" inside a code block cannot be mistaken for a heading.
func parseMarkdown(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", newParseError("md", path, err)
	}
	return normalizeMarkdown(string(data)), nil
}

func normalizeMarkdown(text string) string {
	text = stripFrontMatter(text)

	lines := strings.Split(text, "\n")
	var out []string
	inFence := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			// Indent code so heading-like lines stay out of the
			// document structure.
			out = append(out, "    "+line)
			continue
		}

		switch {
		case headingRe.MatchString(trimmed):
			out = append(out, stripInline(trimmed))

		case strings.HasPrefix(trimmed, "|"):
			if tableSepRe.MatchString(trimmed) {
				continue
			}
			out = append(out, renderTableRow(trimmed))

		case bulletItemRe.MatchString(line):
			m := bulletItemRe.FindStringSubmatch(line)
			out = append(out, m[1]+"- "+stripInline(m[2]))

		case orderedItemRe.MatchString(line):
			m := orderedItemRe.FindStringSubmatch(line)
			out = append(out, m[1]+m[2]+". "+stripInline(m[3]))

		case strings.HasPrefix(trimmed, ">"):
			out = append(out, stripInline(strings.TrimLeft(trimmed, "> ")))

		default:
			out = append(out, stripInline(line))
		}
	}

	result := strings.Join(out, "\n")
	result = multiBlankRe.ReplaceAllString(result, "\n\n")
	return strings.TrimSpace(result)
}

// stripFrontMatter removes a leading metadata block delimited by "---"
// lines. The document must start with the marker; anything up to the
// closing marker is dropped.
func stripFrontMatter(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != frontMatterSep {
		return text
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == frontMatterSep {
			return strings.Join(lines[i+1:], "\n")
		}
	}
	return text
}

// renderTableRow joins table cells with " | ".
func renderTableRow(line string) string {
	line = strings.Trim(line, "|")
	cells := strings.Split(line, "|")
	parts := make([]string, 0, len(cells))
	for _, cell := range cells {
		if c := stripInline(strings.TrimSpace(cell)); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, " | ")
}

// stripInline removes inline markup while keeping the text content.
func stripInline(s string) string {
	s = imageRe.ReplaceAllString(s, "")
	s = linkRe.ReplaceAllString(s, "$1")
	s = inlineCodeRe.ReplaceAllString(s, "$1")
	s = boldRe.ReplaceAllString(s, "$1")
	s = italicRe.ReplaceAllString(s, "$1")
	return s
}
