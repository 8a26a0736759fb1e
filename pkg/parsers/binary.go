package parsers

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

// parsePDF extracts text from a page-oriented binary document.
// Pages are concatenated in order, separated by blank lines; pages
// whose extraction fails are skipped rather than failing the document.
func parsePDF(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", newParseError("pdf", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", newParseError("pdf", path, err)
	}

	reader, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return "", newParseError("pdf", path, err)
	}

	var pages []string
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, text)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

var xmlTagRe = regexp.MustCompile(`<[^>]+>`)

// parseDocx extracts paragraph text from a Word document.
func parseDocx(path string) (string, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", newParseError("docx", path, err)
	}
	defer doc.Close()

	content := doc.Editable().GetContent()

	// The raw document body is WordprocessingML. Paragraph closes become
	// line breaks, remaining tags are dropped.
	content = strings.ReplaceAll(content, "</w:p>", "\n\n")
	content = xmlTagRe.ReplaceAllString(content, "")
	content = strings.ReplaceAll(content, "&amp;", "&")
	content = strings.ReplaceAll(content, "&lt;", "<")
	content = strings.ReplaceAll(content, "&gt;", ">")

	var paragraphs []string
	for _, p := range strings.Split(content, "\n\n") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

// parseXlsx converts spreadsheet rows to pipe-joined cell text, one
// line per row, sheets separated by blank lines.
func parseXlsx(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", newParseError("xlsx", path, err)
	}
	defer f.Close()

	var sheets []string
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return "", newParseError("xlsx", path, fmt.Errorf("sheet %s: %w", sheetName, err))
		}

		var lines []string
		for _, row := range rows {
			var cells []string
			for _, cell := range row {
				if c := strings.TrimSpace(cell); c != "" {
					cells = append(cells, c)
				}
			}
			if len(cells) > 0 {
				lines = append(lines, strings.Join(cells, " | "))
			}
		}
		if len(lines) > 0 {
			sheets = append(sheets, strings.Join(lines, "\n"))
		}
	}
	return strings.Join(sheets, "\n\n"), nil
}
