// Package parsers converts uploaded documents into plain text.
//
// Each supported file type dispatches to a type-specific extractor.
// Extractors read the source file and nothing else; retry policy for
// transient failures belongs to the caller.
package parsers

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyDocument is returned when a document yields no extractable
// text.
var ErrEmptyDocument = errors.New("document contains no extractable text")

// UnsupportedFileTypeError is returned when no extractor handles the
// declared file type.
type UnsupportedFileTypeError struct {
	FileType string
}

func (e *UnsupportedFileTypeError) Error() string {
	return fmt.Sprintf("unsupported file type: %q", e.FileType)
}

// ParseError represents an extractor-level failure (corrupt or
// unreadable content).
type ParseError struct {
	FileType string
	FilePath string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s document %s: %v", e.FileType, e.FilePath, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func newParseError(fileType, filePath string, err error) *ParseError {
	return &ParseError{FileType: fileType, FilePath: filePath, Err: err}
}

// parseFunc extracts plain text from a file.
type parseFunc func(path string) (string, error)

// extractors maps normalized file types to their extractor.
var extractors = map[string]parseFunc{
	"txt":      parseText,
	"csv":      parseCSV,
	"json":     parseJSON,
	"md":       parseMarkdown,
	"markdown": parseMarkdown,
	"pdf":      parsePDF,
	"docx":     parseDocx,
	"xlsx":     parseXlsx,
}

// SupportedTypes returns the normalized file types Parse accepts.
func SupportedTypes() []string {
	types := make([]string, 0, len(extractors))
	for t := range extractors {
		types = append(types, t)
	}
	return types
}

// IsSupported reports whether the declared type has an extractor.
func IsSupported(fileType string) bool {
	_, ok := extractors[normalizeType(fileType)]
	return ok
}

// Parse converts the file at path into plain text according to its
// declared type. The type is matched case-insensitively, with or
// without a leading dot.
func Parse(path, declaredType string) (string, error) {
	fileType := normalizeType(declaredType)
	extractor, ok := extractors[fileType]
	if !ok {
		return "", &UnsupportedFileTypeError{FileType: declaredType}
	}
	return extractor(path)
}

func normalizeType(fileType string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(fileType)), ".")
}
