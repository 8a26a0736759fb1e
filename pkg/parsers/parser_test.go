package parsers

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestParse_UnsupportedType(t *testing.T) {
	_, err := Parse("/tmp/whatever.xyz", "xyz")
	var unsupported *UnsupportedFileTypeError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedFileTypeError, got %v", err)
	}
	if unsupported.FileType != "xyz" {
		t.Errorf("expected file type xyz, got %q", unsupported.FileType)
	}
}

func TestParse_TypeNormalization(t *testing.T) {
	path := writeTempFile(t, "doc.txt", "hello")

	for _, declared := range []string{"txt", "TXT", ".txt", " .TxT "} {
		text, err := Parse(path, declared)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", declared, err)
		}
		if text != "hello" {
			t.Errorf("Parse(%q) = %q, want %q", declared, text, "hello")
		}
	}
}

func TestParse_MissingFileIsParseError(t *testing.T) {
	_, err := Parse("/nonexistent/file.txt", "txt")
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestParseCSV_HeaderValuePairs(t *testing.T) {
	path := writeTempFile(t, "data.csv", "name,city\nalice,berlin\nbob,oslo\n")

	text, err := Parse(path, "csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(text, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 rows, got %d: %q", len(lines), text)
	}
	if lines[0] != "name: alice, city: berlin" {
		t.Errorf("unexpected first row: %q", lines[0])
	}
	if lines[1] != "name: bob, city: oslo" {
		t.Errorf("unexpected second row: %q", lines[1])
	}
}

func TestParseCSV_SkipsBlankCells(t *testing.T) {
	path := writeTempFile(t, "data.csv", "a,b\nx,\n,\n")

	text, err := Parse(path, "csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "a: x" {
		t.Errorf("expected single pair, got %q", text)
	}
}

func TestParseJSON_Flattening(t *testing.T) {
	path := writeTempFile(t, "data.json", `{"title":"doc","tags":["a","b"],"meta":{"pages":3}}`)

	text, err := Parse(path, "json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{"title: doc", "tags: [0] a", "tags: [1] b", "meta: pages: 3"} {
		if !strings.Contains(text, want) {
			t.Errorf("flattened output missing %q:\n%s", want, text)
		}
	}
}

func TestParseJSON_Corrupt(t *testing.T) {
	path := writeTempFile(t, "bad.json", "{not json")

	_, err := Parse(path, "json")
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError for corrupt JSON, got %v", err)
	}
}
