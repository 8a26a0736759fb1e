package chunking

import (
	"strings"
	"testing"
)

func TestNew_UnknownStrategyFallsBack(t *testing.T) {
	chunker := New(Config{Strategy: "semantic-magic", Size: 100})
	if chunker.Strategy() != StrategyFixedSize {
		t.Fatalf("expected fallback to %s, got %s", StrategyFixedSize, chunker.Strategy())
	}
}

func TestNew_SelectsByName(t *testing.T) {
	tests := []struct {
		name string
		want Strategy
	}{
		{"fixed_size", StrategyFixedSize},
		{"sentence", StrategySentence},
		{"paragraph", StrategyParagraph},
		{"markdown", StrategyMarkdown},
	}
	for _, tt := range tests {
		chunker := New(Config{Strategy: Strategy(tt.name), Size: 100})
		if chunker.Strategy() != tt.want {
			t.Errorf("New(%q).Strategy() = %s, want %s", tt.name, chunker.Strategy(), tt.want)
		}
	}
}

func TestFixedSize_ExactWindows(t *testing.T) {
	text := strings.Repeat("a", 1000)
	chunker := New(Config{Strategy: StrategyFixedSize, Size: 200, Overlap: 0})

	chunks := chunker.Chunk(text)
	if len(chunks) != 5 {
		t.Fatalf("expected 5 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if len(c.Text) != 200 {
			t.Errorf("chunk %d has length %d, want 200", i, len(c.Text))
		}
	}
}

func TestFixedSize_OverlapSharedSuffix(t *testing.T) {
	text := "abcdefghijklmnopqrst"
	chunker := New(Config{Strategy: StrategyFixedSize, Size: 10, Overlap: 3})

	chunks := chunker.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1].Text
		tail := prev[len(prev)-3:]
		if !strings.HasPrefix(chunks[i].Text, tail) {
			t.Errorf("chunk %d does not start with previous tail %q: %q", i, tail, chunks[i].Text)
		}
	}
}

func TestFixedSize_WindowsAreTrimmed(t *testing.T) {
	text := "word  word  word  word  word  tail "
	chunker := New(Config{Strategy: StrategyFixedSize, Size: 6, Overlap: 0})

	chunks := chunker.Chunk(text)
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	for i, c := range chunks {
		if c.Text != strings.TrimSpace(c.Text) {
			t.Errorf("chunk %d not trimmed: %q", i, c.Text)
		}
		if len(c.Text) > 6 {
			t.Errorf("chunk %d exceeds window size: %q", i, c.Text)
		}
	}
}

func TestFixedSize_OverlapAtWindowSizeTerminates(t *testing.T) {
	text := strings.Repeat("x", 50)
	chunker := New(Config{Strategy: StrategyFixedSize, Size: 10, Overlap: 10})

	chunks := chunker.Chunk(text)
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	// Window must advance despite overlap >= size.
	if len(chunks) > 50 {
		t.Fatalf("window stalled, got %d chunks", len(chunks))
	}
}

func TestFixedSize_EmptyInput(t *testing.T) {
	chunker := New(Config{Strategy: StrategyFixedSize, Size: 200})
	for _, text := range []string{"", "   ", "\n\t\n"} {
		chunks := chunker.Chunk(text)
		if len(chunks) != 0 {
			t.Errorf("Chunk(%q) = %d chunks, want 0", text, len(chunks))
		}
	}
}

func TestSentence_KeepsSentencesWhole(t *testing.T) {
	text := "First sentence here. Second sentence follows. Third one ends it."
	chunker := New(Config{Strategy: StrategySentence, Size: 50, Overlap: 0})

	chunks := chunker.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if !strings.HasSuffix(c.Text, ".") {
			t.Errorf("chunk %d does not end on a sentence boundary: %q", i, c.Text)
		}
	}
}

func TestSentence_SingleOversizeSentenceKept(t *testing.T) {
	text := strings.Repeat("word ", 100) + "end."
	chunker := New(Config{Strategy: StrategySentence, Size: 50})

	chunks := chunker.Chunk(text)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk for a single long sentence, got %d", len(chunks))
	}
}

func TestSentence_OverlapCountsSentences(t *testing.T) {
	text := "Alpha sentence one here. Bravo sentence two here. Charlie sentence three here. Delta sentence four here."
	chunker := New(Config{Strategy: StrategySentence, Size: 55, Overlap: 1})

	chunks := chunker.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	// Overlap is a sentence count: every chunk after the first starts
	// with the previous chunk's last sentence, regardless of its length.
	for i := 1; i < len(chunks); i++ {
		prevLast := lastSentence(chunks[i-1].Text)
		if !strings.HasPrefix(chunks[i].Text, prevLast) {
			t.Errorf("chunk %d does not begin with previous chunk's last sentence %q: %q", i, prevLast, chunks[i].Text)
		}
	}
}

func TestSentence_OverlapTwoSentences(t *testing.T) {
	text := "One two three. Four five six. Seven eight nine. Ten eleven twelve."
	chunker := New(Config{Strategy: StrategySentence, Size: 45, Overlap: 2})

	chunks := chunker.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	first := splitSentences(chunks[0].Text)
	if len(first) < 2 {
		t.Fatalf("first chunk has %d sentences", len(first))
	}
	wantPrefix := first[len(first)-2] + " " + first[len(first)-1]
	if !strings.HasPrefix(chunks[1].Text, wantPrefix) {
		t.Errorf("chunk 1 missing two-sentence overlap %q: %q", wantPrefix, chunks[1].Text)
	}
}

func lastSentence(text string) string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return ""
	}
	return sentences[len(sentences)-1]
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "terminators",
			text: "One. Two! Three? Four.",
			want: []string{"One.", "Two!", "Three?", "Four."},
		},
		{
			name: "ellipsis stays together",
			text: "Wait... then go.",
			want: []string{"Wait...", "then go."},
		},
		{
			name: "abbreviation mid token not split",
			text: "Version v1.2 shipped. Done.",
			want: []string{"Version v1.2 shipped.", "Done."},
		},
		{
			name: "no trailing terminator",
			text: "First. second half",
			want: []string{"First.", "second half"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitSentences(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d sentences %q, want %d", len(got), got, len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("sentence %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParagraph_GroupsWithinSize(t *testing.T) {
	text := "Paragraph one stands alone.\n\nParagraph two follows.\n\nParagraph three closes."
	chunker := New(Config{Strategy: StrategyParagraph, Size: 60})

	chunks := chunker.Chunk(text)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %#v", len(chunks), chunks)
	}
	if !strings.Contains(chunks[0].Text, "Paragraph one") || !strings.Contains(chunks[0].Text, "Paragraph two") {
		t.Errorf("first chunk should hold two paragraphs: %q", chunks[0].Text)
	}
	if !strings.Contains(chunks[1].Text, "Paragraph three") {
		t.Errorf("second chunk should hold the third paragraph: %q", chunks[1].Text)
	}
}

func TestParagraph_OversizeParagraphIsOwnChunk(t *testing.T) {
	big := strings.Repeat("long paragraph content ", 20)
	text := "Small.\n\n" + big + "\n\nAlso small."
	chunker := New(Config{Strategy: StrategyParagraph, Size: 50})

	chunks := chunker.Chunk(text)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[1].Text) <= 50 {
		t.Errorf("middle chunk should be the oversize paragraph, got %q", chunks[1].Text)
	}
}

func TestChunkIndexesAreSequential(t *testing.T) {
	text := strings.Repeat("Sentence here. ", 40)
	for _, strategy := range []Strategy{StrategyFixedSize, StrategySentence, StrategyParagraph, StrategyMarkdown} {
		chunks := New(Config{Strategy: strategy, Size: 80, Overlap: 10}).Chunk(text)
		for i, c := range chunks {
			if c.Index != i {
				t.Errorf("%s: chunk %d has index %d", strategy, i, c.Index)
			}
		}
	}
}
