package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/dgallion1/doctrans/internal/doctree"
	"github.com/dgallion1/doctrans/internal/mdscan"
)

func join(units []doctree.Unit) string {
	var sb strings.Builder
	for _, u := range units {
		sb.WriteString(u.Text)
	}
	return sb.String()
}

func TestSplit_Scenario(t *testing.T) {
	ch1 := doctree.Chapter{Index: 1, Title: "Intro", Content: "Hello world.\n![pic](a.png)\n"}
	units := Split(ch1, DefaultConfig())
	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d: %+v", len(units), units)
	}
	if units[0].Kind != doctree.KindTranslatable || strings.TrimSpace(units[0].Text) != "Hello world." {
		t.Errorf("unexpected unit 0: %+v", units[0])
	}
	if units[1].Kind != doctree.KindVerbatim || strings.TrimSpace(units[1].Text) != "![pic](a.png)" {
		t.Errorf("unexpected unit 1: %+v", units[1])
	}

	ch2 := doctree.Chapter{Index: 2, Title: "Details", Content: "```code\nx=1\n```\n"}
	units = Split(ch2, DefaultConfig())
	if len(units) != 1 || units[0].Kind != doctree.KindVerbatim || units[0].Text != ch2.Content {
		t.Fatalf("expected the fence as one verbatim unit, got %+v", units)
	}
	if units[0].Chapter != 2 || units[0].Seq != 0 {
		t.Errorf("expected chapter 2 seq 0, got %d/%d", units[0].Chapter, units[0].Seq)
	}
}

func TestSplit_HeadingsStartNewUnits(t *testing.T) {
	content := "Lead paragraph.\n\n### Sub\nBody one.\n\nBody two.\n#### Deeper\nMore.\n"
	units := Split(doctree.Chapter{Index: 1, Content: content}, DefaultConfig())
	if len(units) != 3 {
		t.Fatalf("expected 3 units, got %d: %+v", len(units), units)
	}
	if !strings.HasPrefix(units[1].Text, "### Sub") || !strings.HasPrefix(units[2].Text, "#### Deeper") {
		t.Errorf("expected units to start at headings, got %q and %q", units[1].Text, units[2].Text)
	}
	if join(units) != content {
		t.Errorf("expected lossless concatenation")
	}
}

func TestSplit_UnclosedFenceRunsToEnd(t *testing.T) {
	content := "Before.\n~~~~\ncode\n~~~\nstill code\n"
	units := Split(doctree.Chapter{Index: 1, Content: content}, DefaultConfig())
	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d", len(units))
	}
	if units[1].Kind != doctree.KindVerbatim || units[1].Text != "~~~~\ncode\n~~~\nstill code\n" {
		t.Errorf("expected unclosed fence to run to the end, got %+v", units[1])
	}
}

func TestSplit_CapAtParagraphBoundary(t *testing.T) {
	para := strings.Repeat("word ", 19) + "end." // 99 chars
	content := strings.Join([]string{para, para, para, para}, "\n\n") + "\n"
	units := Split(doctree.Chapter{Index: 1, Content: content}, Config{MaxChars: 250})

	if len(units) < 2 {
		t.Fatalf("expected the run to be split, got %d unit(s)", len(units))
	}
	for i, u := range units {
		core := strings.TrimSpace(u.Text)
		if n := utf8.RuneCountInString(core); n > 250 {
			t.Errorf("unit %d: %d chars exceeds cap", i, n)
		}
		if !strings.HasSuffix(core, "end.") {
			t.Errorf("unit %d: expected to end at a paragraph boundary, got %q", i, core)
		}
		if u.Seq != i {
			t.Errorf("unit %d: expected seq %d, got %d", i, i, u.Seq)
		}
	}
	if join(units) != content {
		t.Error("expected lossless concatenation")
	}
}

func TestSplit_HardCutWithoutBoundary(t *testing.T) {
	content := strings.Repeat("é", 95) + " " + strings.Repeat("ü", 30) + "\n"
	units := Split(doctree.Chapter{Index: 1, Content: content}, Config{MaxChars: 100})
	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d", len(units))
	}
	if units[0].Text != strings.Repeat("é", 95)+" " {
		t.Errorf("expected cut after the space, got %q", units[0].Text)
	}
	if join(units) != content {
		t.Error("expected lossless concatenation")
	}

	solid := strings.Repeat("x", 250)
	units = Split(doctree.Chapter{Index: 1, Content: solid}, Config{MaxChars: 100})
	if len(units) != 3 || len(units[0].Text) != 100 {
		t.Errorf("expected rune-boundary hard cuts, got %d units", len(units))
	}
}

func TestSplit_WhitespaceFoldedIntoNeighbours(t *testing.T) {
	content := "\n\n```\na\n```\n\n\n![i](i.png)\n\n"
	units := Split(doctree.Chapter{Index: 1, Content: content}, DefaultConfig())
	for _, u := range units {
		if u.Kind == doctree.KindTranslatable {
			t.Errorf("expected no translatable units, got %+v", u)
		}
	}
	if join(units) != content {
		t.Errorf("expected lossless concatenation, got %q", join(units))
	}
}

// codeRanges returns the byte ranges of the fenced blocks in content.
func codeRanges(content string) [][2]int {
	lines := mdscan.Lines(content)
	starts := make([]int, len(lines)+1)
	for i, l := range lines {
		starts[i+1] = starts[i] + len(l)
	}
	var out [][2]int
	for _, blk := range mdscan.CodeBlocks(content) {
		out = append(out, [2]int{starts[blk.First], starts[blk.Last+1]})
	}
	return out
}

// Property: unit boundaries never fall inside a fence or split an image line,
// and the concatenation is always the original content.
func TestSplit_BoundarySafety(t *testing.T) {
	blocks := []string{
		"Plain paragraph with some words in it.\n",
		"```go\nfmt.Println(\"# not heading\")\n\n![not](image.png)\n```\n",
		"![fig](fig.png)\n",
		"## Heading\n",
		"- item one\n- item two\n",
		"\n",
		"A *long* paragraph " + strings.Repeat("that keeps going ", 8) + "until it stops.\n",
		"~~~\nverbatim ~~~ text\n~~~\n",
		"\n- step:\n\n    ```\n    rm -rf build\n    ```\n\n",
		"![x](<my pic.png>)\n",
		"![x](pic.png 'T')\n",
		"![x](fig(1).png)\n",
	}
	for seed := 0; seed < 200; seed++ {
		var sb strings.Builder
		for j := 0; j < 6; j++ {
			sb.WriteString(blocks[(seed*7+j*3+seed/5)%len(blocks)])
		}
		content := sb.String()
		units := Split(doctree.Chapter{Index: 1, Content: content}, Config{MaxChars: 60})

		if join(units) != content {
			t.Fatalf("seed %d: concatenation differs", seed)
		}
		code := codeRanges(content)
		off := 0
		for _, u := range units {
			start, end := off, off+len(u.Text)
			off = end
			if u.Kind == doctree.KindVerbatim {
				continue
			}
			for _, r := range code {
				if start < r[1] && r[0] < end {
					t.Fatalf("seed %d: code inside translatable unit %q", seed, u.Text)
				}
			}
			for _, line := range mdscan.Lines(u.Text) {
				if mdscan.IsImageLine(line) {
					t.Fatalf("seed %d: image-only line inside translatable unit %q", seed, u.Text)
				}
			}
		}
	}
}

func TestSplit_NestedFenceIsVerbatim(t *testing.T) {
	tests := []struct {
		name, content, fence string
	}{
		{"bullet item", "- step:\n\n    ```\n    rm -rf build\n    ```\n", "    ```\n    rm -rf build\n    ```\n"},
		{"ordered item", "1. run:\n\n   ~~~sh\n   make all\n   ~~~\n\nDone.\n", "   ~~~sh\n   make all\n   ~~~\n"},
		{"block quote", "> Note:\n>\n> ```\n> keep me\n> ```\n", "> ```\n> keep me\n> ```\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			units := Split(doctree.Chapter{Index: 1, Content: tt.content}, DefaultConfig())
			if join(units) != tt.content {
				t.Fatalf("expected lossless concatenation, got %q", join(units))
			}
			found := false
			for _, u := range units {
				if u.Kind == doctree.KindVerbatim && u.Text == tt.fence {
					found = true
				}
				if u.Kind == doctree.KindTranslatable && strings.Contains(u.Text, "```") {
					t.Errorf("expected fence kept out of translatable unit %q", u.Text)
				}
			}
			if !found {
				t.Errorf("expected verbatim unit %q, got %+v", tt.fence, units)
			}
		})
	}
}

func TestSplit_ImageFormsAreVerbatim(t *testing.T) {
	for _, img := range []string{"![x](<my pic.png>)\n", "![x](pic.png 'T')\n", "![x](fig(1).png)\n"} {
		t.Run(img, func(t *testing.T) {
			content := "# A\n\n" + img
			units := Split(doctree.Chapter{Index: 1, Content: content}, DefaultConfig())
			if len(units) != 2 {
				t.Fatalf("expected 2 units, got %d: %+v", len(units), units)
			}
			if units[1].Kind != doctree.KindVerbatim || units[1].Text != img {
				t.Errorf("expected image as verbatim unit, got %+v", units[1])
			}
		})
	}
}

func TestSplit_CapNeverCutsImage(t *testing.T) {
	img := "![a long caption here](<dir/my picture.png> 'Title')"
	content := strings.Repeat("word ", 10) + img + " tail.\n"
	units := Split(doctree.Chapter{Index: 1, Content: content}, Config{MaxChars: 70})
	if join(units) != content {
		t.Fatalf("expected lossless concatenation, got %q", join(units))
	}
	found := false
	for _, u := range units {
		if strings.Contains(u.Text, img) {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the image whole in one unit, got %+v", units)
	}
}

func TestSplit_SeqContiguous(t *testing.T) {
	var sb strings.Builder
	for i := range 10 {
		fmt.Fprintf(&sb, "Paragraph %d.\n\n![p](p%d.png)\n", i, i)
	}
	units := Split(doctree.Chapter{Index: 7, Content: sb.String()}, DefaultConfig())
	if len(units) != 20 {
		t.Fatalf("expected 20 units, got %d", len(units))
	}
	for i, u := range units {
		if u.Seq != i || u.Chapter != 7 {
			t.Errorf("unit %d: expected seq %d chapter 7, got %d/%d", i, i, u.Seq, u.Chapter)
		}
	}
}
