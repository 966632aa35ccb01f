package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/doctrans/internal/doctree"
	"github.com/dgallion1/doctrans/internal/mdscan"
)

// Config controls chunking behavior.
type Config struct {
	MaxChars int // Cap on a translatable unit, in characters.
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{MaxChars: 4000}
}

// Split cuts a chapter into translation units. Code fences and image-only
// lines are verbatim; everything else is prose, broken at headings and
// capped at cfg.MaxChars. Concatenating the Text of the returned units
// reproduces ch.Content exactly.
func Split(ch doctree.Chapter, cfg Config) []doctree.Unit {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultConfig().MaxChars
	}

	b := &unitBuilder{chapter: ch.Index}
	var prose strings.Builder

	flushProse := func() {
		if prose.Len() == 0 {
			return
		}
		for _, piece := range splitProse(prose.String(), cfg.MaxChars) {
			b.add(piece, doctree.KindTranslatable)
		}
		prose.Reset()
	}

	lines := mdscan.Lines(ch.Content)
	fences := make(map[int]int)
	for _, blk := range mdscan.CodeBlocks(ch.Content) {
		fences[blk.First] = blk.Last
	}
	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if last, ok := fences[i]; ok {
			flushProse()
			b.add(strings.Join(lines[i:last+1], ""), doctree.KindVerbatim)
			i = last
			continue
		}

		if mdscan.IsImageLine(line) {
			flushProse()
			b.add(line, doctree.KindVerbatim)
			continue
		}

		if level, _ := mdscan.Heading(line); level > 0 {
			flushProse()
		}
		prose.WriteString(line)
	}
	flushProse()
	return b.finish()
}

// unitBuilder numbers units and folds whitespace-only spans into their
// neighbours so no unit is blank.
type unitBuilder struct {
	chapter int
	units   []doctree.Unit
	pending string
}

func (b *unitBuilder) add(text string, kind doctree.UnitKind) {
	if kind == doctree.KindTranslatable && strings.TrimSpace(text) == "" {
		if n := len(b.units); n > 0 {
			b.units[n-1].Text += text
		} else {
			b.pending += text
		}
		return
	}
	b.units = append(b.units, doctree.Unit{
		Chapter: b.chapter,
		Seq:     len(b.units),
		Text:    b.pending + text,
		Kind:    kind,
	})
	b.pending = ""
}

func (b *unitBuilder) finish() []doctree.Unit {
	if b.pending != "" {
		b.units = append(b.units, doctree.Unit{
			Chapter: b.chapter,
			Seq:     len(b.units),
			Text:    b.pending,
			Kind:    doctree.KindVerbatim,
		})
		b.pending = ""
	}
	return b.units
}

var paragraphBreakRE = regexp.MustCompile(`\n[ \t]*\n`)

// splitProse caps a prose run at max characters, preferring the last
// paragraph break inside the cap.
func splitProse(text string, max int) []string {
	var out []string
	for utf8.RuneCountInString(text) > max {
		limit := runeOffset(text, max)
		cut := paragraphCut(text[:limit])
		if cut <= 0 {
			cut = hardCut(text[:limit])
		}
		cut = imageSafeCut(text, cut)
		out = append(out, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

// imageSafeCut moves cut out of any image it falls inside: back to the
// image start when prose precedes it, else past the image end.
func imageSafeCut(text string, cut int) int {
	for _, img := range mdscan.Images(text) {
		if img.Start >= cut {
			break
		}
		if cut < img.End {
			if strings.TrimSpace(text[:img.Start]) != "" {
				return img.Start
			}
			return img.End
		}
	}
	return cut
}

// paragraphCut returns the offset just past the last paragraph break in s
// that has prose before it, or 0.
func paragraphCut(s string) int {
	locs := paragraphBreakRE.FindAllStringIndex(s, -1)
	for i := len(locs) - 1; i >= 0; i-- {
		if strings.TrimSpace(s[:locs[i][0]]) != "" {
			return locs[i][1]
		}
	}
	return 0
}

// hardCut picks a fallback break inside s: a line end, then a sentence end,
// then any whitespace, then the full length.
func hardCut(s string) int {
	candidates := []int{
		strings.LastIndex(s, "\n") + 1,
		lastSentenceEnd(s),
		strings.LastIndexAny(s, " \t") + 1,
	}
	for _, cut := range candidates {
		if cut > 0 && strings.TrimSpace(s[:cut]) != "" {
			return cut
		}
	}
	return len(s)
}

func lastSentenceEnd(s string) int {
	best := 0
	for _, sep := range []string{". ", "! ", "? "} {
		if i := strings.LastIndex(s, sep); i >= 0 && i+len(sep) > best {
			best = i + len(sep)
		}
	}
	return best
}

// runeOffset returns the byte offset of the n-th rune of s.
func runeOffset(s string, n int) int {
	i := 0
	for pos := range s {
		if i == n {
			return pos
		}
		i++
	}
	return len(s)
}
