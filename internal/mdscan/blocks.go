package mdscan

import (
	"slices"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Block is an inclusive range of 0-based line numbers.
type Block struct {
	First, Last int
}

func parse(src []byte) ast.Node {
	return goldmark.New().Parser().Parse(text.NewReader(src))
}

// lineIndex maps byte offsets of a source to line numbers.
type lineIndex struct {
	lines  []string
	starts []int
}

func newLineIndex(src string) lineIndex {
	lines := Lines(src)
	starts := make([]int, len(lines))
	off := 0
	for i, l := range lines {
		starts[i] = off
		off += len(l)
	}
	return lineIndex{lines: lines, starts: starts}
}

func (x lineIndex) lineOf(off int) int {
	return sort.Search(len(x.starts), func(i int) bool { return x.starts[i] > off }) - 1
}

// span returns the byte range covered by b.
func (x lineIndex) span(b Block) (int, int) {
	return x.starts[b.First], x.starts[b.Last] + len(x.lines[b.Last])
}

// CodeBlocks returns the line ranges of the fenced code blocks in src,
// opening and closing fences included, in source order. Fences nested in
// list items and block quotes are found as well as top-level ones.
func CodeBlocks(src string) []Block {
	x := newLineIndex(src)
	if len(x.lines) == 0 {
		return nil
	}
	return fencedBlocks(x, parse([]byte(src)))
}

func fencedBlocks(x lineIndex, root ast.Node) []Block {
	var blocks []Block
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if fb, ok := n.(*ast.FencedCodeBlock); ok {
			if b, ok := fencedBlock(x, fb); ok {
				blocks = append(blocks, b)
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	// An empty fence without an info string carries no offsets; the
	// top-level ones are still found line by line.
	blocks = append(blocks, columnFences(x.lines)...)
	return mergeBlocks(blocks)
}

// fencedBlock locates the opener through the info string or the first
// content line, and takes the first non-blank line after the content as the
// closer when it closes the fence.
func fencedBlock(x lineIndex, fb *ast.FencedCodeBlock) (Block, bool) {
	segs := fb.Lines()
	open := -1
	switch {
	case fb.Info != nil:
		open = x.lineOf(fb.Info.Segment.Start)
	case segs.Len() > 0:
		open = x.lineOf(segs.At(0).Start) - 1
	}
	if open < 0 {
		return Block{}, false
	}
	marker := fenceMarker(x.lines[open])
	if marker == "" {
		return Block{}, false
	}

	last := open
	if segs.Len() > 0 {
		last = max(last, x.lineOf(segs.At(segs.Len()-1).Start))
	}
	for i := last + 1; i < len(x.lines); i++ {
		if IsBlank(x.lines[i]) {
			continue
		}
		if closesNested(x.lines[i], marker) {
			last = i
		}
		break
	}
	return Block{First: open, Last: last}, true
}

// fenceMarker returns the fence run of an opener line that may sit behind
// list markers or block quote markers.
func fenceMarker(line string) string {
	s := strings.TrimLeft(line, " \t>-*+0123456789.)")
	if len(s) < 3 || (s[0] != '`' && s[0] != '~') {
		return ""
	}
	n := 0
	for n < len(s) && s[n] == s[0] {
		n++
	}
	if n < 3 {
		return ""
	}
	return s[:n]
}

func closesNested(line, marker string) bool {
	return FenceCloses(strings.TrimLeft(line, " \t>"), marker)
}

// columnFences finds fences that start within three columns of the margin.
func columnFences(lines []string) []Block {
	var blocks []Block
	for i := 0; i < len(lines); i++ {
		marker, ok := FenceOpen(lines[i])
		if !ok {
			continue
		}
		b := Block{First: i, Last: len(lines) - 1}
		for j := i + 1; j < len(lines); j++ {
			if FenceCloses(lines[j], marker) {
				b.Last = j
				break
			}
		}
		blocks = append(blocks, b)
		i = b.Last
	}
	return blocks
}

func mergeBlocks(blocks []Block) []Block {
	if len(blocks) == 0 {
		return nil
	}
	slices.SortFunc(blocks, func(a, b Block) int { return a.First - b.First })
	out := blocks[:1]
	for _, b := range blocks[1:] {
		cur := &out[len(out)-1]
		if b.First <= cur.Last {
			cur.Last = max(cur.Last, b.Last)
			continue
		}
		out = append(out, b)
	}
	return out
}
