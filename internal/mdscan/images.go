package mdscan

import (
	"html"
	"strings"

	"github.com/yuin/goldmark/ast"
)

// Image is an inline image reference located in a markdown source.
type Image struct {
	Start, End         int    // the whole ![alt](dest "title")
	DestStart, DestEnd int    // the destination as written, without <>
	Dest               string // the destination as markdown resolves it
}

// Images returns the inline images of src in source order. goldmark decides
// what is an image; each of its images is then matched to the bytes that
// spell it so callers can rewrite or mask exactly that span. Images inside
// code are skipped.
func Images(src string) []Image {
	if !strings.Contains(src, "![") {
		return nil
	}
	x := newLineIndex(src)
	root := parse([]byte(src))

	var (
		dests []string
		code  [][2]int
	)
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.Image:
			dests = append(dests, string(n.Destination))
		case *ast.CodeSpan:
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					code = append(code, [2]int{t.Segment.Start, t.Segment.Stop})
				}
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock, *ast.HTMLBlock:
			segs := n.Lines()
			if segs.Len() > 0 {
				code = append(code, [2]int{segs.At(0).Start, segs.At(segs.Len() - 1).Stop})
			}
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if len(dests) == 0 {
		return nil
	}
	for _, b := range fencedBlocks(x, root) {
		start, end := x.span(b)
		code = append(code, [2]int{start, end})
	}
	inCode := func(i int) bool {
		for _, r := range code {
			if i >= r[0] && i < r[1] {
				return true
			}
		}
		return false
	}

	var out []Image
	next := 0
	for i := 0; i+1 < len(src) && next < len(dests); i++ {
		if src[i] != '!' || src[i+1] != '[' || escaped(src, i) || inCode(i) {
			continue
		}
		img, ok := scanImage(src, i)
		if !ok {
			continue
		}
		raw := src[img.DestStart:img.DestEnd]
		for k := next; k < len(dests); k++ {
			if sameDest(raw, dests[k]) {
				img.Dest = dests[k]
				out = append(out, img)
				next = k + 1
				i = img.End - 1
				break
			}
		}
	}
	return out
}

// ImageRefs returns the image destinations in content, first occurrence
// order, without duplicates.
func ImageRefs(content string) []string {
	var refs []string
	seen := make(map[string]bool)
	for _, img := range Images(content) {
		if img.Dest != "" && !seen[img.Dest] {
			seen[img.Dest] = true
			refs = append(refs, img.Dest)
		}
	}
	return refs
}

// IsImageLine reports whether line consists solely of image references.
func IsImageLine(line string) bool {
	s := strings.TrimSpace(line)
	imgs := Images(s)
	if len(imgs) == 0 {
		return false
	}
	prev := 0
	for _, img := range imgs {
		if strings.TrimSpace(s[prev:img.Start]) != "" {
			return false
		}
		prev = img.End
	}
	return strings.TrimSpace(s[prev:]) == ""
}

// ReplaceImages returns src with every image passed through fn, which gets
// the image and its source text.
func ReplaceImages(src string, fn func(img Image, text string) string) string {
	imgs := Images(src)
	if len(imgs) == 0 {
		return src
	}
	var sb strings.Builder
	prev := 0
	for _, img := range imgs {
		sb.WriteString(src[prev:img.Start])
		sb.WriteString(fn(img, src[img.Start:img.End]))
		prev = img.End
	}
	sb.WriteString(src[prev:])
	return sb.String()
}

func sameDest(raw, dest string) bool {
	if raw == dest {
		return true
	}
	unescaped := unescapePunct(raw)
	return unescaped == dest || html.UnescapeString(unescaped) == dest
}

func escaped(s string, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}

func isPunct(c byte) bool {
	return strings.IndexByte("!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~", c) >= 0
}

func unescapePunct(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && isPunct(s[i+1]) {
			i++
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

// skipSpace skips spaces and tabs and at most one line ending.
func skipSpace(s string, i int) int {
	newline := false
	for i < len(s) {
		switch s[i] {
		case ' ', '\t', '\r':
		case '\n':
			if newline {
				return i
			}
			newline = true
		default:
			return i
		}
		i++
	}
	return i
}

// scanImage reads the inline image starting at s[i] == '!'.
func scanImage(s string, i int) (Image, bool) {
	img := Image{Start: i}

	// Alt text: brackets nest unless escaped.
	p, depth := i+2, 1
	for ; p < len(s) && depth > 0; p++ {
		switch s[p] {
		case '\\':
			p++
		case '[':
			depth++
		case ']':
			depth--
		}
	}
	if depth != 0 || p >= len(s) || s[p] != '(' {
		return Image{}, false
	}
	p = skipSpace(s, p+1)

	switch {
	case p < len(s) && s[p] == '<':
		q := p + 1
		for ; q < len(s) && s[q] != '>'; q++ {
			if s[q] == '\n' || s[q] == '<' {
				return Image{}, false
			}
			if s[q] == '\\' {
				q++
			}
		}
		if q >= len(s) {
			return Image{}, false
		}
		img.DestStart, img.DestEnd = p+1, q
		p = q + 1
	default:
		q, parens := p, 0
	dest:
		for q < len(s) {
			switch c := s[q]; {
			case c == '\\' && q+1 < len(s) && isPunct(s[q+1]):
				q += 2
				continue
			case c == '(':
				parens++
			case c == ')':
				if parens == 0 {
					break dest
				}
				parens--
			case c <= ' ' || c == 0x7f:
				break dest
			}
			q++
		}
		if q == p || parens != 0 {
			return Image{}, false
		}
		img.DestStart, img.DestEnd = p, q
		p = q
	}

	// Optional title, separated from the destination by whitespace.
	if t := skipSpace(s, p); t > p && t < len(s) && strings.IndexByte(`"'(`, s[t]) >= 0 {
		closer := s[t]
		if closer == '(' {
			closer = ')'
		}
		q := t + 1
		for ; q < len(s) && s[q] != closer; q++ {
			if s[q] == '\\' {
				q++
			}
		}
		if q >= len(s) {
			return Image{}, false
		}
		p = q + 1
	}
	p = skipSpace(s, p)
	if p >= len(s) || s[p] != ')' {
		return Image{}, false
	}
	img.End = p + 1
	return img, true
}
