package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/dgallion1/doctrans/internal/doctree"
	"github.com/dgallion1/doctrans/internal/mdscan"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// HTMLParser handles standalone HTML files. The body is converted to
// canonical markdown and then split into chapters like a Markdown file.
type HTMLParser struct{}

func (p *HTMLParser) Parse(path string) (*doctree.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, extractionError(path, err)
	}
	defer f.Close()

	r, err := charset.NewReader(f, "text/html")
	if err != nil {
		return nil, extractionError(path, fmt.Errorf("detect charset: %w", err))
	}
	root, err := html.Parse(r)
	if err != nil {
		return nil, extractionError(path, fmt.Errorf("parse html: %w", err))
	}

	doc := &doctree.Document{
		Source: path,
		Format: doctree.FormatHTML,
		Title:  baseTitle(path),
	}
	if title := findTitle(root); title != "" {
		doc.Title = title
	}

	body := findBody(root)
	if body == nil {
		body = root
	}
	md := htmlToMarkdown(body, func(src string) string { return src })
	doc.Chapters = splitChapters(md)
	doc.Assets = localAssets(filepath.Dir(path), doc.Chapters)
	return doc, nil
}

func headingLevel(tag string) int {
	switch tag {
	case "h1":
		return 1
	case "h2":
		return 2
	case "h3":
		return 3
	case "h4":
		return 4
	case "h5":
		return 5
	case "h6":
		return 6
	}
	return 0
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return buf.String()
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		return collapseSpace(textContent(n))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

var spaceRE = regexp.MustCompile(`[ \t\r\n\f]+`)

func collapseSpace(s string) string {
	return strings.TrimSpace(spaceRE.ReplaceAllString(s, " "))
}

// skipTags never contribute content.
var skipTags = map[string]bool{
	"script": true, "style": true, "head": true, "title": true,
	"nav": true, "noscript": true, "template": true,
}

// blockTags break paragraphs. Tags outside this set, headings, lists and
// pre are rendered inline and formatting other than emphasis is dropped.
var blockTags = map[string]bool{
	"html": true, "body": true, "p": true, "div": true, "section": true,
	"article": true, "main": true, "header": true, "footer": true,
	"aside": true, "blockquote": true, "figure": true, "figcaption": true,
	"table": true, "thead": true, "tbody": true, "tfoot": true, "tr": true,
	"td": true, "th": true, "caption": true, "dl": true, "dt": true,
	"dd": true, "li": true, "address": true, "center": true, "hr": true,
}

// htmlConverter renders an HTML subtree as canonical markdown: headings,
// paragraphs, lists, code fences, images and emphasis.
type htmlConverter struct {
	resolve func(src string) string
	blocks  []string
	para    strings.Builder
}

// htmlToMarkdown converts n. resolve maps an image src to the reference
// written into the markdown; an empty result drops the image.
func htmlToMarkdown(n *html.Node, resolve func(src string) string) string {
	c := &htmlConverter{resolve: resolve}
	c.walk(n)
	c.flush()
	if len(c.blocks) == 0 {
		return ""
	}
	return strings.Join(c.blocks, "\n\n") + "\n"
}

func (c *htmlConverter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		c.para.WriteString(spaceRE.ReplaceAllString(n.Data, " "))
		return
	case html.ElementNode:
	default:
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			c.walk(ch)
		}
		return
	}

	tag := n.Data
	switch {
	case skipTags[tag]:
		return
	case headingLevel(tag) > 0:
		c.flush()
		if text := collapseSpace(c.inlineChildren(n)); text != "" {
			c.blocks = append(c.blocks, strings.Repeat("#", headingLevel(tag))+" "+text)
		}
		return
	case tag == "pre":
		c.flush()
		if block := fenceBlock(textContent(n)); block != "" {
			c.blocks = append(c.blocks, block)
		}
		return
	case tag == "ul" || tag == "ol":
		c.flush()
		if lines := c.list(n, 0); len(lines) > 0 {
			c.blocks = append(c.blocks, strings.Join(lines, "\n"))
		}
		return
	case tag == "br":
		c.para.WriteString("\n")
		return
	case tag == "img" || tag == "image":
		c.para.WriteString(c.image(n))
		return
	case blockTags[tag]:
		c.flush()
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			c.walk(ch)
		}
		c.flush()
		return
	}
	c.para.WriteString(c.inline(n))
}

// flush closes the current paragraph.
func (c *htmlConverter) flush() {
	raw := c.para.String()
	c.para.Reset()

	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		line = collapseSpace(line)
		if line == "" {
			continue
		}
		if !mdscan.IsImageLine(line) {
			line = mdscan.EscapeLine(line)
		}
		lines = append(lines, line)
	}
	if len(lines) > 0 {
		c.blocks = append(c.blocks, strings.Join(lines, "\n"))
	}
}

func (c *htmlConverter) inline(n *html.Node) string {
	switch n.Type {
	case html.TextNode:
		return spaceRE.ReplaceAllString(n.Data, " ")
	case html.ElementNode:
	default:
		return ""
	}
	tag := n.Data
	switch {
	case skipTags[tag]:
		return ""
	case tag == "em" || tag == "i" || tag == "cite" || tag == "dfn":
		return emphasis("*", c.inlineChildren(n))
	case tag == "strong" || tag == "b":
		return emphasis("**", c.inlineChildren(n))
	case tag == "img" || tag == "image":
		return c.image(n)
	case tag == "br":
		return "\n"
	case blockTags[tag] || headingLevel(tag) > 0:
		return " " + c.inlineChildren(n) + " "
	}
	return c.inlineChildren(n)
}

func (c *htmlConverter) inlineChildren(n *html.Node) string {
	var sb strings.Builder
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		sb.WriteString(c.inline(ch))
	}
	return sb.String()
}

// list renders ul/ol items, nested lists indented below their item.
func (c *htmlConverter) list(n *html.Node, depth int) []string {
	ordered := n.Data == "ol"
	indent := strings.Repeat("  ", depth)
	if ordered {
		indent = strings.Repeat("   ", depth)
	}
	var lines []string
	num := 1
	for li := n.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.Data != "li" {
			continue
		}
		var text strings.Builder
		var nested []string
		for ch := li.FirstChild; ch != nil; ch = ch.NextSibling {
			if ch.Type == html.ElementNode && (ch.Data == "ul" || ch.Data == "ol") {
				nested = append(nested, c.list(ch, depth+1)...)
				continue
			}
			text.WriteString(c.inline(ch))
		}
		marker := "- "
		if ordered {
			marker = strconv.Itoa(num) + ". "
			num++
		}
		if item := collapseSpace(text.String()); item != "" {
			lines = append(lines, indent+marker+item)
		}
		lines = append(lines, nested...)
	}
	return lines
}

func (c *htmlConverter) image(n *html.Node) string {
	src := attr(n, "src")
	if src == "" {
		src = attr(n, "href")
	}
	if src == "" {
		return ""
	}
	ref := c.resolve(src)
	if ref == "" {
		return ""
	}
	ref = strings.ReplaceAll(ref, " ", "%20")
	alt := strings.NewReplacer("[", "", "]", "").Replace(collapseSpace(attr(n, "alt")))
	return "![" + alt + "](" + ref + ")"
}

func emphasis(marker, inner string) string {
	trimmed := strings.TrimSpace(inner)
	if trimmed == "" {
		return inner
	}
	var lead, trail string
	if strings.HasPrefix(inner, " ") {
		lead = " "
	}
	if strings.HasSuffix(inner, " ") {
		trail = " "
	}
	return lead + marker + trimmed + marker + trail
}

// fenceBlock wraps preformatted text in a fence longer than any backtick run
// it contains.
func fenceBlock(body string) string {
	body = strings.Trim(body, "\n")
	if strings.TrimSpace(body) == "" {
		return ""
	}
	longest, run := 0, 0
	for _, r := range body {
		if r == '`' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	marker := strings.Repeat("`", max(3, longest+1))
	return marker + "\n" + body + "\n" + marker
}
