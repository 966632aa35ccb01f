package parser

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func convert(t *testing.T, src string) string {
	t.Helper()
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return htmlToMarkdown(findBody(root), func(s string) string { return "img/" + s })
}

func TestHTMLToMarkdown_Constructs(t *testing.T) {
	got := convert(t, `<html><head><title>T</title><style>p{}</style></head><body>
<h1>Chapter  One</h1>
<p>Some <em>emphasised</em> and <strong>bold</strong> text
with a <a href="x">link</a>.</p>
<ul><li>first</li><li>second<ul><li>nested</li></ul></li></ul>
<ol><li>one</li><li>two</li></ol>
<pre>func main() {
    fmt.Println("hi")
}</pre>
<p><img src="a.png" alt="A [pic]"/></p>
<table><tr><td>cell one</td><td>cell two</td></tr></table>
<script>alert(1)</script>
</body></html>`)

	want := "# Chapter One\n\n" +
		"Some *emphasised* and **bold** text with a link.\n\n" +
		"- first\n- second\n  - nested\n\n" +
		"1. one\n2. two\n\n" +
		"```\nfunc main() {\n    fmt.Println(\"hi\")\n}\n```\n\n" +
		"![A pic](img/a.png)\n\n" +
		"cell one\n\n" +
		"cell two\n"
	if got != want {
		t.Errorf("unexpected markdown:\n%s\nwant:\n%s", got, want)
	}
}

func TestHTMLToMarkdown_EscapesMarkdownLookalikes(t *testing.T) {
	got := convert(t, `<body><p># not a heading</p><p>&gt; not a quote</p></body>`)
	want := "\\# not a heading\n\n\\> not a quote\n"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestHTMLToMarkdown_FenceLongerThanContent(t *testing.T) {
	got := convert(t, "<body><pre>a ``` b</pre></body>")
	if !strings.HasPrefix(got, "````\n") {
		t.Errorf("expected four-backtick fence, got %q", got)
	}
}

func TestHTMLParser_SplitsOnHeadings(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pics/cover.png", "IMG")
	path := writeFile(t, dir, "page.html", `<html><head><title>Book</title></head><body>
<h1>First</h1><p>one</p><p><img src="pics/cover.png"></p>
<h2>Second</h2><p>two</p>
<h3>Sub</h3><p>three</p>
</body></html>`)

	doc, err := (&HTMLParser{}).Parse(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "Book" {
		t.Errorf("expected title %q, got %q", "Book", doc.Title)
	}
	if len(doc.Chapters) != 2 {
		t.Fatalf("expected 2 chapters, got %d", len(doc.Chapters))
	}
	if !strings.Contains(doc.Chapters[1].Content, "### Sub") {
		t.Errorf("expected h3 inside chapter 2, got %q", doc.Chapters[1].Content)
	}
	if len(doc.Assets) != 1 || doc.Assets[0].OriginalPath != "pics/cover.png" {
		t.Errorf("expected cover asset, got %+v", doc.Assets)
	}
}
