package parser

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func buildEPUB(t *testing.T, files map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "book.epub")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return path
}

const testContainer = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`

const testOPF = `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>The Book</dc:title></metadata>
  <manifest>
    <item id="c2" href="text/ch2.xhtml" media-type="application/xhtml+xml"/>
    <item id="c1" href="text/ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="css" href="style.css" media-type="text/css"/>
    <item id="img" href="images/fig.png" media-type="image/png"/>
  </manifest>
  <spine>
    <itemref idref="c1"/>
    <itemref idref="css"/>
    <itemref idref="c2"/>
  </spine>
</package>`

func TestEPUBParser_SpineOrderAndImages(t *testing.T) {
	path := buildEPUB(t, map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": testContainer,
		"OEBPS/content.opf":      testOPF,
		"OEBPS/text/ch1.xhtml":   `<html><head><title>c1</title></head><body><h1>Opening</h1><p>First <i>words</i>.</p><p><img src="../images/fig.png" alt="fig"/></p></body></html>`,
		"OEBPS/text/ch2.xhtml":   `<html><body><h2>Second</h2><p>More.</p><img src="../images/fig.png"/></body></html>`,
		"OEBPS/images/fig.png":   "PNG",
		"OEBPS/style.css":        "p{}",
	})

	doc, err := (&EPUBParser{}).Parse(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "The Book" {
		t.Errorf("expected title %q, got %q", "The Book", doc.Title)
	}
	if len(doc.Chapters) != 2 {
		t.Fatalf("expected 2 chapters, got %d", len(doc.Chapters))
	}
	if doc.Chapters[0].Title != "Opening" || doc.Chapters[1].Title != "Second" {
		t.Errorf("expected spine order Opening/Second, got %q/%q", doc.Chapters[0].Title, doc.Chapters[1].Title)
	}
	want := "First *words*.\n\n![fig](OEBPS/images/fig.png)\n"
	if doc.Chapters[0].Content != want {
		t.Errorf("expected %q, got %q", want, doc.Chapters[0].Content)
	}
	if strings.Contains(doc.Chapters[0].Content, "# Opening") {
		t.Error("expected repeated title heading to be dropped")
	}
	if len(doc.Assets) != 1 || doc.Assets[0].OriginalPath != "OEBPS/images/fig.png" {
		t.Fatalf("expected one shared asset, got %+v", doc.Assets)
	}
	for _, ch := range doc.Chapters {
		if len(ch.ImageRefs) != 1 || ch.ImageRefs[0] != "OEBPS/images/fig.png" {
			t.Errorf("chapter %d: unexpected refs %v", ch.Index, ch.ImageRefs)
		}
	}
}

func TestEPUBParser_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.epub")
	if err := os.WriteFile(path, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := (&EPUBParser{}).Parse(path)
	var extractErr *ExtractionError
	if !errors.As(err, &extractErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
	if extractErr.Path != path {
		t.Errorf("expected path %q, got %q", path, extractErr.Path)
	}
}

func TestEPUBParser_MissingContainer(t *testing.T) {
	path := buildEPUB(t, map[string]string{"mimetype": "application/epub+zip"})
	_, err := (&EPUBParser{}).Parse(path)
	if err == nil || !strings.Contains(err.Error(), "container") {
		t.Fatalf("expected container error, got %v", err)
	}
}

func TestResolveArchivePath(t *testing.T) {
	tests := []struct {
		dir, href, want string
	}{
		{"OEBPS/text", "../images/a.png", "OEBPS/images/a.png"},
		{"OEBPS", "text/ch1.xhtml#sec", "OEBPS/text/ch1.xhtml"},
		{".", "ch%201.xhtml", "ch 1.xhtml"},
		{"OEBPS", "/root.png", "root.png"},
	}
	for _, tt := range tests {
		if got := resolveArchivePath(tt.dir, tt.href); got != tt.want {
			t.Errorf("resolveArchivePath(%q, %q): expected %q, got %q", tt.dir, tt.href, tt.want, got)
		}
	}
}
