package doctree

import (
	"crypto/sha256"
	"fmt"
)

// Format tags the source variant a Document was extracted from.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatEPUB     Format = "epub"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	FormatHTML     Format = "html"
	FormatDOCX     Format = "docx"
)

// Document is the format-independent result of extraction.
type Document struct {
	Source   string       // Path the document was read from
	Format   Format       // Source variant
	Title    string       // Document title (from metadata or filename)
	Language string       // Target language; empty for the original
	Chapters []Chapter    // In source order, Index 1..n
	Assets   []ImageAsset // Images referenced by chapters
}

// Chapter is the unit of output granularity.
type Chapter struct {
	Index     int      // 1-based, contiguous
	Title     string   // Heading text, may be empty
	Content   string   // Canonical markdown, without the chapter heading
	ImageRefs []string // Image destinations in Content, in order of appearance
}

// ImageAsset is an image found in the source.
type ImageAsset struct {
	OriginalPath  string // Reference as found in source
	CanonicalName string // Name under images/, empty until registered
	Data          []byte
	Hash          string // SHA-256 hex of Data
}

// UnitKind separates prose sent to the backend from spans copied through.
type UnitKind int

const (
	KindTranslatable UnitKind = iota
	KindVerbatim
)

func (k UnitKind) String() string {
	if k == KindVerbatim {
		return "verbatim"
	}
	return "translatable"
}

// Unit is a span of chapter content handled in one backend call (or none).
type Unit struct {
	Chapter int      // Chapter.Index
	Seq     int      // 0-based, contiguous within the chapter
	Text    string   // Exact source span including surrounding whitespace
	Kind    UnitKind // Translatable or verbatim
}

// Asset returns the asset with the given original path.
func (d *Document) Asset(originalPath string) (ImageAsset, bool) {
	for _, a := range d.Assets {
		if a.OriginalPath == originalPath {
			return a, true
		}
	}
	return ImageAsset{}, false
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
