package parser

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/doctrans/internal/doctree"
	"github.com/dgallion1/doctrans/internal/mdscan"
)

// MarkdownParser handles Markdown files. Every level-1 or level-2 heading
// outside a code fence starts a chapter; deeper headings stay in the content.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(path string) (*doctree.Document, error) {
	src, err := readText(path)
	if err != nil {
		return nil, extractionError(path, err)
	}

	doc := &doctree.Document{
		Source:   path,
		Format:   doctree.FormatMarkdown,
		Title:    baseTitle(path),
		Chapters: splitChapters(src),
	}
	doc.Assets = localAssets(filepath.Dir(path), doc.Chapters)
	return doc, nil
}

// splitChapters cuts canonical markdown into chapters at level-1 and level-2
// headings. Content before the first heading becomes an untitled chapter
// when it is not blank.
func splitChapters(src string) []doctree.Chapter {
	type pending struct {
		title string
		lines []string
	}
	var (
		chapters []doctree.Chapter
		cur      *pending
	)

	flush := func() {
		if cur == nil {
			return
		}
		content := trimBlankLines(cur.lines)
		chapters = append(chapters, doctree.Chapter{
			Index:     len(chapters) + 1,
			Title:     cur.title,
			Content:   content,
			ImageRefs: mdscan.ImageRefs(content),
		})
		cur = nil
	}

	lines := mdscan.Lines(src)
	inCode := make([]bool, len(lines))
	for _, blk := range mdscan.CodeBlocks(src) {
		for i := blk.First; i <= blk.Last; i++ {
			inCode[i] = true
		}
	}

	for i, line := range lines {
		if inCode[i] {
			if cur == nil {
				cur = &pending{}
			}
			cur.lines = append(cur.lines, line)
			continue
		}
		if level, title := mdscan.Heading(line); level == 1 || level == 2 {
			flush()
			cur = &pending{title: title}
			continue
		}
		if cur == nil {
			if mdscan.IsBlank(line) {
				continue
			}
			cur = &pending{}
		}
		cur.lines = append(cur.lines, line)
	}
	flush()
	return chapters
}

// trimBlankLines joins lines without leading or trailing blank lines and
// terminates the result with a newline.
func trimBlankLines(lines []string) string {
	start, end := 0, len(lines)
	for start < end && mdscan.IsBlank(lines[start]) {
		start++
	}
	for end > start && mdscan.IsBlank(lines[end-1]) {
		end--
	}
	if start == end {
		return ""
	}
	s := strings.Join(lines[start:end], "")
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s
}

// localAssets loads the images referenced by chapters from files relative to
// dir. Remote and missing references are skipped.
func localAssets(dir string, chapters []doctree.Chapter) []doctree.ImageAsset {
	var assets []doctree.ImageAsset
	seen := make(map[string]bool)
	for _, ch := range chapters {
		for _, ref := range ch.ImageRefs {
			if seen[ref] || mdscan.IsRemote(ref) {
				continue
			}
			seen[ref] = true

			p := ref
			if u, err := url.PathUnescape(ref); err == nil {
				p = u
			}
			if !filepath.IsAbs(p) {
				p = filepath.Join(dir, filepath.FromSlash(p))
			}
			data, err := os.ReadFile(p)
			if err != nil {
				continue
			}
			assets = append(assets, doctree.ImageAsset{
				OriginalPath: ref,
				Data:         data,
				Hash:         doctree.ContentHashHex(data),
			})
		}
	}
	return assets
}
