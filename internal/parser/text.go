package parser

import (
	"strings"

	"github.com/dgallion1/doctrans/internal/doctree"
	"github.com/dgallion1/doctrans/internal/mdscan"
)

// TextParser handles plain text files as a single untitled chapter.
type TextParser struct{}

func (p *TextParser) Parse(path string) (*doctree.Document, error) {
	src, err := readText(path)
	if err != nil {
		return nil, extractionError(path, err)
	}

	content := textToMarkdown(src)

	doc := &doctree.Document{
		Source: path,
		Format: doctree.FormatText,
		Title:  baseTitle(path),
	}
	if content != "" {
		doc.Chapters = []doctree.Chapter{{Index: 1, Content: content}}
	}
	return doc, nil
}

// textToMarkdown groups lines into blank-line separated paragraphs and
// escapes line prefixes markdown would otherwise interpret.
func textToMarkdown(src string) string {
	var paragraphs []string
	var current strings.Builder

	for _, line := range mdscan.Lines(src) {
		line = strings.TrimRight(line, " \t\r\n")
		if strings.TrimSpace(line) == "" {
			if current.Len() > 0 {
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			}
			continue
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(mdscan.EscapeLine(line))
	}
	if current.Len() > 0 {
		paragraphs = append(paragraphs, current.String())
	}
	if len(paragraphs) == 0 {
		return ""
	}
	return strings.Join(paragraphs, "\n\n") + "\n"
}
