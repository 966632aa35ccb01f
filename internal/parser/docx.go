package parser

import (
	"fmt"
	"os"
	"strings"

	"github.com/dgallion1/doctrans/internal/doctree"
	"github.com/dgallion1/doctrans/internal/mdscan"
	"github.com/fumiama/go-docx"
)

// DOCXParser handles .docx files. Heading styles become markdown headings
// and the result is split into chapters like a Markdown file.
type DOCXParser struct{}

func (p *DOCXParser) Parse(path string) (*doctree.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, extractionError(path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, extractionError(path, err)
	}
	d, err := docx.Parse(f, info.Size())
	if err != nil {
		return nil, extractionError(path, fmt.Errorf("parse docx: %w", err))
	}

	var blocks []string
	for _, item := range d.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		text := docxParagraphText(para)
		if text == "" {
			continue
		}
		if level := docxHeadingLevel(para); level > 0 {
			blocks = append(blocks, strings.Repeat("#", level)+" "+collapseSpace(text))
			continue
		}
		var lines []string
		for _, line := range strings.Split(text, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, mdscan.EscapeLine(line))
			}
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}

	doc := &doctree.Document{
		Source: path,
		Format: doctree.FormatDOCX,
		Title:  baseTitle(path),
	}
	if len(blocks) > 0 {
		doc.Chapters = splitChapters(strings.Join(blocks, "\n\n") + "\n")
	}
	return doc, nil
}

func docxHeadingLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	switch style {
	case "title", "heading1":
		return 1
	case "heading2":
		return 2
	case "heading3":
		return 3
	case "heading4":
		return 4
	case "heading5":
		return 5
	case "heading6":
		return 6
	}
	return 0
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
