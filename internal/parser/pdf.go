package parser

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/dgallion1/doctrans/internal/doctree"
	"github.com/dgallion1/doctrans/internal/mdscan"
	pdflib "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFParser handles PDF files. Top-level bookmarks delimit chapters; page
// text comes from ledongthuc/pdf, bookmarks and images from pdfcpu.
type PDFParser struct {
	Log *slog.Logger
}

type pdfMark struct {
	title string
	page  int
}

func (p *PDFParser) Parse(path string) (*doctree.Document, error) {
	log := p.Log
	if log == nil {
		log = slog.Default()
	}

	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, extractionError(path, fmt.Errorf("open pdf: %w", err))
	}
	defer f.Close()

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, extractionError(path, fmt.Errorf("pdf has no pages"))
	}

	pages := make([]string, numPages+1)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			log.Warn("pdf page text unavailable", "path", path, "page", i, "error", err)
			continue
		}
		pages[i] = textToMarkdown(text)
	}

	doc := &doctree.Document{
		Source: path,
		Format: doctree.FormatPDF,
		Title:  baseTitle(path),
	}
	infoTitle := strings.TrimSpace(reader.Trailer().Key("Info").Key("Title").Text())
	if infoTitle != "" {
		doc.Title = infoTitle
	}

	marks, images, err := pdfStructure(path, numPages)
	if err != nil {
		log.Warn("pdf structure unavailable", "path", path, "error", err)
	}
	for _, img := range images {
		pages[img.page] += "\n![](" + img.asset.OriginalPath + ")\n"
		doc.Assets = append(doc.Assets, img.asset)
	}

	if len(marks) == 0 {
		title := infoTitle
		if title == "" {
			title = "Untitled"
		}
		doc.Chapters = []doctree.Chapter{newPDFChapter(1, title, pages[1:])}
		return doc, nil
	}

	for i, m := range marks {
		start, end := m.page, numPages
		if i == 0 {
			start = 1
		}
		if i+1 < len(marks) {
			end = marks[i+1].page - 1
		}
		var span []string
		if end >= start {
			span = pages[start : end+1]
		}
		doc.Chapters = append(doc.Chapters, newPDFChapter(i+1, m.title, span))
	}
	return doc, nil
}

func newPDFChapter(index int, title string, pages []string) doctree.Chapter {
	var parts []string
	for _, pg := range pages {
		if strings.TrimSpace(pg) != "" {
			parts = append(parts, strings.TrimLeft(pg, "\n"))
		}
	}
	content := strings.Join(parts, "\n")
	return doctree.Chapter{
		Index:     index,
		Title:     title,
		Content:   content,
		ImageRefs: mdscan.ImageRefs(content),
	}
}

type pdfImage struct {
	page  int
	asset doctree.ImageAsset
}

// pdfStructure reads the top-level bookmarks and the embedded images. A
// document without an outline yields no marks and no error.
func pdfStructure(path string, numPages int) ([]pdfMark, []pdfImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	var marks []pdfMark
	if bookmarks, err := api.Bookmarks(f, conf); err == nil {
		for _, bm := range bookmarks {
			title := collapseSpace(bm.Title)
			if bm.PageFrom < 1 || bm.PageFrom > numPages {
				continue
			}
			if title == "" {
				title = fmt.Sprintf("Page %d", bm.PageFrom)
			}
			marks = append(marks, pdfMark{title: title, page: bm.PageFrom})
		}
		sort.SliceStable(marks, func(i, j int) bool { return marks[i].page < marks[j].page })
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return marks, nil, err
	}
	pageImages, err := api.ExtractImagesRaw(f, nil, conf)
	if err != nil {
		return marks, nil, fmt.Errorf("extract images: %w", err)
	}

	var images []pdfImage
	for _, byObj := range pageImages {
		objs := make([]int, 0, len(byObj))
		for objNr := range byObj {
			objs = append(objs, objNr)
		}
		sort.Ints(objs)
		for _, objNr := range objs {
			img := byObj[objNr]
			if img.PageNr < 1 || img.PageNr > numPages {
				continue
			}
			data, err := io.ReadAll(img)
			if err != nil || len(data) == 0 {
				continue
			}
			name := fmt.Sprintf("page%03d_img%02d", img.PageNr, countOnPage(images, img.PageNr)+1)
			if img.FileType != "" {
				name += "." + strings.ToLower(img.FileType)
			}
			images = append(images, pdfImage{
				page: img.PageNr,
				asset: doctree.ImageAsset{
					OriginalPath: name,
					Data:         data,
					Hash:         doctree.ContentHashHex(data),
				},
			})
		}
	}
	sort.SliceStable(images, func(i, j int) bool { return images[i].page < images[j].page })
	return marks, images, nil
}

func countOnPage(images []pdfImage, page int) int {
	n := 0
	for _, img := range images {
		if img.page == page {
			n++
		}
	}
	return n
}
