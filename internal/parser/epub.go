package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dgallion1/doctrans/internal/doctree"
	"github.com/dgallion1/doctrans/internal/mdscan"
)

// EPUBParser handles .epub files. Chapters follow the spine's reading order.
type EPUBParser struct{}

type epubContainer struct {
	Rootfiles []struct {
		FullPath  string `xml:"full-path,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"rootfiles>rootfile"`
}

type epubPackage struct {
	Metadata struct {
		Titles    []string `xml:"title"`
		Languages []string `xml:"language"`
	} `xml:"metadata"`
	Manifest struct {
		Items []epubItem `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		ItemRefs []struct {
			IDRef  string `xml:"idref,attr"`
			Linear string `xml:"linear,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

type epubItem struct {
	ID        string `xml:"id,attr"`
	Href      string `xml:"href,attr"`
	MediaType string `xml:"media-type,attr"`
}

func (p *EPUBParser) Parse(filename string) (*doctree.Document, error) {
	zr, err := zip.OpenReader(filename)
	if err != nil {
		return nil, extractionError(filename, fmt.Errorf("open epub archive: %w", err))
	}
	defer zr.Close()

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	opfPath, err := epubRootfile(files)
	if err != nil {
		return nil, extractionError(filename, err)
	}
	opfData, err := readZipFile(files, opfPath)
	if err != nil {
		return nil, extractionError(filename, fmt.Errorf("read package document: %w", err))
	}
	var pkg epubPackage
	if err := xml.Unmarshal(opfData, &pkg); err != nil {
		return nil, extractionError(filename, fmt.Errorf("parse package document: %w", err))
	}

	doc := &doctree.Document{
		Source: filename,
		Format: doctree.FormatEPUB,
		Title:  baseTitle(filename),
	}
	if len(pkg.Metadata.Titles) > 0 && strings.TrimSpace(pkg.Metadata.Titles[0]) != "" {
		doc.Title = strings.TrimSpace(pkg.Metadata.Titles[0])
	}

	manifest := make(map[string]epubItem, len(pkg.Manifest.Items))
	for _, item := range pkg.Manifest.Items {
		manifest[item.ID] = item
	}

	packageDir := path.Dir(opfPath)
	assets := make(map[string]bool)

	for _, ref := range pkg.Spine.ItemRefs {
		if ref.Linear == "no" {
			continue
		}
		item, ok := manifest[ref.IDRef]
		if !ok || !isTextContent(item.MediaType) {
			continue
		}
		itemPath := resolveArchivePath(packageDir, item.Href)
		data, err := readZipFile(files, itemPath)
		if err != nil {
			return nil, extractionError(filename, fmt.Errorf("read spine item %s: %w", itemPath, err))
		}

		resolve := func(src string) string {
			if mdscan.IsRemote(src) {
				return src
			}
			target := resolveArchivePath(path.Dir(itemPath), src)
			if _, ok := files[target]; !ok {
				return src
			}
			ref := strings.ReplaceAll(target, " ", "%20")
			if !assets[ref] {
				imgData, err := readZipFile(files, target)
				if err != nil {
					return src
				}
				assets[ref] = true
				doc.Assets = append(doc.Assets, doctree.ImageAsset{
					OriginalPath: ref,
					Data:         imgData,
					Hash:         doctree.ContentHashHex(imgData),
				})
			}
			return ref
		}

		title, content, err := convertXHTML(data, resolve)
		if err != nil {
			return nil, extractionError(filename, fmt.Errorf("convert %s: %w", itemPath, err))
		}
		if title == "" && content == "" {
			continue
		}
		doc.Chapters = append(doc.Chapters, doctree.Chapter{
			Index:     len(doc.Chapters) + 1,
			Title:     title,
			Content:   content,
			ImageRefs: mdscan.ImageRefs(content),
		})
	}

	return doc, nil
}

// epubRootfile locates the package document via META-INF/container.xml.
func epubRootfile(files map[string]*zip.File) (string, error) {
	data, err := readZipFile(files, "META-INF/container.xml")
	if err != nil {
		return "", fmt.Errorf("read container: %w", err)
	}
	var container epubContainer
	if err := xml.Unmarshal(data, &container); err != nil {
		return "", fmt.Errorf("parse container: %w", err)
	}
	for _, rf := range container.Rootfiles {
		if rf.FullPath != "" {
			return rf.FullPath, nil
		}
	}
	return "", fmt.Errorf("container lists no rootfile")
}

// convertXHTML renders one spine item. The title is the first h1-h3, else
// the <title>; a leading heading repeating the title is dropped.
func convertXHTML(data []byte, resolve func(string) string) (string, string, error) {
	gq, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", "", err
	}

	title := collapseSpace(gq.Find("h1, h2, h3").First().Text())
	if title == "" {
		title = collapseSpace(gq.Find("title").First().Text())
	}

	root := gq.Find("body")
	if root.Length() == 0 {
		root = gq.Selection
	}
	md := htmlToMarkdown(root.Nodes[0], resolve)
	return title, dropLeadingTitle(md, title), nil
}

func dropLeadingTitle(md, title string) string {
	lines := mdscan.Lines(md)
	if len(lines) == 0 || title == "" {
		return md
	}
	if level, text := mdscan.Heading(lines[0]); level == 0 || text != title {
		return md
	}
	return trimBlankLines(lines[1:])
}

func isTextContent(mediaType string) bool {
	return strings.Contains(mediaType, "html")
}

// resolveArchivePath joins href onto dir inside the archive.
func resolveArchivePath(dir, href string) string {
	if i := strings.IndexAny(href, "#?"); i >= 0 {
		href = href[:i]
	}
	if u, err := url.PathUnescape(href); err == nil {
		href = u
	}
	if strings.HasPrefix(href, "/") {
		return strings.TrimPrefix(path.Clean(href), "/")
	}
	return path.Join(dir, href)
}

func readZipFile(files map[string]*zip.File, name string) ([]byte, error) {
	f, ok := files[name]
	if !ok {
		return nil, fmt.Errorf("%s not found in archive", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
