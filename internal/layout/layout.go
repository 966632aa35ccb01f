package layout

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/doctrans/internal/doctree"
	"github.com/dgallion1/doctrans/internal/images"
)

// OriginalDir holds the untranslated chapters.
const OriginalDir = "original"

// WriteError reports a destination that could not be written.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Builder writes one run's output. Root is created if missing.
type Builder struct {
	Root     string
	LangCode string
	Log      *slog.Logger
}

// DefaultRoot is the output root used when none is given: a directory next
// to the input named after it without its extension.
func DefaultRoot(input string) string {
	base := filepath.Base(input)
	return filepath.Join(filepath.Dir(input), strings.TrimSuffix(base, filepath.Ext(base)))
}

// ChapterFileName returns chapter_NN.md for a 1-based index.
func ChapterFileName(index int) string {
	return fmt.Sprintf("chapter_%02d.md", index)
}

// ChapterFile renders a chapter as written to disk.
func ChapterFile(ch doctree.Chapter) string {
	if strings.TrimSpace(ch.Title) == "" {
		return ch.Content
	}
	return "# " + ch.Title + "\n\n" + ch.Content
}

// Write stores every chapter of orig under original/, every chapter of
// translated under <LangCode>/ and each canonical asset of orig once under
// images/. A nil translated writes the original tree only.
func (b Builder) Write(orig, translated *doctree.Document) error {
	log := b.Log
	if log == nil {
		log = slog.Default()
	}
	if b.LangCode == "" || b.LangCode == OriginalDir || b.LangCode == images.Dir {
		return &WriteError{Path: filepath.Join(b.Root, b.LangCode), Err: fmt.Errorf("invalid language directory %q", b.LangCode)}
	}

	origDir := filepath.Join(b.Root, OriginalDir)
	if err := writeChapters(origDir, orig.Chapters); err != nil {
		return err
	}
	if translated != nil {
		if err := writeChapters(filepath.Join(b.Root, b.LangCode), translated.Chapters); err != nil {
			return err
		}
	}

	imgDir := filepath.Join(b.Root, images.Dir)
	if len(orig.Assets) > 0 {
		if err := mkdir(imgDir); err != nil {
			return err
		}
	}
	skipped := 0
	for _, a := range orig.Assets {
		if a.CanonicalName == "" {
			continue
		}
		changed, err := writeIfChanged(filepath.Join(imgDir, a.CanonicalName), a.Data)
		if err != nil {
			return err
		}
		if !changed {
			skipped++
		}
	}
	log.Info("output written", "root", b.Root, "lang", b.LangCode,
		"original", len(orig.Chapters), "translated", chapterCount(translated),
		"images", len(orig.Assets), "images_unchanged", skipped)
	return nil
}

func chapterCount(d *doctree.Document) int {
	if d == nil {
		return 0
	}
	return len(d.Chapters)
}

// writeChapters writes chapters into dir and removes chapter files left
// there by an earlier run that this one did not produce.
func writeChapters(dir string, chapters []doctree.Chapter) error {
	if err := mkdir(dir); err != nil {
		return err
	}
	keep := make(map[string]bool, len(chapters))
	for _, ch := range chapters {
		name := ChapterFileName(ch.Index)
		keep[name] = true
		if err := writeAtomic(filepath.Join(dir, name), []byte(ChapterFile(ch))); err != nil {
			return err
		}
	}
	stale, err := filepath.Glob(filepath.Join(dir, "chapter_[0-9]*.md"))
	if err != nil {
		return &WriteError{Path: dir, Err: err}
	}
	for _, p := range stale {
		if keep[filepath.Base(p)] {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return &WriteError{Path: p, Err: err}
		}
	}
	return nil
}

func mkdir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &WriteError{Path: dir, Err: err}
	}
	return nil
}

// writeIfChanged skips the write when path already holds data.
func writeIfChanged(path string, data []byte) (bool, error) {
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
		return false, nil
	}
	return true, writeAtomic(path, data)
}

// writeAtomic writes to a temporary file in the same directory and renames
// it into place.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &WriteError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &WriteError{Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return &WriteError{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

// Emit streams the translated chapters to w instead of writing files.
func Emit(w io.Writer, translated *doctree.Document) error {
	for i, ch := range translated.Chapters {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		text := ChapterFile(ch)
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		if _, err := io.WriteString(w, text); err != nil {
			return err
		}
	}
	return nil
}
