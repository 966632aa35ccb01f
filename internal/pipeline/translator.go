package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dgallion1/doctrans/internal/backend"
	"github.com/dgallion1/doctrans/internal/chunker"
	"github.com/dgallion1/doctrans/internal/doctree"
	"github.com/dgallion1/doctrans/internal/mdscan"
	"golang.org/x/sync/errgroup"
)

// TranslationError reports the unit that failed a chapter. Unit is -1 when
// the chapter title failed.
type TranslationError struct {
	Chapter int
	Unit    int
	Err     error
}

func (e *TranslationError) Error() string {
	if e.Unit < 0 {
		return fmt.Sprintf("translate chapter %d title: %v", e.Chapter, e.Err)
	}
	return fmt.Sprintf("translate chapter %d unit %d: %v", e.Chapter, e.Unit, e.Err)
}

func (e *TranslationError) Unwrap() error { return e.Err }

// Options tunes a Translator.
type Options struct {
	Model              string // Passed to every backend call; empty uses the backend default
	ChapterConcurrency int    // Chapters translated at once
	Lookahead          int    // Backend calls in flight per chapter
	Chunker            chunker.Config
	Retry              RetryPolicy
}

func DefaultOptions() Options {
	return Options{
		ChapterConcurrency: 2,
		Lookahead:          4,
		Chunker:            chunker.DefaultConfig(),
		Retry:              DefaultRetryPolicy(),
	}
}

// Translator turns a Document into its translation chapter by chapter.
type Translator struct {
	backend backend.Backend
	opts    Options
	log     *slog.Logger

	// OnChapter, when set, is called once per chapter as it finishes.
	OnChapter func(index int, err error)
}

func NewTranslator(b backend.Backend, opts Options, log *slog.Logger) *Translator {
	if log == nil {
		log = slog.Default()
	}
	if opts.ChapterConcurrency <= 0 {
		opts.ChapterConcurrency = 1
	}
	if opts.Lookahead <= 0 {
		opts.Lookahead = 1
	}
	return &Translator{backend: b, opts: opts, log: log}
}

// Translate returns a new document holding every chapter that translated
// completely, in source order. Chapters that failed are left out and their
// *TranslationError values are joined into the returned error.
func (t *Translator) Translate(ctx context.Context, doc *doctree.Document, targetLanguage string) (*doctree.Document, error) {
	done := make([]*doctree.Chapter, len(doc.Chapters))
	errs := make([]error, len(doc.Chapters))

	var g errgroup.Group
	g.SetLimit(t.opts.ChapterConcurrency)
	for i := range doc.Chapters {
		ch := doc.Chapters[i]
		g.Go(func() error {
			out, err := t.translateChapter(ctx, ch, targetLanguage)
			done[i], errs[i] = out, err
			if t.OnChapter != nil {
				t.OnChapter(ch.Index, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	out := *doc
	out.Language = targetLanguage
	out.Chapters = make([]doctree.Chapter, 0, len(doc.Chapters))
	for _, ch := range done {
		if ch != nil {
			out.Chapters = append(out.Chapters, *ch)
		}
	}
	return &out, errors.Join(errs...)
}

func (t *Translator) translateChapter(ctx context.Context, ch doctree.Chapter, targetLanguage string) (*doctree.Chapter, error) {
	log := t.log.With("chapter", ch.Index)
	if err := ctx.Err(); err != nil {
		return nil, &TranslationError{Chapter: ch.Index, Unit: 0, Err: err}
	}

	title := ch.Title
	if strings.TrimSpace(title) != "" {
		out, err := t.translateSpan(ctx, log, title, targetLanguage)
		if err != nil {
			log.Error("title translation failed", "error", err)
			return nil, &TranslationError{Chapter: ch.Index, Unit: -1, Err: err}
		}
		title = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(out), "#"))
	}

	units := chunker.Split(ch, t.opts.Chunker)
	results := make([]string, len(units))

	chCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		failure *TranslationError
	)
	fail := func(seq int, err error) {
		mu.Lock()
		defer mu.Unlock()
		if failure == nil {
			failure = &TranslationError{Chapter: ch.Index, Unit: seq, Err: err}
			cancel()
		}
	}

	sem := make(chan struct{}, t.opts.Lookahead)
	issued := 0
issue:
	for _, u := range units {
		if u.Kind == doctree.KindVerbatim {
			results[u.Seq] = u.Text
			issued++
			continue
		}
		select {
		case sem <- struct{}{}:
		case <-chCtx.Done():
			break issue
		}
		issued++
		wg.Add(1)
		go func(u doctree.Unit) {
			defer wg.Done()
			defer func() { <-sem }()
			out, err := t.translateUnit(chCtx, log.With("unit", u.Seq), u.Text, targetLanguage)
			if err != nil {
				fail(u.Seq, err)
				return
			}
			results[u.Seq] = out
		}(u)
	}
	wg.Wait()

	if failure != nil {
		log.Error("chapter failed", "unit", failure.Unit, "error", failure.Err)
		return nil, failure
	}
	if err := ctx.Err(); err != nil {
		return nil, &TranslationError{Chapter: ch.Index, Unit: issued, Err: err}
	}

	var sb strings.Builder
	for _, r := range results {
		sb.WriteString(r)
	}
	content := sb.String()
	log.Debug("chapter translated", "units", len(units))
	return &doctree.Chapter{
		Index:     ch.Index,
		Title:     title,
		Content:   content,
		ImageRefs: mdscan.ImageRefs(content),
	}, nil
}

// translateUnit sends the trimmed core of a span and restores its
// surrounding whitespace and inline images.
func (t *Translator) translateUnit(ctx context.Context, log *slog.Logger, text, targetLanguage string) (string, error) {
	core := strings.TrimSpace(text)
	if core == "" {
		return text, nil
	}
	lead := text[:strings.Index(text, core)]
	trail := text[len(lead)+len(core):]

	protected, refs := protectImages(core)
	out, err := t.translateSpan(ctx, log, protected, targetLanguage)
	if err != nil {
		return "", err
	}
	return lead + restoreImages(out, refs) + trail, nil
}

func (t *Translator) translateSpan(ctx context.Context, log *slog.Logger, text, targetLanguage string) (string, error) {
	var out string
	err := t.opts.Retry.Do(ctx, func(attempt int, err error) {
		log.Warn("retryable translation error", "attempt", attempt, "error", err)
	}, func(ctx context.Context) error {
		var err error
		out, err = t.backend.Translate(ctx, text, targetLanguage, t.opts.Model)
		return err
	})
	return out, err
}
