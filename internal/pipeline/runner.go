package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/dgallion1/doctrans/internal/backend"
	"github.com/dgallion1/doctrans/internal/doctree"
	"github.com/dgallion1/doctrans/internal/images"
	"github.com/dgallion1/doctrans/internal/lang"
	"github.com/dgallion1/doctrans/internal/layout"
	"github.com/dgallion1/doctrans/internal/parser"
)

// ErrFileNotFound is returned when the input file does not exist.
var ErrFileNotFound = errors.New("file not found")

// RunOptions describes one translation run.
type RunOptions struct {
	Input      string
	Language   string    // Name or code, e.g. "Italian" or "it"
	OutputRoot string    // Empty selects layout.DefaultRoot(Input)
	TestMode   bool      // Emit to Stdout instead of writing files
	Stdout     io.Writer // Test mode sink
}

// RunResult summarizes a finished run.
type RunResult struct {
	Original   *doctree.Document
	Translated *doctree.Document
	OutputRoot string
	LangCode   string
	Unresolved []string // Image references with no asset
}

// Runner wires extraction, image handling, translation and output.
type Runner struct {
	Backend backend.Backend
	Options Options
	Log     *slog.Logger

	// OnExtracted, when set, sees the document once images are resolved.
	OnExtracted func(doc *doctree.Document)
	// OnChapter is forwarded to the Translator.
	OnChapter func(index int, err error)
}

// Run translates opts.Input. Output is written even when some chapters
// fail; the returned error then joins their *TranslationError values.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("input", opts.Input)

	p, err := parser.ForFile(opts.Input)
	if err != nil {
		return nil, err
	}
	if pp, ok := p.(*parser.PDFParser); ok {
		pp.Log = log
	}
	if _, err := os.Stat(opts.Input); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, opts.Input)
		}
		return nil, &parser.ExtractionError{Path: opts.Input, Err: err}
	}

	doc, err := p.Parse(opts.Input)
	if err != nil {
		return nil, err
	}
	log.Info("document extracted", "format", doc.Format, "title", doc.Title, "chapters", len(doc.Chapters), "assets", len(doc.Assets))

	doc, unresolved := images.NewRegistry().Apply(doc, "..")
	for _, ref := range unresolved {
		log.Warn("image reference has no asset", "ref", ref)
	}

	res := &RunResult{
		Original:   doc,
		OutputRoot: opts.OutputRoot,
		LangCode:   lang.Code(opts.Language),
		Unresolved: unresolved,
	}
	if res.OutputRoot == "" {
		res.OutputRoot = layout.DefaultRoot(opts.Input)
	}
	if r.OnExtracted != nil {
		r.OnExtracted(doc)
	}

	tr := NewTranslator(r.Backend, r.Options, log)
	tr.OnChapter = r.OnChapter
	translated, terr := tr.Translate(ctx, doc, lang.Name(opts.Language))
	translated.Language = res.LangCode
	res.Translated = translated
	log.Info("translation finished", "translated", len(translated.Chapters), "failed", len(doc.Chapters)-len(translated.Chapters))

	if opts.TestMode {
		w := opts.Stdout
		if w == nil {
			w = os.Stdout
		}
		if err := layout.Emit(w, translated); err != nil {
			return res, fmt.Errorf("emit translation: %w", err)
		}
		return res, terr
	}

	b := layout.Builder{Root: res.OutputRoot, LangCode: res.LangCode, Log: log}
	if err := b.Write(doc, translated); err != nil {
		return res, err
	}
	return res, terr
}
