package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/dgallion1/doctrans/internal/backend"
	"github.com/dgallion1/doctrans/internal/config"
	"github.com/dgallion1/doctrans/internal/layout"
	"github.com/dgallion1/doctrans/internal/parser"
	"github.com/dgallion1/doctrans/internal/pipeline"
	"github.com/spf13/cobra"
)

const (
	exitOK          = 0
	exitOther       = 1
	exitUnsupported = 2
	exitExtraction  = 3
	exitTranslation = 4
	exitWrite       = 5
	exitNotFound    = 6
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type flags struct {
	language    string
	model       string
	test        bool
	backend     string
	output      string
	concurrency int
	lookahead   int
	maxChars    int
	rateLimit   float64
	verbose     bool
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var f flags
	code := exitOK

	cmd := &cobra.Command{
		Use:   "translate --language <language> [flags] <input_file>",
		Short: "Translate a PDF, EPUB, Markdown or text document chapter by chapter",
		Long: heredoc.Docf(`
			Translate a document into another language while keeping its chapter
			structure, markdown formatting and images.

			Supported inputs: %s

			The original and translated chapters are written as markdown under
			<output>/original and <output>/<language code>, images under
			<output>/images. Without --output the tree is created next to the
			input file, in a directory named after it.`, strings.Join(parser.Extensions(), " ")),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := translate(cmd.Context(), cmd, f, args[0], stdout, stderr)
			code = exitCode(err)
			return err
		},
	}
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	fl := cmd.Flags()
	fl.StringVarP(&f.language, "language", "l", "", "target language, e.g. Italian or it")
	fl.StringVarP(&f.model, "model", "m", "", "model name (default "+config.DefaultOllamaModel+" for ollama)")
	fl.BoolVarP(&f.test, "test", "t", false, "print the translation instead of writing files")
	fl.StringVarP(&f.backend, "backend", "b", "", "translation backend: ollama, anthropic, openai or gemini")
	fl.StringVarP(&f.output, "output", "o", "", "output root directory")
	fl.IntVar(&f.concurrency, "concurrency", 0, "chapters translated at once")
	fl.IntVar(&f.lookahead, "lookahead", 0, "backend calls in flight per chapter")
	fl.IntVar(&f.maxChars, "max-chars", 0, "maximum characters per backend call")
	fl.Float64Var(&f.rateLimit, "rate-limit", 0, "maximum backend calls per second, 0 for unlimited")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	_ = cmd.MarkFlagRequired("language")

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if code == exitOK {
			code = exitOther
		}
	}
	return code
}

func translate(ctx context.Context, cmd *cobra.Command, f flags, input string, stdout, stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := applyFlags(&cfg, cmd, f); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := cfg.LogLevel
	if f.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	b, err := backend.New(ctx, cfg.BackendConfig(log))
	if err != nil {
		return err
	}
	defer backend.Close(b)
	stats := backend.NewLLMStats(cfg.StatsWindow)
	b = backend.RateLimited(backend.Instrument(b, string(cfg.Backend), stats), cfg.RateLimit)

	model := cfg.Model
	if model == "" {
		model = "(" + string(cfg.Backend) + " default)"
	}
	mode := "Production"
	if f.test {
		mode = "Testing"
	}
	fmt.Fprint(stdout, heredoc.Docf(`

		Configuration:
		-------------
		Target language: %s
		Model: %s
		Input file: %s
		Mode: %s

		Translating...
		`, f.language, model, input, mode))
	if f.test {
		fmt.Fprint(stdout, "\nTranslated text:\n---------------\n")
	}

	r := &pipeline.Runner{Backend: b, Options: pipeline.OptionsFromConfig(cfg), Log: log}
	res, err := r.Run(ctx, pipeline.RunOptions{
		Input:      input,
		Language:   f.language,
		OutputRoot: f.output,
		TestMode:   f.test,
		Stdout:     stdout,
	})
	snap := stats.Snapshot()
	log.Debug("backend calls", "count", snap.Count, "failed", snap.Failed, "avg_ms", snap.AvgMs, "p95_ms", snap.P95Ms)

	if res != nil && !f.test && !isRunAborted(err) {
		fmt.Fprintf(stdout, "\nTranslation saved to: %s\n", filepath.Join(res.OutputRoot, res.LangCode))
	}
	return err
}

// applyFlags lets explicitly set flags override the environment.
func applyFlags(cfg *config.Config, cmd *cobra.Command, f flags) error {
	fl := cmd.Flags()
	if fl.Changed("backend") {
		kind, err := backend.ParseKind(f.backend)
		if err != nil {
			return err
		}
		if kind != backend.KindOllama && cfg.Model == config.DefaultOllamaModel && !fl.Changed("model") {
			cfg.Model = ""
		}
		cfg.Backend = kind
	}
	if fl.Changed("model") {
		cfg.Model = f.model
	}
	if f.concurrency > 0 {
		cfg.ChapterConcurrency = f.concurrency
	}
	if f.lookahead > 0 {
		cfg.Lookahead = f.lookahead
	}
	if f.maxChars > 0 {
		cfg.MaxChars = f.maxChars
	}
	if f.rateLimit > 0 {
		cfg.RateLimit = f.rateLimit
	}
	return nil
}

// isRunAborted reports whether err stopped the run before output was
// written.
func isRunAborted(err error) bool {
	if err == nil {
		return false
	}
	var trErr *pipeline.TranslationError
	return !errors.As(err, &trErr) || errors.Is(err, context.Canceled)
}

// exitCode maps a run error to the process exit status.
func exitCode(err error) int {
	var (
		unsupported *parser.UnsupportedFormatError
		extractErr  *parser.ExtractionError
		writeErr    *layout.WriteError
		trErr       *pipeline.TranslationError
	)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, pipeline.ErrFileNotFound):
		return exitNotFound
	case errors.As(err, &unsupported):
		return exitUnsupported
	case errors.As(err, &extractErr):
		return exitExtraction
	case errors.As(err, &writeErr):
		return exitWrite
	case errors.Is(err, context.Canceled):
		return exitOther
	case errors.As(err, &trErr):
		return exitTranslation
	default:
		return exitOther
	}
}
