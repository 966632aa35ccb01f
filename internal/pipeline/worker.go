package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgallion1/doctrans/internal/backend"
	"github.com/dgallion1/doctrans/internal/doctree"
)

// Worker processes a single translation job.
type Worker struct {
	backend backend.Backend
	opts    Options
	workDir string
	log     *slog.Logger
}

func NewWorker(b backend.Backend, opts Options, workDir string, log *slog.Logger) *Worker {
	return &Worker{
		backend: b,
		opts:    opts,
		workDir: workDir,
		log:     log,
	}
}

// Process stores the upload under the job's work directory and runs it.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "filename", job.Filename, "language", job.Language)
	defer job.SetFileData(nil)

	job.SetStatus(StatusExtracting, "extracting")
	dir := filepath.Join(w.workDir, job.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.fail(log, job, "extracting", fmt.Errorf("create work dir: %w", err))
		return
	}
	input := filepath.Join(dir, job.Filename)
	if err := os.WriteFile(input, job.FileData(), 0o644); err != nil {
		w.fail(log, job, "extracting", fmt.Errorf("store upload: %w", err))
		return
	}

	opts := w.opts
	if job.Model != "" {
		opts.Model = job.Model
	}
	r := &Runner{
		Backend: w.backend,
		Options: opts,
		Log:     log,
		OnExtracted: func(doc *doctree.Document) {
			job.SetExtracted(doc.Title, len(doc.Chapters))
			job.SetStatus(StatusTranslating, "translating")
		},
		OnChapter: job.ChapterDone,
	}

	res, err := r.Run(ctx, RunOptions{
		Input:      input,
		Language:   job.Language,
		OutputRoot: filepath.Join(dir, "out"),
	})
	if res != nil {
		job.SetOutputRoot(res.OutputRoot)
	}

	var trErr *TranslationError
	switch {
	case err == nil:
		log.Info("job completed")
		job.SetStatus(StatusCompleted, "done")
	case errors.As(err, &trErr) && res != nil && len(res.Translated.Chapters) > 0:
		log.Warn("job partially translated", "error", err)
		job.SetStatus(StatusPartial, "done")
	case errors.As(err, &trErr):
		log.Error("job failed", "error", err)
		job.SetStatus(StatusFailed, "translating")
	case res != nil:
		w.fail(log, job, "writing", err)
	default:
		w.fail(log, job, "extracting", err)
	}
}

func (w *Worker) fail(log *slog.Logger, job *Job, phase string, err error) {
	log.Error("job failed", "phase", phase, "error", err)
	job.AddError(err.Error())
	job.SetStatus(StatusFailed, phase)
}
