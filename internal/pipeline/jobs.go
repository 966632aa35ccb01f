package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the state of a translation job.
type JobStatus string

const (
	StatusQueued      JobStatus = "queued"
	StatusExtracting  JobStatus = "extracting"
	StatusTranslating JobStatus = "translating"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
	StatusPartial     JobStatus = "partial"
)

// Job tracks the state of a single uploaded document.
type Job struct {
	mu sync.Mutex

	ID       string `json:"job_id"`
	Filename string `json:"filename"`
	Language string `json:"language"`
	Model    string `json:"model,omitempty"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`
	Title  string    `json:"title"`

	Progress Progress `json:"progress"`

	OutputRoot string    `json:"output_root,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData []byte
	errors   []string
}

// Progress tracks processing progress.
type Progress struct {
	TotalChapters  int      `json:"total_chapters"`
	ChaptersDone   int      `json:"chapters_done"`
	ChaptersFailed int      `json:"chapters_failed"`
	Errors         []string `json:"errors"`
}

// NewJob creates a queued job with a fresh ID.
func NewJob(filename, language, model string) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		Filename:  filename,
		Language:  language,
		Model:     model,
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes expired jobs and returns their IDs.
func (s *JobStore) Cleanup() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var removed []string
	for id, job := range s.jobs {
		job.mu.Lock()
		updated := job.UpdatedAt
		job.mu.Unlock()
		if now.Sub(updated) > s.ttl {
			delete(s.jobs, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetExtracted records the document title and chapter count.
func (j *Job) SetExtracted(title string, chapters int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Title = title
	j.Progress.TotalChapters = chapters
	j.UpdatedAt = time.Now()
}

// ChapterDone counts a finished chapter; a non-nil err marks it failed.
func (j *Job) ChapterDone(index int, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err != nil {
		j.Progress.ChaptersFailed++
		j.errors = append(j.errors, fmt.Sprintf("chapter %d: %s", index, err))
		j.Progress.Errors = j.errors
	} else {
		j.Progress.ChaptersDone++
	}
	j.UpdatedAt = time.Now()
}

// SetOutputRoot records where the job's tree was written.
func (j *Job) SetOutputRoot(root string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OutputRoot = root
	j.UpdatedAt = time.Now()
}

// SetFileData sets the raw file bytes for processing.
func (j *Job) SetFileData(data []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = data
}

// FileData returns the raw file bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID         string    `json:"job_id"`
	Filename   string    `json:"filename"`
	Language   string    `json:"language"`
	Model      string    `json:"model,omitempty"`
	Status     JobStatus `json:"status"`
	Phase      string    `json:"phase"`
	Title      string    `json:"title"`
	Progress   Progress  `json:"progress"`
	OutputRoot string    `json:"output_root,omitempty"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := make([]string, len(j.Progress.Errors))
	copy(errs, j.Progress.Errors)
	return JobSnapshot{
		ID:       j.ID,
		Filename: j.Filename,
		Language: j.Language,
		Model:    j.Model,
		Status:   j.Status,
		Phase:    j.Phase,
		Title:    j.Title,
		Progress: Progress{
			TotalChapters:  j.Progress.TotalChapters,
			ChaptersDone:   j.Progress.ChaptersDone,
			ChaptersFailed: j.Progress.ChaptersFailed,
			Errors:         errs,
		},
		OutputRoot: j.OutputRoot,
	}
}
