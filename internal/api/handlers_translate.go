package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dgallion1/doctrans/internal/parser"
	"github.com/dgallion1/doctrans/internal/pipeline"
	"github.com/go-chi/chi/v5"
)

const formOverhead = 1 << 20

// acceptedJob is returned for every queued upload.
type acceptedJob struct {
	JobID    string             `json:"job_id,omitempty"`
	Filename string             `json:"filename"`
	Language string             `json:"language,omitempty"`
	Status   pipeline.JobStatus `json:"status,omitempty"`
	PollURL  string             `json:"poll_url,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// uploadError carries the HTTP status for a rejected upload.
type uploadError struct {
	code int
	msg  string
}

func (e *uploadError) Error() string { return e.msg }

// translateForm parses the multipart body shared by the single and batch
// endpoints. It writes the error response itself and returns ok=false.
func (s *Server) translateForm(w http.ResponseWriter, r *http.Request, maxBody, maxMemory int64) (language, model string, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return "", "", false
	}
	language = strings.TrimSpace(r.FormValue("language"))
	if language == "" {
		jsonError(w, "language is required", http.StatusBadRequest)
		return "", "", false
	}
	return language, strings.TrimSpace(r.FormValue("model")), true
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	language, model, ok := s.translateForm(w, r, s.cfg.MaxUploadBytes+formOverhead, 32<<20)
	if !ok {
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	accepted, err := s.enqueue(file, header.Filename, language, model)
	if err != nil {
		code := http.StatusServiceUnavailable
		var ue *uploadError
		if errors.As(err, &ue) {
			code = ue.code
		}
		jsonError(w, err.Error(), code)
		return
	}
	writeJSON(w, http.StatusAccepted, accepted)
}

func (s *Server) handleBatchTranslate(w http.ResponseWriter, r *http.Request) {
	language, model, ok := s.translateForm(w, r, s.cfg.MaxUploadBytes*10+10*formOverhead, 64<<20)
	if !ok {
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		jsonError(w, "at least one file is required", http.StatusBadRequest)
		return
	}

	jobs := make([]acceptedJob, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			jobs = append(jobs, acceptedJob{Filename: sanitizeFilename(fh.Filename), Error: "failed to open file"})
			continue
		}
		accepted, err := s.enqueue(f, fh.Filename, language, model)
		f.Close()
		if err != nil {
			accepted = acceptedJob{Filename: sanitizeFilename(fh.Filename), Error: err.Error()}
		}
		jobs = append(jobs, accepted)
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"jobs": jobs})
}

func (s *Server) handleTranslateStatus(w http.ResponseWriter, r *http.Request) {
	job := s.jobs.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

// enqueue validates one upload, reads it into memory and submits the job.
func (s *Server) enqueue(file io.Reader, name, language, model string) (acceptedJob, error) {
	filename := sanitizeFilename(name)
	if !parser.IsSupportedExtension(filename) {
		return acceptedJob{}, &uploadError{http.StatusBadRequest, fmt.Sprintf("unsupported file type %q (supported: %s)",
			filepath.Ext(filename), strings.Join(parser.Extensions(), " "))}
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return acceptedJob{}, &uploadError{http.StatusInternalServerError, "failed to read file"}
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return acceptedJob{}, &uploadError{http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes)}
	}

	job := pipeline.NewJob(filename, language, model)
	job.SetFileData(data)
	if err := s.jobs.Submit(job); err != nil {
		return acceptedJob{}, err
	}
	s.log.Info("job queued", "job_id", job.ID, "filename", filename, "language", language, "bytes", len(data))

	snap := job.Snapshot()
	return acceptedJob{
		JobID:    snap.ID,
		Filename: snap.Filename,
		Language: snap.Language,
		Status:   snap.Status,
		PollURL:  "/api/translate/" + snap.ID + "/status",
	}, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// sanitizeFilename reduces an uploaded name to a safe base name.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.NewReplacer("/", "_", "..", "_").Replace(name)
	if name == "" || name == "." {
		return "unnamed"
	}
	return name
}
