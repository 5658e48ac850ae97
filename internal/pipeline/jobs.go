package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgallion1/gccquiz/internal/report"
)

// FileStatus is the processing state of one report file.
type FileStatus string

const (
	StatusQueued     FileStatus = "queued"
	StatusExtracting FileStatus = "extracting"
	StatusChunking   FileStatus = "chunking"
	StatusGenerating FileStatus = "generating"
	StatusCompleted  FileStatus = "completed"
	StatusFailed     FileStatus = "failed"
	StatusDupSkipped FileStatus = "duplicate_skipped"
	StatusNoText     FileStatus = "no_text"
)

// FileJob tracks one report through extraction, chunking and generation.
type FileJob struct {
	mu sync.Mutex

	Path    string
	Company string
	Country string

	Status   FileStatus
	Progress Progress

	ContentHash string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	errors []string
}

// Progress counts a file's work items.
type Progress struct {
	TotalChunks      int      `json:"total_chunks"`
	ChunksUsed       int      `json:"chunks_used"`
	QuestionsWritten int      `json:"questions_written"`
	Rejected         int      `json:"rejected"`
	Errors           []string `json:"errors"`
}

func NewFileJob(doc report.Document) *FileJob {
	now := time.Now()
	return &FileJob{
		Path:      doc.Path,
		Company:   doc.Company,
		Country:   doc.Country,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SetStatus updates job status atomically.
func (j *FileJob) SetStatus(status FileStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *FileJob) AddError(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err.Error())
	j.UpdatedAt = time.Now()
}

// SetChunks records how many chunks the file produced.
func (j *FileJob) SetChunks(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.TotalChunks = n
	j.UpdatedAt = time.Now()
}

// AddResult records one generation call against a chunk of this file.
func (j *FileJob) AddResult(written, rejected int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.ChunksUsed++
	j.Progress.QuestionsWritten += written
	j.Progress.Rejected += rejected
	j.UpdatedAt = time.Now()
}

func (j *FileJob) SetContentHash(h string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ContentHash = h
}

// FileSnapshot is a read-only, JSON-safe copy of job state.
type FileSnapshot struct {
	Path     string     `json:"path"`
	Company  string     `json:"company"`
	Country  string     `json:"country"`
	Status   FileStatus `json:"status"`
	Progress Progress   `json:"progress"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *FileJob) Snapshot() FileSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := append([]string{}, j.errors...)
	p := j.Progress
	p.Errors = errs
	return FileSnapshot{
		Path:     j.Path,
		Company:  j.Company,
		Country:  j.Country,
		Status:   j.Status,
		Progress: p,
	}
}

// JobStore is a thread-safe registry of the run's file jobs keyed by path.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*FileJob
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*FileJob)}
}

func (s *JobStore) Put(job *FileJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.Path] = job
}

func (s *JobStore) Get(path string) *FileJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[path]
}

// Snapshots returns every job ordered by path.
func (s *JobStore) Snapshots() []FileSnapshot {
	s.mu.Lock()
	jobs := make([]*FileJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	out := make([]FileSnapshot, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Snapshot())
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Path < out[k].Path })
	return out
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
