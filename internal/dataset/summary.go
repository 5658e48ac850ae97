package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/gccquiz/internal/generate"
	"github.com/dgallion1/gccquiz/internal/report"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

const (
	SummaryJSONName = "run_summary.json"
	SummaryCSVName  = "processing_summary.csv"
)

// Counts are the per-country and per-company counters of a run.
type Counts struct {
	FilesFound         int                        `json:"files_found"`
	FilesProcessed     int                        `json:"files_processed"`
	FilesFailed        int                        `json:"files_failed"`
	Chunks             int                        `json:"chunks"`
	QuestionsGenerated int                        `json:"questions_generated"`
	Failures           map[report.FailureKind]int `json:"failures"`
}

func (c *Counts) failure(kind report.FailureKind) {
	if c.Failures == nil {
		c.Failures = make(map[report.FailureKind]int)
	}
	c.Failures[kind]++
}

// CountryStats is one country's row in the summary.
type CountryStats struct {
	Country string `json:"country"`
	Counts
}

// CompanyStats is one company's row in the summary.
type CompanyStats struct {
	Company    string         `json:"company"`
	Code       string         `json:"code"`
	Country    string         `json:"country"`
	Categories map[string]int `json:"categories,omitempty"`
	Counts
}

// Failure is a single recorded error.
type Failure struct {
	Kind    report.FailureKind `json:"kind"`
	Country string             `json:"country,omitempty"`
	Company string             `json:"company,omitempty"`
	Source  string             `json:"source,omitempty"`
	Error   string             `json:"error"`
}

// Skip is an input path that was not processed.
type Skip struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// RunSummary is the serialized end-of-run report.
type RunSummary struct {
	RunID           string                  `json:"run_id"`
	StartedAt       time.Time               `json:"started_at"`
	FinishedAt      time.Time               `json:"finished_at"`
	DurationSec     float64                 `json:"duration_sec"`
	Interrupted     bool                    `json:"interrupted"`
	FatalError      string                  `json:"fatal_error,omitempty"`
	ExistingRecords int                     `json:"existing_records"`
	Totals          Counts                  `json:"totals"`
	Countries       []CountryStats          `json:"countries"`
	Companies       []CompanyStats          `json:"companies"`
	Skipped         []Skip                  `json:"skipped"`
	Failures        []Failure               `json:"failures"`
	LLM             *generate.StatsSnapshot `json:"llm,omitempty"`
}

// Summary accumulates RunSummary counters. It is safe for concurrent use.
type Summary struct {
	mu        sync.Mutex
	run       RunSummary
	countries map[string]*CountryStats
	companies map[string]*CompanyStats
}

func NewSummary() *Summary {
	return &Summary{
		run: RunSummary{
			RunID:     uuid.NewString(),
			StartedAt: time.Now().UTC(),
			Skipped:   []Skip{},
			Failures:  []Failure{},
		},
		countries: make(map[string]*CountryStats),
		companies: make(map[string]*CompanyStats),
	}
}

// RunID identifies this run in logs and the summary file.
func (s *Summary) RunID() string { return s.run.RunID }

func (s *Summary) country(name string) *CountryStats {
	c, ok := s.countries[name]
	if !ok {
		c = &CountryStats{Country: name}
		s.countries[name] = c
	}
	return c
}

func (s *Summary) company(country, name, code string) *CompanyStats {
	key := companyKey(country, name)
	c, ok := s.companies[key]
	if !ok {
		c = &CompanyStats{Company: name, Code: code, Country: country}
		s.companies[key] = c
	}
	if c.Code == "" {
		c.Code = code
	}
	return c
}

// FileFound registers a discovered report.
func (s *Summary) FileFound(doc report.Document, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.country(doc.Country).FilesFound++
	s.company(doc.Country, doc.Company, code).FilesFound++
	s.run.Totals.FilesFound++
}

// FileProcessed registers a report whose text was extracted and chunked.
func (s *Summary) FileProcessed(doc report.Document, chunks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range []*Counts{&s.country(doc.Country).Counts, &s.company(doc.Country, doc.Company, "").Counts, &s.run.Totals} {
		c.FilesProcessed++
		c.Chunks += chunks
	}
}

// Fail records err against doc. Extraction errors also count the file as
// failed.
func (s *Summary) Fail(doc report.Document, err error) {
	if err == nil {
		return
	}
	kind := report.KindOf(err)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range []*Counts{&s.country(doc.Country).Counts, &s.company(doc.Country, doc.Company, "").Counts, &s.run.Totals} {
		c.failure(kind)
		if kind == report.KindExtraction {
			c.FilesFailed++
		}
	}
	s.run.Failures = append(s.run.Failures, Failure{
		Kind:    kind,
		Country: doc.Country,
		Company: doc.Company,
		Source:  doc.Filename,
		Error:   err.Error(),
	})
}

// Question records an emitted question.
func (s *Summary) Question(q report.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.country(q.Metadata.Country).QuestionsGenerated++
	c := s.company(q.Metadata.Country, q.Metadata.Company, "")
	c.QuestionsGenerated++
	if c.Categories == nil {
		c.Categories = make(map[string]int)
	}
	c.Categories[q.Metadata.Category]++
	s.run.Totals.QuestionsGenerated++
}

// Skip records an input path that was not processed.
func (s *Summary) Skip(path, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.Skipped = append(s.run.Skipped, Skip{Path: path, Reason: reason})
}

// SetExisting records how many records the output already held.
func (s *Summary) SetExisting(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.ExistingRecords = n
}

// Finish stamps the end of the run.
func (s *Summary) Finish(interrupted bool, fatal error, llm *generate.StatsSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.FinishedAt = time.Now().UTC()
	s.run.DurationSec = s.run.FinishedAt.Sub(s.run.StartedAt).Seconds()
	s.run.Interrupted = interrupted
	if fatal != nil {
		s.run.FatalError = fatal.Error()
	}
	s.run.LLM = llm
}

// Snapshot returns a copy of the summary with countries and companies sorted.
func (s *Summary) Snapshot() RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.run
	out.Totals = copyCounts(s.run.Totals)
	out.Skipped = append([]Skip{}, s.run.Skipped...)
	out.Failures = append([]Failure{}, s.run.Failures...)

	out.Countries = make([]CountryStats, 0, len(s.countries))
	for _, c := range s.countries {
		cs := *c
		cs.Counts = copyCounts(c.Counts)
		out.Countries = append(out.Countries, cs)
	}
	sort.Slice(out.Countries, func(i, j int) bool { return out.Countries[i].Country < out.Countries[j].Country })

	out.Companies = make([]CompanyStats, 0, len(s.companies))
	for _, c := range s.companies {
		cs := *c
		cs.Counts = copyCounts(c.Counts)
		if c.Categories != nil {
			cs.Categories = make(map[string]int, len(c.Categories))
			for k, v := range c.Categories {
				cs.Categories[k] = v
			}
		}
		out.Companies = append(out.Companies, cs)
	}
	sort.Slice(out.Companies, func(i, j int) bool {
		if out.Companies[i].Country != out.Companies[j].Country {
			return out.Companies[i].Country < out.Companies[j].Country
		}
		return out.Companies[i].Company < out.Companies[j].Company
	})
	return out
}

func copyCounts(c Counts) Counts {
	if c.Failures == nil {
		c.Failures = map[report.FailureKind]int{}
		return c
	}
	f := make(map[report.FailureKind]int, len(c.Failures))
	for k, v := range c.Failures {
		f[k] = v
	}
	c.Failures = f
	return c
}

// WriteJSON writes the summary to dir/run_summary.json.
func (s *Summary) WriteJSON(fs afero.Fs, dir string) error {
	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	return writeFileAtomic(fs, filepath.Join(dir, SummaryJSONName), append(data, '\n'))
}

// WriteCSV writes one row per company to dir/processing_summary.csv.
func (s *Summary) WriteCSV(fs afero.Fs, dir string) error {
	snap := s.Snapshot()

	var sb strings.Builder
	cw := csv.NewWriter(&sb)
	_ = cw.Write([]string{"Company", "Code", "Country", "PDFs Processed", "Questions Generated", "Categories", "Failures"})
	for _, c := range snap.Companies {
		cats := make([]string, 0, len(c.Categories))
		for name := range c.Categories {
			cats = append(cats, name)
		}
		sort.Strings(cats)
		failures := 0
		for _, n := range c.Failures {
			failures += n
		}
		_ = cw.Write([]string{
			c.Company,
			c.Code,
			c.Country,
			strconv.Itoa(c.FilesProcessed),
			strconv.Itoa(c.QuestionsGenerated),
			strings.Join(cats, ", "),
			strconv.Itoa(failures),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("encode summary csv: %w", err)
	}
	return writeFileAtomic(fs, filepath.Join(dir, SummaryCSVName), []byte(sb.String()))
}

// Log prints the summary through log.
func (s *Summary) Log(log *slog.Logger) {
	snap := s.Snapshot()
	for _, c := range snap.Countries {
		log.Info("country summary",
			"country", c.Country,
			"files_found", c.FilesFound,
			"files_processed", c.FilesProcessed,
			"files_failed", c.FilesFailed,
			"questions", c.QuestionsGenerated,
			"failures", c.Failures,
		)
	}
	for _, sk := range snap.Skipped {
		log.Warn("skipped input", "path", sk.Path, "reason", sk.Reason)
	}
	attrs := []any{
		"run_id", snap.RunID,
		"files_found", snap.Totals.FilesFound,
		"files_processed", snap.Totals.FilesProcessed,
		"files_failed", snap.Totals.FilesFailed,
		"chunks", snap.Totals.Chunks,
		"questions", snap.Totals.QuestionsGenerated,
		"failures", snap.Totals.Failures,
		"skipped", len(snap.Skipped),
		"interrupted", snap.Interrupted,
		"duration_sec", snap.DurationSec,
	}
	if snap.LLM != nil {
		attrs = append(attrs, "llm_calls", snap.LLM.Calls, "llm_p95_ms", snap.LLM.P95Ms)
	}
	log.Info("run summary", attrs...)
}

func writeFileAtomic(fs afero.Fs, path string, data []byte) error {
	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := fs.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
