package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dgallion1/gccquiz/internal/company"
	"github.com/dgallion1/gccquiz/internal/report"
	"github.com/gofrs/flock"
	"github.com/spf13/afero"
)

// DefaultCombinedName is the file every question of every run is appended to.
const DefaultCombinedName = "GCC_market_dataset.jsonl"

const lockName = ".gccquiz.lock"

var (
	// ErrCompanyCap is returned by Append once a company has its quota of
	// questions in the combined file, counting records from earlier runs.
	ErrCompanyCap = errors.New("company question cap reached")
	// ErrLocked means another run holds the output directory.
	ErrLocked = errors.New("output directory is locked by another run")
)

// WriterOptions configures Open.
type WriterOptions struct {
	CombinedName string // defaults to DefaultCombinedName
	PerCompany   bool   // also write <Country>/<Company_Name>_questions.jsonl
	CompanyCap   int    // max records per company in the combined file; 0 is unlimited
	Lock         bool   // take an advisory lock on the output directory (OS filesystem only)
}

// Writer appends questions as JSON Lines. Each record is written with a
// single Write call so a crash can leave at most one partial trailing line,
// which the next Open removes.
type Writer struct {
	fs    afero.Fs
	dir   string
	opts  WriterOptions
	ids   *IDAllocator
	codes *company.Directory

	mu         sync.Mutex
	combined   afero.File
	perCompany map[string]afero.File
	written    map[string]int // this run
	prior      map[string]int // found in the combined file at Open
	existing   int
	repaired   []string
	lock       *flock.Flock
}

// Open prepares dir for appending. Existing IDs in the combined file are
// seeded into ids so resumed runs never reuse one.
func Open(fs afero.Fs, dir string, ids *IDAllocator, codes *company.Directory, opts WriterOptions) (*Writer, error) {
	if opts.CombinedName == "" {
		opts.CombinedName = DefaultCombinedName
	}
	if codes == nil {
		codes = company.NewDirectory()
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	w := &Writer{
		fs:         fs,
		dir:        dir,
		opts:       opts,
		ids:        ids,
		codes:      codes,
		perCompany: make(map[string]afero.File),
		written:    make(map[string]int),
		prior:      make(map[string]int),
	}

	if opts.Lock {
		if _, isOS := fs.(*afero.OsFs); isOS {
			w.lock = flock.New(filepath.Join(dir, lockName))
			ok, err := w.lock.TryLock()
			if err != nil {
				return nil, fmt.Errorf("lock output dir: %w", err)
			}
			if !ok {
				return nil, ErrLocked
			}
		}
	}

	path := filepath.Join(dir, opts.CombinedName)
	f, existing, repaired, err := openForAppend(fs, path, ids, w.prior)
	if err != nil {
		w.unlock()
		return nil, err
	}
	w.combined = f
	w.existing = existing
	if repaired {
		w.repaired = append(w.repaired, path)
	}
	return w, nil
}

// openForAppend truncates a trailing partial line, seeds ids from every
// complete line when ids is non-nil, counts records per company into prior
// when it is non-nil, and reopens the file for appending.
func openForAppend(fs afero.Fs, path string, ids *IDAllocator, prior map[string]int) (afero.File, int, bool, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil && !os.IsNotExist(err) {
		return nil, 0, false, fmt.Errorf("read %s: %w", path, err)
	}

	repaired := false
	if n := len(data); n > 0 && data[n-1] != '\n' {
		keep := bytes.LastIndexByte(data, '\n') + 1
		if err := truncateFile(fs, path, int64(keep)); err != nil {
			return nil, 0, false, fmt.Errorf("repair %s: %w", path, err)
		}
		data = data[:keep]
		repaired = true
	}

	lines := 0
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		lines++
		if ids == nil && prior == nil {
			continue
		}
		var rec struct {
			ID       string `json:"id"`
			Metadata struct {
				Country string `json:"country"`
				Company string `json:"company"`
			} `json:"metadata"`
		}
		if json.Unmarshal(line, &rec) != nil {
			continue
		}
		if ids != nil {
			ids.Seed(rec.ID)
		}
		if prior != nil && rec.Metadata.Company != "" {
			prior[companyKey(rec.Metadata.Country, rec.Metadata.Company)]++
		}
	}
	if err := sc.Err(); err != nil {
		return nil, 0, false, fmt.Errorf("scan %s: %w", path, err)
	}

	f, err := fs.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, 0, false, fmt.Errorf("open %s: %w", path, err)
	}
	return f, lines, repaired, nil
}

func truncateFile(fs afero.Fs, path string, size int64) error {
	f, err := fs.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Existing is the number of records found in the combined file at Open.
func (w *Writer) Existing() int { return w.existing }

// Repaired lists files whose trailing partial line was removed.
func (w *Writer) Repaired() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.repaired...)
}

// Written returns how many records a company received in this run.
func (w *Writer) Written(country, companyName string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written[companyKey(country, companyName)]
}

// Total returns how many records a company has in the combined file,
// including those from earlier runs.
func (w *Writer) Total(country, companyName string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	key := companyKey(country, companyName)
	return w.prior[key] + w.written[key]
}

// Append assigns q its ID and writes it. It returns ErrCompanyCap without
// writing when the company already has CompanyCap records in the combined
// file, whether from this run or an earlier one.
// Any other error means the output is unusable and the run should stop.
func (w *Writer) Append(q report.Question) (report.Question, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.combined == nil {
		return q, fmt.Errorf("writer is closed")
	}
	key := companyKey(q.Metadata.Country, q.Metadata.Company)
	if w.opts.CompanyCap > 0 && w.prior[key]+w.written[key] >= w.opts.CompanyCap {
		return q, ErrCompanyCap
	}

	q.ID = w.ids.Next(w.codes.Code(q.Metadata.Company))
	line, err := json.Marshal(q)
	if err != nil {
		return q, fmt.Errorf("marshal question %s: %w", q.ID, err)
	}
	line = append(line, '\n')

	if _, err := w.combined.Write(line); err != nil {
		return q, fmt.Errorf("write %s: %w", w.opts.CombinedName, err)
	}
	if w.opts.PerCompany {
		f, err := w.companyFile(q.Metadata.Country, q.Metadata.Company)
		if err != nil {
			return q, err
		}
		if _, err := f.Write(line); err != nil {
			return q, fmt.Errorf("write %s: %w", f.Name(), err)
		}
	}
	w.written[key]++
	return q, nil
}

func (w *Writer) companyFile(country, companyName string) (afero.File, error) {
	key := companyKey(country, companyName)
	if f, ok := w.perCompany[key]; ok {
		return f, nil
	}
	dir := filepath.Join(w.dir, country)
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, CompanyFileName(companyName))
	f, _, repaired, err := openForAppend(w.fs, path, nil, nil)
	if err != nil {
		return nil, err
	}
	if repaired {
		w.repaired = append(w.repaired, path)
	}
	w.perCompany[key] = f
	return f, nil
}

var fileNameReplacer = strings.NewReplacer(" ", "_", "/", "_", "\\", "_")

// CompanyFileName returns "<Company_Name>_questions.jsonl".
func CompanyFileName(companyName string) string {
	name := strings.TrimSpace(companyName)
	if name == "" {
		name = "Unknown"
	}
	return fileNameReplacer.Replace(name) + "_questions.jsonl"
}

func companyKey(country, companyName string) string {
	return country + "\x00" + companyName
}

// Close flushes and closes every file and releases the directory lock.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	closeFile := func(f afero.File) {
		if err := f.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("sync %s: %w", f.Name(), err))
		}
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", f.Name(), err))
		}
	}
	for key, f := range w.perCompany {
		closeFile(f)
		delete(w.perCompany, key)
	}
	if w.combined != nil {
		closeFile(w.combined)
		w.combined = nil
	}
	w.unlock()
	return errors.Join(errs...)
}

func (w *Writer) unlock() {
	if w.lock != nil {
		_ = w.lock.Unlock()
		w.lock = nil
	}
}
