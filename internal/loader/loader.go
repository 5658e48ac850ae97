// Package loader discovers report PDFs under an input root laid out as
// <root>/<Country>/<file>.pdf.
package loader

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dgallion1/gccquiz/internal/company"
	"github.com/dgallion1/gccquiz/internal/parser"
	"github.com/dgallion1/gccquiz/internal/report"
	"github.com/spf13/afero"
)

// Countries is the allow-list of GCC country directory names.
var Countries = []string{"KSA", "UAE", "Qatar", "Kuwait", "Bahrain", "Oman"}

// CanonicalCountry matches a directory or flag value against the allow-list,
// ignoring case.
func CanonicalCountry(name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, c := range Countries {
		if strings.EqualFold(c, name) {
			return c, true
		}
	}
	return "", false
}

// Skipped records an input path that was not turned into a document.
type Skipped struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Loader walks the input root.
type Loader struct {
	fs        afero.Fs
	root      string
	companies *company.Directory
	log       *slog.Logger
}

func New(fs afero.Fs, root string, companies *company.Directory, log *slog.Logger) *Loader {
	if companies == nil {
		companies = company.NewDirectory()
	}
	return &Loader{fs: fs, root: root, companies: companies, log: log}
}

// Walk calls fn for each report in country order, then filename order. Only
// the countries in filter are visited; an empty filter visits all of them.
// Unknown country directories are skipped with a warning. A missing root
// returns report.ErrNotFound.
func (l *Loader) Walk(filter []string, fn func(report.Document) error) ([]Skipped, error) {
	allowed, err := countrySet(filter)
	if err != nil {
		return nil, err
	}

	ok, err := afero.DirExists(l.fs, l.root)
	if err != nil {
		return nil, fmt.Errorf("stat input root %s: %w", l.root, err)
	}
	if !ok {
		return nil, fmt.Errorf("input root %s: %w", l.root, report.ErrNotFound)
	}

	entries, err := afero.ReadDir(l.fs, l.root)
	if err != nil {
		return nil, fmt.Errorf("read input root: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var skipped []Skipped
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		dirPath := filepath.Join(l.root, name)

		country, known := CanonicalCountry(name)
		if !known {
			l.log.Warn("skipping unknown country directory", "dir", dirPath)
			skipped = append(skipped, Skipped{Path: dirPath, Reason: "unknown country directory"})
			continue
		}
		if len(allowed) > 0 && !allowed[country] {
			l.log.Debug("country filtered out", "country", country)
			continue
		}

		s, err := l.walkCountry(dirPath, country, fn)
		skipped = append(skipped, s...)
		if err != nil {
			return skipped, err
		}
	}
	return skipped, nil
}

func (l *Loader) walkCountry(dirPath, country string, fn func(report.Document) error) ([]Skipped, error) {
	files, err := afero.ReadDir(l.fs, dirPath)
	if err != nil {
		return nil, fmt.Errorf("read country dir %s: %w", dirPath, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })

	var skipped []Skipped
	found := 0
	for _, f := range files {
		if f.IsDir() || strings.HasPrefix(f.Name(), ".") {
			continue
		}
		path := filepath.Join(dirPath, f.Name())
		if !parser.IsSupportedExtension(f.Name()) {
			skipped = append(skipped, Skipped{Path: path, Reason: "unsupported file type"})
			continue
		}

		year := InferYear(f.Name())
		if year == "" {
			year = UnknownYear
		}
		doc := report.Document{
			Path:       path,
			Filename:   f.Name(),
			Company:    CompanyName(f.Name(), country, l.companies),
			Country:    country,
			ReportYear: year,
		}
		found++
		if err := fn(doc); err != nil {
			return skipped, err
		}
	}
	l.log.Info("scanned country directory", "country", country, "pdfs", found)
	return skipped, nil
}

// Load collects every document from Walk.
func (l *Loader) Load(filter []string) ([]report.Document, []Skipped, error) {
	var docs []report.Document
	skipped, err := l.Walk(filter, func(d report.Document) error {
		docs = append(docs, d)
		return nil
	})
	if err != nil {
		return nil, skipped, err
	}
	return docs, skipped, nil
}

func countrySet(filter []string) (map[string]bool, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	set := make(map[string]bool, len(filter))
	for _, f := range filter {
		c, ok := CanonicalCountry(f)
		if !ok {
			return nil, fmt.Errorf("unknown country %q (expected one of %s)", f, strings.Join(Countries, ", "))
		}
		set[c] = true
	}
	return set, nil
}
