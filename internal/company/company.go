// Package company maps report filenames to company names and company names to
// the short codes used as question ID prefixes.
package company

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"
)

// builtin lists the GCC issuers seen in the report corpus, keyed by code.
var builtin = map[string]string{
	"ABK":  "Al Ahli Bank of Kuwait",
	"ADCB": "Abu Dhabi Commercial Bank",
	"ADIB": "Abu Dhabi Islamic Bank",
	"BBK":  "Bank of Bahrain and Kuwait",
	"BM":   "Bank Muscat",
	"CBD":  "Commercial Bank of Dubai",
	"CBQ":  "Commercial Bank",
	"DIB":  "Dubai Islamic Bank",
	"EDO":  "Energy Development Oman",
	"EIB":  "Emirates Islamic Bank",
	"ENBD": "Emirates NBD",
	"FAB":  "First Abu Dhabi Bank",
	"NBB":  "National Bank of Bahrain",
	"NBK":  "National Bank of Kuwait",
	"SIB":  "Sohar International Bank",
	"TAB":  "Tabreed",
}

var codePattern = regexp.MustCompile(`^[A-Z]{1,8}$`)

func asciiLetter(r rune) rune {
	if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
		return r
	}
	return -1
}

// Entry is one row of a company override file.
type Entry struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

type overrideFile struct {
	Companies []Entry `yaml:"companies"`
}

// Directory resolves codes to names and names to codes.
type Directory struct {
	mu    sync.RWMutex
	names map[string]string // code -> name
	codes map[string]string // name -> code
}

// NewDirectory returns a directory seeded with the built-in table.
func NewDirectory() *Directory {
	d := &Directory{
		names: make(map[string]string, len(builtin)),
		codes: make(map[string]string, len(builtin)),
	}
	for code, name := range builtin {
		d.add(code, name)
	}
	// "EDO" reports are filed under the bare code as well.
	d.codes["EDO"] = "EDO"
	return d
}

func (d *Directory) add(code, name string) {
	d.names[code] = name
	d.codes[name] = code
}

// LoadOverrides merges a YAML file of {companies: [{code, name}]} into the directory.
func (d *Directory) LoadOverrides(r io.Reader) error {
	var f overrideFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && err != io.EOF {
		return fmt.Errorf("decode company overrides: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for i, e := range f.Companies {
		code := strings.ToUpper(strings.TrimSpace(e.Code))
		name := strings.TrimSpace(e.Name)
		if code == "" || name == "" {
			return fmt.Errorf("company override %d: code and name are required", i)
		}
		if !codePattern.MatchString(code) {
			return fmt.Errorf("company override %d: code %q must be 1-8 letters", i, code)
		}
		d.add(code, name)
	}
	return nil
}

// Name returns the company name for a code, if known.
func (d *Directory) Name(code string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.names[strings.ToUpper(code)]
	return name, ok
}

// Code returns the ID prefix for a company name. Known names use the table;
// others are derived from the initials of the name.
func (d *Directory) Code(name string) string {
	d.mu.RLock()
	code, ok := d.codes[name]
	d.mu.RUnlock()
	if ok {
		return code
	}
	return DeriveCode(name)
}

// DeriveCode builds a code from a name: the initials of the first three words
// when there are at least three, otherwise the first two letters of each word,
// capped at four characters. Digits are dropped so a code never runs into the
// numeric part of an ID.
func DeriveCode(name string) string {
	var words []string
	for _, w := range strings.Split(slug.Make(name), "-") {
		if w = strings.Map(asciiLetter, w); w != "" {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return "UNK"
	}

	var b strings.Builder
	if len(words) >= 3 {
		for _, w := range words[:3] {
			b.WriteString(w[:1])
		}
	} else {
		for _, w := range words {
			if len(w) > 2 {
				w = w[:2]
			}
			b.WriteString(w)
		}
	}
	code := b.String()
	if len(code) > 4 {
		code = code[:4]
	}
	return strings.ToUpper(code)
}
