package chunker

import (
	"strings"
	"unicode"

	"github.com/dgallion1/gccquiz/internal/report"
)

// Config controls chunking behavior. Sizes are in characters.
type Config struct {
	MaxChars int // Hard upper bound on chunk size.
	Overlap  int // Characters repeated at the start of the next chunk.
	MinChars int // Documents with less text than this yield no chunks.
	Lookback int // How far back from the limit to search for a boundary.
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxChars: 1500,
		Overlap:  200,
		MinChars: 100,
		Lookback: 300,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.MaxChars <= 0 {
		c.MaxChars = d.MaxChars
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
	if c.Overlap >= c.MaxChars/2 {
		c.Overlap = c.MaxChars / 4
	}
	if c.MinChars < 0 {
		c.MinChars = 0
	}
	if c.Lookback <= 0 {
		c.Lookback = d.Lookback
	}
	if c.Lookback > c.MaxChars/2 {
		c.Lookback = c.MaxChars / 2
	}
	return c
}

// Chunks splits a document's text and tags every chunk with its source.
func Chunks(doc report.Document, cfg Config) []report.Chunk {
	chunks := Split(doc.Text, cfg)
	for i := range chunks {
		chunks[i].Source = doc.Filename
		chunks[i].Company = doc.Company
	}
	return chunks
}

// Split breaks text into chunks of at most cfg.MaxChars characters, cutting at
// the nearest paragraph, line, sentence or word boundary before the limit.
// Consecutive chunks share cfg.Overlap characters.
func Split(text string, cfg Config) []report.Chunk {
	cfg = cfg.normalized()

	runes := []rune(strings.TrimSpace(text))
	n := len(runes)
	if n == 0 || n < cfg.MinChars {
		return nil
	}

	var chunks []report.Chunk
	start := 0
	for start < n {
		end := start + cfg.MaxChars
		if end >= n {
			end = n
		} else {
			end = cutPoint(runes, start, end, cfg.Lookback)
		}

		if c, ok := makeChunk(runes, start, end); ok {
			c.ID = len(chunks) + 1
			chunks = append(chunks, c)
		}
		if end == n {
			break
		}
		start = nextStart(runes, start, end, cfg.Overlap)
	}
	return chunks
}

// cutPoint returns the exclusive end of a chunk starting at start whose hard
// limit is limit. Boundaries are tried strongest first.
func cutPoint(runes []rune, start, limit, lookback int) int {
	lo := limit - lookback
	if lo <= start {
		lo = start + 1
	}

	// Paragraph break.
	for i := limit - 1; i >= lo; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i + 1
		}
	}
	// Line break.
	for i := limit - 1; i >= lo; i-- {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	// Sentence end followed by whitespace.
	for i := limit - 2; i >= lo; i-- {
		if (runes[i] == '.' || runes[i] == '!' || runes[i] == '?') && unicode.IsSpace(runes[i+1]) {
			return i + 1
		}
	}
	// Any whitespace.
	for i := limit - 1; i >= lo; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return limit
}

// nextStart backs up by overlap characters from end, then moves forward to the
// start of a word. It always makes progress.
func nextStart(runes []rune, start, end, overlap int) int {
	next := end - overlap
	if next <= start {
		return end
	}
	for s := next; s < end; s++ {
		if unicode.IsSpace(runes[s-1]) && !unicode.IsSpace(runes[s]) {
			return s
		}
	}
	return next
}

func makeChunk(runes []rune, start, end int) (report.Chunk, bool) {
	for start < end && unicode.IsSpace(runes[start]) {
		start++
	}
	for end > start && unicode.IsSpace(runes[end-1]) {
		end--
	}
	if start == end {
		return report.Chunk{}, false
	}
	return report.Chunk{
		Text:  string(runes[start:end]),
		Start: start,
		End:   end,
		Size:  end - start,
	}, true
}
