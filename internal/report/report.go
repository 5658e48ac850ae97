// Package report holds the types shared by every stage: discovered reports,
// text chunks, generated questions and the failure taxonomy used in the run
// summary.
package report

// Document is a PDF report discovered under the input root.
type Document struct {
	Path       string // Absolute or root-relative path on disk
	Filename   string // Base name, used as metadata.source_file
	Company    string // Best-effort company name derived from the filename
	Country    string // Canonical country name from the parent directory
	ReportYear string // "2023", or "unknown" if nothing could be inferred
	Text       string // Extracted text; empty until the extractor runs
}

// Chunk is a bounded slice of a document's text, the unit sent to the generator.
type Chunk struct {
	ID      int    // 1-based sequence number within the document
	Source  string // Filename of the parent document
	Company string
	Text    string
	Start   int // Rune offset of Text within the trimmed document text
	End     int // Rune offset one past the end of Text
	Size    int // Length of Text in characters
}

// Options holds the four answer choices of a question.
type Options struct {
	A string `json:"A"`
	B string `json:"B"`
	C string `json:"C"`
	D string `json:"D"`
}

// Get returns the option text for a label and whether the label exists.
func (o Options) Get(label string) (string, bool) {
	switch label {
	case "A":
		return o.A, true
	case "B":
		return o.B, true
	case "C":
		return o.C, true
	case "D":
		return o.D, true
	}
	return "", false
}

// Labels lists the option labels in output order.
var Labels = []string{"A", "B", "C", "D"}

// Metadata describes where a question came from.
type Metadata struct {
	Difficulty    string `json:"difficulty"`
	Company       string `json:"company"`
	Country       string `json:"country"`
	ReportYear    string `json:"report_year"`
	SourceFile    string `json:"source_file"`
	SourceChunkID string `json:"source_chunk_id"`
	SourceType    string `json:"source_type"`
	Category      string `json:"category"`
}

// Question is one multiple-choice record, serialized as a single JSON Lines row.
type Question struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Options  Options  `json:"options"`
	Answer   string   `json:"answer"`
	Metadata Metadata `json:"metadata"`
}
