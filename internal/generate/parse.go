package generate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/dgallion1/gccquiz/internal/report"
)

var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

// rawQuestion is one element of the model's JSON reply before validation.
type rawQuestion struct {
	Question   string          `json:"question"`
	Options    json.RawMessage `json:"options"`
	Answer     json.RawMessage `json:"answer"`
	Difficulty string          `json:"difficulty"`
	Category   string          `json:"category"`
}

// splitResponse returns the individual question elements of a reply. The
// reply may be a bare array or an object wrapping the array under
// "questions". An element that fails to decode later only costs that record.
func splitResponse(text string) ([]json.RawMessage, error) {
	body := []byte(stripCodeBlock(text))
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("empty response body")
	}

	var items []json.RawMessage
	switch body[0] {
	case '[':
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("parse questions json: %w (raw: %s)", err, truncate(string(body), 200))
		}
	case '{':
		var wrapped struct {
			Questions []json.RawMessage `json:"questions"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, fmt.Errorf("parse questions json: %w (raw: %s)", err, truncate(string(body), 200))
		}
		if wrapped.Questions == nil {
			return nil, fmt.Errorf("response object has no questions array")
		}
		items = wrapped.Questions
	default:
		return nil, fmt.Errorf("response is not JSON (raw: %s)", truncate(string(body), 200))
	}
	return items, nil
}

var optionPrefixRe = regexp.MustCompile(`^\(?([A-Da-d])\s*[).:\-]\s*`)

// parseOptions accepts ["A. x", "B. y", ...] or {"A": "x", ...}. Labels in
// an array come from the "A. " prefix when present, else from position.
func parseOptions(raw json.RawMessage) (map[string]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, &report.ValidationError{Field: "options", Reason: "missing"}
	}

	opts := make(map[string]string, 4)
	switch raw[0] {
	case '[':
		var list []string
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, &report.ValidationError{Field: "options", Reason: "must be an array of strings"}
		}
		for i, item := range list {
			item = strings.TrimSpace(item)
			label := ""
			if m := optionPrefixRe.FindStringSubmatch(item); m != nil {
				label = strings.ToUpper(m[1])
				item = strings.TrimSpace(item[len(m[0]):])
			} else if i < 26 {
				label = string(rune('A' + i))
			}
			if _, dup := opts[label]; dup {
				return nil, &report.ValidationError{Field: "options", Reason: "duplicate label " + label}
			}
			opts[label] = item
		}
	case '{':
		var obj map[string]string
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, &report.ValidationError{Field: "options", Reason: "must map labels to strings"}
		}
		for k, v := range obj {
			label := strings.ToUpper(strings.Trim(strings.TrimSpace(k), "().:"))
			if _, dup := opts[label]; dup {
				return nil, &report.ValidationError{Field: "options", Reason: "duplicate label " + label}
			}
			opts[label] = strings.TrimSpace(v)
		}
	default:
		return nil, &report.ValidationError{Field: "options", Reason: "must be an array or object"}
	}
	return opts, nil
}

// answerString requires the answer to be a JSON string.
func answerString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", &report.ValidationError{Field: "answer", Reason: "missing"}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &report.ValidationError{Field: "answer", Reason: "must be a string"}
	}
	return s, nil
}
