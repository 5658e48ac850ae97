package generate

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/dgallion1/gccquiz/internal/report"
	"github.com/go-playground/validator/v10"
)

// Candidate is a decoded question before it is accepted into the dataset.
type Candidate struct {
	Question   string            `validate:"required,min=3,max=1000"`
	Options    map[string]string `validate:"len=4,dive,keys,oneof=A B C D,endkeys,required,max=500"`
	Answer     string            `validate:"required,oneof=A B C D"`
	Difficulty string            `validate:"oneof=easy medium hard"`
	Category   string            `validate:"required"`
	SourceType string            `validate:"required"`
}

var validate = validator.New()

// injectionPattern matches instructions aimed at a model. Phrases that are
// ordinary in governance text ("act as arranger", "management override")
// only match with an instruction or model object.
var injectionPattern = regexp.MustCompile(
	`(?i)((ignore|disregard)\s+(all\s+)?(the\s+)?(previous|prior|above)\b|system\s*prompt|you\s+are\s+now\b|` +
		`(act\s+as|pretend\s+to\s+be)\s+(an?\s+)?(ai|chatbot|language\s+model)\b|` +
		`forget\s+(everything|all)\s+(above|before|you)|override\s+(your|the|all|previous)\s+(instructions|rules|prompt)|` +
		`new\s+instructions)`,
)

// decodeCandidate turns one JSON element of a reply into a normalized
// Candidate, or a *report.ValidationError explaining why it was rejected.
func decodeCandidate(item json.RawMessage) (Candidate, error) {
	var raw rawQuestion
	if err := json.Unmarshal(item, &raw); err != nil {
		return Candidate{}, &report.ValidationError{Field: "record", Reason: "not a JSON object"}
	}

	opts, err := parseOptions(raw.Options)
	if err != nil {
		return Candidate{}, err
	}
	answer, err := answerString(raw.Answer)
	if err != nil {
		return Candidate{}, err
	}

	category, sourceType := CanonicalCategory(raw.Category)
	c := Candidate{
		Question:   strings.TrimSpace(raw.Question),
		Options:    opts,
		Answer:     NormalizeAnswer(answer, opts),
		Difficulty: NormalizeDifficulty(raw.Difficulty),
		Category:   category,
		SourceType: sourceType,
	}
	if err := ValidateCandidate(&c); err != nil {
		return Candidate{}, err
	}
	return c, nil
}

// ValidateCandidate checks shape and content. The returned error is always a
// *report.ValidationError.
func ValidateCandidate(c *Candidate) error {
	if c == nil {
		return &report.ValidationError{Field: "record", Reason: "nil"}
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &report.ValidationError{Field: fieldName(fe.Field()), Reason: "failed " + fe.Tag()}
		}
		return &report.ValidationError{Field: "record", Reason: err.Error()}
	}

	seen := make(map[string]string, len(c.Options))
	for _, label := range report.Labels {
		key := strings.ToLower(strings.Join(strings.Fields(c.Options[label]), " "))
		if prev, dup := seen[key]; dup {
			return &report.ValidationError{Field: "options", Reason: "options " + prev + " and " + label + " are identical"}
		}
		seen[key] = label
	}

	if _, ok := c.Options[c.Answer]; !ok {
		return &report.ValidationError{Field: "answer", Reason: "not among the options"}
	}

	if injectionPattern.MatchString(c.Question) {
		return &report.ValidationError{Field: "question", Reason: "contains instruction-like text"}
	}
	for _, label := range report.Labels {
		if injectionPattern.MatchString(c.Options[label]) {
			return &report.ValidationError{Field: "options", Reason: "contains instruction-like text"}
		}
	}
	return nil
}

func fieldName(f string) string {
	if i := strings.IndexByte(f, '['); i >= 0 {
		f = f[:i]
	}
	return strings.ToLower(f)
}

var answerRe = regexp.MustCompile(`(?i)^(?:(?:option|answer)\s*:?\s*)?\(?([a-d])(?:[).:\s]|$)`)

// NormalizeAnswer reduces "b", "B.", "(B)", "B) text" or "Option B" to "B".
// An answer that repeats an option's text maps to that option's label.
func NormalizeAnswer(answer string, opts map[string]string) string {
	answer = strings.TrimSpace(answer)
	// Option text wins: "A 12% increase" may be the text of option B.
	for _, label := range report.Labels {
		if text, ok := opts[label]; ok && text != "" && strings.EqualFold(strings.TrimSpace(text), answer) {
			return label
		}
	}
	if m := answerRe.FindStringSubmatch(answer); m != nil {
		return strings.ToUpper(m[1])
	}
	return answer
}

var difficultyAliases = map[string]string{
	"easy":         "easy",
	"simple":       "easy",
	"basic":        "easy",
	"medium":       "medium",
	"moderate":     "medium",
	"intermediate": "medium",
	"hard":         "hard",
	"difficult":    "hard",
	"challenging":  "hard",
	"advanced":     "hard",
}

// NormalizeDifficulty maps free-form difficulty labels onto easy, medium or
// hard. Anything unrecognized becomes medium.
func NormalizeDifficulty(d string) string {
	if v, ok := difficultyAliases[strings.ToLower(strings.TrimSpace(d))]; ok {
		return v
	}
	return "medium"
}

// Categories maps each canonical category to its metadata.source_type.
var Categories = map[string]string{
	"Financial Performance": "financial_data",
	"Market Position":       "market_data",
	"Risk Factors":          "risk_data",
	"Corporate Governance":  "governance_data",
	"Business Strategy":     "business_strategy",
	"Operational Metrics":   "operational_data",
	"Sustainability":        "sustainability",
	"Key Personnel":         "personnel_data",
}

const (
	miscCategory   = "Miscellaneous"
	miscSourceType = "miscellaneous"
)

var categoryAliases = map[string]string{
	"financial":   "Financial Performance",
	"finance":     "Financial Performance",
	"market":      "Market Position",
	"risk":        "Risk Factors",
	"governance":  "Corporate Governance",
	"strategy":    "Business Strategy",
	"strategic":   "Business Strategy",
	"operational": "Operational Metrics",
	"operations":  "Operational Metrics",
	"esg":         "Sustainability",
	"personnel":   "Key Personnel",
	"leadership":  "Key Personnel",
	"management":  "Key Personnel",
}

// CanonicalCategory resolves a model-supplied category to a canonical name
// and source type. "financial_performance", "Operational" and the like are
// accepted; unknown categories become Miscellaneous.
func CanonicalCategory(raw string) (string, string) {
	norm := strings.ToLower(strings.Join(strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == '_' || r == '-' || r == '/'
	}), " "))
	if norm == "" {
		return miscCategory, miscSourceType
	}
	for name, st := range Categories {
		if strings.ToLower(name) == norm {
			return name, st
		}
	}
	if name, ok := categoryAliases[strings.Fields(norm)[0]]; ok {
		return name, Categories[name]
	}
	return miscCategory, miscSourceType
}
