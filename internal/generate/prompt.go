package generate

import (
	"fmt"
	"strings"
)

const questionInstructions = `You are an expert in creating multiple-choice questions about company financial reports.

Rules:
- Every question MUST be answerable from the report text below alone. Do not use outside knowledge.
- Each question has exactly four options labelled A, B, C and D. Options must be distinct and mutually exclusive.
- Exactly one option is correct. "answer" is just its letter.
- Vary the categories across the set: Financial Performance, Market Position, Risk Factors, Corporate Governance, Business Strategy, Operational Metrics, Sustainability, Key Personnel.
- difficulty is one of easy, medium, hard.
- If the text supports fewer distinct questions than requested, return fewer.

Respond with ONLY a JSON array, no markdown and no other text. Each element:
{"question": "...", "options": ["A. ...", "B. ...", "C. ...", "D. ..."], "answer": "A", "difficulty": "medium", "category": "Financial Performance"}`

// BuildChunkPrompt creates the prompt asking for count questions grounded in
// a single chunk of a company report.
func BuildChunkPrompt(company, country, year string, count int, chunkText string) string {
	var sb strings.Builder
	sb.WriteString(questionInstructions)
	sb.WriteString("\n\n---\n")
	fmt.Fprintf(&sb, "Generate %d questions.\n", count)
	fmt.Fprintf(&sb, "Company: %s\n", company)
	fmt.Fprintf(&sb, "Country: %s\n", country)
	if year != "" && year != "unknown" {
		fmt.Fprintf(&sb, "Report year: %s\n", year)
	}
	sb.WriteString("---\n")
	sb.WriteString(chunkText)
	return sb.String()
}

// BuildPersonnelPrompt asks for questions about a company's executives and
// board. No report text is attached.
func BuildPersonnelPrompt(company, country string, count int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are an expert in creating multiple-choice questions about key personnel at %s, a company from %s.\n\n", company, country)
	fmt.Fprintf(&sb, "Generate %d questions about its executives and board members.\n", count)
	sb.WriteString(`Each question has exactly four distinct options labelled A, B, C and D, and exactly one correct answer.
Set "category" to "Key Personnel". difficulty is one of easy, medium, hard.

Respond with ONLY a JSON array, no markdown and no other text. Each element:
{"question": "...", "options": ["A. ...", "B. ...", "C. ...", "D. ..."], "answer": "A", "difficulty": "medium", "category": "Key Personnel"}`)
	return sb.String()
}
