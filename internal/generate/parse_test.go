package generate

import (
	"strings"
	"testing"
)

func TestStripCodeBlock(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `[{"a":1}]`, `[{"a":1}]`},
		{"json fence", "```json\n[{\"a\":1}]\n```", `[{"a":1}]`},
		{"bare fence", "```\n[]\n```", `[]`},
		{"surrounding space", "  \n```json\n[]\n```\n ", `[]`},
		{"fence not leading", "Here you go:\n```json\n[]\n```", "Here you go:\n```json\n[]\n```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripCodeBlock(tt.in); got != tt.want {
				t.Errorf("stripCodeBlock(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSplitResponse_Array(t *testing.T) {
	items, err := splitResponse(`[{"question":"a"},{"question":"b"}]`)
	if err != nil {
		t.Fatalf("splitResponse: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
}

func TestSplitResponse_WrappedObject(t *testing.T) {
	items, err := splitResponse("```json\n{\"questions\": [{\"question\":\"a\"}]}\n```")
	if err != nil {
		t.Fatalf("splitResponse: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
}

func TestSplitResponse_EmptyArray(t *testing.T) {
	items, err := splitResponse(`[]`)
	if err != nil {
		t.Fatalf("splitResponse: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no items, got %d", len(items))
	}
}

func TestSplitResponse_Errors(t *testing.T) {
	tests := map[string]string{
		"empty":          "   ",
		"prose":          "I cannot help with that.",
		"truncated":      `[{"question":"a"`,
		"object no list": `{"items": []}`,
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := splitResponse(in); err == nil {
				t.Errorf("expected error for %q", in)
			}
		})
	}
}

func TestSplitResponse_ErrorTruncatesRaw(t *testing.T) {
	_, err := splitResponse("[" + strings.Repeat("x", 1000))
	if err == nil {
		t.Fatal("expected error")
	}
	if len(err.Error()) > 400 {
		t.Errorf("error message not truncated: %d bytes", len(err.Error()))
	}
}
