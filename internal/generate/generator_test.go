package generate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/gccquiz/internal/report"
)

type reply struct {
	text string
	err  error
}

// scriptedCompleter returns its replies in order, repeating the last one.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies []reply
	prompts []string
}

func (s *scriptedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	i := len(s.prompts) - 1
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	r := s.replies[i]
	return r.text, r.err
}

func (s *scriptedCompleter) Model() string { return "fake" }

func (s *scriptedCompleter) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastOptions() Options {
	return Options{Timeout: time.Second, MaxRetries: 3, BackoffBase: time.Millisecond}
}

func questionJSON(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf(`{"question":"Question %d about revenue?","options":["A. %d0","B. %d1","C. %d2","D. %d3"],"answer":"B","difficulty":"easy","category":"Financial Performance"}`, i, i, i, i, i)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func fabRequest(count int) Request {
	return Request{
		Doc: report.Document{
			Filename:   "FAB_2023.pdf",
			Company:    "First Abu Dhabi Bank",
			Country:    "UAE",
			ReportYear: "2023",
		},
		Chunk: report.Chunk{ID: 3, Source: "FAB_2023.pdf", Text: "Net profit rose to AED 17.1 billion."},
		Count: count,
	}
}

func TestGenerate_AcceptsAndTagsMetadata(t *testing.T) {
	c := &scriptedCompleter{replies: []reply{{text: questionJSON(2)}}}
	g := New(c, fastOptions(), testLogger())

	res, err := g.Generate(context.Background(), fabRequest(2))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(res.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(res.Questions))
	}
	q := res.Questions[0]
	if q.ID != "" {
		t.Errorf("generator must not assign IDs, got %q", q.ID)
	}
	if q.Answer != "B" || q.Options.B != "01" {
		t.Errorf("unexpected answer/options: %q %+v", q.Answer, q.Options)
	}
	want := report.Metadata{
		Difficulty:    "easy",
		Company:       "First Abu Dhabi Bank",
		Country:       "UAE",
		ReportYear:    "2023",
		SourceFile:    "FAB_2023.pdf",
		SourceChunkID: "3",
		SourceType:    "financial_data",
		Category:      "Financial Performance",
	}
	if q.Metadata != want {
		t.Errorf("metadata = %+v, want %+v", q.Metadata, want)
	}

	prompt := c.prompts[0]
	for _, s := range []string{"Generate 2 questions", "First Abu Dhabi Bank", "UAE", "2023", "AED 17.1 billion"} {
		if !strings.Contains(prompt, s) {
			t.Errorf("prompt missing %q", s)
		}
	}
}

func TestGenerate_TruncatesToRequestedCount(t *testing.T) {
	c := &scriptedCompleter{replies: []reply{{text: questionJSON(7)}}}
	g := New(c, fastOptions(), testLogger())

	res, err := g.Generate(context.Background(), fabRequest(5))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(res.Questions) != 5 || res.Discarded != 2 {
		t.Fatalf("expected 5 kept and 2 discarded, got %d and %d", len(res.Questions), res.Discarded)
	}
}

func TestGenerate_DropsThreeOptionRecord(t *testing.T) {
	body := `[
		{"question":"Valid one?","options":["A. w","B. x","C. y","D. z"],"answer":"A"},
		{"question":"Short one?","options":["A. x","B. y","C. z"],"answer":"A"}
	]`
	c := &scriptedCompleter{replies: []reply{{text: body}}}
	g := New(c, fastOptions(), testLogger())

	res, err := g.Generate(context.Background(), fabRequest(2))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(res.Questions) != 1 {
		t.Fatalf("expected 1 accepted question, got %d", len(res.Questions))
	}
	if len(res.Rejected) != 1 || report.KindOf(res.Rejected[0]) != report.KindValidation {
		t.Fatalf("expected one ValidationError, got %v", res.Rejected)
	}
}

func TestGenerate_RetriesTransientErrors(t *testing.T) {
	c := &scriptedCompleter{replies: []reply{
		{err: &RetryableError{StatusCode: 429, Message: "slow down"}},
		{err: &RetryableError{StatusCode: 503, Message: "overloaded"}},
		{text: questionJSON(1)},
	}}
	g := New(c, fastOptions(), testLogger())

	res, err := g.Generate(context.Background(), fabRequest(1))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(res.Questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(res.Questions))
	}
	if c.calls() != 3 {
		t.Errorf("expected 3 calls, got %d", c.calls())
	}
	snap := g.Stats()
	if snap.Retried != 2 || snap.Succeeded != 1 {
		t.Errorf("unexpected stats: %+v", snap)
	}
}

func TestGenerate_GivesUpAfterMaxRetries(t *testing.T) {
	c := &scriptedCompleter{replies: []reply{{err: &RetryableError{StatusCode: 429, Message: "rate limited"}}}}
	g := New(c, fastOptions(), testLogger())

	_, err := g.Generate(context.Background(), fabRequest(1))
	var genErr *report.GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if genErr.Source != "FAB_2023.pdf" || genErr.ChunkID != 3 {
		t.Errorf("unexpected error fields: %+v", genErr)
	}
	if !IsRetryable(err) {
		t.Errorf("expected underlying retryable error to be preserved: %v", err)
	}
	if c.calls() != 4 {
		t.Errorf("expected 1 attempt + 3 retries, got %d calls", c.calls())
	}
}

func TestGenerate_DoesNotRetryPermanentErrors(t *testing.T) {
	c := &scriptedCompleter{replies: []reply{{err: errors.New("openai api status 401: bad key")}}}
	g := New(c, fastOptions(), testLogger())

	_, err := g.Generate(context.Background(), fabRequest(1))
	if report.KindOf(err) != report.KindGeneration {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if c.calls() != 1 {
		t.Errorf("expected a single call, got %d", c.calls())
	}
}

func TestGenerate_UnparseableResponse(t *testing.T) {
	c := &scriptedCompleter{replies: []reply{{text: "Sorry, I can't do that."}}}
	g := New(c, fastOptions(), testLogger())

	_, err := g.Generate(context.Background(), fabRequest(1))
	if report.KindOf(err) != report.KindGeneration {
		t.Fatalf("expected GenerationError, got %v", err)
	}
}

type slowCompleter struct{ calls int }

func (s *slowCompleter) Complete(ctx context.Context, _ string) (string, error) {
	s.calls++
	<-ctx.Done()
	return "", ctx.Err()
}

func (s *slowCompleter) Model() string { return "slow" }

func TestGenerate_PerCallTimeoutIsRetried(t *testing.T) {
	c := &slowCompleter{}
	g := New(c, Options{Timeout: 5 * time.Millisecond, MaxRetries: 1, BackoffBase: time.Millisecond}, testLogger())

	_, err := g.Generate(context.Background(), fabRequest(1))
	if err == nil {
		t.Fatal("expected error")
	}
	if c.calls != 2 {
		t.Errorf("expected timeout to be retried once, got %d calls", c.calls)
	}
}

func TestGenerate_CancelledContextStops(t *testing.T) {
	c := &slowCompleter{}
	g := New(c, Options{Timeout: time.Minute, MaxRetries: 3, BackoffBase: time.Millisecond}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := g.Generate(ctx, fabRequest(1))
	if err == nil {
		t.Fatal("expected error")
	}
	if c.calls != 1 {
		t.Errorf("expected no retries after cancellation, got %d calls", c.calls)
	}
}

func TestGenerate_ZeroCountSkipsCall(t *testing.T) {
	c := &scriptedCompleter{replies: []reply{{text: questionJSON(1)}}}
	g := New(c, fastOptions(), testLogger())

	res, err := g.Generate(context.Background(), fabRequest(0))
	if err != nil || len(res.Questions) != 0 || c.calls() != 0 {
		t.Fatalf("expected no-op, got %v %+v calls=%d", err, res, c.calls())
	}
}

func TestPersonnel_ForcesCategory(t *testing.T) {
	c := &scriptedCompleter{replies: []reply{{text: questionJSON(2)}}}
	g := New(c, fastOptions(), testLogger())

	doc := fabRequest(0).Doc
	res, err := g.Personnel(context.Background(), doc, 2)
	if err != nil {
		t.Fatalf("Personnel: %v", err)
	}
	for _, q := range res.Questions {
		if q.Metadata.Category != "Key Personnel" || q.Metadata.SourceType != "personnel_data" {
			t.Errorf("unexpected category: %+v", q.Metadata)
		}
		if q.Metadata.SourceChunkID != "0" {
			t.Errorf("expected chunk id 0, got %q", q.Metadata.SourceChunkID)
		}
	}
	if !strings.Contains(c.prompts[0], "key personnel at First Abu Dhabi Bank") {
		t.Errorf("unexpected prompt: %s", c.prompts[0])
	}
}
