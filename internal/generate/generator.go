package generate

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/dgallion1/gccquiz/internal/report"
	"golang.org/x/time/rate"
)

// Options tunes how the generator talks to its completer.
type Options struct {
	RequestsPerMinute int           // 0 disables rate limiting
	Timeout           time.Duration // per call
	MaxRetries        int           // after the first attempt; negative uses the default
	BackoffBase       time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 120 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = DefaultBackoffBase
	}
	return o
}

// Request asks for Count questions grounded in one chunk of Doc.
type Request struct {
	Doc   report.Document
	Chunk report.Chunk
	Count int
}

// Result holds the accepted questions of one call, without IDs, and the
// validation errors of the records that were dropped.
type Result struct {
	Questions []report.Question
	Rejected  []error
	Discarded int // valid records beyond the requested count
}

// Generator is safe for concurrent use. All calls share one rate limiter.
type Generator struct {
	completer Completer
	limiter   *rate.Limiter
	stats     *LLMStats
	opts      Options
	log       *slog.Logger
}

func New(c Completer, opts Options, log *slog.Logger) *Generator {
	opts = opts.withDefaults()
	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RequestsPerMinute))
	}
	return &Generator{
		completer: c,
		limiter:   rate.NewLimiter(limit, 1),
		stats:     NewLLMStats(c.Model(), 0),
		opts:      opts,
		log:       log,
	}
}

// Stats returns the latency and outcome counters collected so far.
func (g *Generator) Stats() StatsSnapshot {
	return g.stats.Snapshot()
}

// Generate requests questions for one chunk. Failures to obtain or parse a
// reply are returned as *report.GenerationError; individually malformed
// records only show up in Result.Rejected.
func (g *Generator) Generate(ctx context.Context, req Request) (Result, error) {
	if req.Count <= 0 {
		return Result{}, nil
	}
	prompt := BuildChunkPrompt(req.Doc.Company, req.Doc.Country, req.Doc.ReportYear, req.Count, req.Chunk.Text)
	return g.run(ctx, prompt, req, false)
}

// Personnel requests questions about a company's key personnel without any
// report text. The records reference doc as their source with chunk id 0.
func (g *Generator) Personnel(ctx context.Context, doc report.Document, count int) (Result, error) {
	if count <= 0 {
		return Result{}, nil
	}
	prompt := BuildPersonnelPrompt(doc.Company, doc.Country, count)
	return g.run(ctx, prompt, Request{Doc: doc, Count: count}, true)
}

func (g *Generator) run(ctx context.Context, prompt string, req Request, personnel bool) (Result, error) {
	log := g.log.With("source", req.Doc.Filename, "chunk", req.Chunk.ID)

	text, err := g.complete(ctx, prompt)
	if err != nil {
		return Result{}, &report.GenerationError{Source: req.Doc.Filename, ChunkID: req.Chunk.ID, Err: err}
	}

	items, err := splitResponse(text)
	if err != nil {
		return Result{}, &report.GenerationError{Source: req.Doc.Filename, ChunkID: req.Chunk.ID, Err: err}
	}

	var res Result
	for _, item := range items {
		c, err := decodeCandidate(item)
		if err != nil {
			log.Debug("dropping invalid record", "error", err)
			res.Rejected = append(res.Rejected, err)
			continue
		}
		if len(res.Questions) == req.Count {
			res.Discarded++
			continue
		}
		if personnel {
			c.Category = "Key Personnel"
			c.SourceType = Categories[c.Category]
		}
		res.Questions = append(res.Questions, toQuestion(c, req))
	}

	log.Debug("generated questions", "requested", req.Count, "accepted", len(res.Questions),
		"rejected", len(res.Rejected), "discarded", res.Discarded)
	return res, nil
}

func toQuestion(c Candidate, req Request) report.Question {
	return report.Question{
		Question: c.Question,
		Options: report.Options{
			A: c.Options["A"],
			B: c.Options["B"],
			C: c.Options["C"],
			D: c.Options["D"],
		},
		Answer: c.Answer,
		Metadata: report.Metadata{
			Difficulty:    c.Difficulty,
			Company:       req.Doc.Company,
			Country:       req.Doc.Country,
			ReportYear:    req.Doc.ReportYear,
			SourceFile:    req.Doc.Filename,
			SourceChunkID: strconv.Itoa(req.Chunk.ID),
			SourceType:    c.SourceType,
			Category:      c.Category,
		},
	}
}
