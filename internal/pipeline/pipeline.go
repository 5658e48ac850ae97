// Package pipeline runs the load, extract, chunk, generate and write stages
// over every company found under the input root.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/dgallion1/gccquiz/internal/chunker"
	"github.com/dgallion1/gccquiz/internal/company"
	"github.com/dgallion1/gccquiz/internal/dataset"
	"github.com/dgallion1/gccquiz/internal/generate"
	"github.com/dgallion1/gccquiz/internal/loader"
	"github.com/dgallion1/gccquiz/internal/parser"
	"github.com/dgallion1/gccquiz/internal/report"
	"golang.org/x/sync/errgroup"
)

// Options controls how much work is done per company.
type Options struct {
	Countries           []string // empty means all
	QuestionsPerCompany int
	QuestionsPerChunk   int
	ChunksPerFile       int
	Concurrency         int // concurrent generation calls
	ExtractWorkers      int // concurrent PDF extractions
	Chunk               chunker.Config
	PersonnelFallback   bool
}

func (o Options) withDefaults() Options {
	if o.QuestionsPerCompany <= 0 {
		o.QuestionsPerCompany = 50
	}
	if o.QuestionsPerChunk <= 0 {
		o.QuestionsPerChunk = 5
	}
	if o.ChunksPerFile <= 0 {
		o.ChunksPerFile = 5
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.ExtractWorkers <= 0 {
		o.ExtractWorkers = 1
	}
	return o
}

// RunContext owns everything one run touches. Stages receive it instead of
// sharing package state.
type RunContext struct {
	Opts      Options
	Log       *slog.Logger
	Loader    *loader.Loader
	Extractor parser.Extractor
	Generator *generate.Generator
	Writer    *dataset.Writer
	Summary   *dataset.Summary
	Companies *company.Directory
	Jobs      *JobStore

	hashMu sync.Mutex
	hashes map[string]string // content hash -> first path seen
}

func NewRunContext(opts Options, log *slog.Logger, ld *loader.Loader, ex parser.Extractor,
	gen *generate.Generator, w *dataset.Writer, sum *dataset.Summary, companies *company.Directory) *RunContext {
	if companies == nil {
		companies = company.NewDirectory()
	}
	return &RunContext{
		Opts:      opts.withDefaults(),
		Log:       log,
		Loader:    ld,
		Extractor: ex,
		Generator: gen,
		Writer:    w,
		Summary:   sum,
		Companies: companies,
		Jobs:      NewJobStore(),
		hashes:    make(map[string]string),
	}
}

// companyGroup is every report of one company in one country.
type companyGroup struct {
	Country string
	Company string
	Docs    []report.Document
}

// Run processes every company. Per-file and per-chunk failures are recorded
// in the summary and do not stop the run. It returns an error for a missing
// input root, an output write failure, or cancellation.
func (rc *RunContext) Run(ctx context.Context) error {
	docs, skipped, err := rc.Loader.Load(rc.Opts.Countries)
	for _, s := range skipped {
		rc.Summary.Skip(s.Path, s.Reason)
	}
	if err != nil {
		return err
	}

	groups := groupByCompany(docs)
	rc.Log.Info("discovered reports", "files", len(docs), "companies", len(groups), "skipped", len(skipped))

	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := rc.processCompany(ctx, g); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func groupByCompany(docs []report.Document) []companyGroup {
	index := make(map[string]int)
	var groups []companyGroup
	for _, d := range docs {
		key := d.Country + "\x00" + d.Company
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, companyGroup{Country: d.Country, Company: d.Company})
		}
		groups[i].Docs = append(groups[i].Docs, d)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Country != groups[j].Country {
			return countryRank(groups[i].Country) < countryRank(groups[j].Country)
		}
		return groups[i].Company < groups[j].Company
	})
	return groups
}

func countryRank(c string) int {
	for i, name := range loader.Countries {
		if name == c {
			return i
		}
	}
	return len(loader.Countries)
}

// preparedFile is a report whose text has been extracted and chunked.
type preparedFile struct {
	doc    report.Document
	job    *FileJob
	chunks []report.Chunk
}

func (rc *RunContext) processCompany(ctx context.Context, g companyGroup) error {
	log := rc.Log.With("company", g.Company, "country", g.Country)
	code := rc.Companies.Code(g.Company)

	if rc.remaining(g) <= 0 {
		for _, doc := range g.Docs {
			rc.Summary.FileFound(doc, code)
			rc.Summary.Skip(doc.Path, "company quota already met")
			job := NewFileJob(doc)
			job.SetStatus(StatusCompleted)
			rc.Jobs.Put(job)
		}
		log.Info("company quota already met, skipping", "code", code,
			"total", rc.Writer.Total(g.Country, g.Company), "target", rc.Opts.QuestionsPerCompany)
		return nil
	}

	prepared := make([]*preparedFile, len(g.Docs))
	var eg errgroup.Group
	eg.SetLimit(rc.Opts.ExtractWorkers)
	for i, doc := range g.Docs {
		rc.Summary.FileFound(doc, code)
		job := NewFileJob(doc)
		rc.Jobs.Put(job)
		eg.Go(func() error {
			prepared[i] = rc.prepare(ctx, doc, job, log)
			return nil
		})
	}
	_ = eg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	var files []*preparedFile
	for _, p := range prepared {
		if p != nil {
			files = append(files, p)
		}
	}
	if len(files) == 0 {
		log.Warn("no usable reports for company")
		return nil
	}

	if err := rc.generateForCompany(ctx, g, files, log); err != nil {
		return err
	}

	for _, f := range files {
		if f.job.Snapshot().Status == StatusGenerating {
			f.job.SetStatus(StatusCompleted)
		}
	}
	log.Info("company complete", "code", code,
		"questions", rc.Writer.Written(g.Country, g.Company),
		"total", rc.Writer.Total(g.Country, g.Company), "target", rc.Opts.QuestionsPerCompany)
	return nil
}

// prepare extracts and chunks one file. It returns nil when the file cannot
// contribute questions.
func (rc *RunContext) prepare(ctx context.Context, doc report.Document, job *FileJob, log *slog.Logger) *preparedFile {
	log = log.With("file", doc.Filename)

	job.SetStatus(StatusExtracting)
	text, err := rc.Extractor.Extract(ctx, doc.Path)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		log.Error("extraction failed", "error", err)
		job.AddError(err)
		job.SetStatus(StatusFailed)
		rc.Summary.Fail(doc, err)
		return nil
	}

	hash := ContentHashHex([]byte(text))
	job.SetContentHash(hash)
	if first, dup := rc.firstWithHash(hash, doc.Path); dup {
		log.Info("duplicate report content, skipping", "duplicate_of", first)
		job.SetStatus(StatusDupSkipped)
		rc.Summary.Skip(doc.Path, "duplicate of "+first)
		return nil
	}

	if doc.ReportYear == loader.UnknownYear {
		if y := loader.YearFromText(text); y != "" {
			doc.ReportYear = y
		}
	}

	job.SetStatus(StatusChunking)
	doc.Text = text
	chunks := chunker.Chunks(doc, rc.Opts.Chunk)
	doc.Text = ""
	job.SetChunks(len(chunks))
	rc.Summary.FileProcessed(doc, len(chunks))

	if len(chunks) == 0 {
		log.Warn("no extractable text")
		job.SetStatus(StatusNoText)
		return nil
	}

	tokens := 0
	for _, c := range chunks {
		tokens += chunker.EstimateTokens(c.Text)
	}
	log.Info("chunked report", "chunks", len(chunks), "est_tokens", tokens, "report_year", doc.ReportYear)

	if len(chunks) > rc.Opts.ChunksPerFile {
		chunks = chunks[:rc.Opts.ChunksPerFile]
	}
	job.SetStatus(StatusGenerating)
	return &preparedFile{doc: doc, job: job, chunks: chunks}
}

func (rc *RunContext) firstWithHash(hash, path string) (string, bool) {
	rc.hashMu.Lock()
	defer rc.hashMu.Unlock()
	if first, ok := rc.hashes[hash]; ok {
		return first, true
	}
	rc.hashes[hash] = path
	return "", false
}

// task is one planned generation call.
type task struct {
	file  *preparedFile
	chunk report.Chunk
	count int
}

// generateForCompany plans waves of chunk requests until the company reaches
// its quota or runs out of chunks. Each wave asks for no more than the
// remaining quota in total.
func (rc *RunContext) generateForCompany(ctx context.Context, g companyGroup, files []*preparedFile, log *slog.Logger) error {
	var queue []task
	for _, f := range files {
		for _, c := range f.chunks {
			queue = append(queue, task{file: f, chunk: c})
		}
	}

	wave := 0
	for len(queue) > 0 {
		remaining := rc.remaining(g)
		if remaining <= 0 {
			break
		}

		var batch []task
		for len(queue) > 0 && remaining > 0 {
			t := queue[0]
			queue = queue[1:]
			t.count = min(rc.Opts.QuestionsPerChunk, remaining)
			remaining -= t.count
			batch = append(batch, t)
		}
		wave++
		log.Debug("generation wave", "wave", wave, "calls", len(batch), "queued", len(queue))

		if err := rc.runWave(ctx, batch, log); err != nil {
			return err
		}
	}

	if remaining := rc.remaining(g); remaining > 0 && rc.Opts.PersonnelFallback {
		return rc.personnel(ctx, files[0], remaining, log)
	}
	return nil
}

func (rc *RunContext) remaining(g companyGroup) int {
	return rc.Opts.QuestionsPerCompany - rc.Writer.Total(g.Country, g.Company)
}

func (rc *RunContext) runWave(ctx context.Context, batch []task, log *slog.Logger) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(rc.Opts.Concurrency)
	for _, t := range batch {
		eg.Go(func() error {
			res, err := rc.Generator.Generate(egCtx, generate.Request{Doc: t.file.doc, Chunk: t.chunk, Count: t.count})
			return rc.record(egCtx, t.file, res, err, log)
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (rc *RunContext) personnel(ctx context.Context, f *preparedFile, count int, log *slog.Logger) error {
	log.Info("requesting personnel questions", "count", count)
	res, err := rc.Generator.Personnel(ctx, f.doc, count)
	if err := rc.record(ctx, f, res, err, log); err != nil {
		return err
	}
	return ctx.Err()
}

// record writes a generation result. Only output failures are returned.
func (rc *RunContext) record(ctx context.Context, f *preparedFile, res generate.Result, genErr error, log *slog.Logger) error {
	if genErr != nil {
		if ctx.Err() != nil {
			return nil
		}
		log.Error("generation failed", "file", f.doc.Filename, "error", genErr)
		f.job.AddError(genErr)
		f.job.AddResult(0, 0)
		rc.Summary.Fail(f.doc, genErr)
		return nil
	}

	for _, rej := range res.Rejected {
		rc.Summary.Fail(f.doc, rej)
	}

	written := 0
	for _, q := range res.Questions {
		saved, err := rc.Writer.Append(q)
		if errors.Is(err, dataset.ErrCompanyCap) {
			break
		}
		if err != nil {
			return err
		}
		rc.Summary.Question(saved)
		written++
	}
	f.job.AddResult(written, len(res.Rejected))
	return nil
}
