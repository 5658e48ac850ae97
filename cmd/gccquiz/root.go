package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/dgallion1/gccquiz/internal/api"
	"github.com/dgallion1/gccquiz/internal/chunker"
	"github.com/dgallion1/gccquiz/internal/company"
	"github.com/dgallion1/gccquiz/internal/config"
	"github.com/dgallion1/gccquiz/internal/dataset"
	"github.com/dgallion1/gccquiz/internal/generate"
	"github.com/dgallion1/gccquiz/internal/loader"
	"github.com/dgallion1/gccquiz/internal/parser"
	"github.com/dgallion1/gccquiz/internal/pipeline"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var errInterrupted = errors.New("interrupted")

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gccquiz",
		Short: "Generate multiple-choice questions from GCC company annual reports",
		Long: `gccquiz walks <input_dir>/<Country>/*.pdf for the six GCC countries, extracts
the report text, and asks an LLM for grounded multiple-choice questions.
Questions are appended to <output_dir>/GCC_market_dataset.jsonl; re-running
resumes from what is already there.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if err := applyFlags(cmd.Flags(), &cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log, err := newLogger(cfg.LogFormat, cfg.LogLevel, os.Stderr)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, log)
		},
	}

	f := cmd.Flags()
	f.String("input_dir", "files", "root directory with one sub-directory per country")
	f.String("output_dir", "output", "directory for the dataset and summaries")
	f.String("openai_api_key", "", "API key for the selected provider")
	f.Int("questions_per_company", 50, "target number of questions per company")
	f.String("provider", "openai", "LLM provider: openai, claude or gemini")
	f.String("model", "", "model name (provider default if empty)")
	f.String("base-url", "", "base URL of an OpenAI-compatible server")
	f.StringSlice("country", nil, "only process these countries (repeatable)")
	f.Int("concurrency", 1, "concurrent generation calls")
	f.Int("extract-workers", 1, "concurrent PDF extractions")
	f.Int("chunk-size", 1500, "maximum characters per chunk")
	f.Int("chunk-overlap", 200, "characters shared by consecutive chunks")
	f.Int("questions-per-chunk", 5, "questions requested per chunk")
	f.Int("chunks-per-file", 5, "chunks used from each report")
	f.Int("requests-per-minute", 0, "rate limit for generation calls (0 = unlimited)")
	f.Duration("timeout", 120*time.Second, "timeout per generation call")
	f.Int("max-retries", generate.DefaultMaxRetries, "retries after the first attempt for transient errors")
	f.Int("id-base", 1000, "first id per company code is id-base+1")
	f.String("company-codes", "", "YAML file of company code overrides")
	f.Bool("personnel-fallback", false, "ask for key-personnel questions when reports run short")
	f.String("status-addr", "", "serve run progress over HTTP on this address")
	f.String("log-format", "text", "log format: text or json")
	f.String("log-level", "info", "log level: debug, info, warn or error")
	return cmd
}

// applyFlags overrides environment settings with flags the user actually set.
func applyFlags(fs *pflag.FlagSet, cfg *config.Config) error {
	var err error
	str := func(name string, dst *string) {
		if err == nil && fs.Changed(name) {
			*dst, err = fs.GetString(name)
		}
	}
	num := func(name string, dst *int) {
		if err == nil && fs.Changed(name) {
			*dst, err = fs.GetInt(name)
		}
	}

	str("input_dir", &cfg.InputDir)
	str("output_dir", &cfg.OutputDir)
	str("model", &cfg.Model)
	str("base-url", &cfg.BaseURL)
	str("company-codes", &cfg.CompanyCodesFile)
	str("status-addr", &cfg.StatusAddr)
	str("log-format", &cfg.LogFormat)
	str("log-level", &cfg.LogLevel)
	if fs.Changed("provider") {
		str("provider", &cfg.Provider)
		if !fs.Changed("openai_api_key") {
			cfg.APIKey = config.ProviderKey(cfg.Provider)
		}
	}
	str("openai_api_key", &cfg.APIKey)

	num("questions_per_company", &cfg.QuestionsPerCompany)
	num("concurrency", &cfg.Concurrency)
	num("extract-workers", &cfg.ExtractWorkers)
	num("chunk-size", &cfg.ChunkSize)
	num("chunk-overlap", &cfg.ChunkOverlap)
	num("questions-per-chunk", &cfg.QuestionsPerChunk)
	num("chunks-per-file", &cfg.ChunksPerFile)
	num("requests-per-minute", &cfg.RequestsPerMinute)
	num("max-retries", &cfg.MaxRetries)
	num("id-base", &cfg.IDBase)

	if err == nil && fs.Changed("country") {
		cfg.Countries, err = fs.GetStringSlice("country")
	}
	if err == nil && fs.Changed("timeout") {
		cfg.Timeout, err = fs.GetDuration("timeout")
	}
	if err == nil && fs.Changed("personnel-fallback") {
		cfg.PersonnelFallback, err = fs.GetBool("personnel-fallback")
	}
	return err
}

// run wires the stages together, processes every company and always writes
// the run summary, even after a fatal error or an interrupt.
func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	companies := company.NewDirectory()
	if cfg.CompanyCodesFile != "" {
		if err := loadCompanyCodes(companies, cfg.CompanyCodesFile); err != nil {
			return err
		}
	}

	completer, err := generate.NewCompleter(ctx, cfg.Provider, generate.ClientConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: float32(cfg.Temperature),
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		return err
	}
	gen := generate.New(completer, generate.Options{
		RequestsPerMinute: cfg.RequestsPerMinute,
		Timeout:           cfg.Timeout,
		MaxRetries:        cfg.MaxRetries,
	}, log)

	fs := afero.NewOsFs()
	writer, err := dataset.Open(fs, cfg.OutputDir, dataset.NewIDAllocator(cfg.IDBase), companies, dataset.WriterOptions{
		PerCompany: true,
		CompanyCap: cfg.QuestionsPerCompany,
		Lock:       true,
	})
	if err != nil {
		return err
	}

	summary := dataset.NewSummary()
	summary.SetExisting(writer.Existing())
	log = log.With("run_id", summary.RunID())
	log.Info("starting gccquiz",
		"provider", cfg.Provider, "model", completer.Model(),
		"input_dir", cfg.InputDir, "output_dir", cfg.OutputDir,
		"questions_per_company", cfg.QuestionsPerCompany, "existing_records", writer.Existing())
	for _, line := range writer.Repaired() {
		log.Warn("repaired partial record at end of output", "file", line)
	}

	chunkCfg := chunker.DefaultConfig()
	chunkCfg.MaxChars = cfg.ChunkSize
	chunkCfg.Overlap = cfg.ChunkOverlap

	rc := pipeline.NewRunContext(pipeline.Options{
		Countries:           cfg.Countries,
		QuestionsPerCompany: cfg.QuestionsPerCompany,
		QuestionsPerChunk:   cfg.QuestionsPerChunk,
		ChunksPerFile:       cfg.ChunksPerFile,
		Concurrency:         cfg.Concurrency,
		ExtractWorkers:      cfg.ExtractWorkers,
		Chunk:               chunkCfg,
		PersonnelFallback:   cfg.PersonnelFallback,
	}, log,
		loader.New(fs, cfg.InputDir, companies, log),
		&parser.PDFParser{FallbackPdftotext: cfg.PDFFallbackPdftotext},
		gen, writer, summary, companies)

	if cfg.StatusAddr != "" {
		stopStatus := serveStatus(cfg, rc, log)
		defer stopStatus()
	}

	runErr := rc.Run(ctx)
	interrupted := errors.Is(runErr, context.Canceled) && ctx.Err() != nil
	var fatal error
	if runErr != nil && !interrupted {
		fatal = runErr
	}

	stats := gen.Stats()
	summary.Finish(interrupted, fatal, &stats)
	closeErr := writer.Close()
	if err := summary.WriteJSON(fs, cfg.OutputDir); err != nil {
		log.Error("writing run summary", "error", err)
	}
	if err := summary.WriteCSV(fs, cfg.OutputDir); err != nil {
		log.Error("writing processing summary", "error", err)
	}
	summary.Log(log)

	switch {
	case interrupted:
		log.Warn("run interrupted; re-run to resume")
		return errInterrupted
	case fatal != nil:
		return fatal
	}
	if closeErr != nil {
		return fmt.Errorf("closing output: %w", closeErr)
	}
	return nil
}

func loadCompanyCodes(dir *company.Directory, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("company codes: %w", err)
	}
	defer f.Close()
	if err := dir.LoadOverrides(f); err != nil {
		return fmt.Errorf("company codes %s: %w", path, err)
	}
	return nil
}

// serveStatus starts the progress server and returns a function that stops it.
func serveStatus(cfg config.Config, rc *pipeline.RunContext, log *slog.Logger) func() {
	srv := &http.Server{
		Addr:         cfg.StatusAddr,
		Handler:      api.NewServer(rc.Jobs, rc.Generator, rc.Summary, log, cfg.StatusToken),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info("status server listening", "addr", cfg.StatusAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("status server error", "error", err)
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}
