/**
 * Contract OCR - one-shot extraction
 *
 * Processes one or more documents, each a directory of page images (or a
 * MinIO prefix with -minio), waits for continuations to merge and prints
 * the final extractions as JSON. -xlsx additionally writes a workbook.
 *
 *   extract -budget 5s -xlsx contracts.xlsx ./scans/contract-a ./scans/contract-b
 */

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/adverant/nexus/contract-ocr-worker/internal/cache"
	"github.com/adverant/nexus/contract-ocr-worker/internal/config"
	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
	"github.com/adverant/nexus/contract-ocr-worker/internal/logging"
	"github.com/adverant/nexus/contract-ocr-worker/internal/pagesource"
	"github.com/adverant/nexus/contract-ocr-worker/internal/processor"
	"github.com/adverant/nexus/contract-ocr-worker/internal/queue"
	"github.com/adverant/nexus/contract-ocr-worker/internal/recognition"
	"github.com/adverant/nexus/contract-ocr-worker/internal/report"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		useMinio   = flag.Bool("minio", false, "treat arguments as MinIO prefixes (MINIO_* environment)")
		budget     = flag.Duration("budget", 0, "synchronous processing budget per document (default from PROCESSING_BUDGET)")
		threshold  = flag.Float64("threshold", 0, "confidence threshold for COMPLETED (default from CONFIDENCE_THRESHOLD)")
		recognizer = flag.String("recognizer", "", "tesseract or documentai (default from RECOGNIZER)")
		language   = flag.String("lang", "", "recognition language, e.g. en or de")
		enhance    = flag.Bool("enhance", false, "request enhanced resolution")
		orient     = flag.Bool("detect-orientation", false, "request orientation detection")
		xlsxOut    = flag.String("xlsx", "", "write an XLSX report to this path")
		wait       = flag.Duration("wait", 10*time.Minute, "maximum time to wait for continuations")
	)
	flag.Parse()

	if flag.NArg() == 0 {
		printError("Usage: extract [flags] <document>...\n")
		flag.PrintDefaults()
		os.Exit(2)
	}

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	if *budget > 0 {
		cfg.ProcessingBudget = *budget
	}
	if *threshold > 0 {
		cfg.ConfidenceThreshold = *threshold
	}
	if *recognizer != "" {
		cfg.Recognizer = *recognizer
	}
	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	logging.Init(cfg.LogLevel, cfg.LogFormat)
	log := logging.NewLogger("extract")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := document.Options{Language: *language, EnhanceResolution: *enhance, DetectOrientation: *orient}

	docs, err := extract(ctx, cfg, log, flag.Args(), *useMinio, opts, *wait)
	if err != nil {
		log.Error("extraction failed", "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(docs); err != nil {
		log.Error("failed to write results", "error", err)
		os.Exit(1)
	}

	if *xlsxOut != "" {
		if err := report.WriteXLSX(*xlsxOut, docs); err != nil {
			log.Error("failed to write XLSX report", "path", *xlsxOut, "error", err)
			os.Exit(1)
		}
		log.Info("report written", "path", *xlsxOut, "documents", len(docs))
	}
}

func extract(ctx context.Context, cfg *config.Config, log *logging.Logger, args []string, useMinio bool, opts document.Options, wait time.Duration) ([]*document.ExtractedDocument, error) {
	rec, closeRecognizer, err := recognition.New(ctx, cfg.RecognitionConfig(), logging.NewLogger("recognition"))
	if err != nil {
		return nil, err
	}
	defer closeRecognizer()

	reqs, err := requests(cfg, args, useMinio, opts)
	if err != nil {
		return nil, err
	}

	runner := queue.NewLocalRunner(logging.NewLogger("continuations"), queue.WithProcessTimeout(cfg.ProcessingTimeout))
	proc, err := processor.NewDocumentProcessor(&processor.ProcessorConfig{
		Recognizer:          rec,
		Store:               cache.NewMemoryStore(len(reqs)+cfg.CacheMaxEntries, cfg.CacheTTL, logging.NewLogger("cache")),
		Scheduler:           runner,
		Logger:              logging.NewLogger("processor"),
		Budget:              cfg.ProcessingBudget,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		BatchConcurrency:    cfg.BatchConcurrency,
		MaxBatchSize:        cfg.MaxBatchSize,
	})
	if err != nil {
		return nil, err
	}
	runner.Start(proc)

	var docs []*document.ExtractedDocument
	for start := 0; start < len(reqs); start += cfg.MaxBatchSize {
		end := min(start+cfg.MaxBatchSize, len(reqs))
		batch, err := proc.ProcessBatch(ctx, reqs[start:end])
		if err != nil {
			return nil, err
		}
		docs = append(docs, batch...)
	}

	drainCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if err := runner.Shutdown(drainCtx); err != nil {
		log.Warn("continuations did not finish, reporting partial results", "error", err)
	}

	for i, doc := range docs {
		entry, err := proc.GetCached(ctx, doc.DocumentID)
		if err != nil || entry.Document == nil {
			continue
		}
		// A failed slot keeps its error unless the cached document was finalized.
		if doc.Status == document.StatusFailed && !entry.Document.Finalized() {
			continue
		}
		docs[i] = entry.Document
	}
	return docs, nil
}

func requests(cfg *config.Config, args []string, useMinio bool, opts document.Options) ([]*processor.ProcessRequest, error) {
	var minioSource pagesource.Source
	if useMinio {
		s, err := pagesource.NewMinioSource(cfg.Minio)
		if err != nil {
			return nil, err
		}
		minioSource = s
	}

	reqs := make([]*processor.ProcessRequest, 0, len(args))
	for _, arg := range args {
		if minioSource != nil {
			reqs = append(reqs, &processor.ProcessRequest{
				DocumentID: filepath.Base(arg),
				Source:     minioSource,
				Ref:        arg,
				Options:    opts,
			})
			continue
		}

		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", arg, err)
		}
		reqs = append(reqs, &processor.ProcessRequest{
			DocumentID: filepath.Base(abs),
			Source:     pagesource.NewDirSource(filepath.Dir(abs)),
			Ref:        filepath.Base(abs),
			Options:    opts,
		})
	}
	return reqs, nil
}
