// Command extract-names runs the extraction pipeline over local files and
// prints one JSON report per file, in argument order.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/Lllllllleong/namefinder/internal/config"
	"github.com/Lllllllleong/namefinder/internal/models"
	"github.com/Lllllllleong/namefinder/internal/ocr/tesseract"
	"github.com/Lllllllleong/namefinder/internal/services"
	"github.com/Lllllllleong/namefinder/internal/signature"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (defaults to CONFIG_PATH or ./config.yaml)")
	verbose := flag.Bool("v", false, "log progress to stderr")
	flag.Usage = func() {
		out := flag.CommandLine.Output()
		fmt.Fprintf(out, "usage: %s [-config path] [-v] file...\n", filepath.Base(os.Args[0]))
		fmt.Fprintf(out, "supported types: %s\n", strings.Join(signature.SupportedTypes(), ", "))
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	failed, err := run(ctx, *configPath, flag.Args())
	if err != nil {
		slog.Error("extract-names failed", "error", err)
		os.Exit(1)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, files []string) (int, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return 0, fmt.Errorf("failed to load configuration: %w", err)
	}
	svc, err := services.NewExtraction(ctx, cfg, tesseract.New(), nil)
	if err != nil {
		return 0, err
	}
	defer svc.Close()

	reports := extractAll(ctx, svc, cfg.OCR.MaxConcurrent, files)

	enc := json.NewEncoder(os.Stdout)
	failed := 0
	for _, r := range reports {
		if r.Error != "" {
			failed++
		}
		if err := enc.Encode(r); err != nil {
			return failed, fmt.Errorf("failed to write report: %w", err)
		}
	}
	return failed, nil
}

// Extractor is the slice of the extraction service the batch runner uses.
type Extractor interface {
	Extract(ctx context.Context, asset models.FileAsset) (*models.ExtractionResult, error)
	MaxUploadBytes() int64
}

// extractAll processes files with at most limit in flight and returns the
// reports in input order. Per-file failures never stop the batch.
func extractAll(ctx context.Context, svc Extractor, limit int, files []string) []models.FileReport {
	reports := make([]models.FileReport, len(files))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)

	for i, file := range files {
		eg.Go(func() error {
			reports[i] = extractFile(gctx, svc, file)
			return nil
		})
	}
	_ = eg.Wait()
	return reports
}

func extractFile(ctx context.Context, svc Extractor, file string) models.FileReport {
	logCtx := slog.With("file", file)
	report := models.FileReport{File: file}

	asset, err := loadAsset(file, svc.MaxUploadBytes())
	if err == nil {
		var result *models.ExtractionResult
		result, err = svc.Extract(ctx, asset)
		report.Result = result
	}
	if err != nil {
		svcErr := services.AsError(err)
		report.Error = svcErr.Message
		report.Kind = string(svcErr.Kind)
		logCtx.Warn("File failed.", "kind", svcErr.Kind, "error", err)
		return report
	}
	logCtx.Info("File extracted.", "source", report.Result.Source, "nameCount", report.Result.Count)
	return report
}

// loadAsset reads file, refusing anything over limit before reading it.
func loadAsset(file string, limit int64) (models.FileAsset, error) {
	info, err := os.Stat(file)
	if err != nil {
		return models.FileAsset{}, fmt.Errorf("stat %s: %w", file, err)
	}
	if info.Size() > limit {
		return models.FileAsset{}, services.ErrUploadTooLarge(limit)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return models.FileAsset{}, fmt.Errorf("read %s: %w", file, err)
	}
	return models.NewFileAsset(data, declaredType(file), filepath.Base(file)), nil
}

// declaredType plays the role of an upload's Content-Type header.
func declaredType(file string) string {
	t := mime.TypeByExtension(strings.ToLower(filepath.Ext(file)))
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}
