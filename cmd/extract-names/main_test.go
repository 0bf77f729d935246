package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Lllllllleong/namefinder/internal/ocr"
	"github.com/Lllllllleong/namefinder/internal/ratelimit"
	"github.com/Lllllllleong/namefinder/internal/services"
)

type stubPDF struct{}

func (stubPDF) Extract(ctx context.Context, b []byte) (string, error) {
	return "Ada Lovelace\nLovelace, Augusta", nil
}

type stubRecognizer struct{}

func (stubRecognizer) RecognizeText(ctx context.Context, in ocr.Input) (string, error) {
	return "", ocr.ErrNoText
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestExtractAllKeepsInputOrder(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeFile(t, dir, "a.pdf", []byte("%PDF-1.7\n")),
		writeFile(t, dir, "b.png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D}),
		writeFile(t, dir, "c.txt", []byte("plain")),
		writeFile(t, dir, "big.pdf", make([]byte, 4096)),
		filepath.Join(dir, "missing.pdf"),
	}
	svc := services.NewExtractionService(ratelimit.NewMemoryLimiter(1, time.Minute, nil), stubPDF{}, stubRecognizer{}, nil,
		services.ExtractionConfig{MaxUploadBytes: 1024})

	reports := extractAll(context.Background(), svc, 2, files)
	if len(reports) != len(files) {
		t.Fatalf("expected %d reports, got %d", len(files), len(reports))
	}
	for i, r := range reports {
		if r.File != files[i] {
			t.Fatalf("expected report %d for %s, got %s", i, files[i], r.File)
		}
	}

	if r := reports[0]; r.Error != "" || r.Result == nil || r.Result.Count != 2 {
		t.Fatalf("expected pdf names, got %+v", r)
	}
	if r := reports[0].Result.Names; r[0] != "Ada Lovelace" || r[1] != "Augusta Lovelace" {
		t.Fatalf("unexpected names %q", r)
	}
	wantKinds := []services.Kind{"", services.KindOcrNoText, services.KindUnsupportedType, services.KindUploadTooLarge, services.KindInternal}
	for i, want := range wantKinds {
		if got := services.Kind(reports[i].Kind); got != want {
			t.Fatalf("report %d: expected kind %q, got %q", i, want, got)
		}
	}
}

func TestDeclaredType(t *testing.T) {
	cases := map[string]string{
		"scan.JPG":  "image/jpeg",
		"a.jpeg":    "image/jpeg",
		"a.png":     "image/png",
		"a.gif":     "image/gif",
		"a.webp":    "image/webp",
		"doc.pdf":   "application/pdf",
		"no-suffix": "",
	}
	for file, want := range cases {
		if got := declaredType(file); got != want {
			t.Fatalf("expected %s -> %q, got %q", file, want, got)
		}
	}
}
