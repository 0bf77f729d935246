package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/namefinder/internal/config"
	"github.com/Lllllllleong/namefinder/internal/httpapi"
	"github.com/Lllllllleong/namefinder/internal/metrics"
	"github.com/Lllllllleong/namefinder/internal/ocr/tesseract"
	"github.com/Lllllllleong/namefinder/internal/services"
	"github.com/gin-gonic/gin"
)

var (
	cfg               *config.Config
	extractorInstance *services.ExtractionService
	engineInstance    *gin.Engine
	once              sync.Once
	initErr           error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// "HandleExtractText" is the entry point name we'll see in GCP.
	functions.HTTP("HandleExtractText", handleExtractText)
}

func setup() {
	cfg, initErr = config.Load("")
	if initErr != nil {
		return
	}
	recorder := metrics.NewRecorder()
	extractorInstance, initErr = services.NewExtraction(context.Background(), cfg, tesseract.New(), recorder)
	if initErr != nil {
		return
	}
	gin.SetMode(gin.ReleaseMode)
	engineInstance, initErr = httpapi.NewEngine(extractorInstance, httpapi.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		TrustedProxies: cfg.TrustedProxies,
		Metrics:        recorder,
	})
}

// handleExtractText is the HTTP function entry point.
func handleExtractText(w http.ResponseWriter, r *http.Request) {
	// Use sync.Once for robust, one-time initialization of clients.
	once.Do(setup)
	if initErr != nil {
		slog.Error("CRITICAL: Extraction service initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	engineInstance.ServeHTTP(w, r)
}

// main serves the same routes locally; in GCP the framework calls the
// registered function instead.
func main() {
	once.Do(setup)
	if initErr != nil {
		slog.Error("Critical error during initialization", "error", initErr)
		os.Exit(1)
	}
	defer extractorInstance.Close()

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engineInstance,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Text extractor listening.", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	slog.Info("Server stopped")
}
