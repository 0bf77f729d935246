package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/namefinder/internal/config"
	"github.com/Lllllllleong/namefinder/internal/models"
	"github.com/Lllllllleong/namefinder/internal/ocr/tesseract"
	"github.com/Lllllllleong/namefinder/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	uploadTriggerInstance *services.UploadTriggerFunction
	once                  sync.Once
	initErr               error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register the CloudEvent function. The framework will handle routing the event here.
	functions.CloudEvent("ExtractUploadedFile", extractUploadedFile)
}

// main is required by the Go Functions Framework.
func main() {}

// extractUploadedFile is the Cloud Function entry point for object-finalized events.
func extractUploadedFile(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		var cfg *config.Config
		cfg, initErr = config.Load("")
		if initErr != nil {
			return
		}
		// Metrics are not scraped from event-driven instances.
		uploadTriggerInstance, initErr = services.NewUploadTrigger(context.Background(), cfg, tesseract.New(), nil)
		if initErr == nil {
			go closeOnShutdown(uploadTriggerInstance)
		}
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// Returning an error marks the invocation as failed so it is retried.
	if _, err := uploadTriggerInstance.Process(ctx, gcsEvent); err != nil {
		return err
	}
	return nil
}

// closeOnShutdown releases the trigger's clients when the instance is stopped.
func closeOnShutdown(f *services.UploadTriggerFunction) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGTERM, syscall.SIGINT)
	<-sig
	slog.Info("Shutting down upload extractor...")
	if err := f.Close(); err != nil {
		slog.Error("Failed to close upload trigger", "error", err)
	}
	os.Exit(0)
}
