package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/Lllllllleong/namefinder/internal/config"
	"github.com/Lllllllleong/namefinder/internal/gcp"
	"github.com/Lllllllleong/namefinder/internal/metrics"
	"github.com/Lllllllleong/namefinder/internal/models"
	"github.com/Lllllllleong/namefinder/internal/ocr"
	"github.com/google/uuid"
)

// ObjectStore reads and deletes staged uploads.
type ObjectStore interface {
	Read(ctx context.Context, bucket, name string, limit int64) (*gcp.StagedObject, error)
	Delete(ctx context.Context, bucket, name string) error
}

type UploadTriggerConfig struct {
	// StagingBucket, when set, is the only bucket whose events are handled.
	StagingBucket string
}

// UploadTriggerFunction extracts names from files dropped into a staging
// bucket. A staged object is deleted once handled unless the event is
// returned for redelivery.
type UploadTriggerFunction struct {
	store      ObjectStore
	extraction *ExtractionService
	config     UploadTriggerConfig
}

func NewUploadTrigger(ctx context.Context, cfg *config.Config, engine ocr.Engine, rec *metrics.Recorder) (*UploadTriggerFunction, error) {
	store, err := gcp.NewObjectStore(ctx)
	if err != nil {
		return nil, err
	}
	extraction, err := NewExtraction(context.Background(), cfg, engine, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction service: %w", err)
	}
	f := NewUploadTriggerFunction(store, extraction, UploadTriggerConfig{StagingBucket: cfg.StagingBucket})
	slog.Info("Upload trigger logic initialized.", "stagingBucket", cfg.StagingBucket)
	return f, nil
}

func NewUploadTriggerFunction(store ObjectStore, extraction *ExtractionService, cfg UploadTriggerConfig) *UploadTriggerFunction {
	return &UploadTriggerFunction{store: store, extraction: extraction, config: cfg}
}

// Process handles one object-finalized event. Permanent rejections are
// reported in the FileReport. Transient rejections and infrastructure
// failures are returned as errors and leave the object in place so the
// redelivered event can read it again.
func (f *UploadTriggerFunction) Process(ctx context.Context, e models.GCSEvent) (report *models.FileReport, err error) {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name, "declaredSize", e.Size)
	if f.config.StagingBucket != "" && e.Bucket != f.config.StagingBucket {
		logCtx.Info("Ignoring object outside the staging bucket.", "stagingBucket", f.config.StagingBucket)
		return nil, nil
	}
	logCtx.Info("Processing staged upload.")

	report = &models.FileReport{File: fmt.Sprintf("gs://%s/%s", e.Bucket, e.Name)}
	defer func() {
		if err != nil {
			logCtx.Info("Keeping staged upload for redelivery.")
			return
		}
		f.deleteStaged(logCtx, e)
	}()

	obj, err := f.store.Read(ctx, e.Bucket, e.Name, f.extraction.MaxUploadBytes())
	switch {
	case err == nil:
	case errors.Is(err, gcp.ErrObjectTooLarge):
		return f.reportError(logCtx, report, ErrUploadTooLarge(f.extraction.MaxUploadBytes())), nil
	case gcp.IsNotFound(err):
		logCtx.Info("Staged object already gone. Skipping.")
		return nil, nil
	default:
		logCtx.Error("Failed to read staged object", "error", err)
		return nil, err
	}

	contentType := e.ContentType
	if contentType == "" {
		contentType = obj.ContentType
	}
	asset := models.NewFileAsset(obj.Data, contentType, path.Base(e.Name))

	requestID := uuid.NewString()
	logCtx = logCtx.With("requestId", requestID)
	ctx = WithRequestID(ctx, requestID)

	result, err := f.extraction.Process(ctx, "gcs:"+e.Bucket, asset)
	if err != nil {
		svcErr := AsError(err)
		switch {
		case svcErr.Kind == KindInternal:
			logCtx.Error("Extraction failed with an internal error", "error", err)
			return nil, err
		case svcErr.Transient():
			logCtx.Warn("Staged upload deferred.", "kind", svcErr.Kind, "retryAfter", svcErr.RetryAfter.String())
			return nil, svcErr
		}
		return f.reportError(logCtx, report, svcErr), nil
	}

	report.Result = result
	logCtx.Info("Staged upload extracted.", "source", result.Source, "nameCount", result.Count, "names", result.Names)
	return report, nil
}

// Close releases the object store client and the rate limiter backends.
func (f *UploadTriggerFunction) Close() error {
	var errs []error
	if c, ok := f.store.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, f.extraction.Close())
	return errors.Join(errs...)
}

func (f *UploadTriggerFunction) reportError(logCtx *slog.Logger, report *models.FileReport, err *Error) *models.FileReport {
	report.Error = err.Message
	report.Kind = string(err.Kind)
	logCtx.Warn("Staged upload rejected.", "kind", err.Kind, "error", err.Message)
	return report
}

// deleteStaged runs on a fresh context so cleanup survives a cancelled event.
func (f *UploadTriggerFunction) deleteStaged(logCtx *slog.Logger, e models.GCSEvent) {
	if err := f.store.Delete(context.Background(), e.Bucket, e.Name); err != nil {
		logCtx.Error("CRITICAL: Failed to delete staged upload.", "error", err)
		return
	}
	logCtx.Info("Deleted staged upload.")
}
