package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/Lllllllleong/namefinder/internal/config"
	"github.com/Lllllllleong/namefinder/internal/metrics"
	"github.com/Lllllllleong/namefinder/internal/models"
	"github.com/Lllllllleong/namefinder/internal/names"
	"github.com/Lllllllleong/namefinder/internal/ocr"
	"github.com/Lllllllleong/namefinder/internal/pdftext"
	"github.com/Lllllllleong/namefinder/internal/ratelimit"
	"github.com/Lllllllleong/namefinder/internal/signature"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// PDFExtractor returns the text layer of a PDF.
type PDFExtractor interface {
	Extract(ctx context.Context, b []byte) (string, error)
}

// TextRecognizer returns the text found in an image.
type TextRecognizer interface {
	RecognizeText(ctx context.Context, in ocr.Input) (string, error)
}

type ExtractionConfig struct {
	MaxUploadBytes int64
	MaxRequests    int
	Window         time.Duration
}

// ExtractionService routes one uploaded file to the right text extractor and
// mines names from the result.
type ExtractionService struct {
	limiter ratelimit.Limiter
	pdf     PDFExtractor
	ocr     TextRecognizer
	metrics *metrics.Recorder
	config  ExtractionConfig
}

// NewExtractionService assembles a service from its parts. rec may be nil.
func NewExtractionService(limiter ratelimit.Limiter, pdf PDFExtractor, recognizer TextRecognizer, rec *metrics.Recorder, cfg ExtractionConfig) *ExtractionService {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 * 1024 * 1024
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = ratelimit.DefaultMaxRequests
	}
	if cfg.Window <= 0 {
		cfg.Window = ratelimit.DefaultWindow
	}
	return &ExtractionService{
		limiter: limiter,
		pdf:     pdf,
		ocr:     recognizer,
		metrics: rec,
		config:  cfg,
	}
}

// NewExtraction wires the production service from cfg. The in-memory rate
// limit sweeper runs until ctx is done.
func NewExtraction(ctx context.Context, cfg *config.Config, engine ocr.Engine, rec *metrics.Recorder) (*ExtractionService, error) {
	if cfg == nil {
		return nil, errors.New("config must be provided")
	}
	if engine == nil {
		return nil, errors.New("ocr engine must be provided")
	}

	memory := ratelimit.NewMemoryLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window, nil)
	var redisLimiter *ratelimit.RedisLimiter
	if addr := strings.TrimSpace(cfg.RateLimit.Redis.Addr); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.RateLimit.Redis.Password,
			DB:       cfg.RateLimit.Redis.DB,
		})
		redisLimiter = ratelimit.NewRedisLimiter(client, cfg.RateLimit.Redis.Prefix, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
		slog.Info("Shared rate limiting enabled.", "redisAddr", addr, "prefix", cfg.RateLimit.Redis.Prefix)
	}
	manager := ratelimit.NewManager(memory, redisLimiter, nil)
	go memory.RunSweeper(ctx, cfg.RateLimit.SweepInterval)

	controller := ocr.NewController(engine, cfg.OCR.MaxConcurrent, cfg.OCR.Timeout, rec)

	s := NewExtractionService(manager, pdftext.NewExtractor(), controller, rec, ExtractionConfig{
		MaxUploadBytes: cfg.MaxUploadBytes,
		MaxRequests:    cfg.RateLimit.MaxRequests,
		Window:         cfg.RateLimit.Window,
	})
	slog.Info("Extraction service initialized.",
		"engine", engine.Name(),
		"maxUploadBytes", cfg.MaxUploadBytes,
		"rateLimit", cfg.RateLimit.MaxRequests,
		"rateWindow", cfg.RateLimit.Window.String(),
		"ocrMaxConcurrent", cfg.OCR.MaxConcurrent,
		"ocrTimeout", cfg.OCR.Timeout.String(),
	)
	return s, nil
}

// MaxUploadBytes is the largest accepted file.
func (s *ExtractionService) MaxUploadBytes() int64 {
	return s.config.MaxUploadBytes
}

// Close releases the rate limiter's backend connections.
func (s *ExtractionService) Close() error {
	if c, ok := s.limiter.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Admit counts one request against clientKey's window.
func (s *ExtractionService) Admit(ctx context.Context, clientKey string) error {
	if strings.TrimSpace(clientKey) == "" {
		clientKey = "unknown"
	}
	decision, err := s.limiter.Allow(ctx, clientKey)
	if err != nil {
		return &Error{Kind: KindInternal, Message: msgInternal, Err: fmt.Errorf("rate limit check: %w", err)}
	}
	if decision.Allowed {
		return nil
	}
	s.metrics.IncRateLimited()
	slog.Warn("Rate limit exceeded.", "requestId", RequestID(ctx), "clientIp", clientKey, "retryAfter", decision.RetryAfter.String())
	return &Error{
		Kind:       KindRateLimited,
		Message:    rateLimitMessage(s.config.MaxRequests, s.config.Window),
		RetryAfter: decision.RetryAfter,
	}
}

// Process admits the request and then extracts asset.
func (s *ExtractionService) Process(ctx context.Context, clientKey string, asset models.FileAsset) (*models.ExtractionResult, error) {
	if RequestID(ctx) == "" {
		ctx = WithRequestID(ctx, uuid.NewString())
	}
	if err := s.Admit(ctx, clientKey); err != nil {
		return nil, err
	}
	return s.Extract(ctx, asset)
}

// Extract validates asset, pulls its text and mines names from it.
func (s *ExtractionService) Extract(ctx context.Context, asset models.FileAsset) (*models.ExtractionResult, error) {
	requestID := RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logCtx := slog.With(
		"requestId", requestID,
		"mimeType", asset.DeclaredMIMEType,
		"filename", asset.OriginalFilename,
		"sizeBytes", asset.SizeBytes,
	)

	if err := s.validate(asset); err != nil {
		s.metrics.ObserveExtraction("", metrics.OutcomeFailure, 0)
		logCtx.Warn("Upload rejected.", "kind", err.Kind)
		return nil, err
	}

	var (
		text   string
		source models.Source
		err    *Error
	)
	switch {
	case signature.IsPDF(asset.DeclaredMIMEType):
		source = models.SourcePDFParser
		text, err = s.extractPDF(ctx, asset)
	case signature.IsImage(asset.DeclaredMIMEType):
		source = models.SourceBasicOCR
		text, err = s.recognizeImage(ctx, asset)
	default:
		err = newError(KindUnsupportedType, msgUnsupportedType, nil)
	}
	if err != nil {
		s.metrics.ObserveExtraction(string(source), metrics.OutcomeFailure, 0)
		return nil, s.handleError(logCtx, err)
	}

	found := names.Extract(text)
	result := models.NewExtractionResult(text, found, source)
	s.metrics.ObserveExtraction(string(source), metrics.OutcomeSuccess, result.Count)
	logCtx.Info("Extraction complete.", "source", source, "textLength", len(text), "nameCount", result.Count)
	return result, nil
}

func (s *ExtractionService) validate(asset models.FileAsset) *Error {
	if len(asset.Bytes) == 0 {
		return ErrEmptyUpload()
	}
	if int64(len(asset.Bytes)) > s.config.MaxUploadBytes || asset.SizeBytes > s.config.MaxUploadBytes {
		return ErrUploadTooLarge(s.config.MaxUploadBytes)
	}
	if !signature.Supported(asset.DeclaredMIMEType) {
		return newError(KindUnsupportedType, msgUnsupportedType, nil)
	}
	if !signature.Matches(asset.Bytes, asset.DeclaredMIMEType) {
		return newError(KindSignatureMismatch, msgSignatureMismatch, nil)
	}
	return nil
}

func (s *ExtractionService) extractPDF(ctx context.Context, asset models.FileAsset) (string, *Error) {
	text, err := s.pdf.Extract(ctx, asset.Bytes)
	if err != nil {
		return "", newError(KindPdfExtractionFailed, "Failed to extract text from PDF: "+err.Error(), err)
	}
	return text, nil
}

func (s *ExtractionService) recognizeImage(ctx context.Context, asset models.FileAsset) (string, *Error) {
	text, err := s.ocr.RecognizeText(ctx, ocr.Input{
		ID:     asset.OriginalFilename,
		Image:  asset.Bytes,
		Format: asset.DeclaredMIMEType,
	})
	if err == nil {
		return text, nil
	}

	var engErr *ocr.EngineError
	switch {
	case errors.Is(err, ocr.ErrBusy):
		e := newError(KindOcrBusy, msgOcrBusy, err)
		e.RetryAfter = ocrBusyRetryAfter
		return "", e
	case errors.Is(err, ocr.ErrTimeout):
		return "", newError(KindOcrTimeout, msgOcrTimeout, err)
	case errors.Is(err, ocr.ErrNoText):
		return "", newError(KindOcrNoText, msgOcrNoText, err)
	case errors.As(err, &engErr):
		msg := fmt.Sprintf("Failed to extract text from image: %v. Please try with a clearer image or convert to PDF.", engErr.Err)
		return "", newError(KindOcrEngineFailure, msg, err)
	default:
		return "", newError(KindInternal, msgInternal, err)
	}
}

// handleError logs err at a level matching who is at fault and returns it.
func (s *ExtractionService) handleError(logCtx *slog.Logger, err *Error) error {
	switch err.Kind {
	case KindOcrEngineFailure, KindInternal:
		logCtx.Error("Extraction failed.", "kind", err.Kind, "error", err.Err)
	default:
		logCtx.Warn("Extraction failed.", "kind", err.Kind, "error", err.Err)
	}
	return err
}

type requestIDKey struct{}

// WithRequestID tags ctx with the id used in every log line of one request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
