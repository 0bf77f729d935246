package httpapi

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/Lllllllleong/namefinder/internal/models"
	"github.com/Lllllllleong/namefinder/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// multipartOverhead leaves room for boundaries and part headers on top of the
// file size limit.
const multipartOverhead = 64 * 1024

type handler struct {
	svc Extractor
}

func (h *handler) preflight(c *gin.Context) {
	c.Status(http.StatusOK)
}

func (h *handler) extract(c *gin.Context) {
	requestID := uuid.NewString()
	clientIP := c.ClientIP()
	if clientIP == "" {
		clientIP = "unknown"
	}
	ctx := services.WithRequestID(c.Request.Context(), requestID)
	logCtx := slog.With("requestId", requestID, "clientIp", clientIP)
	c.Header("X-Request-Id", requestID)

	if err := h.svc.Admit(ctx, clientIP); err != nil {
		writeError(c, logCtx, err)
		return
	}

	asset, err := h.readUpload(c, logCtx)
	if err != nil {
		writeError(c, logCtx, err)
		return
	}

	result, err := h.svc.Extract(ctx, asset)
	if err != nil {
		writeError(c, logCtx, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// readUpload pulls the single uploaded file into memory. Any temp files the
// multipart parser created are removed before it returns.
func (h *handler) readUpload(c *gin.Context, logCtx *slog.Logger) (models.FileAsset, error) {
	limit := h.svc.MaxUploadBytes()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)

	form, err := c.MultipartForm()
	if err != nil {
		if isBodyTooLarge(err) {
			return models.FileAsset{}, services.ErrUploadTooLarge(limit)
		}
		logCtx.Warn("Could not parse multipart body.", "error", err)
		return models.FileAsset{}, services.ErrEmptyUpload()
	}
	defer func() {
		if err := form.RemoveAll(); err != nil {
			logCtx.Error("Failed to remove multipart temp files.", "error", err)
		}
	}()

	var files []*multipart.FileHeader
	for _, headers := range form.File {
		files = append(files, headers...)
	}
	switch {
	case len(files) == 0:
		return models.FileAsset{}, services.ErrEmptyUpload()
	case len(files) > 1:
		return models.FileAsset{}, services.ErrTooManyFiles()
	}

	fh := files[0]
	if fh.Size > limit {
		return models.FileAsset{}, services.ErrUploadTooLarge(limit)
	}
	f, err := fh.Open()
	if err != nil {
		return models.FileAsset{}, fmt.Errorf("open uploaded file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return models.FileAsset{}, fmt.Errorf("read uploaded file: %w", err)
	}
	return models.NewFileAsset(data, fh.Header.Get("Content-Type"), fh.Filename), nil
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind services.Kind) int {
	switch kind {
	case services.KindRateLimited:
		return http.StatusTooManyRequests
	case services.KindUploadTooLarge:
		return http.StatusRequestEntityTooLarge
	case services.KindTooManyFiles, services.KindEmptyUpload, services.KindSignatureMismatch:
		return http.StatusBadRequest
	case services.KindUnsupportedType:
		return http.StatusUnsupportedMediaType
	case services.KindPdfExtractionFailed, services.KindOcrNoText:
		return http.StatusUnprocessableEntity
	case services.KindOcrBusy, services.KindOcrTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, logCtx *slog.Logger, err error) {
	svcErr := services.AsError(err)
	status := statusFor(svcErr.Kind)

	body := models.ErrorResponse{Error: svcErr.Message}
	if svcErr.RetryAfter > 0 {
		secs := int(math.Ceil(svcErr.RetryAfter.Seconds()))
		body.RetryAfter = &secs
		c.Header("Retry-After", strconv.Itoa(secs))
	}

	if status >= http.StatusInternalServerError && !svcErr.Transient() {
		logCtx.Error("Request failed.", "kind", svcErr.Kind, "status", status, "error", err)
	} else {
		logCtx.Warn("Request rejected.", "kind", svcErr.Kind, "status", status, "error", svcErr.Message)
	}
	c.JSON(status, body)
}
