// Package httpapi exposes the extraction service over HTTP with gin.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Lllllllleong/namefinder/internal/metrics"
	"github.com/Lllllllleong/namefinder/internal/models"
	"github.com/gin-gonic/gin"
)

// ExtractPaths are the upload endpoints; all of them behave identically.
var ExtractPaths = []string{"/", "/api/extract-text", "/api/text-extraction"}

// Extractor is the part of services.ExtractionService the handlers need.
type Extractor interface {
	Admit(ctx context.Context, clientKey string) error
	Extract(ctx context.Context, asset models.FileAsset) (*models.ExtractionResult, error)
	MaxUploadBytes() int64
}

type Options struct {
	AllowedOrigins []string
	// TrustedProxies lists the proxies whose X-Forwarded-For is believed.
	TrustedProxies []string
	Metrics        *metrics.Recorder
}

// NewEngine builds the gin engine serving the upload, health and metrics routes.
func NewEngine(svc Extractor, opts Options) (*gin.Engine, error) {
	engine := gin.New()
	if err := engine.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, fmt.Errorf("set trusted proxies: %w", err)
	}
	engine.HandleMethodNotAllowed = true
	engine.Use(gin.Recovery(), requestLogger(), corsMiddleware(opts.AllowedOrigins))

	h := &handler{svc: svc}
	for _, p := range ExtractPaths {
		engine.POST(p, h.extract)
		engine.OPTIONS(p, h.preflight)
	}
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, models.HealthResponse{Status: "healthy"})
	})
	engine.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, models.ErrorResponse{Error: "Method not allowed"})
	})
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Not found"})
	})
	return engine, nil
}

// corsMiddleware echoes the Origin header only for allowed origins.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
		}
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Header("Cache-Control", "no-cache")
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("HTTP request served.",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latencyMs", time.Since(start).Milliseconds(),
			"clientIp", c.ClientIP(),
		)
	}
}
