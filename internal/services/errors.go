package services

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies why an extraction request did not produce a result.
type Kind string

const (
	KindRateLimited         Kind = "RateLimited"
	KindUploadTooLarge      Kind = "UploadTooLarge"
	KindTooManyFiles        Kind = "TooManyFiles"
	KindEmptyUpload         Kind = "EmptyUpload"
	KindUnsupportedType     Kind = "UnsupportedType"
	KindSignatureMismatch   Kind = "SignatureMismatch"
	KindPdfExtractionFailed Kind = "PdfExtractionFailed"
	KindOcrBusy             Kind = "OcrBusy"
	KindOcrTimeout          Kind = "OcrTimeout"
	KindOcrNoText           Kind = "OcrNoText"
	KindOcrEngineFailure    Kind = "OcrEngineFailure"
	KindInternal            Kind = "Internal"
)

// Client-facing messages.
const (
	msgTooManyFiles      = "Only one file allowed"
	msgEmptyUpload       = "No file uploaded"
	msgUnsupportedType   = "Unsupported file type. Please upload JPG, PNG, GIF, WebP, or PDF files."
	msgSignatureMismatch = "File type mismatch. The file content does not match the declared file type."
	msgOcrBusy           = "OCR service is busy. Please try again in a moment."
	msgOcrTimeout        = "OCR processing timed out. Please try with a smaller or clearer image."
	msgOcrNoText         = "No text could be extracted from the image. Please ensure the image is clear and contains readable text."
	msgInternal          = "Internal server error"
)

// ocrBusyRetryAfter is the hint given to callers turned away for lack of an OCR slot.
const ocrBusyRetryAfter = 5 * time.Second

// Error is the single error type returned across the service boundary.
// Message is safe to show to the client; Err keeps the underlying cause.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether retrying the same request later may succeed.
func (e *Error) Transient() bool {
	switch e.Kind {
	case KindRateLimited, KindOcrBusy, KindOcrTimeout:
		return true
	}
	return false
}

// KindOf classifies err. Errors that are not *Error are Internal; nil has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return KindInternal
}

// AsError returns err as an *Error, wrapping unknown errors as Internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return &Error{Kind: KindInternal, Message: msgInternal, Err: err}
}

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// ErrTooManyFiles is returned by boundaries that received more than one file.
func ErrTooManyFiles() *Error { return newError(KindTooManyFiles, msgTooManyFiles, nil) }

// ErrEmptyUpload is returned by boundaries that received no file at all.
func ErrEmptyUpload() *Error { return newError(KindEmptyUpload, msgEmptyUpload, nil) }

// ErrUploadTooLarge is returned when a body exceeds limit bytes.
func ErrUploadTooLarge(limit int64) *Error {
	return newError(KindUploadTooLarge, fmt.Sprintf("File too large. Maximum size is %s", formatBytes(limit)), nil)
}

// formatBytes renders whole mebibytes as "10MB" and anything else in bytes.
func formatBytes(n int64) string {
	const mib = 1024 * 1024
	if n > 0 && n%mib == 0 {
		return fmt.Sprintf("%dMB", n/mib)
	}
	return fmt.Sprintf("%d bytes", n)
}

func rateLimitMessage(maxRequests int, window time.Duration) string {
	per := "minute"
	if window != time.Minute {
		per = window.String()
	}
	return fmt.Sprintf("Rate limit exceeded. Maximum %d requests per %s.", maxRequests, per)
}
