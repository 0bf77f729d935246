// Package ocr bounds how many image recognitions run at once and how long
// each may take.
package ocr

import "context"

// Input is a single image submitted for recognition.
type Input struct {
	// ID is echoed back in the Result.
	ID string
	// Image holds the encoded image bytes.
	Image []byte
	// Format is the declared MIME type of Image.
	Format string
}

// Result is the typed output of one recognition.
type Result struct {
	InputID string
	Text    string
	Engine  string
}

// Engine recognizes text in one image.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, in Input) (Result, error)
}

// Observer receives slot and latency updates. Implementations must be safe for
// concurrent use.
type Observer interface {
	SetOCRInFlight(n int64)
	ObserveOCRDuration(seconds float64)
}
