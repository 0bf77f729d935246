package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	DefaultMaxConcurrent = 2
	DefaultTimeout       = 60 * time.Second
)

var (
	ErrBusy    = errors.New("ocr: all slots busy")
	ErrTimeout = errors.New("ocr: recognition timed out")
	ErrNoText  = errors.New("ocr: no text recognized")
)

// EngineError wraps a failure reported by the engine itself.
type EngineError struct {
	Engine string
	Err    error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("ocr engine %s: %v", e.Engine, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// Controller admits at most maxConcurrent recognitions and abandons any that
// run past the timeout. Admission never waits: a full controller rejects.
type Controller struct {
	engine   Engine
	slots    *semaphore.Weighted
	timeout  time.Duration
	inFlight atomic.Int64
	observer Observer
}

// NewController wraps engine. observer may be nil.
func NewController(engine Engine, maxConcurrent int, timeout time.Duration, observer Observer) *Controller {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Controller{
		engine:   engine,
		slots:    semaphore.NewWeighted(int64(maxConcurrent)),
		timeout:  timeout,
		observer: observer,
	}
}

// InFlight reports how many recognitions currently hold a slot.
func (c *Controller) InFlight() int64 {
	return c.inFlight.Load()
}

type outcome struct {
	result Result
	err    error
}

// RecognizeText runs the engine on in and returns the trimmed text.
func (c *Controller) RecognizeText(ctx context.Context, in Input) (string, error) {
	if !c.slots.TryAcquire(1) {
		return "", ErrBusy
	}
	c.report(c.inFlight.Add(1))
	defer func() {
		c.slots.Release(1)
		c.report(c.inFlight.Add(-1))
	}()

	jobCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	// Buffered so an abandoned engine call can still deliver and exit.
	done := make(chan outcome, 1)
	go func() {
		res, err := c.engine.Recognize(jobCtx, in)
		done <- outcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		if c.observer != nil {
			c.observer.ObserveOCRDuration(time.Since(start).Seconds())
		}
		if out.err != nil {
			return "", &EngineError{Engine: c.engine.Name(), Err: out.err}
		}
		text := strings.TrimSpace(out.result.Text)
		if text == "" {
			return "", ErrNoText
		}
		return text, nil
	case <-jobCtx.Done():
		if ctx.Err() != nil {
			return "", fmt.Errorf("ocr: %w", ctx.Err())
		}
		return "", ErrTimeout
	}
}

func (c *Controller) report(n int64) {
	if c.observer != nil {
		c.observer.SetOCRInFlight(n)
	}
}
