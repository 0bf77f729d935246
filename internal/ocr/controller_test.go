package ocr

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeEngine struct {
	text    string
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Recognize(ctx context.Context, in Input) (Result, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return Result{}, f.err
	}
	return Result{InputID: in.ID, Text: f.text, Engine: f.Name()}, nil
}

type recordingObserver struct {
	mu        sync.Mutex
	peak      int64
	last      int64
	durations int
}

func (r *recordingObserver) SetOCRInFlight(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = n
	if n > r.peak {
		r.peak = n
	}
}

func (r *recordingObserver) ObserveOCRDuration(float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.durations++
}

func TestRecognizeTextTrimsResult(t *testing.T) {
	obs := &recordingObserver{}
	c := NewController(&fakeEngine{text: "  John Smith \n"}, 2, time.Second, obs)

	text, err := c.RecognizeText(context.Background(), Input{ID: "a"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if text != "John Smith" {
		t.Fatalf("expected trimmed text, got %q", text)
	}
	if c.InFlight() != 0 {
		t.Fatalf("expected in-flight counter back to 0, got %d", c.InFlight())
	}
	if obs.peak != 1 || obs.last != 0 || obs.durations != 1 {
		t.Fatalf("expected observer peak=1 last=0 durations=1, got %+v", obs)
	}
}

func TestRecognizeTextRejectsThirdConcurrentJob(t *testing.T) {
	engine := &fakeEngine{
		text:    "Jane Doe",
		started: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	c := NewController(engine, 2, 5*time.Second, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.RecognizeText(context.Background(), Input{})
			errs <- err
		}()
	}
	<-engine.started
	<-engine.started

	begin := time.Now()
	_, err := c.RecognizeText(context.Background(), Input{})
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if elapsed := time.Since(begin); elapsed > 100*time.Millisecond {
		t.Fatalf("expected immediate rejection, took %s", elapsed)
	}
	if c.InFlight() != 2 {
		t.Fatalf("expected 2 in flight, got %d", c.InFlight())
	}

	close(engine.release)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("expected admitted jobs to succeed, got %v", err)
		}
	}
	if c.InFlight() != 0 {
		t.Fatalf("expected counter back to 0, got %d", c.InFlight())
	}
}

// stuckOnceEngine blocks on its first call until released.
type stuckOnceEngine struct {
	calls   atomic.Int32
	release chan struct{}
}

func (e *stuckOnceEngine) Name() string { return "stuck-once" }

func (e *stuckOnceEngine) Recognize(ctx context.Context, in Input) (Result, error) {
	if e.calls.Add(1) == 1 {
		<-e.release
	}
	return Result{Text: "next"}, nil
}

func TestRecognizeTextTimesOut(t *testing.T) {
	engine := &stuckOnceEngine{release: make(chan struct{})}
	defer close(engine.release)
	c := NewController(engine, 1, 20*time.Millisecond, nil)

	_, err := c.RecognizeText(context.Background(), Input{})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if c.InFlight() != 0 {
		t.Fatalf("expected slot released after timeout, got %d", c.InFlight())
	}

	// The single slot is free again even though the engine call is still stuck.
	if text, err := c.RecognizeText(context.Background(), Input{}); err != nil || text != "next" {
		t.Fatalf("expected slot to be reusable, got %q err=%v", text, err)
	}
}

func TestRecognizeTextNoText(t *testing.T) {
	c := NewController(&fakeEngine{text: " \n\t "}, 2, time.Second, nil)
	_, err := c.RecognizeText(context.Background(), Input{})
	if !errors.Is(err, ErrNoText) {
		t.Fatalf("expected ErrNoText, got %v", err)
	}
	if c.InFlight() != 0 {
		t.Fatalf("expected counter back to 0, got %d", c.InFlight())
	}
}

func TestRecognizeTextEngineFailure(t *testing.T) {
	cause := errors.New("tessdata missing")
	c := NewController(&fakeEngine{err: cause}, 2, time.Second, nil)

	_, err := c.RecognizeText(context.Background(), Input{})
	var engErr *EngineError
	if !errors.As(err, &engErr) {
		t.Fatalf("expected *EngineError, got %T %v", err, err)
	}
	if engErr.Engine != "fake" || !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause from fake engine, got %v", err)
	}
	if c.InFlight() != 0 {
		t.Fatalf("expected counter back to 0, got %d", c.InFlight())
	}
}

func TestRecognizeTextParentCancelled(t *testing.T) {
	engine := &fakeEngine{release: make(chan struct{})}
	defer close(engine.release)
	c := NewController(engine, 1, time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := c.RecognizeText(ctx, Input{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Fatalf("expected cancellation not to be reported as a timeout")
	}
}

func TestNewControllerDefaults(t *testing.T) {
	c := NewController(&fakeEngine{}, 0, 0, nil)
	if c.timeout != DefaultTimeout {
		t.Fatalf("expected default timeout, got %s", c.timeout)
	}
	for i := 0; i < DefaultMaxConcurrent; i++ {
		if !c.slots.TryAcquire(1) {
			t.Fatalf("expected slot %d to be available", i+1)
		}
	}
	if c.slots.TryAcquire(1) {
		t.Fatalf("expected only %d default slots", DefaultMaxConcurrent)
	}
}
