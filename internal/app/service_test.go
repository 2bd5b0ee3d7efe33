package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeService struct {
	name     string
	startErr error
	block    bool

	mu      sync.Mutex
	stopped bool
	release chan struct{}
}

func newFakeService(name string, block bool, startErr error) *fakeService {
	return &fakeService{name: name, block: block, startErr: startErr, release: make(chan struct{})}
}

func (f *fakeService) Name() string { return f.name }

func (f *fakeService) Start(ctx context.Context) error {
	if !f.block {
		return f.startErr
	}
	select {
	case <-ctx.Done():
	case <-f.release:
	}
	return nil
}

func (f *fakeService) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stopped {
		f.stopped = true
		close(f.release)
	}
	return nil
}

func (f *fakeService) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func TestRunnerStopsAllWhenOneFails(t *testing.T) {
	bootErr := errors.New("listen failed")
	failing := newFakeService("http", false, bootErr)
	blocking := newFakeService("worker", true, nil)

	var order []string
	runner := NewRunner(failing, blocking)
	runner.OnShutdown(func() { order = append(order, "first") })
	runner.OnShutdown(func() { order = append(order, "second") })

	err := runner.Run(context.Background(), time.Second, nil)
	if !errors.Is(err, bootErr) {
		t.Fatalf("want boot error, got %v", err)
	}
	if !failing.isStopped() || !blocking.isStopped() {
		t.Fatalf("all services should be stopped")
	}
	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Fatalf("cleanups should run in reverse order, got %v", order)
	}
}

func TestRunnerCancelledContextReturnsNil(t *testing.T) {
	blocking := newFakeService("http", true, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewRunner(blocking).Run(ctx, time.Second, nil); err != nil {
		t.Fatalf("cancelled run should return nil, got %v", err)
	}
	if !blocking.isStopped() {
		t.Fatalf("service should be stopped")
	}
}

func TestRunnerWithoutServices(t *testing.T) {
	if err := NewRunner().Run(context.Background(), time.Second, nil); err == nil {
		t.Fatalf("empty runner should fail")
	}
}

func TestBuildRunnerRequiresConfig(t *testing.T) {
	if _, err := BuildRunner(nil, ModeAll); err == nil {
		t.Fatalf("nil config should fail")
	}
}

func TestIsValidMode(t *testing.T) {
	for _, mode := range []string{ModeAll, ModeAPI, ModeWorker} {
		if !isValidMode(mode) {
			t.Fatalf("mode %s should be valid", mode)
		}
	}
	if isValidMode("cron") {
		t.Fatalf("unknown mode should be invalid")
	}
}

func TestNormalizeOptionsDefaults(t *testing.T) {
	opts := normalizeOptions(Options{})
	if opts.Logger == nil || opts.Mode != ModeAll || opts.ShutdownTimeout != defaultShutdownTimeout {
		t.Fatalf("unexpected defaults: %+v", opts)
	}
	if len(opts.Signals) != 2 {
		t.Fatalf("default signals want SIGINT and SIGTERM, got %v", opts.Signals)
	}
}
