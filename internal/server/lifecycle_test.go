package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// blockingService blocks in Start until Stop is called.
type blockingService struct {
	mu      sync.Mutex
	started bool
	stopped bool
	quit    chan struct{}
}

func newBlockingService() *blockingService {
	return &blockingService{quit: make(chan struct{})}
}

func (s *blockingService) Start() error {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	<-s.quit
	return nil
}

func (s *blockingService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.quit)
	}
}

func (s *blockingService) state() (started, stopped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started, s.stopped
}

func TestLifecycleRunStopsOnContextCancel(t *testing.T) {
	lc := NewLifecycle(zap.NewNop())
	svc := newBlockingService()
	lc.Add("test", svc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	// Give the service a moment to start.
	time.Sleep(50 * time.Millisecond)
	started, _ := svc.state()
	assert.True(t, started)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	_, stopped := svc.state()
	assert.True(t, stopped)
}

func TestLifecycleStopsInReverseOrder(t *testing.T) {
	lc := NewLifecycle(zap.NewNop())

	var mu sync.Mutex
	var order []string
	mkService := func(name string) *FuncService {
		quit := make(chan struct{})
		return &FuncService{
			StartFn: func() error { <-quit; return nil },
			StopFn: func() {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				close(quit)
			},
		}
	}

	lc.Add("first", mkService("first"))
	lc.Add("second", mkService("second"))
	lc.Add("third", mkService("third"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestFuncService(t *testing.T) {
	var started, stopped bool
	svc := &FuncService{
		StartFn: func() error { started = true; return nil },
		StopFn:  func() { stopped = true },
	}
	assert.NoError(t, svc.Start())
	svc.Stop()
	assert.True(t, started)
	assert.True(t, stopped)
}
