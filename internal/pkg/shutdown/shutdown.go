// Package shutdown runs cleanup handlers when a framefarm process is asked
// to stop.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"framefarm/internal/pkg/logger"
)

// DefaultTimeout bounds the whole cleanup when NewManager gets zero.
const DefaultTimeout = 30 * time.Second

// Manager stops a process in order: its Context is canceled first, then
// the registered handlers run one by one, newest first.
type Manager struct {
	log      *logger.Logger
	timeout  time.Duration
	handlers []Handler
	mu       sync.Mutex
	once     sync.Once
	stopping chan struct{}
	done     chan struct{}
}

// Handler is one named cleanup step.
type Handler struct {
	Name    string
	Cleanup func(ctx context.Context) error
}

func NewManager(log *logger.Logger, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{
		log:      log.WithComponent("shutdown"),
		timeout:  timeout,
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Register adds a cleanup handler. Handlers run in reverse registration
// order, so register a dependency before the things that use it.
func (m *Manager) Register(name string, cleanup func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, Handler{Name: name, Cleanup: cleanup})
}

// RegisterSimple adds a cleanup that cannot fail or observe the deadline.
func (m *Manager) RegisterSimple(name string, cleanup func()) {
	m.Register(name, func(ctx context.Context) error {
		cleanup()
		return nil
	})
}

// Wait blocks until SIGINT, SIGTERM or SIGHUP, then shuts down.
func (m *Manager) Wait() {
	m.WaitWithContext(context.Background())
}

// WaitWithContext waits for a shutdown signal or for ctx to end, then runs
// cleanup.
func (m *Manager) WaitWithContext(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		m.log.Info("signal received", "signal", sig.String())
	case <-ctx.Done():
		m.log.Info("stop requested", "cause", context.Cause(ctx).Error())
	}

	m.Shutdown()
}

// Shutdown runs all cleanup handlers one at a time, last registered first,
// within the manager's timeout. Only the first call does any work; later
// calls wait for it to finish.
func (m *Manager) Shutdown() {
	m.once.Do(m.shutdown)
	<-m.done
}

func (m *Manager) shutdown() {
	defer close(m.done)
	close(m.stopping)

	m.mu.Lock()
	handlers := make([]Handler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.log.Info("shutting down", "handlers", len(handlers), "timeout", m.timeout.String())
	start := time.Now()

	for i := len(handlers) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			m.log.Warn("shutdown deadline passed", "skipped", i+1)
			return
		}
		m.run(ctx, handlers[i])
	}
	m.log.Info("shutdown complete", "duration_ms", time.Since(start).Milliseconds())
}

// run waits for h until it returns or ctx expires. A handler that ignores
// ctx is left running.
func (m *Manager) run(ctx context.Context, h Handler) {
	start := time.Now()
	log := m.log.WithFields(map[string]any{"handler": h.Name})

	errc := make(chan error, 1)
	go func() { errc <- h.Cleanup(ctx) }()

	select {
	case err := <-errc:
		if err != nil {
			log.WithError(err).Error("cleanup failed", "duration_ms", time.Since(start).Milliseconds())
			return
		}
		log.Debug("cleanup done", "duration_ms", time.Since(start).Milliseconds())
	case <-ctx.Done():
		log.Warn("cleanup abandoned at deadline")
	}
}

// Done is closed once every handler has returned or been abandoned.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Context returns a context that is canceled as soon as shutdown starts,
// before any handler runs. Long running loops should use it.
func (m *Manager) Context() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-m.stopping
		cancel()
	}()
	return ctx
}
