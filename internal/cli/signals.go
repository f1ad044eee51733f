package cli

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// signalStopWait bounds how long Stop waits for the listener goroutine.
const signalStopWait = 100 * time.Millisecond

// SignalHandler runs callbacks on the first SIGINT or SIGTERM.
type SignalHandler struct {
	signals    chan os.Signal
	shutdown   chan struct{}
	stopCh     chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
	onShutdown []func()
	mu         sync.Mutex
	log        zerolog.Logger
}

// NewSignalHandler creates a handler that logs through log.
func NewSignalHandler(log zerolog.Logger) *SignalHandler {
	return &SignalHandler{
		signals:  make(chan os.Signal, 1),
		shutdown: make(chan struct{}),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		log:      log,
	}
}

// Start begins listening for signals.
func (h *SignalHandler) Start() {
	h.StartWithNotify(true)
}

// StartWithNotify begins listening, optionally registering with OS signal
// handling. Tests pass false and deliver signals through Trigger.
func (h *SignalHandler) StartWithNotify(notify bool) {
	if notify {
		signal.Notify(h.signals, syscall.SIGINT, syscall.SIGTERM)
	}

	started := make(chan struct{})
	go func() {
		defer close(h.done)
		close(started)

		select {
		case sig := <-h.signals:
			h.log.Info().Str("signal", sig.String()).Msg("received signal, cancelling batch")

			h.mu.Lock()
			callbacks := make([]func(), len(h.onShutdown))
			copy(callbacks, h.onShutdown)
			h.mu.Unlock()

			for _, fn := range callbacks {
				fn()
			}
			close(h.shutdown)
		case <-h.stopCh:
			return
		}
	}()

	<-started
}

// Trigger delivers sig as if it came from the OS.
func (h *SignalHandler) Trigger(sig os.Signal) {
	select {
	case h.signals <- sig:
	default:
	}
}

// OnShutdown registers a callback to run on the first signal.
func (h *SignalHandler) OnShutdown(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onShutdown = append(h.onShutdown, fn)
}

// Shutdown is closed after the callbacks of a received signal have run.
func (h *SignalHandler) Shutdown() <-chan struct{} {
	return h.shutdown
}

// Stop stops listening and waits briefly for the goroutine to exit.
func (h *SignalHandler) Stop() {
	signal.Stop(h.signals)
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})
	select {
	case <-h.done:
	case <-time.After(signalStopWait):
	}
}
