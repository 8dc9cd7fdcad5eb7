// Package shutdown provides the cooperative stop signal shared by the
// batch controller and the network pipeline (spec §4.6, C6).
package shutdown

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// Coordinator is a concurrency-safe boolean stop flag. Consumers poll
// IsStopped between work units; nothing kills an in-flight subprocess.
type Coordinator struct {
	stopped atomic.Bool
}

// New returns a fresh, unstopped Coordinator.
func New() *Coordinator {
	return &Coordinator{}
}

// Stop sets the flag. Safe to call more than once and from any goroutine.
func (c *Coordinator) Stop() {
	c.stopped.Store(true)
}

// IsStopped reports whether Stop has been called.
func (c *Coordinator) IsStopped() bool {
	return c.stopped.Load()
}

// ListenForSignals calls c.Stop() the first time the process receives
// SIGINT or SIGTERM; on a second signal of either kind it exits the
// process with status 1, so an operator who wants an immediate exit can
// send the signal twice. It returns a cancel function that stops listening.
func ListenForSignals(c *Coordinator) (cancel func()) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		received := 0
		for {
			select {
			case <-ch:
				c.Stop()
				received++
				if received >= 2 {
					os.Exit(1)
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}

// ListenForKeypress calls c.Stop() the first time a byte is read from r
// (e.g. stdin in raw mode), per spec §4.6's "key-press listener" source.
// It runs until r returns an error (typically because the caller closed
// the underlying file) and is meant to be started in its own goroutine.
func ListenForKeypress(c *Coordinator, r interface{ Read([]byte) (int, error) }) {
	buf := make([]byte, 1)
	for {
		_, err := r.Read(buf)
		if err != nil {
			return
		}
		c.Stop()
	}
}
