package ble

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// LinkState is the connection lifecycle of a Link.
type LinkState int

const (
	LinkIdle LinkState = iota
	LinkConnecting
	LinkServicesResolving
	LinkReady
	LinkFailed
)

func (s LinkState) String() string {
	switch s {
	case LinkIdle:
		return "idle"
	case LinkConnecting:
		return "connecting"
	case LinkServicesResolving:
		return "resolving"
	case LinkReady:
		return "ready"
	case LinkFailed:
		return "failed"
	}
	return fmt.Sprintf("LinkState(%d)", int(s))
}

const (
	DefaultPollInterval = time.Second
	DefaultPollAttempts = 5
)

// Link brings a Device to the ready state (connected, services resolved).
// It never reconnects on its own.
type Link struct {
	dev          Device
	pollInterval time.Duration
	pollAttempts int

	mu       sync.RWMutex
	state    LinkState
	onChange func(LinkState)
}

// LinkOption configures a Link.
type LinkOption func(*Link)

// WithPollInterval sets the wait between service resolution checks.
func WithPollInterval(d time.Duration) LinkOption {
	return func(l *Link) {
		if d > 0 {
			l.pollInterval = d
		}
	}
}

// WithPollAttempts sets the total number of service resolution checks,
// including the immediate one.
func WithPollAttempts(n int) LinkOption {
	return func(l *Link) {
		if n > 0 {
			l.pollAttempts = n
		}
	}
}

// WithStateHook registers fn to be called after every state change.
func WithStateHook(fn func(LinkState)) LinkOption {
	return func(l *Link) { l.onChange = fn }
}

// NewLink wraps dev in an idle Link.
func NewLink(dev Device, opts ...LinkOption) *Link {
	l := &Link{
		dev:          dev,
		pollInterval: DefaultPollInterval,
		pollAttempts: DefaultPollAttempts,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Device returns the underlying device.
func (l *Link) Device() Device { return l.dev }

// State returns the current lifecycle state.
func (l *Link) State() LinkState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *Link) setState(s LinkState) {
	l.mu.Lock()
	prev := l.state
	l.state = s
	l.mu.Unlock()
	if prev == s {
		return
	}
	log.Printf("[Link] %s: %s -> %s", l.dev.Address(), prev, s)
	if l.onChange != nil {
		l.onChange(s)
	}
}

func (l *Link) fail(format string, args ...any) error {
	l.setState(LinkFailed)
	return fmt.Errorf("%w: "+format, append([]any{ErrConnectionFailed}, args...)...)
}

// Connect connects the device and waits for service resolution. The first
// check is immediate; the remaining ones are spaced by the poll interval.
// Cancelling ctx while waiting fails the connect at once.
func (l *Link) Connect(ctx context.Context) error {
	l.setState(LinkConnecting)
	if !l.dev.Connect() || !l.dev.IsConnected() {
		return l.fail("unable to connect to %s", l.dev.Address())
	}

	l.setState(LinkServicesResolving)
	for attempt := 1; ; attempt++ {
		if l.dev.IsServicesResolved() {
			break
		}
		if attempt >= l.pollAttempts {
			return l.fail("resolving services timed out after %d attempts", attempt)
		}
		if err := wait(ctx, l.pollInterval); err != nil {
			return l.fail("resolving services interrupted: %v", err)
		}
	}

	l.setState(LinkReady)
	return nil
}

// Disconnect tears the link down.
func (l *Link) Disconnect() error {
	if !l.dev.Disconnect() {
		return l.fail("disconnecting %s", l.dev.Address())
	}
	l.setState(LinkIdle)
	return nil
}

// wait sleeps for d unless ctx is done first.
func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
