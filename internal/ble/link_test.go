package ble

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeAttribute struct {
	uuid  string
	value []byte
}

func (a *fakeAttribute) UUID() string { return a.uuid }
func (a *fakeAttribute) ReadValue() ([]byte, error) { return a.value, nil }
func (a *fakeAttribute) WriteValue(v []byte) error {
	a.value = append([]byte(nil), v...)
	return nil
}

type fakeDevice struct {
	mu            sync.Mutex
	connectOK     bool
	disconnectOK  bool
	resolvedAfter int // IsServicesResolved returns true from this call on; 0 = never
	resolveCalls  int
	attrs         map[string]Attribute
}

func (d *fakeDevice) Address() string { return "6A:9C:4B:0F:AC:E6" }
func (d *fakeDevice) Connect() bool { return d.connectOK }
func (d *fakeDevice) Disconnect() bool { return d.disconnectOK }
func (d *fakeDevice) IsConnected() bool { return d.connectOK }
func (d *fakeDevice) Attributes() (map[string]Attribute, error) {
	return d.attrs, nil
}

func (d *fakeDevice) IsServicesResolved() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resolveCalls++
	return d.resolvedAfter > 0 && d.resolveCalls >= d.resolvedAfter
}

func (d *fakeDevice) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resolveCalls
}

func fastLink(d Device) *Link {
	return NewLink(d, WithPollInterval(time.Millisecond))
}

func TestConnectImmediate(t *testing.T) {
	d := &fakeDevice{connectOK: true, resolvedAfter: 1}
	l := fastLink(d)
	if err := l.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if l.State() != LinkReady {
		t.Errorf("state = %s, want ready", l.State())
	}
	if d.calls() != 1 {
		t.Errorf("resolve checks = %d, want 1", d.calls())
	}
}

func TestConnectResolvesOnLastAttempt(t *testing.T) {
	d := &fakeDevice{connectOK: true, resolvedAfter: 5}
	l := fastLink(d)
	if err := l.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if d.calls() != 5 {
		t.Errorf("resolve checks = %d, want 5", d.calls())
	}
}

func TestConnectTimesOutAfterFiveAttempts(t *testing.T) {
	d := &fakeDevice{connectOK: true}
	l := fastLink(d)
	err := l.Connect(context.Background())
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("err = %v, want ErrConnectionFailed", err)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("err = %v, want timeout message", err)
	}
	if d.calls() != DefaultPollAttempts {
		t.Errorf("resolve checks = %d, want %d", d.calls(), DefaultPollAttempts)
	}
	if l.State() != LinkFailed {
		t.Errorf("state = %s, want failed", l.State())
	}
}

func TestConnectPollSpacing(t *testing.T) {
	d := &fakeDevice{connectOK: true}
	l := NewLink(d, WithPollInterval(20*time.Millisecond))
	start := time.Now()
	_ = l.Connect(context.Background())
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("connect gave up after %s, want at least 4 poll intervals", elapsed)
	}
}

func TestConnectRefused(t *testing.T) {
	d := &fakeDevice{connectOK: false, resolvedAfter: 1}
	l := fastLink(d)
	if err := l.Connect(context.Background()); !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("err = %v, want ErrConnectionFailed", err)
	}
	if d.calls() != 0 {
		t.Errorf("resolve checks = %d, want 0 after refused connect", d.calls())
	}
}

func TestConnectInterrupted(t *testing.T) {
	d := &fakeDevice{connectOK: true}
	l := NewLink(d, WithPollInterval(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- l.Connect(ctx) }()

	deadline := time.Now().Add(time.Second)
	for d.calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrConnectionFailed) {
			t.Fatalf("err = %v, want ErrConnectionFailed", err)
		}
		if !strings.Contains(err.Error(), "interrupted") {
			t.Errorf("err = %v, want interrupted message", err)
		}
	case <-time.After(time.Second):
		t.Fatal("connect did not return after cancellation")
	}
	if d.calls() != 1 {
		t.Errorf("resolve checks = %d, want 1", d.calls())
	}
}

func TestDisconnect(t *testing.T) {
	d := &fakeDevice{connectOK: true, disconnectOK: true, resolvedAfter: 1}
	l := fastLink(d)
	if err := l.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := l.Disconnect(); err != nil {
		t.Fatal(err)
	}
	if l.State() != LinkIdle {
		t.Errorf("state = %s, want idle", l.State())
	}

	d.disconnectOK = false
	if err := l.Disconnect(); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("err = %v, want ErrConnectionFailed", err)
	}
}

func TestDevicePath(t *testing.T) {
	got := devicePath("hci0", "6a:9c:4b:0f:ac:e6")
	if got != "/org/bluez/hci0/dev_6A_9C_4B_0F_AC_E6" {
		t.Errorf("path = %s", got)
	}
}

func TestStateHook(t *testing.T) {
	var seen []LinkState
	d := &fakeDevice{connectOK: true, disconnectOK: true, resolvedAfter: 2}
	l := NewLink(d, WithPollInterval(time.Millisecond), WithStateHook(func(s LinkState) {
		seen = append(seen, s)
	}))
	if err := l.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := l.Disconnect(); err != nil {
		t.Fatal(err)
	}
	want := []LinkState{LinkConnecting, LinkServicesResolving, LinkReady, LinkIdle}
	if len(seen) != len(want) {
		t.Fatalf("states = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("states = %v, want %v", seen, want)
			break
		}
	}
}
