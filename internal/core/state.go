package core

import (
	"sync"

	"playbulb-controller/internal/device"
)

// LinkStatus is the connection state shown to front ends.
type LinkStatus struct {
	Address   string `json:"address"`
	State     string `json:"state"`
	Connected bool   `json:"connected"`
}

// Status is shared between the agent, which writes it, and the front ends,
// which read it from other goroutines.
type Status struct {
	mu            sync.RWMutex
	link          LinkStatus
	runningScript string
	snapshot      *device.Snapshot
}

func NewStatus(address string) *Status {
	return &Status{link: LinkStatus{Address: address, State: "idle"}}
}

func (s *Status) Link() LinkStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.link
}

func (s *Status) SetLink(state string, connected bool) LinkStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.link.State = state
	s.link.Connected = connected
	return s.link
}

func (s *Status) RunningScript() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runningScript
}

func (s *Status) SetRunningScript(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runningScript = name
}

// Device returns the last published device snapshot, nil before the first read.
func (s *Status) Device() *device.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

func (s *Status) SetDevice(snapshot device.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = &snapshot
}
