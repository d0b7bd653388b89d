package selector

import (
	"fmt"
	"sync"
)

// PinWrite is one recorded write to MemPins.
type PinWrite struct {
	Pin  string
	High bool
}

// MemPins is an in-memory Pins backend. It records writes and serves inputs
// from a level table, which tests and dry runs populate directly.
type MemPins struct {
	mu     sync.Mutex
	levels map[string]bool
	writes []PinWrite

	// FailOn makes writes to the named pin fail.
	FailOn string
}

func NewMemPins() *MemPins {
	return &MemPins{levels: make(map[string]bool)}
}

func (m *MemPins) Write(pin string, high bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailOn != "" && pin == m.FailOn {
		return fmt.Errorf("gpio %s: write failed", pin)
	}
	m.levels[pin] = high
	m.writes = append(m.writes, PinWrite{Pin: pin, High: high})
	return nil
}

func (m *MemPins) Read(pin string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin], nil
}

// SetLevel forces the level seen by Read.
func (m *MemPins) SetLevel(pin string, high bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels[pin] = high
}

// Level returns the last level written or set.
func (m *MemPins) Level(pin string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin]
}

// Writes returns a copy of all recorded writes.
func (m *MemPins) Writes() []PinWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PinWrite(nil), m.writes...)
}

// ResetWrites clears the write log.
func (m *MemPins) ResetWrites() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = nil
}
