package regbus

import "sync"

// Read is one recorded transaction on MemBus.
type Read struct {
	Kind    string
	Address uint16
	Count   uint16
	Slave   byte
}

// MemBus is an in-memory Client whose answers come from callbacks.
type MemBus struct {
	Holding func(address, count uint16, slave byte) ([]uint16, bool)
	Input   func(address, count uint16, slave byte) ([]uint16, bool)
	OpenErr error

	mu    sync.Mutex
	reads []Read
	open  bool
}

func (m *MemBus) ReadHoldingRegisters(address, count uint16, slave byte) ([]uint16, bool) {
	m.record("holding", address, count, slave)
	if m.Holding == nil {
		return nil, false
	}
	return m.Holding(address, count, slave)
}

func (m *MemBus) ReadInputRegisters(address, count uint16, slave byte) ([]uint16, bool) {
	m.record("input", address, count, slave)
	if m.Input == nil {
		return nil, false
	}
	return m.Input(address, count, slave)
}

func (m *MemBus) record(kind string, address, count uint16, slave byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads = append(m.reads, Read{Kind: kind, Address: address, Count: count, Slave: slave})
}

// Reads returns every recorded transaction.
func (m *MemBus) Reads() []Read {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Read(nil), m.reads...)
}

// Open fails with OpenErr when it is set.
func (m *MemBus) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OpenErr != nil {
		return m.OpenErr
	}
	m.open = true
	return nil
}

func (m *MemBus) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
	return nil
}

// IsOpen reports whether Open succeeded without a later Close.
func (m *MemBus) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}
