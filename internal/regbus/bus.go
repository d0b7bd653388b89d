package regbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// ErrTransportUnavailable is returned when the RS-485 adapter cannot be
// opened.
var ErrTransportUnavailable = errors.New("register bus adapter unavailable")

const (
	DefaultBaudRate = 9600
	DefaultTimeout  = time.Second
)

// Client performs single register transactions. A false result means the
// slave did not answer or the answer was malformed.
type Client interface {
	ReadHoldingRegisters(address, count uint16, slave byte) ([]uint16, bool)
	ReadInputRegisters(address, count uint16, slave byte) ([]uint16, bool)
}

// Bus is a Modbus RTU master on a serial adapter.
type Bus struct {
	Device   string
	BaudRate int
	Timeout  time.Duration

	mu      sync.Mutex
	handler *modbus.RTUClientHandler
	client  modbus.Client
	log     *slog.Logger
}

func New(device string) *Bus {
	return &Bus{
		Device:   device,
		BaudRate: DefaultBaudRate,
		Timeout:  DefaultTimeout,
		log:      slog.Default(),
	}
}

// SetLogger replaces the logger used for transaction traces.
func (b *Bus) SetLogger(l *slog.Logger) {
	if l != nil {
		b.log = l
	}
}

// Open connects to the adapter. Failures wrap ErrTransportUnavailable.
func (b *Bus) Open() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		return nil
	}

	h := modbus.NewRTUClientHandler(b.Device)
	h.BaudRate = b.BaudRate
	h.DataBits = 8
	h.Parity = "N"
	h.StopBits = 1
	h.Timeout = b.Timeout
	if err := h.Connect(); err != nil {
		return fmt.Errorf("%s: %w: %v", b.Device, ErrTransportUnavailable, err)
	}
	b.handler = h
	b.client = modbus.NewClient(h)
	b.log.Debug("register bus connected", "device", b.Device)
	return nil
}

// Close releases the adapter.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handler == nil {
		return nil
	}
	b.log.Debug("closing register bus", "device", b.Device)
	err := b.handler.Close()
	b.handler = nil
	b.client = nil
	return err
}

func (b *Bus) ReadHoldingRegisters(address, count uint16, slave byte) ([]uint16, bool) {
	return b.read("holding", address, count, slave, func(c modbus.Client) ([]byte, error) {
		return c.ReadHoldingRegisters(address, count)
	})
}

func (b *Bus) ReadInputRegisters(address, count uint16, slave byte) ([]uint16, bool) {
	return b.read("input", address, count, slave, func(c modbus.Client) ([]byte, error) {
		return c.ReadInputRegisters(address, count)
	})
}

func (b *Bus) read(kind string, address, count uint16, slave byte, do func(modbus.Client) ([]byte, error)) ([]uint16, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return nil, false
	}
	b.handler.SlaveId = slave
	data, err := do(b.client)
	if err != nil {
		b.log.Debug("register read failed", "kind", kind, "address", address, "slave", slave, "err", err)
		return nil, false
	}
	regs, ok := decode(data, count)
	if !ok {
		b.log.Debug("malformed register response", "kind", kind, "address", address, "bytes", len(data))
		return nil, false
	}
	b.log.Debug("register read", "kind", kind, "address", address, "slave", slave, "values", regs)
	return regs, true
}

func decode(data []byte, count uint16) ([]uint16, bool) {
	if len(data) != int(count)*2 {
		return nil, false
	}
	regs := make([]uint16, count)
	for i := range regs {
		regs[i] = binary.BigEndian.Uint16(data[2*i:])
	}
	return regs, true
}
