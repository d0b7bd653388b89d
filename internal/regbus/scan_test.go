package regbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buckleypaul/sealion/internal/clock"
)

type fakeLine struct {
	mu      sync.Mutex
	sends   int
	pending []string
	sendErr error
	readErr error
	reads   int
}

func (f *fakeLine) SendCommand(cmd []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sends++
	return nil
}

func (f *fakeLine) ReadLine(timeout time.Duration) (string, bool, error) {
	f.mu.Lock()
	f.reads++
	if f.readErr != nil {
		f.mu.Unlock()
		return "", false, f.readErr
	}
	if len(f.pending) > 0 {
		line := f.pending[0]
		f.pending = f.pending[1:]
		f.mu.Unlock()
		return line, true, nil
	}
	f.mu.Unlock()
	time.Sleep(time.Millisecond)
	return "", false, nil
}

func (f *fakeLine) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func (f *fakeLine) push(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, line)
}

func (f *fakeLine) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends
}

type portTracker struct {
	mu       sync.Mutex
	port     int
	selected []int
}

func (p *portTracker) sel(port int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.port = port
	p.selected = append(p.selected, port)
	return nil
}

func (p *portTracker) current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.port
}

func newTestScan(bus Client, line LineIO, sel func(int) error) (*Scan, *clock.Fake) {
	clk := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewScan(bus, line, sel, clk), clk
}

func TestScanFirstPortOnlyAnswers(t *testing.T) {
	ports := &portTracker{}
	bus := &MemBus{Input: func(address, count uint16, slave byte) ([]uint16, bool) {
		if ports.current() == 0 {
			return []uint16{111}, true
		}
		return nil, false
	}}
	line := &fakeLine{}
	scan, clk := newTestScan(bus, line, ports.sel)

	results, err := scan.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Passed)
	assert.Equal(t, 1, results[0].Reads)
	for _, r := range results[1:] {
		assert.False(t, r.Passed, "port %d", r.Port)
		assert.Equal(t, MaxStrikes, r.Strikes)
		assert.Equal(t, MaxStrikes, r.Reads)
	}
	assert.False(t, Passed(results, 3))
	assert.Len(t, bus.Reads(), 1+2*MaxStrikes)
	assert.Equal(t, []int{0, 1, 2}, ports.selected)
	assert.Equal(t, 3, clk.SleepsOf(PortSettleDelay))
	assert.Equal(t, -1, scan.Current())
}

func TestScanAllPortsPass(t *testing.T) {
	ports := &portTracker{}
	bus := &MemBus{Input: func(address, count uint16, slave byte) ([]uint16, bool) {
		assert.Equal(t, uint16(ScanRegister), address)
		assert.Equal(t, byte(ScanSlave), slave)
		return []uint16{PortSentinels[ports.current()]}, true
	}}
	line := &fakeLine{}
	scan, _ := newTestScan(bus, line, ports.sel)

	results, err := scan.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, Passed(results, 3))
	assert.Equal(t, 3, line.sendCount(), "keep-alive sent once per port")
}

func TestScanStrikesResetPerPort(t *testing.T) {
	ports := &portTracker{}
	attempts := map[int]int{}
	bus := &MemBus{Input: func(address, count uint16, slave byte) ([]uint16, bool) {
		p := ports.current()
		attempts[p]++
		// Each port answers on its third attempt, just inside the limit.
		if attempts[p] == 3 {
			return []uint16{PortSentinels[p]}, true
		}
		return []uint16{999}, true
	}}
	scan, _ := newTestScan(bus, &fakeLine{}, ports.sel)

	results, err := scan.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, Passed(results, 3))
	for _, r := range results {
		assert.Equal(t, 2, r.Strikes)
	}
}

func TestScanWrongSentinelIsAStrike(t *testing.T) {
	ports := &portTracker{}
	bus := &MemBus{Input: func(address, count uint16, slave byte) ([]uint16, bool) {
		return []uint16{222}, true
	}}
	scan, _ := newTestScan(bus, &fakeLine{}, ports.sel)

	results, err := scan.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, results[0].Passed)
	assert.True(t, results[1].Passed)
	assert.False(t, results[2].Passed)
}

func TestScanResendsKeepAliveOnOK(t *testing.T) {
	ports := &portTracker{}
	line := &fakeLine{}
	release := make(chan struct{})
	var once sync.Once
	bus := &MemBus{Input: func(address, count uint16, slave byte) ([]uint16, bool) {
		once.Do(func() {
			line.push("ok\r\n")
			// Give the keep-alive goroutine time to see the line.
			deadline := time.Now().Add(2 * time.Second)
			for line.sendCount() < 2 && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}
			close(release)
		})
		<-release
		return []uint16{PortSentinels[ports.current()]}, true
	}}
	scan, _ := newTestScan(bus, line, ports.sel)

	_, err := scan.Run(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, line.sendCount(), 4)
}

func TestScanSelectFailure(t *testing.T) {
	boom := errors.New("gpio write failed")
	scan, _ := newTestScan(&MemBus{}, &fakeLine{}, func(int) error { return boom })

	_, err := scan.Run(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestScanKeepAliveFailure(t *testing.T) {
	boom := errors.New("serial gone")
	ports := &portTracker{}
	scan, _ := newTestScan(&MemBus{}, &fakeLine{sendErr: boom}, ports.sel)

	_, err := scan.Run(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestScanKeepAliveReadFailure(t *testing.T) {
	dead := errors.New("input/output error")
	ports := &portTracker{}
	line := &fakeLine{readErr: dead}
	scan, _ := newTestScan(&MemBus{}, line, ports.sel)

	_, err := scan.Run(context.Background())
	assert.ErrorIs(t, err, dead)
	assert.LessOrEqual(t, line.readCount(), len(PortSentinels), "keep-alive stops on the first failed read")
}

func TestScanRegisterIsWireAddress(t *testing.T) {
	assert.Equal(t, 49990, ScanRegister)
}

func TestDecode(t *testing.T) {
	regs, ok := decode([]byte{0x00, 0x6F, 0x01, 0x4D}, 2)
	require.True(t, ok)
	assert.Equal(t, []uint16{111, 333}, regs)

	_, ok = decode([]byte{0x00}, 1)
	assert.False(t, ok)
}
