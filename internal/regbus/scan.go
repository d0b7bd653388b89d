package regbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/buckleypaul/sealion/internal/clock"
)

// RegisterBase is added to the firmware's register numbers. The board decodes
// the 4xxxx reference as the literal wire address.
const RegisterBase = 40000

// Port scan defaults for the LD5200 bus self-test.
const (
	ScanSlave       = 254
	ScanRegister    = RegisterBase + 9990
	MaxStrikes      = 3
	PortSettleDelay = 100 * time.Millisecond

	keepAliveRead = 100 * time.Millisecond
)

// PortSentinels are the values each downstream port answers with.
var PortSentinels = []uint16{111, 222, 333}

// KeepAliveCommand puts the board's bus ports into self-test mode.
var KeepAliveCommand = []byte("modbustest\r\n")

var okPattern = regexp.MustCompile(`\bok\b`)

// LineIO is the serial side of the scan.
type LineIO interface {
	SendCommand(cmd []byte) error
	ReadLine(timeout time.Duration) (string, bool, error)
}

// PortResult is the outcome for one bus port.
type PortResult struct {
	Port    int
	Passed  bool
	Reads   int
	Strikes int
}

// Scan steps the bus-port selector through every port and checks each port
// answers with its sentinel before MaxStrikes consecutive misses.
type Scan struct {
	Bus       Client
	Serial    LineIO
	Select    func(port int) error
	Clock     clock.Clock
	Log       *slog.Logger
	Slave     byte
	Register  uint16
	Sentinels []uint16
	Strikes   int

	current atomic.Int32
}

// NewScan returns a scan with the production constants.
func NewScan(bus Client, line LineIO, sel func(port int) error, clk clock.Clock) *Scan {
	s := &Scan{
		Bus:       bus,
		Serial:    line,
		Select:    sel,
		Clock:     clk,
		Log:       slog.Default(),
		Slave:     ScanSlave,
		Register:  ScanRegister,
		Sentinels: PortSentinels,
		Strikes:   MaxStrikes,
	}
	s.current.Store(-1)
	return s
}

// Current returns the port being scanned, or -1 outside a scan.
func (s *Scan) Current() int {
	return int(s.current.Load())
}

type announce struct {
	port int
	done chan error
}

// Run scans every port in order. The serial keep-alive runs in its own
// goroutine; it is told about each new port through a handoff and re-sends
// the keep-alive whenever the board prints "ok".
func (s *Scan) Run(ctx context.Context) ([]PortResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	handoff := make(chan announce)
	g.Go(func() error { return s.keepAlive(gctx, handoff) })

	results, scanErr := s.scan(gctx, handoff)
	s.current.Store(-1)
	cancel()
	// A keep-alive failure cancels the scan; report the cause, not the
	// cancellation.
	if err := g.Wait(); err != nil && (scanErr == nil || errors.Is(scanErr, context.Canceled)) {
		scanErr = err
	}
	return results, scanErr
}

func (s *Scan) scan(ctx context.Context, handoff chan<- announce) ([]PortResult, error) {
	var results []PortResult
	for port, sentinel := range s.Sentinels {
		if err := s.Select(port); err != nil {
			return results, fmt.Errorf("select bus port %d: %w", port, err)
		}
		s.Clock.Sleep(PortSettleDelay)
		s.current.Store(int32(port))

		a := announce{port: port, done: make(chan error, 1)}
		select {
		case handoff <- a:
		case <-ctx.Done():
			return results, ctx.Err()
		}
		if err := <-a.done; err != nil {
			return results, err
		}

		res := PortResult{Port: port}
		for res.Strikes < s.Strikes {
			regs, ok := s.Bus.ReadInputRegisters(s.Register, 1, s.Slave)
			res.Reads++
			if ok && len(regs) == 1 && regs[0] == sentinel {
				res.Passed = true
				break
			}
			res.Strikes++
			s.Log.Debug("bus port strike", "port", port, "strikes", res.Strikes)
		}
		if res.Passed {
			s.Log.Info("bus port test successful", "port", port+1)
		} else {
			s.Log.Warn("bus port failed", "port", port+1, "strikes", res.Strikes)
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Scan) keepAlive(ctx context.Context, handoff <-chan announce) error {
	active := false
	for {
		if !active {
			select {
			case <-ctx.Done():
				return nil
			case a := <-handoff:
				a.done <- s.Serial.SendCommand(KeepAliveCommand)
				active = true
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case a := <-handoff:
			a.done <- s.Serial.SendCommand(KeepAliveCommand)
			continue
		default:
		}

		line, _, err := s.Serial.ReadLine(keepAliveRead)
		if err != nil {
			return fmt.Errorf("keep-alive: %w", err)
		}
		if okPattern.MatchString(line) {
			s.Log.Debug("re-sending keep-alive", "port", s.Current())
			if err := s.Serial.SendCommand(KeepAliveCommand); err != nil {
				return fmt.Errorf("keep-alive: %w", err)
			}
		}
	}
}

// Passed reports whether every port in results passed.
func Passed(results []PortResult, ports int) bool {
	if len(results) != ports {
		return false
	}
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
