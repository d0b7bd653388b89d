package serial

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/buckleypaul/sealion/internal/clock"
)

var (
	// ErrTimeout is returned when an expected response does not arrive
	// within a strict deadline.
	ErrTimeout = errors.New("timed out waiting for response")

	// ErrConnectionRefused is returned when the bootloader handshake fails
	// MaxTries times in a row.
	ErrConnectionRefused = errors.New("bootloader connection refused")

	// ErrPortFailure is returned when the adapter itself stops answering
	// reads, e.g. after it was unplugged.
	ErrPortFailure = errors.New("serial port failure")
)

const (
	DefaultBaudRate         = 9600
	DefaultMaxTries         = 3
	DefaultHandshakeTimeout = 7 * time.Second
	DefaultReadTimeout      = 5 * time.Second

	// LineTimeout bounds a single line read inside longer waits.
	LineTimeout = 500 * time.Millisecond
	// CommandDelay paces writes so the bootloader can keep up.
	CommandDelay = 500 * time.Millisecond
	// FlushDelay follows every input flush.
	FlushDelay = 100 * time.Millisecond

	readSlice    = 50 * time.Millisecond
	pollInterval = 5 * time.Millisecond
)

// MenuTerminator is the last line of the bootloader help menu.
const MenuTerminator = "run    - run the flash application"

var helpCommand = []byte("?\r\n")

// Port is the part of go.bug.st/serial.Port the link depends on.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	ResetInputBuffer() error
	ResetOutputBuffer() error
	Close() error
}

// Opener opens the transport for a device path.
type Opener func(device string, baudRate int) (Port, error)

// OpenDevice opens a real serial device at 8N1.
func OpenDevice(device string, baudRate int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(readSlice); err != nil {
		port.Close()
		return nil, err
	}
	return port, nil
}

// Response is the text accumulated by a ReadUntil call.
type Response struct {
	Text    string
	Matched bool
}

// Link is a line-oriented session with a board's bootloader.
type Link struct {
	Device           string
	BaudRate         int
	MaxTries         int
	HandshakeTimeout time.Duration

	open Opener
	clk  clock.Clock
	log  *slog.Logger

	mu      sync.Mutex
	port    Port
	tries   int
	pending []byte
}

// NewLink creates a closed link. A nil opener uses OpenDevice and a nil clock
// uses the system clock.
func NewLink(device string, open Opener, clk clock.Clock) *Link {
	if open == nil {
		open = OpenDevice
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Link{
		Device:           device,
		BaudRate:         DefaultBaudRate,
		MaxTries:         DefaultMaxTries,
		HandshakeTimeout: DefaultHandshakeTimeout,
		open:             open,
		clk:              clk,
		log:              slog.Default(),
	}
}

// SetLogger replaces the logger used for traffic traces.
func (l *Link) SetLogger(log *slog.Logger) {
	if log != nil {
		l.log = log
	}
}

// Open establishes the transport if needed and verifies the bootloader
// answers. After MaxTries failed handshakes it returns ErrConnectionRefused
// and resets the attempt counter.
func (l *Link) Open() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.log.Info("opening serial connection", "device", l.Device)
	if l.port == nil {
		port, err := l.open(l.Device, l.BaudRate)
		if err != nil {
			return fmt.Errorf("open %s: %w", l.Device, err)
		}
		l.port = port
		l.pending = nil
	} else {
		l.log.Info("serial connection already open", "device", l.Device)
	}
	return l.verifyLocked()
}

func (l *Link) verifyLocked() error {
	for l.tries < l.MaxTries {
		if l.tries > 0 {
			l.log.Info("retrying handshake", "attempt", l.tries+1, "max", l.MaxTries)
		}
		ok, err := l.handshakeLocked()
		if err != nil {
			l.tries = 0
			return err
		}
		if ok {
			l.tries = 0
			l.log.Info("connection succeeded", "device", l.Device)
			return nil
		}
		l.tries++
	}
	l.tries = 0
	return fmt.Errorf("%s after %d attempts: %w", l.Device, l.MaxTries, ErrConnectionRefused)
}

func (l *Link) handshakeLocked() (bool, error) {
	l.log.Info("verifying connection", "device", l.Device)
	if err := l.port.ResetInputBuffer(); err != nil {
		return false, fmt.Errorf("flush %s: %w", l.Device, err)
	}
	l.pending = nil
	if _, err := l.port.Write(helpCommand); err != nil {
		return false, fmt.Errorf("write %s: %w", l.Device, err)
	}

	deadline := l.clk.Now().Add(l.HandshakeTimeout)
	for l.clk.Now().Before(deadline) {
		line, _, err := l.readLineLocked(l.slice(deadline))
		if err != nil {
			return false, err
		}
		if strings.TrimRight(line, "\r\n") == MenuTerminator {
			return true, nil
		}
	}
	return false, nil
}

// Tries reports failed handshake attempts in the current open cycle.
func (l *Link) Tries() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tries
}

// IsOpen reports whether the transport is held.
func (l *Link) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port != nil
}

// SendCommand writes raw bytes, clears the output buffer and waits
// CommandDelay.
func (l *Link) SendCommand(cmd []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sendLocked(cmd)
}

func (l *Link) sendLocked(cmd []byte) error {
	if l.port == nil {
		return fmt.Errorf("send %q: %w", cmd, errClosed)
	}
	if _, err := l.port.Write(cmd); err != nil {
		return fmt.Errorf("write %s: %w", l.Device, err)
	}
	l.log.Debug("serial wrote", "data", string(cmd))
	if err := l.port.ResetOutputBuffer(); err != nil {
		return fmt.Errorf("reset output %s: %w", l.Device, err)
	}
	l.clk.Sleep(CommandDelay)
	return nil
}

// ReadLine accumulates bytes until a newline or until timeout elapses. On
// timeout it returns what arrived with complete set to false. A failing
// adapter returns an error wrapping ErrPortFailure.
func (l *Link) ReadLine(timeout time.Duration) (line string, complete bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port == nil {
		return "", false, fmt.Errorf("read: %w", errClosed)
	}
	return l.readLineLocked(timeout)
}

func (l *Link) readLineLocked(timeout time.Duration) (string, bool, error) {
	deadline := l.clk.Now().Add(timeout)
	var buf []byte
	chunk := make([]byte, 64)
	for {
		if i := bytes.IndexByte(l.pending, '\n'); i >= 0 {
			buf = append(buf, l.pending[:i+1]...)
			l.pending = l.pending[i+1:]
			l.log.Debug("serial read line", "line", string(buf))
			return string(buf), true, nil
		}
		buf = append(buf, l.pending...)
		l.pending = nil

		if !l.clk.Now().Before(deadline) {
			return string(buf), false, nil
		}
		n, err := l.port.Read(chunk)
		if err != nil {
			l.log.Warn("serial read failed", "device", l.Device, "err", err)
			return string(buf), false, fmt.Errorf("read %s: %w: %w", l.Device, ErrPortFailure, err)
		}
		if n == 0 {
			l.clk.Sleep(pollInterval)
			continue
		}
		l.pending = append(l.pending, chunk[:n]...)
	}
}

// ReadUntil sends cmd and collects lines until one matches re or
// DefaultReadTimeout elapses. A timeout is not an error: the partial text is
// returned with Matched false.
func (l *Link) ReadUntil(cmd []byte, re *regexp.Regexp) (Response, error) {
	return l.readUntil(cmd, re, DefaultReadTimeout, false)
}

// ReadUntilStrict is ReadUntil with a caller-chosen deadline that is
// surfaced as ErrTimeout.
func (l *Link) ReadUntilStrict(cmd []byte, re *regexp.Regexp, timeout time.Duration) (Response, error) {
	return l.readUntil(cmd, re, timeout, true)
}

func (l *Link) readUntil(cmd []byte, re *regexp.Regexp, timeout time.Duration, strict bool) (Response, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.log.Debug("read until", "cmd", string(cmd), "expect", re.String())
	if err := l.sendLocked(cmd); err != nil {
		return Response{}, err
	}
	defer l.flushLocked()

	var text strings.Builder
	deadline := l.clk.Now().Add(timeout)
	for l.clk.Now().Before(deadline) {
		line, _, err := l.readLineLocked(l.slice(deadline))
		text.WriteString(line)
		if err != nil {
			return Response{Text: text.String()}, err
		}
		if line != "" && re.MatchString(line) {
			return Response{Text: text.String(), Matched: true}, nil
		}
	}

	resp := Response{Text: text.String()}
	if strict {
		return resp, fmt.Errorf("%q waiting for %q: %w", strings.TrimSpace(string(cmd)), re.String(), ErrTimeout)
	}
	l.log.Debug("read until timed out", "cmd", string(cmd))
	return resp, nil
}

// ResetInput discards anything buffered on the input side.
func (l *Link) ResetInput() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flushLocked()
}

func (l *Link) flushLocked() {
	if l.port == nil {
		return
	}
	if err := l.port.ResetInputBuffer(); err != nil {
		l.log.Warn("input flush failed", "device", l.Device, "err", err)
	}
	l.pending = nil
	l.clk.Sleep(FlushDelay)
}

// Close releases the transport. Closing a closed link is a no-op.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port == nil {
		return nil
	}
	l.log.Info("closing serial connection", "device", l.Device)
	err := l.port.Close()
	l.port = nil
	l.pending = nil
	return err
}

// slice bounds one line read so that it never runs past deadline.
func (l *Link) slice(deadline time.Time) time.Duration {
	remaining := deadline.Sub(l.clk.Now())
	if remaining > LineTimeout {
		return LineTimeout
	}
	return remaining
}

var errClosed = errors.New("serial link is closed")
