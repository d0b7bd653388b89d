package serial

import (
	"errors"
	"strings"
	"sync"
)

// Responder produces the bootloader's reply to one command line (without its
// line terminator). An empty reply means silence.
type Responder func(cmd string) string

// ScriptedPort is an in-memory Port that answers each written line through a
// Responder. It stands in for a board in tests and dry runs.
type ScriptedPort struct {
	mu      sync.Mutex
	respond Responder
	partial []byte
	out     []byte
	written []string
	closed  bool
	flushes int
	readErr error
	reads   int
}

// NewScriptedPort creates a port backed by respond.
func NewScriptedPort(respond Responder) *ScriptedPort {
	return &ScriptedPort{respond: respond}
}

// Opener returns an Opener that always hands out this port.
func (s *ScriptedPort) Opener() Opener {
	return func(string, int) (Port, error) {
		s.mu.Lock()
		s.closed = false
		s.mu.Unlock()
		return s, nil
	}
}

func (s *ScriptedPort) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.readErr != nil {
		return 0, s.readErr
	}
	if s.closed {
		return 0, errors.New("port closed")
	}
	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}

func (s *ScriptedPort) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.New("port closed")
	}
	s.partial = append(s.partial, p...)
	for {
		i := strings.IndexByte(string(s.partial), '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(s.partial[:i]), "\r")
		s.partial = s.partial[i+1:]
		s.written = append(s.written, line)
		if s.respond != nil {
			s.out = append(s.out, s.respond(line)...)
		}
	}
	return len(p), nil
}

// FailReads makes every later Read return err, as an unplugged adapter does.
func (s *ScriptedPort) FailReads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

// Reads counts Read calls.
func (s *ScriptedPort) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Inject queues unsolicited output, as if the board printed it.
func (s *ScriptedPort) Inject(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, text...)
}

func (s *ScriptedPort) ResetInputBuffer() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = nil
	s.flushes++
	return nil
}

func (s *ScriptedPort) ResetOutputBuffer() error { return nil }

func (s *ScriptedPort) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Written returns every command line received so far.
func (s *ScriptedPort) Written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.written...)
}

// Count returns how many times cmd was written.
func (s *ScriptedPort) Count(cmd string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, w := range s.written {
		if w == cmd {
			n++
		}
	}
	return n
}

// Closed reports whether Close was called since the last open.
func (s *ScriptedPort) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Flushes counts input buffer resets.
func (s *ScriptedPort) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}

// MenuText is the bootloader's reply to the help command.
const MenuText = "boot loader menu\r\n" +
	"?      - this menu\r\n" +
	"reset  - restart the board\r\n" +
	"flash  - program the flash application\r\n" +
	MenuTerminator + "\r\n"
