package board

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/buckleypaul/sealion/internal/analog"
	"github.com/buckleypaul/sealion/internal/clock"
	"github.com/buckleypaul/sealion/internal/regbus"
	"github.com/buckleypaul/sealion/internal/selector"
	"github.com/buckleypaul/sealion/internal/serial"
)

var testStart = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

type fakePinger struct {
	mu      sync.Mutex
	reached map[string]bool
	pinged  []string
}

func (p *fakePinger) Reachable(ctx context.Context, addr string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pinged = append(p.pinged, addr)
	return p.reached[addr], nil
}

// fakeBoard simulates a healthy board in the fixture. Tests break it by
// adjusting its fields before running steps.
type fakeBoard struct {
	family Family
	target Target

	clk  *clock.Fake
	pins *selector.MemPins
	bank *selector.Bank
	port *serial.ScriptedPort
	link *serial.Link
	bus  *regbus.MemBus
	net  *fakePinger

	mu        sync.Mutex
	silent    bool
	banner    string
	supply    float64
	lag       time.Duration
	clockSet  bool
	ip        string
	milliamps int
	stuck     int
	legScale  map[int]float64
	breakOhms float64
	led       float64
	loopScale float64
}

func newFakeBoard(t *testing.T, f Family) *fakeBoard {
	t.Helper()
	fb := &fakeBoard{
		family:    f,
		clk:       clock.NewFake(testStart),
		pins:      selector.NewMemPins(),
		net:       &fakePinger{reached: map[string]bool{}},
		supply:    15.02,
		ip:        "10.0.0.188",
		legScale:  map[int]float64{},
		breakOhms: f.Profile().BreakResistance + 5,
		led:       0.39,
		loopScale: 1,
	}
	fb.target = Target{
		Family:    f,
		IP:        "10.0.0.181",
		DefaultIP: "10.0.0.188",
	}
	if f == FamilyA {
		// First LD2100 slot: address 3 on bus port 2.
		fb.target.BusPort = 2
		fb.target.RelayInputs = []string{"I0", "I1"}
		fb.banner = "Mram Test: 2048//2048\r\n" +
			"Frequency test 1: passed\r\nFrequency test 2: passed\r\n" +
			"Frequency test 3: passed\r\nFrequency test 4: passed\r\n" +
			"User prgm is not valid\r\n"
	} else {
		fb.target.IP = "10.0.0.184"
		fb.target.RelayInputs = []string{"I0", "I1", "I2"}
		fb.banner = "Mram Test: 2048//2048\r\n" +
			"Testing duart1: 64 passed\r\nTesting duart2: 64 passed\r\n" +
			"User prgm is not valid\r\n"
	}
	fb.net.reached[fb.target.IP] = true

	fb.bank = selector.NewBank(fb.pins, selector.DefaultWiring(), fb.clk)
	fb.port = serial.NewScriptedPort(fb.respond)
	fb.link = serial.NewLink("/dev/ttyFAKE", fb.port.Opener(), fb.clk)
	fb.bus = &regbus.MemBus{
		Holding: func(address, count uint16, slave byte) ([]uint16, bool) {
			if slave != IdentitySlave || address != IdentityRegister || fb.bank.Committed(selector.Bus) != fb.target.BusPort {
				return nil, false
			}
			return []uint16{IdentityValue}, true
		},
		Input: func(address, count uint16, slave byte) ([]uint16, bool) {
			port := fb.bank.Committed(selector.Bus)
			if slave != regbus.ScanSlave || port < 0 || port >= len(regbus.PortSentinels) {
				return nil, false
			}
			return []uint16{regbus.PortSentinels[port]}, true
		},
	}
	return fb
}

func (fb *fakeBoard) hardware() Hardware {
	adc := analog.NewSampler(analog.ConverterFunc(func(in analog.Input, g analog.Gain) (int, error) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		if in.Differential {
			return analog.RawFor(float64(fb.milliamps)/1000*SenseResistance*fb.loopScale, g), nil
		}
		if in.Channel == LEDChannel {
			return analog.RawFor(fb.led, g), nil
		}
		return 0, nil
	}))
	return Hardware{
		Link:    fb.link,
		Bank:    fb.bank,
		Bus:     fb.bus,
		ADC:     adc,
		Network: fb.net,
		Clock:   fb.clk,
	}
}

func (fb *fakeBoard) tester() *Tester {
	return NewTester(fb.hardware(), fb.target)
}

func (fb *fakeBoard) suite(t *testing.T) *Suite {
	t.Helper()
	s, err := NewSuite(fb.tester())
	if err != nil {
		t.Fatalf("NewSuite: %v", err)
	}
	return s
}

func (fb *fakeBoard) respond(cmd string) string {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	switch {
	case cmd == "?":
		if fb.silent {
			return ""
		}
		return serial.MenuText
	case strings.HasPrefix(cmd, "date "):
		return "ok\r\n"
	case strings.HasPrefix(cmd, "time "):
		fb.clockSet = true
		return "ok\r\n"
	case cmd == "time":
		if !fb.clockSet {
			return "01/01/00 00:00:00\r\n"
		}
		return fb.clk.Now().Add(-fb.lag).Format("01/02/06 15:04:05") + "\r\n"
	case cmd == "reset":
		return fb.banner
	case cmd == "15v":
		return fmt.Sprintf("15V Supply: %.2f\r\n", fb.supply)
	case strings.HasPrefix(cmd, "relay "):
		fields := strings.Fields(cmd)
		n, _ := strconv.Atoi(fields[1])
		fb.relay(n, fields[2] == "on")
		return "ok\r\n"
	case cmd == "adc1":
		return fb.adc1()
	case strings.HasPrefix(cmd, "ip "):
		fb.ip = strings.TrimPrefix(cmd, "ip ")
		return "ok\r\n"
	case cmd == "netcfg":
		return "ip: " + fb.ip + "\r\nmask: 255.255.255.0\r\n"
	case strings.HasPrefix(cmd, "dac "):
		fb.milliamps, _ = strconv.Atoi(strings.TrimPrefix(cmd, "dac "))
		return "ok\r\n"
	}
	return ""
}

func (fb *fakeBoard) relay(n int, on bool) {
	if n == fb.stuck {
		return
	}
	in := fb.target.RelayInputs
	w := selector.DefaultWiring()
	if fb.family == FamilyA {
		fb.pins.SetLevel(w.Inputs[in[0]], on)
		fb.pins.SetLevel(w.Inputs[in[1]], !on)
		return
	}
	fb.pins.SetLevel(w.Inputs[in[n-1]], on)
}

func (fb *fakeBoard) adc1() string {
	length := fb.bank.Committed(selector.Length)
	short := fb.bank.Committed(selector.Short)
	prof := fb.family.Profile()

	var leg1, leg2, distance float64
	switch {
	case length == selector.LengthBreak:
		leg1, leg2 = fb.breakOhms, fb.breakOhms
	case length >= 0 && length < len(prof.LengthTargets):
		leg1 = prof.LengthTargets[length]
		leg2 = leg1
		if s, ok := fb.legScale[length]; ok {
			leg2 *= s
		}
	case short >= 0 && short < len(prof.ShortTargets):
		distance = prof.ShortTargets[short]
	}
	if leg1 == 0 {
		leg1 = 3
	}
	if leg2 == 0 {
		leg2 = 4
	}
	if distance == 0 {
		distance = 2
	}
	return "internal sensor\r\n" +
		"leg1 resistance (ohms): 9999\r\n" +
		"external cable\r\n" +
		fmt.Sprintf("leg1 resistance (ohms): %.0f\r\n", leg1) +
		fmt.Sprintf("leg2 resistance (ohms): %.0f\r\n", leg2) +
		fmt.Sprintf("distance (ohms): %.0f\r\n", distance)
}

func runSteps(t *testing.T, s *Suite) *TestResult {
	t.Helper()
	r := NewTestResult()
	for _, st := range s.Steps {
		ok, err := st.Run(context.Background())
		if err != nil {
			t.Fatalf("step %s: %v", st.Name, err)
		}
		r.Process(st.Name, ok)
	}
	return r
}

// connected returns a tester whose session has completed the handshake.
func (fb *fakeBoard) connected(t *testing.T) *Tester {
	t.Helper()
	tr := fb.tester()
	if _, err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return tr
}

// commands returns the lines written to the board, without handshakes.
func (fb *fakeBoard) commands() []string {
	var out []string
	for _, w := range fb.port.Written() {
		if w != "?" {
			out = append(out, w)
		}
	}
	return out
}
