package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/buckleypaul/sealion/internal/analog"
	"github.com/buckleypaul/sealion/internal/clock"
	"github.com/buckleypaul/sealion/internal/regbus"
	"github.com/buckleypaul/sealion/internal/selector"
	"github.com/buckleypaul/sealion/internal/serial"
)

// Step timings and limits.
const (
	StartupTimeout  = 15 * time.Second
	DiagTimeout     = 10 * time.Second
	ShortSettle     = time.Second
	RelaySettle     = 200 * time.Millisecond
	CurrentSettle   = 500 * time.Millisecond
	ClockTolerance  = 5 * time.Second
	SupplyNominal   = 15.0
	SupplyAllowance = 0.5
	BreakAllowance  = 20.0

	LEDChannel = 2
	LEDVolts   = 0.39

	// Family A identity register.
	IdentitySlave    = 2
	IdentityRegister = regbus.RegisterBase + 9990
	IdentityValue    = 0x2100

	// SenseResistance is the current-loop shunt in ohms.
	SenseResistance = 100.0
)

// LoopCurrents are the DAC set points in milliamps.
var LoopCurrents = []int{4, 12, 20}

var (
	lengthTolerance  = Percent(0.05)
	shortTolerance   = Percent(0.25)
	ledTolerance     = Percent(0.10)
	currentTolerance = Percent(0.10)
)

// Link is the bootloader session a Tester drives.
type Link interface {
	Open() error
	Close() error
	SendCommand(cmd []byte) error
	ReadLine(timeout time.Duration) (string, bool, error)
	ReadUntil(cmd []byte, re *regexp.Regexp) (serial.Response, error)
	ReadUntilStrict(cmd []byte, re *regexp.Regexp, timeout time.Duration) (serial.Response, error)
}

// Selectors stages fixture selectors and samples digital inputs.
type Selectors interface {
	Stage(name selector.Name, value int) error
	Commit() error
	Input(label string) (bool, error)
}

// Bus is the register bus master.
type Bus interface {
	regbus.Client
	Open() error
	Close() error
}

// Sampler reads averaged analog values.
type Sampler interface {
	Read(channel int, g analog.Gain) (analog.Reading, error)
	ReadDifferential(g analog.Gain) (analog.Reading, error)
}

// Pinger checks that an address answers on the network.
type Pinger interface {
	Reachable(ctx context.Context, addr string) (bool, error)
}

// Hardware is the fixture as seen by one board's steps.
type Hardware struct {
	Link    Link
	Bank    Selectors
	Bus     Bus
	ADC     Sampler
	Network Pinger
	Clock   clock.Clock
}

// Target describes the board under test.
type Target struct {
	Family      Family
	BusPort     int
	RelayInputs []string
	IP          string
	DefaultIP   string
	// MAC is the operator-entered hardware address the session is opened for.
	MAC string
}

// Tester runs the individual checks against one board.
type Tester struct {
	hw     Hardware
	target Target
	prof   Profile
	log    *slog.Logger

	clockSet time.Time
}

// NewTester binds a target to the fixture hardware.
func NewTester(hw Hardware, target Target) *Tester {
	if hw.Clock == nil {
		hw.Clock = clock.Real{}
	}
	return &Tester{
		hw:     hw,
		target: target,
		prof:   target.Family.Profile(),
		log:    slog.Default(),
	}
}

// SetLogger sends step traces, and those of any hardware that accepts a
// logger, to l.
func (t *Tester) SetLogger(l *slog.Logger) {
	if l == nil {
		return
	}
	t.log = l
	type logged interface{ SetLogger(*slog.Logger) }
	for _, c := range []any{t.hw.Link, t.hw.Bank, t.hw.Bus, t.hw.ADC, t.hw.Network} {
		if lc, ok := c.(logged); ok {
			lc.SetLogger(l)
		}
	}
}

// Connect performs the bootloader handshake.
func (t *Tester) Connect(ctx context.Context) (bool, error) {
	if err := t.hw.Link.Open(); err != nil {
		return false, fmt.Errorf("connect: %w", err)
	}
	t.log.Info("serial session open", "mac", t.target.MAC)
	return true, nil
}

// SetClock writes the host's date and time to the board. The time command
// carries the clock reading taken just before it is sent.
func (t *Tester) SetClock(ctx context.Context) (bool, error) {
	now := t.hw.Clock.Now()
	date, err := t.hw.Link.ReadUntil([]byte("date "+now.Format(dateLayout)+"\r\n"), okPattern)
	if err != nil {
		return false, err
	}
	now = t.hw.Clock.Now()
	clk, err := t.hw.Link.ReadUntil([]byte("time "+now.Format(timeLayout)+"\r\n"), okPattern)
	if err != nil {
		return false, err
	}
	t.clockSet = now
	t.log.Info("board clock set", "date", now.Format(dateLayout), "time", now.Format(timeLayout))
	return date.Matched && clk.Matched, nil
}

// ReadClock reads the board clock back and compares it with the host clock at
// the moment the query was sent. The board reports whole seconds, so the
// comparison is made at that resolution.
func (t *Tester) ReadClock(ctx context.Context) (bool, error) {
	if t.clockSet.IsZero() {
		return false, fmt.Errorf("read clock before setting it: %w", ErrOperationsOutOfOrder)
	}
	sent := t.hw.Clock.Now()
	resp, err := t.hw.Link.ReadUntil([]byte("time\r\n"), clockPattern)
	if err != nil {
		return false, err
	}
	m := clockPattern.FindStringSubmatch(resp.Text)
	if m == nil {
		t.log.Warn("no clock in response", "text", resp.Text)
		return false, nil
	}
	board, err := time.ParseInLocation(dateLayout+" "+timeLayout, m[1]+" "+m[2], sent.Location())
	if err != nil {
		t.log.Warn("unparseable board clock", "value", m[0], "err", err)
		return false, nil
	}
	diff := board.Sub(sent.Truncate(time.Second))
	ok := time.Duration(math.Abs(float64(diff))) < ClockTolerance
	t.log.Info("board clock read", "board", board.Format(time.DateTime), "drift", diff, "passed", ok)
	return ok, nil
}

// Startup reboots the board and checks the self-test banner. A board that
// never reaches the bootloader fails the whole slot.
func (t *Tester) Startup(ctx context.Context) (bool, error) {
	resp, err := t.hw.Link.ReadUntilStrict([]byte("reset\r\n"), unprogrammed, StartupTimeout)
	if err != nil {
		return false, fmt.Errorf("startup: %w", err)
	}
	ok := true
	if !MramMatches(resp.Text) {
		t.log.Warn("mram test mismatch")
		ok = false
	}
	for _, re := range t.prof.StartupMarkers {
		if !re.MatchString(resp.Text) {
			t.log.Warn("startup marker missing", "marker", re.String())
			ok = false
		}
	}
	return ok, nil
}

// Supply checks the 15 V rail.
func (t *Tester) Supply(ctx context.Context) (bool, error) {
	resp, err := t.hw.Link.ReadUntil([]byte("15v\r\n"), supplyPattern)
	if err != nil {
		return false, err
	}
	v, err := ParseSupply(resp.Text)
	if err != nil {
		t.log.Warn("no supply reading", "text", resp.Text)
		return false, nil
	}
	// The window is open at both ends.
	ok := math.Abs(SupplyNominal-v) < SupplyAllowance
	t.log.Info("15V supply", "volts", v, "passed", ok)
	return ok, nil
}

// Relays switches each relay and samples the fixture inputs it drives.
func (t *Tester) Relays(ctx context.Context) (bool, error) {
	plan, err := t.target.Family.RelayPlan(t.target.RelayInputs)
	if err != nil {
		return false, err
	}
	ok := true
	for _, c := range plan {
		state := "off"
		if c.On {
			state = "on"
		}
		resp, err := t.hw.Link.ReadUntil([]byte(fmt.Sprintf("relay %d %s\r\n", c.Relay, state)), okPattern)
		if err != nil {
			return false, err
		}
		if !resp.Matched {
			t.log.Warn("relay command not acknowledged", "relay", c.Relay, "state", state)
			ok = false
		}
		t.hw.Clock.Sleep(RelaySettle)
		for in, want := range c.Expect {
			got, err := t.hw.Bank.Input(in)
			if err != nil {
				return false, err
			}
			if got != want {
				t.log.Warn("relay input mismatch", "relay", c.Relay, "state", state, "input", in, "want", want, "got", got)
				ok = false
			}
		}
	}
	return ok, nil
}

// Length steps the length selector through the family's targets and checks
// both legs at each.
func (t *Tester) Length(ctx context.Context) (bool, error) {
	if err := t.stage(selector.Short, selector.ShortDisengaged); err != nil {
		return false, err
	}
	ok := true
	for code, want := range t.prof.LengthTargets {
		if err := t.stage(selector.Length, code); err != nil {
			return false, err
		}
		c, good, err := t.cable()
		if err != nil {
			return false, err
		}
		if !good {
			ok = false
			continue
		}
		pass := lengthTolerance.Check(want, c.Leg1) && lengthTolerance.Check(want, c.Leg2)
		t.log.Info("length", "code", code, "expected", want, "leg1", c.Leg1, "leg2", c.Leg2, "passed", pass)
		ok = ok && pass
	}
	return ok, t.stage(selector.Length, selector.LengthDisengaged)
}

// Short steps the short selector through the targets, then checks the cable
// break reading.
func (t *Tester) Short(ctx context.Context) (bool, error) {
	if err := t.stage(selector.Length, selector.LengthDisengaged); err != nil {
		return false, err
	}
	ok := true
	for code, want := range t.prof.ShortTargets {
		if err := t.stage(selector.Short, code); err != nil {
			return false, err
		}
		t.hw.Clock.Sleep(ShortSettle)
		c, good, err := t.cable()
		if err != nil {
			return false, err
		}
		if !good {
			ok = false
			continue
		}
		pass := shortTolerance.Check(want, c.Distance)
		t.log.Info("short", "code", code, "expected", want, "distance", c.Distance, "passed", pass)
		ok = ok && pass
	}

	if err := t.hw.Bank.Stage(selector.Length, selector.LengthBreak); err != nil {
		return false, err
	}
	if err := t.stage(selector.Short, selector.ShortDisengaged); err != nil {
		return false, err
	}
	t.hw.Clock.Sleep(ShortSettle)
	c, good, err := t.cable()
	if err != nil {
		return false, err
	}
	pass := good && Absolute(BreakAllowance).Check(t.prof.BreakResistance, c.Leg1)
	t.log.Info("cable break", "expected", t.prof.BreakResistance, "leg1", c.Leg1, "passed", pass)
	ok = ok && pass

	return ok, t.stage(selector.Length, selector.LengthDisengaged)
}

// cable reads the adc1 diagnostic. A missing or garbled report fails the
// check without aborting the step.
func (t *Tester) cable() (Cable, bool, error) {
	resp, err := t.hw.Link.ReadUntilStrict([]byte("adc1\r\n"), distancePattern, DiagTimeout)
	if errors.Is(err, serial.ErrTimeout) {
		t.log.Warn("adc1 report timed out", "text", resp.Text)
		return Cable{}, false, nil
	}
	if err != nil {
		return Cable{}, false, err
	}
	c, err := ParseCable(resp.Text)
	if err != nil {
		t.log.Warn("unparseable adc1 report", "err", err)
		return Cable{}, false, nil
	}
	return c, true, nil
}

// BusCheck verifies the RS-485 port: an identity read on family A, the
// three-port scan on family B. The bus selector is disconnected afterwards.
func (t *Tester) BusCheck(ctx context.Context) (ok bool, err error) {
	if err := t.hw.Bus.Open(); err != nil {
		return false, err
	}
	defer func() {
		if cerr := t.hw.Bus.Close(); cerr != nil {
			t.log.Warn("closing register bus", "err", cerr)
		}
		if serr := t.stage(selector.Bus, selector.BusOff); serr != nil && err == nil {
			err = serr
		}
	}()

	if t.prof.PortScan {
		scan := regbus.NewScan(t.hw.Bus, t.hw.Link, func(port int) error {
			return t.stage(selector.Bus, port)
		}, t.hw.Clock)
		scan.Log = t.log
		results, err := scan.Run(ctx)
		if err != nil {
			return false, fmt.Errorf("bus scan: %w", err)
		}
		return regbus.Passed(results, len(scan.Sentinels)), nil
	}

	if err := t.stage(selector.Bus, t.target.BusPort); err != nil {
		return false, err
	}
	t.hw.Clock.Sleep(regbus.PortSettleDelay)
	regs, good := t.hw.Bus.ReadHoldingRegisters(IdentityRegister, 1, IdentitySlave)
	pass := good && len(regs) == 1 && regs[0] == IdentityValue
	t.log.Info("bus identity", "port", t.target.BusPort, "values", regs, "passed", pass)
	return pass, nil
}

// WriteIP programs addr and confirms it through netcfg.
func (t *Tester) WriteIP(ctx context.Context, addr string) (bool, error) {
	if strings.TrimSpace(addr) == "" {
		return false, fmt.Errorf("ip write: %w", ErrNoAddress)
	}
	if err := t.hw.Link.SendCommand([]byte("ip " + addr + "\r\n")); err != nil {
		return false, err
	}
	resp, err := t.hw.Link.ReadUntil([]byte("netcfg\r\n"), regexp.MustCompile(`ip: *`+regexp.QuoteMeta(addr)+`\b`))
	if err != nil {
		return false, err
	}
	t.log.Info("ip write", "address", addr, "passed", resp.Matched)
	return resp.Matched, nil
}

// LED checks the status LED drive voltage.
func (t *Tester) LED(ctx context.Context) (bool, error) {
	r, err := t.hw.ADC.Read(LEDChannel, analog.GainEight)
	if err != nil {
		return false, err
	}
	ok := ledTolerance.Check(LEDVolts, r.Volts)
	t.log.Info("led", "volts", r.Volts, "passed", ok)
	return ok, nil
}

// CurrentLoop drives the 4-20 mA output through each set point and measures
// the shunt voltage.
func (t *Tester) CurrentLoop(ctx context.Context) (bool, error) {
	ok := true
	for _, ma := range LoopCurrents {
		resp, err := t.hw.Link.ReadUntil([]byte(fmt.Sprintf("dac %d\r\n", ma)), okPattern)
		if err != nil {
			return false, err
		}
		if !resp.Matched {
			t.log.Warn("dac command not acknowledged", "milliamps", ma)
			ok = false
			continue
		}
		t.hw.Clock.Sleep(CurrentSettle)
		r, err := t.hw.ADC.ReadDifferential(analog.GainTwo)
		if err != nil {
			return false, err
		}
		want := float64(ma) / 1000 * SenseResistance
		pass := currentTolerance.Check(want, r.Volts)
		t.log.Info("output current", "milliamps", ma, "expected", want, "volts", r.Volts, "passed", pass)
		ok = ok && pass
	}
	return ok, nil
}

// Ethernet reopens the session, pings the slot address and restores the
// default address.
func (t *Tester) Ethernet(ctx context.Context) (bool, error) {
	if err := t.hw.Link.Open(); err != nil {
		return false, fmt.Errorf("ethernet: %w", err)
	}
	defer t.hw.Link.Close()

	reachable, err := t.hw.Network.Reachable(ctx, t.target.IP)
	if err != nil {
		t.log.Warn("ping failed", "address", t.target.IP, "err", err)
		reachable = false
	}
	t.log.Info("ethernet", "address", t.target.IP, "reachable", reachable)

	restored, err := t.WriteIP(ctx, t.target.DefaultIP)
	if err != nil {
		return false, err
	}
	if !restored {
		t.log.Warn("default address not restored", "address", t.target.DefaultIP)
	}
	return reachable && restored, nil
}

// Close releases the session and the bus.
func (t *Tester) Close() error {
	return errors.Join(t.hw.Link.Close(), t.hw.Bus.Close())
}

func (t *Tester) stage(name selector.Name, value int) error {
	if err := t.hw.Bank.Stage(name, value); err != nil {
		return err
	}
	return t.hw.Bank.Commit()
}
