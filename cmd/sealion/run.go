package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/buckleypaul/sealion/internal/analog"
	"github.com/buckleypaul/sealion/internal/app"
	"github.com/buckleypaul/sealion/internal/bench"
	"github.com/buckleypaul/sealion/internal/board"
	"github.com/buckleypaul/sealion/internal/clock"
	"github.com/buckleypaul/sealion/internal/config"
	"github.com/buckleypaul/sealion/internal/netcheck"
	"github.com/buckleypaul/sealion/internal/pages"
	"github.com/buckleypaul/sealion/internal/regbus"
	"github.com/buckleypaul/sealion/internal/selector"
	"github.com/buckleypaul/sealion/internal/serial"
	"github.com/buckleypaul/sealion/internal/store"
)

var (
	dryRun   bool
	dryDelay time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open the tray and test boards",
	Long: `Open the terminal UI. Configure loaded slots on the Setup page, then
start, pause, resume or cancel the run from the Tray page.

With --dry-run no hardware is opened and every step waits and passes.`,
	RunE: runBench,
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "simulate the fixture")
	cmd.Flags().DurationVar(&dryDelay, "step-delay", 500*time.Millisecond, "dry-run time per step")
}

// fixture is everything a run needs besides the UI.
type fixture struct {
	factory bench.SuiteFactory
	bank    *selector.Bank
	device  func(string)
	close   func() error
}

func runBench(cmd *cobra.Command, args []string) error {
	root, err := benchRoot()
	if err != nil {
		return err
	}
	cfg := config.Load(root)
	if dryRun {
		cfg.DryRun = true
	}

	logDir := under(root, cfg.LogDir)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("log directory: %w", err)
	}
	st := store.New(logDir)

	// The UI owns the terminal, so process logs go to a file.
	logFile, err := os.OpenFile(filepath.Join(logDir, "sealion.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open process log: %w", err)
	}
	defer logFile.Close()
	log := newLogger(logFile)

	wiring, err := config.LoadWiring(under(root, cfg.WiringFile))
	if err != nil {
		return err
	}

	var fx *fixture
	if cfg.DryRun {
		fx = openDryRun(wiring, dryDelay)
	} else {
		fx, err = openFixture(cfg, wiring, log)
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := fx.close(); err != nil {
			log.Warn("closing fixture", "err", err)
		}
	}()
	log.Info("bench ready", "root", root, "dry_run", cfg.DryRun, "logs", logDir)

	var prog *tea.Program
	orch := bench.New(bench.Options{
		Factory:   fx.factory,
		Selectors: fx.bank,
		Logs:      st,
		Sink:      bench.SinkFunc(func(e bench.Event) { prog.Send(e) }),
		SlotIPs:   cfg.SlotIPs,
		Log:       log,
	})

	slots := orch.Slots()
	pageMap := map[app.PageID]app.Page{
		app.TrayPage:     pages.NewTrayPage(orch, slots),
		app.SetupPage:    pages.NewSetupPage(slots),
		app.LogsPage:     pages.NewLogsPage(st),
		app.SettingsPage: pages.NewSettingsPage(&cfg, root),
	}

	model := app.New(pageMap, &cfg, root, orch, fx.device)
	prog = tea.NewProgram(model, tea.WithAltScreen())
	_, err = prog.Run()

	// Quitting mid-run cancels it; wait so slot logs are closed.
	orch.Cancel()
	orch.Wait()
	return err
}

func openDryRun(wiring selector.Wiring, delay time.Duration) *fixture {
	bank := selector.NewBank(selector.NewMemPins(), wiring, nil)
	return &fixture{
		factory: bench.DryRunFactory{Delay: delay},
		bank:    bank,
		device:  func(string) {},
		close:   func() error { return nil },
	}
}

// openFixture checks the adapters are plugged in and opens the GPIO bank
// and the ADC. The serial link and register bus open per step. Anything
// opened before a failure is released again.
func openFixture(cfg config.Config, wiring selector.Wiring, log *slog.Logger) (_ *fixture, err error) {
	ports, err := serial.ListPorts()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	for _, dev := range []string{cfg.SerialDevice, cfg.BusDevice} {
		if !serial.Present(dev, ports) {
			return nil, fmt.Errorf("adapter %s not found; check the USB cable or run 'sealion ports'", dev)
		}
	}

	var release closers
	defer func() {
		if err != nil {
			if cerr := release.Close(); cerr != nil {
				log.Warn("releasing fixture", "err", cerr)
			}
		}
	}()

	pins, err := selector.OpenPeriph()
	if err != nil {
		return nil, err
	}
	release = append(release, pins.Close)

	if shared := i2cOverlap(cfg.I2CBus, wiring); len(shared) > 0 {
		log.Warn("selector lines double as the ADC bus; set i2c_bus or a wiring profile", "bus", cfg.I2CBus, "lines", shared)
	}
	adc, err := analog.OpenADS1015(cfg.I2CBus, cfg.ADCAddress)
	if err != nil {
		return nil, err
	}
	release = append(release, adc.Close)

	bank := selector.NewBank(pins, wiring, nil)
	bank.SetLogger(log)
	if err := bank.Reset(); err != nil {
		return nil, fmt.Errorf("reset selectors: %w", err)
	}

	link := serial.NewLink(cfg.SerialDevice, nil, nil)
	link.BaudRate = cfg.SerialBaudRate
	link.MaxTries = cfg.MaxTries
	link.HandshakeTimeout = cfg.HandshakeTimeout()

	bus := regbus.New(cfg.BusDevice)
	bus.BaudRate = cfg.BusBaudRate

	hw := board.Hardware{
		Link:    link,
		Bank:    bank,
		Bus:     bus,
		ADC:     analog.NewSampler(adc),
		Network: netcheck.New(cfg.PingPrivileged),
		Clock:   clock.Real{},
	}

	return &fixture{
		factory: bench.HardwareFactory{Hardware: hw, DefaultIP: cfg.DefaultIP},
		bank:    bank,
		device: func(dev string) {
			link.Close()
			link.Device = dev
		},
		close: append(release, bus.Close, link.Close).Close,
	}, nil
}

// i2cOverlap returns the selector lines that are also SDA/SCL of I²C bus 1
// on a Raspberry Pi header.
func i2cOverlap(bus string, w selector.Wiring) []string {
	if bus != "1" {
		return nil
	}
	var shared []string
	for _, group := range [][]string{w.Board, w.BoardShadow, w.Short, w.Length, w.Bus} {
		for _, name := range group {
			if name == "GPIO2" || name == "GPIO3" {
				shared = append(shared, name)
			}
		}
	}
	return shared
}

// closers releases resources in reverse order of acquisition.
type closers []func() error

func (c closers) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
