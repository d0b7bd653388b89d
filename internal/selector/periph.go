package selector

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PeriphPins drives GPIO lines through periph.io. Lines are resolved by name
// on first use and cached.
type PeriphPins struct {
	mu    sync.Mutex
	lines map[string]gpio.PinIO
}

// OpenPeriph initializes the host drivers.
func OpenPeriph() (*PeriphPins, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("gpio host init: %w", err)
	}
	return &PeriphPins{lines: make(map[string]gpio.PinIO)}, nil
}

func (p *PeriphPins) line(name string) (gpio.PinIO, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.lines[name]; ok {
		return l, nil
	}
	l := gpioreg.ByName(name)
	if l == nil {
		return nil, fmt.Errorf("gpio line %s not found", name)
	}
	p.lines[name] = l
	return l, nil
}

// Write drives a line as an output.
func (p *PeriphPins) Write(name string, high bool) error {
	l, err := p.line(name)
	if err != nil {
		return err
	}
	if err := l.Out(gpio.Level(high)); err != nil {
		return fmt.Errorf("gpio %s: %w", name, err)
	}
	return nil
}

// Read samples a line as a pulled-down input.
func (p *PeriphPins) Read(name string) (bool, error) {
	l, err := p.line(name)
	if err != nil {
		return false, err
	}
	if err := l.In(gpio.PullDown, gpio.NoEdge); err != nil {
		return false, fmt.Errorf("gpio %s: %w", name, err)
	}
	return l.Read() == gpio.High, nil
}

// Close stops driving every line used so far by returning it to a floating
// input.
func (p *PeriphPins) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for name, l := range p.lines {
		if err := l.In(gpio.Float, gpio.NoEdge); err != nil {
			errs = append(errs, fmt.Errorf("gpio %s: %w", name, err))
		}
	}
	p.lines = make(map[string]gpio.PinIO)
	return errors.Join(errs...)
}
