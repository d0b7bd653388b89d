package analog

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// DefaultAddress is the ADS1015 address with ADDR tied to ground.
const DefaultAddress = 0x48

const (
	regConversion = 0x00
	regConfig     = 0x01

	cfgStart      = 0x8000
	cfgSingleShot = 0x0100
	cfgRate1600   = 0x0080
	cfgCompOff    = 0x0003

	conversionWait = 2 * time.Millisecond
)

var pgaBits = map[Gain]uint16{
	GainTwoThirds: 0x0000,
	GainOne:       0x0200,
	GainTwo:       0x0400,
	GainFour:      0x0600,
	GainEight:     0x0800,
	GainSixteen:   0x0A00,
}

// ADS1015 is a 12-bit converter on an I²C bus.
type ADS1015 struct {
	mu  sync.Mutex
	dev *i2c.Dev
	bus i2c.BusCloser
}

// OpenADS1015 opens the named I²C bus ("" for the default) and addresses the
// converter at addr.
func OpenADS1015(bus string, addr uint16) (*ADS1015, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("i2c host init: %w", err)
	}
	b, err := i2creg.Open(bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", bus, err)
	}
	return &ADS1015{dev: &i2c.Dev{Addr: addr, Bus: b}, bus: b}, nil
}

func muxBits(in Input) (uint16, error) {
	if in.Differential {
		return 0x0000, nil
	}
	if in.Channel < 0 || in.Channel > 3 {
		return 0, fmt.Errorf("adc channel %d out of range", in.Channel)
	}
	return uint16(0x4000 + in.Channel<<12), nil
}

// Convert runs one single-shot conversion.
func (a *ADS1015) Convert(in Input, g Gain) (int, error) {
	mux, err := muxBits(in)
	if err != nil {
		return 0, err
	}
	pga, ok := pgaBits[g]
	if !ok {
		return 0, fmt.Errorf("unsupported gain %v", g)
	}
	cfg := cfgStart | mux | pga | cfgSingleShot | cfgRate1600 | cfgCompOff

	a.mu.Lock()
	defer a.mu.Unlock()

	w := []byte{regConfig, byte(cfg >> 8), byte(cfg)}
	if err := a.dev.Tx(w, nil); err != nil {
		return 0, fmt.Errorf("ads1015 config: %w", err)
	}
	time.Sleep(conversionWait)

	r := make([]byte, 2)
	if err := a.dev.Tx([]byte{regConversion}, r); err != nil {
		return 0, fmt.Errorf("ads1015 read: %w", err)
	}
	return int(int16(binary.BigEndian.Uint16(r)) >> 4), nil
}

// Close releases the bus.
func (a *ADS1015) Close() error {
	return a.bus.Close()
}
