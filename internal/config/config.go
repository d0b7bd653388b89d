package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/buckleypaul/sealion/internal/selector"
)

const (
	DefaultSerialDevice     = "/dev/ttyUSB0"
	DefaultBusDevice        = "/dev/ttyUSB1"
	DefaultBaudRate         = 9600
	DefaultI2CBus           = "1"
	DefaultADCAddress       = 0x48
	DefaultLogDir           = "logs"
	DefaultHandshakeSeconds = 7
	DefaultMaxTries         = 3
	DefaultIP               = "10.0.0.188"
	SlotCount               = 6
)

// Config holds all sealion configuration.
type Config struct {
	SerialDevice     string   `json:"serial_device,omitempty"`
	SerialBaudRate   int      `json:"serial_baud_rate,omitempty"`
	BusDevice        string   `json:"bus_device,omitempty"`
	BusBaudRate      int      `json:"bus_baud_rate,omitempty"`
	I2CBus           string   `json:"i2c_bus,omitempty"`
	ADCAddress       uint16   `json:"adc_address,omitempty"`
	LogDir           string   `json:"log_dir,omitempty"`
	HandshakeSeconds int      `json:"handshake_seconds,omitempty"`
	MaxTries         int      `json:"max_tries,omitempty"`
	DefaultIP        string   `json:"default_ip,omitempty"`
	SlotIPs          []string `json:"slot_ips,omitempty"`
	WiringFile       string   `json:"wiring_file,omitempty"`
	DryRun           bool     `json:"dry_run,omitempty"`
	PingPrivileged   bool     `json:"ping_privileged,omitempty"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		SerialDevice:     DefaultSerialDevice,
		SerialBaudRate:   DefaultBaudRate,
		BusDevice:        DefaultBusDevice,
		BusBaudRate:      DefaultBaudRate,
		I2CBus:           DefaultI2CBus,
		ADCAddress:       DefaultADCAddress,
		LogDir:           DefaultLogDir,
		HandshakeSeconds: DefaultHandshakeSeconds,
		MaxTries:         DefaultMaxTries,
		DefaultIP:        DefaultIP,
		SlotIPs:          DefaultSlotIPs(),
	}
}

// DefaultSlotIPs returns 10.0.0.181 through 10.0.0.186.
func DefaultSlotIPs() []string {
	ips := make([]string, SlotCount)
	for i := range ips {
		ips[i] = fmt.Sprintf("10.0.0.%d", 181+i)
	}
	return ips
}

// HandshakeTimeout is the bootloader menu wait per attempt.
func (c Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeSeconds) * time.Second
}

// SlotIP returns the address assigned to slot i, falling back to the
// default for missing or blank entries. Out-of-range slots get "".
func (c Config) SlotIP(i int) string {
	if i < 0 || i >= SlotCount {
		return ""
	}
	if i < len(c.SlotIPs) && c.SlotIPs[i] != "" {
		return c.SlotIPs[i]
	}
	return DefaultSlotIPs()[i]
}

// Load reads and merges global and bench configs.
// Order: defaults → global (~/.config/sealion/config.json) → bench (.sealion/config.json).
func Load(benchRoot string) Config {
	cfg := Defaults()

	// Global config
	if home, err := os.UserHomeDir(); err == nil {
		globalPath := filepath.Join(home, ".config", "sealion", "config.json")
		mergeFromFile(&cfg, globalPath)
	}

	// Bench config
	if benchRoot != "" {
		mergeFromFile(&cfg, filepath.Join(benchRoot, ".sealion", "config.json"))
	}

	return cfg
}

// Save writes the config to the bench .sealion/config.json by default,
// or to the global config if global is true.
func Save(cfg Config, benchRoot string, global bool) error {
	var dir string
	if global {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		dir = filepath.Join(home, ".config", "sealion")
	} else {
		dir = filepath.Join(benchRoot, ".sealion")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0o644)
}

// Booleans can only be switched on by a file; an absent key leaves them as
// they were.
func mergeFromFile(cfg *Config, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	var fileCfg Config
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return
	}

	if fileCfg.SerialDevice != "" {
		cfg.SerialDevice = fileCfg.SerialDevice
	}
	if fileCfg.SerialBaudRate != 0 {
		cfg.SerialBaudRate = fileCfg.SerialBaudRate
	}
	if fileCfg.BusDevice != "" {
		cfg.BusDevice = fileCfg.BusDevice
	}
	if fileCfg.BusBaudRate != 0 {
		cfg.BusBaudRate = fileCfg.BusBaudRate
	}
	if fileCfg.I2CBus != "" {
		cfg.I2CBus = fileCfg.I2CBus
	}
	if fileCfg.ADCAddress != 0 {
		cfg.ADCAddress = fileCfg.ADCAddress
	}
	if fileCfg.LogDir != "" {
		cfg.LogDir = fileCfg.LogDir
	}
	if fileCfg.HandshakeSeconds != 0 {
		cfg.HandshakeSeconds = fileCfg.HandshakeSeconds
	}
	if fileCfg.MaxTries != 0 {
		cfg.MaxTries = fileCfg.MaxTries
	}
	if fileCfg.DefaultIP != "" {
		cfg.DefaultIP = fileCfg.DefaultIP
	}
	if len(fileCfg.SlotIPs) != 0 {
		cfg.SlotIPs = fileCfg.SlotIPs
	}
	if fileCfg.WiringFile != "" {
		cfg.WiringFile = fileCfg.WiringFile
	}
	if fileCfg.DryRun {
		cfg.DryRun = true
	}
	if fileCfg.PingPrivileged {
		cfg.PingPrivileged = true
	}
}

// LoadWiring reads a YAML wiring profile. Groups missing from the file keep
// their canonical pins. An empty path returns the canonical wiring.
func LoadWiring(path string) (selector.Wiring, error) {
	w := selector.DefaultWiring()
	if path == "" {
		return w, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return w, fmt.Errorf("read wiring: %w", err)
	}
	if err := yaml.Unmarshal(data, &w); err != nil {
		return w, fmt.Errorf("parse wiring %s: %w", path, err)
	}
	if err := w.Validate(); err != nil {
		return w, fmt.Errorf("wiring %s: %w", path, err)
	}
	return w, nil
}
