package serial

import (
	"path/filepath"

	"go.bug.st/serial/enumerator"
)

// PortInfo holds details about a serial port.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
}

// ListPorts returns available serial ports.
func ListPorts() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	var result []PortInfo
	for _, p := range ports {
		result = append(result, PortInfo{
			Name:         p.Name,
			IsUSB:        p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
		})
	}
	return result, nil
}

// Present reports whether device is among ports. Fixture adapters are
// usually udev symlinks (/dev/rleRS232), so the link target is compared too.
func Present(device string, ports []PortInfo) bool {
	target := device
	if resolved, err := filepath.EvalSymlinks(device); err == nil {
		target = resolved
	}
	for _, p := range ports {
		if p.Name == device || p.Name == target {
			return true
		}
	}
	return false
}
