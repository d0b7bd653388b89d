package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buckleypaul/sealion/internal/config"
	"github.com/buckleypaul/sealion/internal/serial"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial adapters",
	Long: `List the serial ports on this host and check that the configured
bootloader and register-bus adapters are plugged in.`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	root, err := benchRoot()
	if err != nil {
		return err
	}
	cfg := config.Load(root)

	ports, err := serial.ListPorts()
	if err != nil {
		return fmt.Errorf("list ports: %w", err)
	}
	printPorts(cmd, cfg, ports)
	return nil
}

func printPorts(cmd *cobra.Command, cfg config.Config, ports []serial.PortInfo) {
	out := cmd.OutOrStdout()
	if len(ports) == 0 {
		fmt.Fprintln(out, "No serial ports found.")
	} else {
		fmt.Fprintln(out, "Serial ports:")
		for _, p := range ports {
			desc := ""
			if p.IsUSB {
				desc = fmt.Sprintf("USB %s:%s", p.VID, p.PID)
				if p.SerialNumber != "" {
					desc += " " + p.SerialNumber
				}
			}
			fmt.Fprintf(out, "  %-24s %s\n", p.Name, desc)
		}
	}

	fmt.Fprintln(out)
	for _, d := range []struct{ role, device string }{
		{"bootloader", cfg.SerialDevice},
		{"register bus", cfg.BusDevice},
	} {
		status := "missing"
		if serial.Present(d.device, ports) {
			status = "present"
		}
		fmt.Fprintf(out, "%-13s %-24s %s\n", d.role, d.device, status)
	}
}
