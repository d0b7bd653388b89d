package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

var (
	// Global flags
	verbose  bool
	benchDir string
)

var rootCmd = &cobra.Command{
	Use:   "sealion",
	Short: "Leak-detection board test bench",
	Long: `Drive the six-slot fixture for LD2100 and LD5200 leak-detection boards:
bootloader checks, analog and relay tests, cable sensing, the RS-485 register
bus and the network interface.

Examples:
  sealion                      # Open the tray
  sealion run --dry-run        # Walk the step plan without hardware
  sealion ports                # Show serial adapters and the configured devices`,
	Version:      version,
	SilenceUsage: true,
	RunE:         runBench,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&benchDir, "bench", "", "bench directory holding .sealion/ (default: current directory)")
	addRunFlags(rootCmd)
}

// benchRoot resolves the directory configuration and logs are relative to.
func benchRoot() (string, error) {
	if benchDir != "" {
		return filepath.Abs(benchDir)
	}
	return os.Getwd()
}

// under joins a relative path onto root. Absolute and empty paths are
// returned as given.
func under(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
