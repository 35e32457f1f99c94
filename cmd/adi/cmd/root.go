package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose   bool
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "adi",
	Short: "OpenTraceADI - ARM debug interface discovery and Cortex-M control",
	Long: `OpenTraceADI (adi) connects to an ARM debug port over SWD, walks the
access ports and CoreSight ROM tables behind it and drives the Cortex-M
cores it finds.

Examples:
  adi interfaces                          # List attached probes
  adi scan                                # Scan the simulated STM32F4
  adi scan --scenario adiv6               # Scan the simulated ADIv6 M33
  adi scan --adapter cmsisdap -v          # Scan real hardware with debug logs
  adi regs 1                              # Halt target 1 and dump registers
  adi monitor 1 vector_catch enable bus   # Run a target monitor command`,
	Version: "0.9.0",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
}

func setupLogging() error {
	log.SetOutput(os.Stderr)
	switch logFormat {
	case "text":
		log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", logFormat)
	}
	if verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.WarnLevel)
	}
	return nil
}
