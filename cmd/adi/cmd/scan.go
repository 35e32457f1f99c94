package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceADI/pkg/discovery"
	"github.com/OpenTraceLab/OpenTraceADI/pkg/idcode"
	"github.com/OpenTraceLab/OpenTraceADI/pkg/idcode/deviceinfo"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover the debug components behind the debug port",
	Long: `Identify the debug port, walk every access port and ROM table behind it
and list the CoreSight components and debug targets found.

The scan command will:
  1. Read DPIDR (and TARGETID on DPv2 and later) and power up the debug domains
  2. Try each ADIv5 APSEL, or walk the ADIv6 root ROM table
  3. Follow ROM tables, powering up and resetting debug domains as required
  4. Probe every Cortex-M core and resume it unless --under-reset is given

Examples:
  # Scan the simulated STM32F4
  adi scan

  # Scan the simulated ADIv6 Cortex-M33
  adi scan --scenario adiv6

  # Scan a CMSIS-DAP probe, holding nRST
  adi scan --adapter cmsisdap --under-reset`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	dp := s.dp
	fmt.Printf("Debug port: DPIDR 0x%08X, DPv%d, ADIv%d, designer %s\n",
		dp.DPIDR.Raw, dp.Version, dp.ADIVersion, designerName(dp.Designer))
	if dp.HasTargetID {
		info, ok := deviceinfo.Lookup(dp.TargetDesigner, dp.TargetPartNo)
		name := fmt.Sprintf("part 0x%04X", dp.TargetPartNo)
		if ok {
			name = info.Name
		}
		fmt.Printf("Target ID:  %s, %s\n", designerName(dp.TargetDesigner), name)
	}
	if dp.ADIVersion == 6 {
		fmt.Printf("Root table: 0x%016X (%d-bit addresses)\n", dp.Base, dp.AddrWidth)
	}

	fmt.Printf("\nComponents (%d):\n", len(s.walker.Nodes))
	for _, n := range s.walker.Nodes {
		fmt.Printf("  %s%s\n", strings.Repeat("  ", n.Level), describeNode(n))
	}

	fmt.Printf("\nFound %d target(s)\n", s.list.Len())
	for i, t := range s.list.All() {
		fmt.Printf("  %d  %s\n", i+1, t.Driver())
	}
	return nil
}

func designerName(code uint16) string {
	if m, ok := idcode.LookupManufacturer(code); ok {
		return m.Name
	}
	return fmt.Sprintf("0x%03X", code)
}

func describeNode(n discovery.Node) string {
	where := fmt.Sprintf("0x%08X", n.Base)
	if n.AP != "" {
		where = n.AP + " " + where
	}
	what := fmt.Sprintf("%s, %s part 0x%03X", n.Class, designerName(n.Designer), n.PartNo)
	if n.Component != nil {
		what = n.Component.String()
	}
	if n.Note != "" {
		what += " [" + n.Note + "]"
	}
	return where + ": " + what
}
