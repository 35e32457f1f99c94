package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceADI/pkg/cortexm"
	"github.com/OpenTraceLab/OpenTraceADI/pkg/target"
)

var (
	loadRun     bool
	runAddr     uint32
	stubTimeout time.Duration
)

var attachCmd = &cobra.Command{
	Use:   "attach <target>",
	Short: "Halt a target and report where it stopped",
	Long: `Scan, attach to the numbered target (as listed by scan) and halt it. The
halt state and program counter are printed and the target is detached,
which lets it run again.

Examples:
  adi attach 1
  adi attach 1 --adapter cmsisdap --under-reset`,
	Args: cobra.ExactArgs(1),
	RunE: runAttach,
}

var regsCmd = &cobra.Command{
	Use:   "regs <target>",
	Short: "Halt a target and print its registers",
	Long: `Scan, attach to the numbered target, halt it and print its register file.
The target is detached and left running afterwards.

Examples:
  adi regs 1
  adi regs 1 --scenario adiv6`,
	Args: cobra.ExactArgs(1),
	RunE: runRegs,
}

var tdescCmd = &cobra.Command{
	Use:   "tdesc <target>",
	Short: "Print the GDB target description of a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTarget(cmd.Context(), args[0], func(t target.Target) error {
			fmt.Println(t.Description())
			return nil
		})
	},
}

var vectorCatchCmd = &cobra.Command{
	Use:   "vector-catch <target> [enable|disable vector...]",
	Short: "Show or change the exception vectors that halt a target",
	Long: `Vectors are: reset mm nocp chk stat bus int hard. Without arguments the
current set is printed.

Examples:
  adi vector-catch 1
  adi vector-catch 1 enable bus int`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTargetCommand(cmd.Context(), args[0], "vector_catch", args[1:])
	},
}

var monitorCmd = &cobra.Command{
	Use:   "monitor <target> [command [args...]]",
	Short: "Run a target monitor command",
	Long: `Run one of the monitor commands a target provides. Without a command the
available commands are listed.

Examples:
  adi monitor 1
  adi monitor 1 vector_catch disable hard`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMonitor,
}

var loadCmd = &cobra.Command{
	Use:   "load <target> <image.hex> [r0 [r1 [r2 [r3]]]]",
	Short: "Load an Intel HEX stub into target RAM",
	Long: `Write the segments of an Intel HEX image into target memory and print the
lowest address written. With --run the stub is then started there with the
given arguments in r0-r3.

Examples:
  adi load 1 erase.hex
  adi load 1 erase.hex --run 0x08000000 0x4000`,
	Args: cobra.RangeArgs(2, 6),
	RunE: runLoad,
}

var runCmd = &cobra.Command{
	Use:   "run <target> --addr <address> [r0 [r1 [r2 [r3]]]]",
	Short: "Run a stub already in target RAM",
	Long: `Start the code at --addr with up to four arguments in r0-r3 and wait for
it to stop on a BKPT. The BKPT immediate is printed as the stub's status.

Examples:
  adi run 1 --addr 0x20000000 0x08000000 0x4000 --timeout 5s`,
	Args: cobra.RangeArgs(1, 5),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(attachCmd, regsCmd, tdescCmd, vectorCatchCmd, monitorCmd, loadCmd, runCmd)

	loadCmd.Flags().BoolVar(&loadRun, "run", false,
		"run the stub once loaded")
	loadCmd.Flags().DurationVar(&stubTimeout, "timeout", time.Second,
		"time allowed for the stub to finish")
	runCmd.Flags().Uint32Var(&runAddr, "addr", 0,
		"stub entry address")
	runCmd.Flags().DurationVar(&stubTimeout, "timeout", time.Second,
		"time allowed for the stub to finish")
	runCmd.MarkFlagRequired("addr")
}

func runAttach(cmd *cobra.Command, args []string) error {
	return withTarget(cmd.Context(), args[0], func(t target.Target) error {
		reason, _ := t.HaltPoll()
		if reason == target.HaltRunning || reason == target.HaltError {
			return fmt.Errorf("%s did not halt (%s)", t.Driver(), reason)
		}
		regs, err := t.RegsRead()
		if err != nil {
			return fmt.Errorf("failed to read registers: %w", err)
		}
		fmt.Printf("%s halted at pc 0x%08X\n", t.Driver(), regs[cortexm.RegPC])
		return nil
	})
}

var coreRegNames = [...]string{
	"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7",
	"r8", "r9", "r10", "r11", "r12", "sp", "lr", "pc",
	"xpsr", "msp", "psp", "primask", "basepri", "faultmask", "control",
}

func runRegs(cmd *cobra.Command, args []string) error {
	return withTarget(cmd.Context(), args[0], func(t target.Target) error {
		regs, err := t.RegsRead()
		if err != nil {
			return fmt.Errorf("failed to read registers: %w", err)
		}
		fmt.Printf("%s registers:\n", t.Driver())
		for i, v := range regs {
			name := fmt.Sprintf("word%d", i)
			if i < len(coreRegNames) {
				name = coreRegNames[i]
			}
			fmt.Printf("  %-8s 0x%08X\n", name, v)
		}
		return nil
	})
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if len(args) > 1 {
		return runTargetCommand(cmd.Context(), args[0], args[1], args[2:])
	}
	return withTarget(cmd.Context(), args[0], func(t target.Target) error {
		fmt.Printf("%s commands:\n", t.Driver())
		for _, c := range t.Commands() {
			fmt.Printf("  %-14s %s\n", c.Name, c.Help)
		}
		return nil
	})
}

func runTargetCommand(ctx context.Context, arg, name string, args []string) error {
	return withTarget(ctx, arg, func(t target.Target) error {
		for _, c := range t.Commands() {
			if c.Name == name {
				return c.Run(os.Stdout, args)
			}
		}
		return fmt.Errorf("%s has no command %q", t.Driver(), name)
	})
}

// stubRunner is implemented by targets that can run flash stubs.
type stubRunner interface {
	LoadStub(r io.Reader) (uint32, error)
	RunStub(ctx context.Context, loadAddr uint32, args ...uint32) (uint8, error)
}

var _ stubRunner = (*cortexm.Target)(nil)

func parseStubArgs(args []string) ([]uint32, error) {
	out := make([]uint32, 0, len(args))
	for _, a := range args {
		v, err := strconv.ParseUint(a, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid stub argument %q: %w", a, err)
		}
		out = append(out, uint32(v))
	}
	return out, nil
}

func withStubRunner(ctx context.Context, arg string, fn func(t target.Target, r stubRunner) error) error {
	return withTarget(ctx, arg, func(t target.Target) error {
		r, ok := t.(stubRunner)
		if !ok {
			return fmt.Errorf("%s cannot run stubs", t.Driver())
		}
		return fn(t, r)
	})
}

func runStub(ctx context.Context, r stubRunner, addr uint32, args []uint32) error {
	ctx, cancel := context.WithTimeout(ctx, stubTimeout)
	defer cancel()
	status, err := r.RunStub(ctx, addr, args...)
	if err != nil {
		return fmt.Errorf("stub failed: %w", err)
	}
	fmt.Printf("Stub finished with status %d\n", status)
	return nil
}

func runLoad(cmd *cobra.Command, args []string) error {
	stubArgs, err := parseStubArgs(args[2:])
	if err != nil {
		return err
	}
	if len(stubArgs) > 0 && !loadRun {
		return fmt.Errorf("stub arguments need --run")
	}

	image, err := os.Open(args[1])
	if err != nil {
		return fmt.Errorf("failed to open stub image: %w", err)
	}
	defer image.Close()

	return withStubRunner(cmd.Context(), args[0], func(t target.Target, r stubRunner) error {
		addr, err := r.LoadStub(image)
		if err != nil {
			return err
		}
		fmt.Printf("Loaded %s at 0x%08X\n", args[1], addr)
		if !loadRun {
			return nil
		}
		return runStub(cmd.Context(), r, addr, stubArgs)
	})
}

func runRun(cmd *cobra.Command, args []string) error {
	stubArgs, err := parseStubArgs(args[1:])
	if err != nil {
		return err
	}
	return withStubRunner(cmd.Context(), args[0], func(t target.Target, r stubRunner) error {
		return runStub(cmd.Context(), r, runAddr, stubArgs)
	})
}
