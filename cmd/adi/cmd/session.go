package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceADI/pkg/adi"
	"github.com/OpenTraceLab/OpenTraceADI/pkg/dap"
	"github.com/OpenTraceLab/OpenTraceADI/pkg/discovery"
	"github.com/OpenTraceLab/OpenTraceADI/pkg/target"
)

var (
	adapterType   string
	adapterSerial string
	adapterUSBID  string
	adapterSpeed  int
	simScenario   string
	underReset    bool
	maxDepth      int
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&adapterType, "adapter", "a", "simulator",
		"SWD adapter type (simulator, cmsisdap)")
	flags.StringVarP(&adapterSerial, "serial", "s", "",
		"adapter serial number (if multiple adapters)")
	flags.StringVar(&adapterUSBID, "usb-id", "",
		"cmsisdap: VID:PID in hex (default: first known probe)")
	flags.IntVar(&adapterSpeed, "speed", dap.DefaultClockHz,
		"SWCLK speed in Hz")
	flags.StringVar(&simScenario, "scenario", "m4",
		"simulator: target to simulate (m4, adiv6)")
	flags.BoolVar(&underReset, "under-reset", false,
		"hold nRST while scanning and leave cores halted")
	flags.IntVar(&maxDepth, "max-depth", discovery.DefaultMaxDepth,
		"nested ROM table limit")
}

// session is one scanned debug port. Close releases the targets before
// the probe.
type session struct {
	probe  dap.Probe
	dp     *adi.DP
	list   target.List
	walker *discovery.Walker
}

func openSession(ctx context.Context) (*session, error) {
	probe, err := createProbe(adapterType, adapterSerial)
	if err != nil {
		return nil, fmt.Errorf("failed to create adapter: %w", err)
	}
	s := &session{probe: probe}

	if err := probe.SetSpeed(adapterSpeed); err != nil && !errors.Is(err, dap.ErrNotImplemented) {
		probe.Close()
		return nil, fmt.Errorf("failed to set speed: %w", err)
	}
	if underReset {
		if err := probe.SetReset(true); err != nil {
			probe.Close()
			return nil, fmt.Errorf("failed to assert reset: %w", err)
		}
	}

	s.dp, err = adi.NewDP(probe)
	if err != nil {
		probe.Close()
		return nil, fmt.Errorf("failed to connect debug port: %w", err)
	}

	opts := discovery.DefaultOptions()
	opts.MaxDepth = maxDepth
	opts.ConnectUnderReset = underReset
	s.walker = discovery.NewWalker(s.dp, &s.list, opts)
	if err := s.walker.Scan(ctx); err != nil {
		probe.Close()
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	return s, nil
}

func (s *session) Close() {
	s.list.Free()
	if err := s.probe.Close(); err != nil {
		log.Warnf("close adapter: %v", err)
	}
}

// target returns the target named by a 1-based index argument.
func (s *session) target(arg string) (target.Target, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return nil, fmt.Errorf("invalid target number %q", arg)
	}
	t := s.list.Get(n - 1)
	if t == nil {
		return nil, fmt.Errorf("no target %d (%d found)", n, s.list.Len())
	}
	return t, nil
}

// withTarget scans, attaches to target arg and runs fn on it.
func withTarget(ctx context.Context, arg string, fn func(t target.Target) error) error {
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	t, err := s.target(arg)
	if err != nil {
		return err
	}
	if err := t.Attach(); err != nil {
		return fmt.Errorf("failed to attach to %s: %w", t.Driver(), err)
	}
	defer t.Detach()
	return fn(t)
}

// createProbe creates the appropriate SWD probe based on type
func createProbe(adapterType, serial string) (dap.Probe, error) {
	switch adapterType {
	case "simulator", "sim":
		var sim *dap.Sim
		switch simScenario {
		case "m4":
			sim, _ = dap.BuildCortexM4Scenario()
		case "adiv6":
			sim, _ = dap.BuildADIv6Scenario()
		default:
			return nil, fmt.Errorf("unknown simulator scenario %q", simScenario)
		}
		log.Debugf("using simulator scenario %s", simScenario)
		return sim, nil

	case "cmsisdap", "cmsis-dap":
		vid, pid, err := cmsisdapUSBID()
		if err != nil {
			return nil, err
		}
		adapter, err := dap.NewCMSISDAPAdapter(dap.Config{
			VID:     vid,
			PID:     pid,
			Serial:  serial,
			ClockHz: adapterSpeed,
		})
		if err != nil {
			return nil, err
		}
		return adapter, nil

	default:
		return nil, fmt.Errorf("unknown adapter type %q", adapterType)
	}
}

// cmsisdapUSBID parses --usb-id. Without it the first known CMSIS-DAP
// probe is used.
func cmsisdapUSBID() (uint16, uint16, error) {
	if adapterUSBID == "" {
		return 0, 0, nil
	}
	var vid, pid uint16
	if _, err := fmt.Sscanf(adapterUSBID, "%x:%x", &vid, &pid); err != nil {
		return 0, 0, fmt.Errorf("invalid --usb-id %q: %w", adapterUSBID, err)
	}
	return vid, pid, nil
}
