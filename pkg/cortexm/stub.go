package cortexm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/marcinbor85/gohex"
	log "github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceADI/pkg/adi"
	"github.com/OpenTraceLab/OpenTraceADI/pkg/target"
)

// stubPollInterval is the delay between halt polls while a stub runs.
const stubPollInterval = time.Millisecond

// ErrStubFault reports a stub that stopped on something other than a
// BKPT instruction.
var ErrStubFault = errors.New("cortexm: stub did not finish on a breakpoint")

// LoadStub writes the segments of an Intel HEX image into target memory
// and returns the lowest address written.
func (t *Target) LoadStub(r io.Reader) (uint32, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return 0, fmt.Errorf("cortexm: parse stub: %w", err)
	}
	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return 0, fmt.Errorf("cortexm: stub image is empty")
	}
	low := segments[0].Address
	for _, seg := range segments {
		if err := t.MemWrite(seg.Address, seg.Data); err != nil {
			return 0, fmt.Errorf("cortexm: load stub at 0x%08x: %w", seg.Address, err)
		}
		low = min(low, seg.Address)
		log.WithField("ap", t.ap.String()).Debugf("cortexm: loaded %d bytes at 0x%08x", len(seg.Data), seg.Address)
	}
	return low, nil
}

// RunStub runs the code at loadAddr with r0-r3 set to args, PRIMASK,
// BASEPRI, FAULTMASK and CONTROL cleared and a Thumb xPSR, until it hits
// a BKPT. SP is left as the core had it. It returns the BKPT immediate,
// which stubs use as a status code. ctx bounds the run; on expiry the
// core is halted again.
func (t *Target) RunStub(ctx context.Context, loadAddr uint32, args ...uint32) (uint8, error) {
	if len(args) > 4 {
		return 0, fmt.Errorf("cortexm: stub takes at most 4 arguments, got %d", len(args))
	}
	regs, err := t.RegsRead()
	if err != nil {
		return 0, err
	}
	for i := 0; i < 4; i++ {
		regs[i] = 0
		if i < len(args) {
			regs[i] = args[i]
		}
	}
	regs[RegPC] = loadAddr
	regs[RegXPSR] = xpsrThumb
	for i := RegPrimask; i <= RegControl; i++ {
		regs[i] = 0
	}
	if err := t.RegsWrite(regs); err != nil {
		return 0, err
	}
	if t.CheckError() {
		return 0, fmt.Errorf("cortexm: stub setup: %w", adi.ErrFault)
	}

	t.HaltResume(false)
	var reason target.HaltReason
	for {
		reason, _ = t.HaltPoll()
		if reason != target.HaltRunning {
			break
		}
		select {
		case <-ctx.Done():
			t.HaltRequest()
			return 0, fmt.Errorf("cortexm: stub at 0x%08x: %w", loadAddr, ctx.Err())
		case <-time.After(stubPollInterval):
		}
	}

	switch reason {
	case target.HaltError:
		return 0, fmt.Errorf("cortexm: stub at 0x%08x: %w", loadAddr, adi.ErrFault)
	case target.HaltBreakpoint:
	default:
		return 0, fmt.Errorf("%w (%s)", ErrStubFault, reason)
	}

	instr, err := t.instrAtPC()
	if err != nil {
		return 0, err
	}
	if instr&bkptMask != bkptOpcode {
		return 0, fmt.Errorf("%w (opcode 0x%04x)", ErrStubFault, instr)
	}
	return uint8(instr), nil
}
