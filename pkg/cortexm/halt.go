package cortexm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	bitmap "github.com/boljen/go-bitmap"
	log "github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceADI/pkg/adi"
	"github.com/OpenTraceLab/OpenTraceADI/pkg/target"
)

const (
	attachTries    = 10
	attachInterval = 200 * time.Millisecond
)

// ErrAttach reports a core that would not halt.
var ErrAttach = errors.New("cortexm: core did not halt")

func (t *Target) resetController() (adi.ResetController, bool) {
	rc, ok := t.ap.DP.Transport().(adi.ResetController)
	return rc, ok
}

func (t *Target) resetAsserted() bool {
	rc, ok := t.resetController()
	if !ok {
		return false
	}
	asserted, err := rc.ResetAsserted()
	return err == nil && asserted
}

// Attach halts the core, installs the vector catch set and sizes and
// clears the breakpoint and watchpoint units.
func (t *Target) Attach() error {
	t.CheckError()
	fields := log.Fields{"ap": t.ap.String(), "driver": t.driver}

	if t.opts.ConnectUnderReset && t.resetAsserted() {
		if err := t.releaseFromReset(); err != nil {
			return err
		}
	}

	t.HaltRequest()
	halted := false
	for tries := attachTries; tries > 0; tries-- {
		reason, _ := t.HaltPoll()
		if reason == target.HaltError {
			return fmt.Errorf("cortexm: attach: %w", adi.ErrFault)
		}
		if reason != target.HaltRunning {
			halted = true
			break
		}
		if t.resetAsserted() {
			break
		}
		time.Sleep(attachInterval)
	}
	if !halted && !t.resetAsserted() {
		return ErrAttach
	}

	if err := t.write32(regDEMCR, t.demcr); err != nil {
		return fmt.Errorf("cortexm: write DEMCR: %w", err)
	}
	if err := t.write32(regDFSR, dfsrResetAll); err != nil {
		return fmt.Errorf("cortexm: clear DFSR: %w", err)
	}

	fpCtrl, err := t.read32(regFPCtrl)
	if err != nil {
		return fmt.Errorf("cortexm: read FP_CTRL: %w", err)
	}
	t.bpMax = min(int(fpCtrl>>4)&0xf, MaxBreakpoints)
	t.fpbRevision = fpCtrl >> 28
	dwtCtrl, err := t.read32(regDWTCtrl)
	if err != nil {
		return fmt.Errorf("cortexm: read DWT_CTRL: %w", err)
	}
	t.wpMax = min(int(dwtCtrl>>28), MaxWatchpoints)
	t.bpUsed = bitmap.New(t.bpMax)
	t.wpUsed = bitmap.New(t.wpMax)

	if err := t.clearComparators(); err != nil {
		return err
	}
	if err := t.write32(regFPCtrl, fpCtrlKey|fpCtrlEnable); err != nil {
		return fmt.Errorf("cortexm: enable FPB: %w", err)
	}

	if rc, ok := t.resetController(); ok {
		if err := rc.SetReset(false); err != nil {
			return fmt.Errorf("cortexm: release nRST: %w", err)
		}
	}

	fields["breakpoints"] = t.bpMax
	fields["watchpoints"] = t.wpMax
	log.WithFields(fields).Debug("cortexm: attached")
	return nil
}

// releaseFromReset catches the reset vector on a core held in reset, then
// releases nRST and waits for the core to leave reset.
func (t *Target) releaseFromReset() error {
	if err := t.write32(regDEMCR, t.demcr|demcrVCCoreReset); err != nil {
		return fmt.Errorf("cortexm: arm reset catch: %w", err)
	}
	if err := t.write32(regDHCSR, dhcsrDbgKey|dhcsrCHalt|dhcsrCDebugEn); err != nil {
		return fmt.Errorf("cortexm: halt under reset: %w", err)
	}
	rc, _ := t.resetController()
	if err := rc.SetReset(false); err != nil {
		return fmt.Errorf("cortexm: release nRST: %w", err)
	}
	return t.waitResetDone()
}

// waitResetDone polls DHCSR until S_RESET_ST reads clear.
func (t *Target) waitResetDone() error {
	deadline := time.Now().Add(t.opts.ResetTimeout)
	for {
		dhcsr, err := t.read32(regDHCSR)
		if err == nil && dhcsr&dhcsrSResetSt == 0 {
			return nil
		}
		if err != nil && !errors.Is(err, adi.ErrTimeout) {
			return fmt.Errorf("cortexm: read DHCSR: %w", err)
		}
		if time.Now().After(deadline) {
			log.WithField("ap", t.ap.String()).Warn("cortexm: timeout waiting for reset to complete")
			return fmt.Errorf("cortexm: reset: %w", adi.ErrTimeout)
		}
	}
}

func (t *Target) clearComparators() error {
	for i := 0; i < t.bpMax; i++ {
		if err := t.write32(regFPComp(i), 0); err != nil {
			return fmt.Errorf("cortexm: clear breakpoint %d: %w", i, err)
		}
		t.bpUsed.Set(i, false)
	}
	for i := 0; i < t.wpMax; i++ {
		if err := t.write32(regDWTFunc(i), 0); err != nil {
			return fmt.Errorf("cortexm: clear watchpoint %d: %w", i, err)
		}
		t.wpUsed.Set(i, false)
	}
	return nil
}

// Detach clears every comparator and disables halting debug, letting the
// core run.
func (t *Target) Detach() error {
	if err := t.clearComparators(); err != nil {
		return err
	}
	if err := t.write32(regDHCSR, dhcsrDbgKey); err != nil {
		return fmt.Errorf("cortexm: disable debug: %w", err)
	}
	return nil
}

// Reset resets the system, pulsing nRST when the probe drives it and
// requesting SYSRESETREQ otherwise.
func (t *Target) Reset() error {
	// Discard a stale S_RESET_ST.
	if _, err := t.read32(regDHCSR); err != nil {
		return fmt.Errorf("cortexm: read DHCSR: %w", err)
	}

	if rc, ok := t.resetController(); ok && !t.InhibitNRST {
		if err := rc.SetReset(true); err != nil {
			return fmt.Errorf("cortexm: assert nRST: %w", err)
		}
		if err := rc.SetReset(false); err != nil {
			return fmt.Errorf("cortexm: release nRST: %w", err)
		}
	} else if err := t.write32(regAIRCR, aircrVectKey|aircrSysResetReq); err != nil {
		return fmt.Errorf("cortexm: request system reset: %w", err)
	}

	if err := t.waitResetDone(); err != nil {
		return err
	}
	if err := t.write32(regDFSR, dfsrResetAll); err != nil {
		return fmt.Errorf("cortexm: clear DFSR: %w", err)
	}
	_, err := t.read32(regDHCSR)
	return err
}

// HaltRequest asks the core to enter debug state. A timeout is reported
// and otherwise ignored: the core may be sleeping in WFI.
func (t *Target) HaltRequest() {
	err := t.write32(regDHCSR, dhcsrDbgKey|dhcsrCHalt|dhcsrCDebugEn)
	if errors.Is(err, adi.ErrTimeout) {
		log.WithField("ap", t.ap.String()).Warn("cortexm: timeout sending halt request, is the target in WFI?")
	} else if err != nil {
		log.WithField("ap", t.ap.String()).Debugf("cortexm: halt request: %v", err)
	}
}

// HaltPoll implements target.Target. A timeout reading DHCSR means the
// core is still running; any other error frees the whole target list.
func (t *Target) HaltPoll() (target.HaltReason, uint32) {
	dhcsr, err := t.read32(regDHCSR)
	switch {
	case errors.Is(err, adi.ErrTimeout):
		return target.HaltRunning, 0
	case err != nil:
		log.WithField("ap", t.ap.String()).Errorf("cortexm: halt poll: %v", err)
		if t.opts.List != nil {
			t.opts.List.Free()
		}
		return target.HaltError, 0
	}
	if dhcsr&dhcsrSHalt == 0 {
		return target.HaltRunning, 0
	}

	dfsr, err := t.read32(regDFSR)
	if err != nil {
		return target.HaltError, 0
	}
	if err := t.write32(regDFSR, dfsr); err != nil {
		return target.HaltError, 0
	}

	if t.hasCache {
		if ccr, err := t.read32(regCCR); err == nil {
			t.dcacheEnabled = ccr&ccrDC != 0
		}
	}

	if dfsr&dfsrVCatch != 0 && t.faultUnwind() {
		return target.HaltFault, 0
	}

	t.onBkpt = dfsr&dfsrBkpt != 0
	if t.onBkpt {
		if instr, err := t.instrAtPC(); err == nil && instr == semihostingBkpt {
			if t.semihostRequest() {
				return target.HaltRequest, 0
			}
			t.HaltResume(t.stepping)
			return target.HaltRunning, 0
		}
	}

	switch {
	case dfsr&dfsrDWTTrap != 0:
		return target.HaltWatchpoint, t.checkWatch()
	case dfsr&dfsrBkpt != 0:
		return target.HaltBreakpoint, 0
	case dfsr&dfsrHalted != 0:
		if t.stepping {
			return target.HaltStepping, 0
		}
		return target.HaltRequest, 0
	}
	return target.HaltBreakpoint, 0
}

func (t *Target) instrAtPC() (uint16, error) {
	pc, err := t.pcRead()
	if err != nil {
		return 0, err
	}
	return t.ap.Read16(uint64(pc))
}

// HaltResume leaves debug state, single stepping with interrupts masked
// when step is set.
func (t *Target) HaltResume(step bool) {
	fields := log.Fields{"ap": t.ap.String()}
	dhcsr := uint32(dhcsrDbgKey | dhcsrCDebugEn)
	if step {
		dhcsr |= dhcsrCStep | dhcsrCMaskInt
	}

	// C_MASKINTS may only change while halted.
	if step != t.stepping {
		if err := t.write32(regDHCSR, dhcsr|dhcsrCHalt); err != nil {
			log.WithFields(fields).Debugf("cortexm: resume: %v", err)
		}
		t.stepping = step
	}

	if t.onBkpt {
		pc, err := t.pcRead()
		if err == nil {
			if instr, err := t.ap.Read16(uint64(pc)); err == nil && instr&bkptMask == bkptOpcode {
				err = t.pcWrite(pc + 2)
			}
		}
		if err != nil {
			log.WithFields(fields).Debugf("cortexm: step over breakpoint: %v", err)
		}
		t.onBkpt = false
	}

	if t.hasCache {
		if err := t.write32(regICIALLU, 0); err != nil {
			log.WithFields(fields).Debugf("cortexm: invalidate icache: %v", err)
		}
	}
	t.dcacheEnabled = false

	if err := t.write32(regDHCSR, dhcsr); err != nil {
		log.WithFields(fields).Debugf("cortexm: resume: %v", err)
	}
}

// faultUnwind makes a caught HardFault or configurable fault look like a
// halt at the faulting instruction. It reports whether it unwound.
func (t *Target) faultUnwind() bool {
	hfsr, err := t.read32(regHFSR)
	if err != nil {
		return false
	}
	cfsr, err := t.read32(regCFSR)
	if err != nil {
		return false
	}
	// Write back to clear.
	if t.write32(regHFSR, hfsr) != nil || t.write32(regCFSR, cfsr) != nil {
		return false
	}
	// A vector catch without FORCED or a configurable fault is a core
	// reset.
	if hfsr&hfsrForced == 0 && cfsr == 0 {
		return false
	}

	regs, err := t.RegsRead()
	if err != nil {
		return false
	}
	var frame [32]byte
	excReturn := regs[RegLR]
	if !unwindFrame(regs, excReturn, func(sp uint32) ([8]uint32, error) {
		var stack [8]uint32
		if err := t.ap.MemRead(frame[:], uint64(sp)); err != nil {
			return stack, err
		}
		for i := range stack {
			stack[i] = binary.LittleEndian.Uint32(frame[4*i:])
		}
		return stack, nil
	}) {
		return false
	}
	if t.CheckError() {
		return false
	}

	if err := t.write32(regAIRCR, aircrVectKey|aircrVectClrActive); err != nil {
		return false
	}
	if err := t.RegsWrite(regs); err != nil {
		return false
	}
	log.WithFields(log.Fields{
		"ap":   t.ap.String(),
		"pc":   fmt.Sprintf("0x%08x", regs[RegPC]),
		"hfsr": fmt.Sprintf("0x%08x", hfsr),
		"cfsr": fmt.Sprintf("0x%08x", cfsr),
	}).Debug("cortexm: unwound fault")
	return true
}

// unwindFrame pops the exception frame described by excReturn off the
// stack it names, restoring LR and PC and advancing that stack pointer.
func unwindFrame(regs []uint32, excReturn uint32, readFrame func(sp uint32) ([8]uint32, error)) bool {
	spsel := excReturn&excReturnSPSel != 0
	fpca := excReturn&excReturnNoFPCtx == 0

	sp := regs[RegMSP]
	if spsel {
		sp = regs[RegPSP]
	}
	stack, err := readFrame(sp)
	if err != nil {
		return false
	}
	regs[RegLR] = stack[5]
	regs[RegPC] = stack[6]

	frameSize := uint32(frameSizeBasic)
	if fpca {
		frameSize = frameSizeExtended
	}
	if stack[7]&xpsrStackAlign != 0 {
		frameSize += 4
	}

	if spsel {
		regs[RegControl] |= controlSPSel
		regs[RegPSP] += frameSize
		regs[RegSP] = regs[RegPSP]
	} else {
		regs[RegMSP] += frameSize
		regs[RegSP] = regs[RegMSP]
	}
	if fpca {
		regs[RegControl] |= controlFPCA
	}
	return true
}

// checkWatch returns the comparator address of the first allocated
// watchpoint whose MATCHED flag is set, or zero.
func (t *Target) checkWatch() uint32 {
	for i := 0; i < t.wpMax; i++ {
		if !t.wpUsed.Get(i) {
			continue
		}
		fn, err := t.read32(regDWTFunc(i))
		if err != nil || fn&dwtFuncMatched == 0 {
			continue
		}
		comp, err := t.read32(regDWTComp(i))
		if err != nil {
			return 0
		}
		return comp
	}
	return 0
}
