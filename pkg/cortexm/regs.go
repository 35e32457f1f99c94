package cortexm

import (
	"fmt"
	"time"

	"github.com/OpenTraceLab/OpenTraceADI/pkg/adi"
)

// With TAR pointing at DHCSR the banked data registers DB0-DB3 reach
// DHCSR, DCRSR, DCRDR and DEMCR without reprogramming TAR.
const (
	dbDHCSR = iota
	dbDCRSR
	dbDCRDR
)

// regRdyTimeout bounds the wait for a DCRSR transfer to complete.
const regRdyTimeout = 100 * time.Millisecond

var baseSelectors = [...]uint32{
	0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15,
	selXPSR, selMSP, selPSP,
}

var tzSelectors = [...]uint32{selMSPNS, selPSPNS, selMSPS, selPSPS}

// RegCount returns the number of words in the register file.
func (t *Target) RegCount() int {
	n := numBaseRegs
	if t.HasTZ {
		n += len(tzSelectors)
	}
	if t.HasFP {
		n += 1 + 32
	}
	return n
}

// selector returns the DCRSR REGSEL for word i of the register file. The
// four bytes of the special register are reported as ok=false.
func (t *Target) selector(i int) (sel uint32, ok bool) {
	switch {
	case i < len(baseSelectors):
		return baseSelectors[i], true
	case i < numBaseRegs:
		return selSpecial, false
	}
	i -= numBaseRegs
	if t.HasTZ {
		if i < len(tzSelectors) {
			return tzSelectors[i], true
		}
		i -= len(tzSelectors)
	}
	if t.HasFP {
		if i == 0 {
			return selFPSCR, true
		}
		if i <= 32 {
			return selS0 + uint32(i-1), true
		}
	}
	return 0, false
}

// bankDebugRegs points TAR at DHCSR with word sized, non-incrementing
// transfers.
func (t *Target) bankDebugRegs() error {
	ap := t.ap
	if err := ap.WriteReg(adi.APCSW, ap.CSW|adi.CSWSizeWord); err != nil {
		return err
	}
	if ap.Flags&adi.APFlag64Bit != 0 {
		if err := ap.WriteReg(adi.APTARHigh, 0); err != nil {
			return err
		}
	}
	return ap.WriteReg(adi.APTAR, regDHCSR)
}

func (t *Target) waitRegReady() error {
	deadline := time.Now().Add(regRdyTimeout)
	for {
		dhcsr, err := t.ap.ReadReg(adi.APDB(dbDHCSR))
		if err != nil {
			return err
		}
		if dhcsr&dhcsrSRegRdy != 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("cortexm: register transfer: %w", adi.ErrTimeout)
		}
	}
}

func (t *Target) readSel(sel uint32) (uint32, error) {
	if err := t.ap.WriteReg(adi.APDB(dbDCRSR), sel); err != nil {
		return 0, err
	}
	if err := t.waitRegReady(); err != nil {
		return 0, err
	}
	return t.ap.ReadReg(adi.APDB(dbDCRDR))
}

func (t *Target) writeSel(sel, value uint32) error {
	if err := t.ap.WriteReg(adi.APDB(dbDCRDR), value); err != nil {
		return err
	}
	if err := t.ap.WriteReg(adi.APDB(dbDCRSR), dcrsrRegWnR|sel); err != nil {
		return err
	}
	return t.waitRegReady()
}

// RegsRead implements target.Target. The special register is unpacked
// into primask, basepri, faultmask and control.
func (t *Target) RegsRead() ([]uint32, error) {
	if err := t.bankDebugRegs(); err != nil {
		return nil, fmt.Errorf("cortexm: read registers: %w", err)
	}
	regs := make([]uint32, t.RegCount())
	for i := 0; i < len(regs); i++ {
		sel, ok := t.selector(i)
		v, err := t.readSel(sel)
		if err != nil {
			return nil, fmt.Errorf("cortexm: read register %d: %w", i, err)
		}
		if ok {
			regs[i] = v
			continue
		}
		for j := 0; j < 4; j++ {
			regs[RegPrimask+j] = v >> (8 * j) & 0xff
		}
		i = RegControl
	}
	return regs, nil
}

// RegsWrite implements target.Target. regs must hold RegCount words.
func (t *Target) RegsWrite(regs []uint32) error {
	if len(regs) != t.RegCount() {
		return fmt.Errorf("cortexm: register file has %d words, want %d", len(regs), t.RegCount())
	}
	if err := t.bankDebugRegs(); err != nil {
		return fmt.Errorf("cortexm: write registers: %w", err)
	}
	for i := 0; i < len(regs); i++ {
		sel, ok := t.selector(i)
		v := regs[i]
		if !ok {
			v = packSpecial(regs)
			i = RegControl
		}
		if err := t.writeSel(sel, v); err != nil {
			return fmt.Errorf("cortexm: write register %d: %w", i, err)
		}
	}
	return nil
}

func packSpecial(regs []uint32) uint32 {
	var v uint32
	for j := 0; j < 4; j++ {
		v |= (regs[RegPrimask+j] & 0xff) << (8 * j)
	}
	return v
}

// RegRead reads word n of the register file.
func (t *Target) RegRead(n int) (uint32, error) {
	if n < 0 || n >= t.RegCount() {
		return 0, fmt.Errorf("cortexm: no register %d", n)
	}
	if err := t.bankDebugRegs(); err != nil {
		return 0, err
	}
	sel, ok := t.selector(n)
	v, err := t.readSel(sel)
	if err != nil {
		return 0, err
	}
	if !ok {
		v = v >> (8 * uint(n-RegPrimask)) & 0xff
	}
	return v, nil
}

// RegWrite writes word n of the register file.
func (t *Target) RegWrite(n int, value uint32) error {
	if n < 0 || n >= t.RegCount() {
		return fmt.Errorf("cortexm: no register %d", n)
	}
	if err := t.bankDebugRegs(); err != nil {
		return err
	}
	sel, ok := t.selector(n)
	if !ok {
		cur, err := t.readSel(sel)
		if err != nil {
			return err
		}
		shift := 8 * uint(n-RegPrimask)
		value = cur&^(0xff<<shift) | (value&0xff)<<shift
	}
	return t.writeSel(sel, value)
}

func (t *Target) pcRead() (uint32, error) { return t.RegRead(RegPC) }
func (t *Target) pcWrite(pc uint32) error { return t.RegWrite(RegPC, pc) }
