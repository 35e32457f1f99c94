package dap

import "errors"

// Cortex-M debug register addresses used by the core model.
const (
	simSCSBase = 0xe000e000
	simDWTBase = 0xe0001000
	simFPBBase = 0xe0002000

	simCPUID   = 0xd00
	simCCR     = 0xd14
	simAIRCR   = 0xd0c
	simCFSR    = 0xd28
	simHFSR    = 0xd2c
	simDFSR    = 0xd30
	simIDPFR1  = 0xd44
	simCTR     = 0xd7c
	simCPACR   = 0xd88
	simDHCSR   = 0xdf0
	simDCRSR   = 0xdf4
	simDCRDR   = 0xdf8
	simDEMCR   = 0xdfc
	simICIALLU = 0xf50
	simDCCMVAC = 0xf68
	simDCCIMVA = 0xf70

	simDHCSRKey     = 0xa05f
	simAIRCRKey     = 0x05fa
	simDHCSRCtrl    = 0x2f
	simCDebugEn     = 1 << 0
	simCHalt        = 1 << 1
	simCStep        = 1 << 2
	simSRegRdy      = 1 << 16
	simSHalt        = 1 << 17
	simSResetSt     = 1 << 25
	simVCCoreReset  = 1 << 0
	simDFSRHalted   = 1 << 0
	simDFSRVCatch   = 1 << 3
	simSysResetReq  = 1 << 2
	simVectClrActiv = 1 << 1
	simDWTMatched   = 1 << 24
	simRegPC        = 15
)

// SimWatch is one DWT comparator of the core model.
type SimWatch struct {
	Comp, Mask, Func uint32
	Matched          bool
}

// SimCortexM models the debug-visible registers of a Cortex-M core: the
// halting debug registers in the SCS, DFSR/HFSR/CFSR, CPACR, the FPB and
// the DWT. It holds a register file indexed by DCRSR REGSEL.
type SimCortexM struct {
	CPUID  uint32
	CTR    uint32
	CCR    uint32
	IDPFR1 uint32
	// CPACRMask holds the writable CPACR bits; 0x00f00000 models an FPU.
	CPACRMask uint32

	Regs  [0x80]uint32
	DFSR  uint32
	HFSR  uint32
	CFSR  uint32
	DEMCR uint32
	CPACR uint32

	FPCtrl  uint32 // NUM_CODE and REV fields
	FPComp  [8]uint32
	DWTCtrl uint32 // NUMCOMP field
	DWT     [4]SimWatch

	// DHCSRErr, when set, fails every DHCSR read.
	DHCSRErr error

	Resets        int
	ClearedActive int
	ICacheFlushes int
	DCacheMaint   []uint32
	Steps         int
	InReset       bool

	fpEnabled   bool
	ctrl        uint32
	halted      bool
	resetSticky bool
	dcrdr       uint32
}

// NewSimCortexM returns a running core with the given CPUID, four FPB
// comparators and two DWT comparators.
func NewSimCortexM(cpuid uint32) *SimCortexM {
	return &SimCortexM{
		CPUID:   cpuid,
		FPCtrl:  4 << 4,
		DWTCtrl: 2 << 28,
	}
}

// Map installs the core's register blocks into mem. The identification
// registers at the top of each 4KiB block stay in mem so a ROM table
// walk sees whatever the scenario stored there.
func (c *SimCortexM) Map(mem *SimMemory) {
	mem.Map(simSCSBase+0xd00, 0x100, shifted{simSCS{c}, 0xd00})
	mem.Map(simSCSBase+0xf50, 0x30, shifted{simSCS{c}, 0xf50})
	mem.Map(simDWTBase, 0x100, simDWT{c})
	mem.Map(simFPBBase, 0x100, simFPB{c})
}

// Attach wires the core to the simulator's nRESET line.
func (c *SimCortexM) Attach(s *Sim) {
	s.OnReset = func(asserted bool) {
		c.InReset = asserted
		if !asserted {
			c.Reset()
		}
	}
}

// Halted reports whether the core is in debug state.
func (c *SimCortexM) Halted() bool { return c.halted }

// DebugEnabled reports C_DEBUGEN.
func (c *SimCortexM) DebugEnabled() bool { return c.ctrl&simCDebugEn != 0 }

// Halt enters debug state recording dfsr, as a breakpoint or watchpoint
// would.
func (c *SimCortexM) Halt(dfsr uint32) {
	c.halted = true
	c.DFSR |= dfsr
}

// Reset models a system reset. With VC_CORERESET armed and debug enabled
// the core halts on the reset vector.
func (c *SimCortexM) Reset() {
	c.Resets++
	c.resetSticky = true
	c.halted = false
	if c.DEMCR&simVCCoreReset != 0 && c.ctrl&simCDebugEn != 0 {
		c.Halt(simDFSRVCatch)
	}
}

func (c *SimCortexM) dhcsr() uint32 {
	v := c.ctrl | simSRegRdy
	if c.halted {
		v |= simSHalt
	}
	if c.resetSticky || c.InReset {
		v |= simSResetSt
		c.resetSticky = false
	}
	return v
}

func (c *SimCortexM) writeDHCSR(value uint32) {
	if value>>16 != simDHCSRKey {
		return
	}
	c.ctrl = value & simDHCSRCtrl
	switch {
	case c.ctrl&simCDebugEn == 0:
		c.halted = false
	case c.ctrl&simCHalt != 0:
		if !c.halted {
			c.Halt(simDFSRHalted)
		}
	case c.halted && c.ctrl&simCStep != 0:
		c.Steps++
		c.Regs[simRegPC] += 2
		c.DFSR |= simDFSRHalted
	default:
		c.halted = false
	}
}

var errSimSubword = errors.New("sim: sub-word access to SCS")

// shifted maps a device whose register offsets start at delta.
type shifted struct {
	dev   SimDevice
	delta uint64
}

func (s shifted) Read32(off uint64) (uint32, error) {
	return s.dev.Read32(off + s.delta)
}

func (s shifted) Write32(off uint64, value, mask uint32) error {
	return s.dev.Write32(off+s.delta, value, mask)
}

type simSCS struct{ c *SimCortexM }

func (s simSCS) Read32(off uint64) (uint32, error) {
	c := s.c
	switch off {
	case simCPUID:
		return c.CPUID, nil
	case simCCR:
		return c.CCR, nil
	case simAIRCR:
		return 0xfa05 << 16, nil
	case simCFSR:
		return c.CFSR, nil
	case simHFSR:
		return c.HFSR, nil
	case simDFSR:
		return c.DFSR, nil
	case simIDPFR1:
		return c.IDPFR1, nil
	case simCTR:
		return c.CTR, nil
	case simCPACR:
		return c.CPACR, nil
	case simDHCSR:
		if c.DHCSRErr != nil {
			return 0, c.DHCSRErr
		}
		return c.dhcsr(), nil
	case simDCRDR:
		return c.dcrdr, nil
	case simDEMCR:
		return c.DEMCR, nil
	}
	return 0, nil
}

func (s simSCS) Write32(off uint64, value, mask uint32) error {
	c := s.c
	if mask != 0xffffffff {
		return errSimSubword
	}
	switch off {
	case simAIRCR:
		if value>>16 != simAIRCRKey {
			return nil
		}
		if value&simVectClrActiv != 0 {
			c.ClearedActive++
		}
		if value&simSysResetReq != 0 {
			c.Reset()
		}
	case simCFSR:
		c.CFSR &^= value
	case simHFSR:
		c.HFSR &^= value
	case simDFSR:
		c.DFSR &^= value
	case simCPACR:
		c.CPACR = value & c.CPACRMask
	case simDHCSR:
		c.writeDHCSR(value)
	case simDCRSR:
		sel := value & 0x7f
		if value&(1<<16) != 0 {
			c.Regs[sel] = c.dcrdr
		} else {
			c.dcrdr = c.Regs[sel]
		}
	case simDCRDR:
		c.dcrdr = value
	case simDEMCR:
		c.DEMCR = value
	case simICIALLU:
		c.ICacheFlushes++
	case simDCCMVAC, simDCCIMVA:
		c.DCacheMaint = append(c.DCacheMaint, value)
	}
	return nil
}

type simDWT struct{ c *SimCortexM }

func (s simDWT) Read32(off uint64) (uint32, error) {
	c := s.c
	if off == 0 {
		return c.DWTCtrl, nil
	}
	n := int(off-0x20) / 0x10
	if off < 0x20 || n >= len(c.DWT) {
		return 0, nil
	}
	w := &c.DWT[n]
	switch (off - 0x20) % 0x10 {
	case 0x0:
		return w.Comp, nil
	case 0x4:
		return w.Mask, nil
	case 0x8:
		v := w.Func
		if w.Matched {
			v |= simDWTMatched
			w.Matched = false
		}
		return v, nil
	}
	return 0, nil
}

func (s simDWT) Write32(off uint64, value, _ uint32) error {
	c := s.c
	n := int(off-0x20) / 0x10
	if off < 0x20 || n >= len(c.DWT) {
		return nil
	}
	w := &c.DWT[n]
	switch (off - 0x20) % 0x10 {
	case 0x0:
		w.Comp = value
	case 0x4:
		w.Mask = value
	case 0x8:
		w.Func = value &^ simDWTMatched
	}
	return nil
}

type simFPB struct{ c *SimCortexM }

func (s simFPB) Read32(off uint64) (uint32, error) {
	c := s.c
	switch {
	case off == 0:
		v := c.FPCtrl
		if c.fpEnabled {
			v |= 1
		}
		return v, nil
	case off >= 8 && int(off-8)/4 < len(c.FPComp):
		return c.FPComp[(off-8)/4], nil
	}
	return 0, nil
}

func (s simFPB) Write32(off uint64, value, _ uint32) error {
	c := s.c
	switch {
	case off == 0:
		if value&2 != 0 {
			c.fpEnabled = value&1 != 0
		}
	case off >= 8 && int(off-8)/4 < len(c.FPComp):
		c.FPComp[(off-8)/4] = value
	}
	return nil
}

// FPBEnabled reports whether FP_CTRL.ENABLE has been set.
func (c *SimCortexM) FPBEnabled() bool { return c.fpEnabled }
