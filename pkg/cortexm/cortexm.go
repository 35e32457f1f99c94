// Package cortexm drives an ARMv6-M, ARMv7-M or ARMv8-M core through its
// System Control Space: halting, register transfer, hardware breakpoints
// and watchpoints, fault unwinding and semihosting.
package cortexm

import (
	"fmt"
	"time"

	bitmap "github.com/boljen/go-bitmap"
	log "github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceADI/pkg/adi"
	"github.com/OpenTraceLab/OpenTraceADI/pkg/idcode"
	"github.com/OpenTraceLab/OpenTraceADI/pkg/idcode/deviceinfo"
	"github.com/OpenTraceLab/OpenTraceADI/pkg/target"
)

// DefaultResetTimeout bounds the wait for S_RESET_ST to clear.
const DefaultResetTimeout = time.Second

// Profile is the M-profile architecture version of a core.
type Profile uint8

const (
	ProfileV7M Profile = iota
	ProfileV6M
	ProfileV8M
)

func (p Profile) String() string {
	switch p {
	case ProfileV6M:
		return "ARMv6-M"
	case ProfileV8M:
		return "ARMv8-M"
	}
	return "ARMv7-M"
}

// Options control how a core is probed and attached.
type Options struct {
	// ConnectUnderReset arms a reset vector catch and releases nRST
	// during Attach when the line is held asserted.
	ConnectUnderReset bool
	ResetTimeout      time.Duration
	// Probes are family probes run after the generic setup. The first to
	// return true claims the target.
	Probes []func(*Target) bool
	// Semihost services BKPT 0xAB requests. Nil uses a HostIO with no
	// console attached.
	Semihost Semihost
	// List receives the target. HaltPoll frees it on a fatal bus error.
	List *target.List
}

type core struct {
	name    string
	profile Profile
}

// cores maps CPUID.PARTNO to the core name and architecture.
var cores = map[uint16]core{
	0xc20: {"ARM Cortex-M0", ProfileV6M},
	0xc21: {"ARM Cortex-M1", ProfileV6M},
	0xc60: {"ARM Cortex-M0+", ProfileV6M},
	0xc23: {"ARM Cortex-M3", ProfileV7M},
	0xc24: {"ARM Cortex-M4", ProfileV7M},
	0xc27: {"ARM Cortex-M7", ProfileV7M},
	0xd20: {"ARM Cortex-M23", ProfileV8M},
	0xd21: {"ARM Cortex-M33", ProfileV8M},
	0xd22: {"ARM Cortex-M55", ProfileV8M},
	0xd23: {"ARM Cortex-M85", ProfileV8M},
	0xd24: {"ARM Cortex-M52", ProfileV8M},
	0x132: {"Arm China STAR-MC1", ProfileV8M},
}

// Target is a Cortex-M core reached through a MEM-AP. It implements
// target.Target.
type Target struct {
	ap   *adi.AP
	opts Options

	driver string
	CPUID  uint32
	// Designer and PartNo identify the part, from TARGETID when the DP
	// has one and from the AP's ROM table otherwise.
	Designer uint16
	PartNo   uint16
	Profile  Profile
	HasFP    bool
	HasTZ    bool
	// InhibitNRST makes Reset use SYSRESETREQ even when the probe can
	// drive nRST.
	InhibitNRST bool

	demcr uint32

	hasCache      bool
	dcacheMinline uint32
	dcacheEnabled bool

	stepping bool
	onBkpt   bool

	fpbRevision uint32
	bpMax       int
	bpUsed      bitmap.Bitmap
	wpMax       int
	wpUsed      bitmap.Bitmap

	host     Semihost
	released bool
}

// Probe builds a target for the core whose SCS is reachable through ap
// and adds it to opts.List. The target holds its own reference on ap.
// It fails only when the core cannot be identified.
func Probe(ap *adi.AP, opts Options) (*Target, bool) {
	if opts.ResetTimeout == 0 {
		opts.ResetTimeout = DefaultResetTimeout
	}
	t := &Target{
		ap:    ap.Ref(),
		opts:  opts,
		demcr: demcrTrcEna | demcrVCHardErr | demcrVCCoreReset,
		host:  opts.Semihost,
	}
	if t.host == nil {
		t.host = &HostIO{}
	}
	t.identify()

	fields := log.Fields{"ap": ap.String()}
	cpuid, err := t.read32(regCPUID)
	if err != nil {
		log.WithFields(fields).Debugf("cortexm: read CPUID: %v", err)
		t.Release()
		return nil, false
	}
	t.CPUID = cpuid
	t.driver = t.driverName()

	// The walker resumes the core once its AP is done, unless connecting
	// under reset.
	t.HaltRequest()

	t.probeFP()
	if t.Profile == ProfileV8M {
		if pfr1, err := t.read32(regIDPFR1); err == nil {
			t.HasTZ = pfr1&0xf0 != 0
		} else {
			t.CheckError()
		}
	}

	ctr, err := t.read32(regCTR)
	if err == nil && ctr>>29 == 4 {
		t.hasCache = true
		t.dcacheMinline = 4 << (ctr & 0xf)
	} else {
		t.CheckError()
	}

	for _, probe := range opts.Probes {
		if probe(t) {
			break
		}
		t.CheckError()
	}

	fields["cpuid"] = fmt.Sprintf("0x%08x", cpuid)
	fields["designer"] = fmt.Sprintf("0x%03x", t.Designer)
	fields["partno"] = fmt.Sprintf("0x%03x", t.PartNo)
	log.WithFields(fields).Infof("cortexm: %s (%s, fp=%t, tz=%t, cache=%t)",
		t.driver, t.Profile, t.HasFP, t.HasTZ, t.hasCache)

	if opts.List != nil {
		opts.List.Add(t)
	}
	return t, true
}

// identify picks the part identity: TARGETID on a DPv2 or later that
// reports a designer, the AP's ROM table identity otherwise.
func (t *Target) identify() {
	dp := t.ap.DP
	if dp.Version >= 2 && dp.HasTargetID && dp.TargetDesigner != 0 {
		t.Designer = dp.TargetDesigner
		t.PartNo = dp.TargetPartNo
	} else {
		t.Designer = t.ap.Designer
		t.PartNo = t.ap.PartNo
	}
	// Some Arm China parts put an invalid continuation code in TARGETID.
	if t.Designer == idcode.ErrataARMChina && dp.Designer == idcode.DesignerARMChina {
		t.Designer = idcode.DesignerARMChina
	}
}

// probeFP detects a floating point unit by granting CP10/CP11 access and
// reading CPACR back.
func (t *Target) probeFP() {
	cpacr, err := t.read32(regCPACR)
	if err != nil {
		t.CheckError()
		return
	}
	cpacr |= cpacrFP
	if err := t.write32(regCPACR, cpacr); err != nil {
		t.CheckError()
		return
	}
	if v, err := t.read32(regCPACR); err == nil && v == cpacr {
		t.HasFP = true
	}
}

func (t *Target) driverName() string {
	partno := uint16(t.CPUID>>4) & 0xfff
	name := "ARM Cortex-M"
	if c, ok := cores[partno]; ok {
		t.Profile = c.profile
		name = c.name
	} else {
		log.Warnf("cortexm: unknown CPUID part 0x%03x", partno)
	}
	if info, ok := deviceinfo.Lookup(t.Designer, t.PartNo); ok {
		return fmt.Sprintf("%s (%s)", info.Name, name)
	}
	return name
}

// Driver implements target.Target.
func (t *Target) Driver() string { return t.driver }

// SetDriver lets a family probe rename the target.
func (t *Target) SetDriver(name string) { t.driver = name }

// AP returns the access port the core sits behind.
func (t *Target) AP() *adi.AP { return t.ap }

// DEMCR returns the exception and monitor control value installed on
// attach.
func (t *Target) DEMCR() uint32 { return t.demcr }

// Release drops the target's reference on its AP.
func (t *Target) Release() {
	if t.released {
		return
	}
	t.released = true
	t.ap.Unref()
}

func (t *Target) read32(addr uint32) (uint32, error) {
	return t.ap.Read32(uint64(addr))
}

func (t *Target) write32(addr, value uint32) error {
	return t.ap.Write32(uint64(addr), value)
}

// CheckError reports and clears a sticky error on the DP.
func (t *Target) CheckError() bool {
	return t.ap.DP.Faulted()
}

// cacheMaintain cleans, or cleans and invalidates, the data cache lines
// covering [addr, addr+n). It does nothing unless the data cache was
// enabled when the core last halted.
func (t *Target) cacheMaintain(addr uint32, n int, invalidate bool) error {
	if !t.hasCache || !t.dcacheEnabled || t.dcacheMinline == 0 || n == 0 {
		return nil
	}
	// The system region is never cacheable.
	if addr >= ppbBase {
		return nil
	}
	reg := uint32(regDCCMVAC)
	if invalidate {
		reg = regDCCIMVAC
	}
	end := uint64(addr) + uint64(n)
	for line := uint64(addr) &^ uint64(t.dcacheMinline-1); line < end; line += uint64(t.dcacheMinline) {
		if err := t.write32(reg, uint32(line)); err != nil {
			return err
		}
	}
	return nil
}

// MemRead implements target.Target.
func (t *Target) MemRead(dst []byte, addr uint32) error {
	if err := t.cacheMaintain(addr, len(dst), false); err != nil {
		return fmt.Errorf("cortexm: clean cache: %w", err)
	}
	return t.ap.MemRead(dst, uint64(addr))
}

// MemWrite implements target.Target.
func (t *Target) MemWrite(addr uint32, src []byte) error {
	if err := t.cacheMaintain(addr, len(src), true); err != nil {
		return fmt.Errorf("cortexm: invalidate cache: %w", err)
	}
	return t.ap.MemWrite(uint64(addr), src)
}

// Commands implements target.Target.
func (t *Target) Commands() []target.Command {
	return []target.Command{{
		Name: "vector_catch",
		Help: "Catch exception vectors: enable|disable " + vectorUsage,
		Run:  t.vectorCatchCommand,
	}}
}

var _ target.Target = (*Target)(nil)
