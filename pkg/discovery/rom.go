package discovery

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceADI/pkg/adi"
	"github.com/OpenTraceLab/OpenTraceADI/pkg/coresight"
	"github.com/OpenTraceLab/OpenTraceADI/pkg/idcode"
)

// Legacy (class 0x1) ROM table
const (
	legacyEntries    = 960
	legacyPresent    = 1 << 0
	legacyOffsetMask = 0xfffff000
	legacyMemType    = 0xfcc
	legacyMemTypeSys = 1 << 0
)

// CoreSight (class 0x9) ROM table
const (
	regDBGPCR   = 0xa00
	regDBGPSR   = 0xa80
	regPRIDR0   = 0xc00
	regDBGRSTRR = 0xc10
	regDBGRSTAR = 0xc14

	pridr0VersionMask    = 0xf
	pridr0HasDbgResetReq = 1 << 4
	pridr0HasSysResetReq = 1 << 5

	dbgpcrPresent  = 1 << 0
	dbgpcrPwrReq   = 1 << 1
	dbgpsrStatusOn = 1 << 0
	dbgrstReq      = 1 << 0

	devIDFormatMask  = 0xf
	devIDFormat64    = 1
	devIDSysMem      = 1 << 4
	devIDHasPowerReq = 1 << 5

	romEntryTypeMask     = 0x3
	romEntryFinal        = 0x0
	romEntryInvalid      = 0x1
	romEntryNotPresent   = 0x2
	romEntryPowerIDValid = 1 << 2
	romEntryPowerIDShift = 4
	romEntryPowerIDMask  = 0x1f << romEntryPowerIDShift
	romEntryOffsetMask   = 0xfffffffffffff000
)

// SAMx5x parts hide their ROM table when the DSU reports protection.
const (
	partSAMx5x        = 0xcd0
	samx5xDSUCtrlStat = 0x41002100
	samx5xStatusBProt = 1 << 16
)

// walkLegacy follows a class 0x1 ROM table. Entries are 32-bit offsets
// from the table base; a zero entry ends the table.
func (w *Walker) walkLegacy(ctx context.Context, b branch, base, pidr uint64) {
	designer := idcode.DesignerFromPIDR(pidr)
	part := coresight.PartNumber(pidr)
	fields := b.fields(base, -1)

	if b.depth == 0 && b.ap != nil {
		b.ap.Designer, b.ap.PartNo = designer, part
		if designer == idcode.DesignerAtmel && part == partSAMx5x {
			status, err := b.bus.Read32(samx5xDSUCtrlStat)
			if err != nil {
				w.dp.Faulted()
			} else if status&samx5xStatusBProt != 0 {
				// Only the core's debug registers are reachable.
				log.WithFields(fields).Info("discovery: SAMx5x is protected")
				w.probeCore(b, coresight.ArchCortexM, base, fields)
				return
			}
		}
	}

	memtype, err := b.bus.Read32(base + legacyMemType)
	sysmem := err == nil && memtype&legacyMemTypeSys != 0
	if err != nil {
		w.dp.Faulted()
		log.WithFields(fields).Debugf("discovery: read MEMTYPE: %v", err)
	} else if sysmem {
		*b.flags |= adi.APFlagHasMem
	}
	log.WithFields(fields).Debugf("discovery: ROM table, SYSMEM=%t, designer 0x%03x, part 0x%03x", sysmem, designer, part)

	child := b.child()
	for i := 0; i < legacyEntries; i++ {
		entry, err := b.bus.Read32(base + uint64(4*i))
		if err != nil {
			w.fail(fmt.Errorf("discovery: read ROM table 0x%08x entry %d: %w", base, i, err))
			return
		}
		if entry == 0 {
			break
		}
		if entry&legacyPresent == 0 {
			log.WithFields(fields).Debugf("discovery: entry %d 0x%08x not present", i, entry)
			continue
		}
		// Offsets are two's complement and wrap within the 32-bit bus.
		addr := uint64(uint32(base) + entry&legacyOffsetMask)
		w.probeComponent(ctx, child, addr, i)
		if w.err != nil {
			return
		}
	}
	log.WithFields(fields).Debug("discovery: ROM table end")
}

func readROMEntry(bus Bus, addr uint64, wide bool) (uint64, error) {
	lo, err := bus.Read32(addr)
	if err != nil {
		return 0, err
	}
	if !wide {
		return uint64(int64(int32(lo))), nil
	}
	hi, err := bus.Read32(addr + 4)
	if err != nil {
		return 0, err
	}
	return uint64(hi)<<32 | uint64(lo), nil
}

// walkCoreSight follows a class 0x9 ROM table. DEVID selects 32 or 64-bit
// entries; each entry may name a power domain to bring up first.
func (w *Walker) walkCoreSight(ctx context.Context, b branch, base uint64) {
	fields := b.fields(base, -1)

	devid, err := b.bus.Read32(base + coresight.RegDEVID)
	if err != nil {
		w.dp.Faulted()
		log.WithFields(fields).Debugf("discovery: read DEVID: %v", err)
		devid = 0
	}
	if devid&devIDSysMem != 0 {
		*b.flags |= adi.APFlagHasMem
	}
	wide := devid&devIDFormatMask == devIDFormat64
	if devid&devIDHasPowerReq != 0 {
		w.resetResources(b, base, fields)
	}

	entries, stride := 512, 4
	if wide {
		entries, stride = 256, 8
	}
	log.WithFields(fields).Debugf("discovery: CoreSight ROM table, %d-bit entries, SYSMEM=%t", 8*stride, devid&devIDSysMem != 0)

	child := b.child()
	for i := 0; i < entries; i++ {
		entry, err := readROMEntry(b.bus, base+uint64(i*stride), wide)
		if err != nil {
			w.fail(fmt.Errorf("discovery: read ROM table 0x%016x entry %d: %w", base, i, err))
			return
		}

		switch entry & romEntryTypeMask {
		case romEntryFinal:
			log.WithFields(fields).Debug("discovery: ROM table end")
			return
		case romEntryNotPresent:
			log.WithFields(fields).Debugf("discovery: entry %d 0x%016x not present", i, entry)
			continue
		case romEntryInvalid:
			log.WithFields(fields).Debugf("discovery: entry %d 0x%016x invalid", i, entry)
			continue
		}

		if *b.flags&adi.APFlagHasPowerCtrl != 0 && entry&romEntryPowerIDValid != 0 {
			domain := int(entry&romEntryPowerIDMask) >> romEntryPowerIDShift
			if err := powerUp(b.bus, base, domain); err != nil {
				log.WithFields(fields).Warnf("discovery: entry %d: %v", i, err)
				return
			}
		}
		w.probeComponent(ctx, child, base+entry&romEntryOffsetMask, i)
		if w.err != nil {
			return
		}
	}
}

// resetResources records the table's power and reset capabilities and
// runs a debug reset when the table offers one.
func (w *Walker) resetResources(b branch, base uint64, fields log.Fields) {
	pridr0, err := b.bus.Read32(base + regPRIDR0)
	if err != nil {
		w.dp.Faulted()
		log.WithFields(fields).Debugf("discovery: read PRIDR0: %v", err)
		return
	}
	if pridr0&pridr0VersionMask != 0 {
		*b.flags |= adi.APFlagHasPowerCtrl
	}
	if pridr0&pridr0HasDbgResetReq != 0 {
		if err := debugReset(b.bus, base); err != nil {
			w.dp.Faulted()
			log.WithFields(fields).Warnf("discovery: %v", err)
		}
	}
	if pridr0&pridr0HasSysResetReq != 0 {
		*b.flags |= adi.APFlagHasSysResetReq
	}
}

// debugReset requests a reset of the debug logic and withdraws the
// request once it is acknowledged.
func debugReset(bus Bus, base uint64) error {
	if err := bus.Write32(base+regDBGRSTRR, dbgrstReq); err != nil {
		return fmt.Errorf("debug reset request: %w", err)
	}
	deadline := time.Now().Add(ResetTimeout)
	for {
		req, err := bus.Read32(base + regDBGRSTRR)
		if err != nil {
			return fmt.Errorf("read DBGRSTRR: %w", err)
		}
		if req&dbgrstReq == 0 {
			return nil
		}
		ack, err := bus.Read32(base + regDBGRSTAR)
		if err != nil {
			return fmt.Errorf("read DBGRSTAR: %w", err)
		}
		if ack&dbgrstReq != 0 {
			if err := bus.Write32(base+regDBGRSTRR, 0); err != nil {
				return fmt.Errorf("debug reset release: %w", err)
			}
			continue
		}
		if time.Now().After(deadline) {
			bus.Write32(base+regDBGRSTRR, 0)
			return fmt.Errorf("debug reset at 0x%016x: %w", base, adi.ErrTimeout)
		}
	}
}

// powerUp asks power domain n of the table at base to come up and waits
// for it. A domain without a DBGPCR register needs nothing.
func powerUp(bus Bus, base uint64, n int) error {
	pcr := base + regDBGPCR + uint64(4*n)
	v, err := bus.Read32(pcr)
	if err != nil {
		return fmt.Errorf("read DBGPCR%d: %w", n, err)
	}
	if v&dbgpcrPresent == 0 {
		return nil
	}
	if err := bus.Write32(pcr, dbgpcrPwrReq); err != nil {
		return fmt.Errorf("power domain %d request: %w", n, err)
	}

	psr := base + regDBGPSR + uint64(4*n)
	deadline := time.Now().Add(PowerTimeout)
	for {
		status, err := bus.Read32(psr)
		if err != nil {
			return fmt.Errorf("read DBGPSR%d: %w", n, err)
		}
		if status&dbgpsrStatusOn != 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("power domain %d: %w", n, adi.ErrTimeout)
		}
	}
}
