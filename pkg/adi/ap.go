package adi

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceADI/pkg/idcode"
)

// APFlags records capabilities learned while configuring an AP and walking
// its ROM table.
type APFlags uint8

const (
	APFlag64Bit APFlags = 1 << iota
	APFlagHasMem
	APFlagHasPowerCtrl
	APFlagHasSysResetReq
)

// AP is an access port handle. It is reference counted: the creator holds
// the first reference and every target that keeps the AP takes another.
// Dropping the last reference runs the release hooks and invalidates the
// handle.
type AP struct {
	DP *DP

	// Sel is the ADIv5 APSEL; Addr is the ADIv6 resource address.
	Sel  uint8
	Addr uint64

	IDR   uint32
	CFG   uint32
	CSW   uint32
	Base  uint64
	Flags APFlags

	// Identity of the part behind this AP, taken from its top level ROM
	// table or copied down from a parent AP.
	Designer uint16
	PartNo   uint16

	refs      int
	onRelease []func(*AP)
}

// NewAP returns a handle for ADIv5 APSEL sel with one reference held.
func NewAP(dp *DP, sel uint8) *AP {
	return &AP{DP: dp, Sel: sel, refs: 1}
}

// NewResourceAP returns a handle for the ADIv6 AP whose register block sits
// at addr in the DP address space, with one reference held.
func NewResourceAP(dp *DP, addr uint64) *AP {
	return &AP{DP: dp, Addr: addr &^ 0xfff, refs: 1}
}

func (ap *AP) String() string {
	if ap.DP.ADIVersion == 6 {
		return fmt.Sprintf("AP@0x%016x", ap.Addr)
	}
	return fmt.Sprintf("AP%d", ap.Sel)
}

// Ref takes a reference on the AP.
func (ap *AP) Ref() *AP {
	if ap.refs > 0 {
		ap.refs++
	}
	return ap
}

// Unref drops a reference. It reports whether this dropped the last one.
func (ap *AP) Unref() bool {
	if ap.refs == 0 {
		return false
	}
	ap.refs--
	if ap.refs > 0 {
		return false
	}
	for _, fn := range ap.onRelease {
		fn(ap)
	}
	ap.onRelease = nil
	log.Debugf("adi: %s released", ap)
	return true
}

// Refs returns the number of live references.
func (ap *AP) Refs() int { return ap.refs }

// Released reports whether the last reference has been dropped.
func (ap *AP) Released() bool { return ap.refs == 0 }

// OnRelease registers fn to run when the last reference is dropped.
func (ap *AP) OnRelease(fn func(*AP)) {
	ap.onRelease = append(ap.onRelease, fn)
}

// ReadReg reads an AP register. reg is the ADIv5 offset (0x00-0xfc).
func (ap *AP) ReadReg(reg uint16) (uint32, error) {
	if ap.refs == 0 {
		return 0, ErrReleased
	}
	if ap.DP.ADIVersion == 6 {
		return ap.DP.ReadResource(ap.Addr + APv6Offset + uint64(reg&0xfc))
	}
	if err := ap.DP.selectAP(uint32(ap.Sel)<<24 | uint32(reg&0xf0)); err != nil {
		return 0, err
	}
	return ap.DP.low(true, APnDP|reg&0xc, 0)
}

// WriteReg writes an AP register. reg is the ADIv5 offset (0x00-0xfc).
func (ap *AP) WriteReg(reg uint16, value uint32) error {
	if ap.refs == 0 {
		return ErrReleased
	}
	if ap.DP.ADIVersion == 6 {
		return ap.DP.WriteResource(ap.Addr+APv6Offset+uint64(reg&0xfc), value)
	}
	if err := ap.DP.selectAP(uint32(ap.Sel)<<24 | uint32(reg&0xf0)); err != nil {
		return err
	}
	_, err := ap.DP.low(false, APnDP|reg&0xc, value)
	return err
}

// IsMemAP reports whether the IDR describes a MEM-AP with a known bus type.
func (ap *AP) IsMemAP() bool {
	t := IDRType(ap.IDR)
	return IDRClass(ap.IDR) == IDRClassMEM && t >= APTypeAHB3 && t <= APTypeAHB5HPROT
}

// Configure reads the AP identification and, for a MEM-AP, its CFG, CSW
// and BASE registers, validates them and normalises CSW for debugger
// accesses. Configuring twice from the same register contents yields the
// same CSW and Base.
func (ap *AP) Configure() error {
	idr, err := ap.ReadReg(APIDR)
	if err != nil {
		return fmt.Errorf("adi: %s: read IDR: %w", ap, err)
	}
	if idr == 0 {
		return fmt.Errorf("adi: %s: %w", ap, ErrNoAP)
	}
	ap.IDR = idr

	fields := log.Fields{"ap": ap.String(), "idr": fmt.Sprintf("0x%08x", idr)}
	if ap.IsMemAP() {
		if err := ap.configureMem(); err != nil {
			log.WithFields(fields).Debugf("adi: %v", err)
			return err
		}
		fields["cfg"] = fmt.Sprintf("0x%08x", ap.CFG)
		fields["base"] = fmt.Sprintf("0x%016x", ap.Base)
		fields["csw"] = fmt.Sprintf("0x%08x", ap.CSW)
	}

	designer := idcode.DesignerFromField(IDRDesigner(idr))
	typeName := "Unknown"
	if designer == idcode.DesignerARM {
		typeName = APTypeName(IDRType(idr), IDRClass(idr))
	}
	log.WithFields(fields).Debugf("adi: %s (%s var%x rev%x)", ap, typeName, IDRVariant(idr), IDRRevision(idr))
	return nil
}

func (ap *AP) configureMem() error {
	cfg, err := ap.ReadReg(APCFG)
	if err != nil {
		return fmt.Errorf("adi: %s: read CFG: %w", ap, err)
	}
	csw, err := ap.ReadReg(APCSW)
	if err != nil {
		return fmt.Errorf("adi: %s: read CSW: %w", ap, err)
	}
	lo, err := ap.ReadReg(APBase)
	if err != nil {
		return fmt.Errorf("adi: %s: read BASE: %w", ap, err)
	}

	base := uint64(lo)
	flags := lo & (BaseFormat | BasePresent)
	ap.Flags &^= APFlag64Bit
	if cfg&CFGLargeAddress != 0 {
		// Legacy format with P clear cannot describe a 64-bit base.
		if flags == 0 {
			return fmt.Errorf("adi: %s: LPAE base 0x%08x: %w", ap, lo, ErrInvalidBase)
		}
		ap.Flags |= APFlag64Bit
		hi, err := ap.ReadReg(APBaseHigh)
		if err != nil {
			return fmt.Errorf("adi: %s: read BASE high: %w", ap, err)
		}
		base |= uint64(hi) << 32
	}

	if flags == BaseFormat || (ap.Flags&APFlag64Bit == 0 && lo == BaseNotPresent) {
		if !ap.notPresentErratum(base) {
			return fmt.Errorf("adi: %s: %w", ap, ErrBaseNotPresent)
		}
	}

	if csw&CSWDeviceEn == 0 {
		return fmt.Errorf("adi: %s: %w", ap, ErrAPDisabled)
	}

	csw = fixupCSW(IDRType(ap.IDR), csw)
	if csw&CSWTrInProg != 0 {
		log.WithField("ap", ap.String()).Error("adi: transaction in progress, AP is not usable")
		return fmt.Errorf("adi: %s: %w", ap, ErrTransferInProgress)
	}

	ap.CFG = cfg
	ap.CSW = csw
	ap.Base = base & BaseAddrMask
	return nil
}

// notPresentErratum reports parts whose BASE claims no debug entries while
// the ROM table is in fact readable.
func (ap *AP) notPresentErratum(base uint64) bool {
	switch ap.DP.TargetDesigner {
	case idcode.DesignerTexas:
		// MSPM0 clears BASE.P on AP0.
		return base == 0xf0000002
	case idcode.DesignerNordic:
		return base != 0x00000002
	}
	return false
}

// fixupCSW clears the transfer size and increment fields, enables debug
// software access and normalises the protection bits for the AP's bus.
func fixupCSW(apType uint8, csw uint32) uint32 {
	csw &^= CSWSizeMask | CSWAddrIncMask
	csw |= CSWDbgSwEnable
	secure := csw&CSWSPIDEN != 0

	switch apType {
	case APTypeAPB2_3:
		// No protection control on APB2/3.
	case APTypeAXI3_4, APTypeAXI5:
		mask := uint32(CSWAXI3_4ProtMask)
		if apType == APTypeAXI5 {
			mask = CSWAXI5ProtMask
		}
		csw &^= mask | CSWMTE
		if secure {
			csw &^= CSWAXIProtNS
		} else {
			csw |= CSWAXIProtNS
		}
		csw |= CSWAXIProtPriv
	case APTypeAHB3, APTypeAHB5, APTypeAHB5HPROT:
		csw &^= CSWAHBHProtMask
		csw |= CSWAHBMasterType | CSWAHBHProtData | CSWAHBHProtPriv
		if secure {
			csw &^= CSWAHBHNonSec
		} else {
			csw |= CSWAHBHNonSec
		}
	case APTypeAPB4_5:
		csw &^= CSWAPBPProtMask
		if secure {
			csw &^= CSWAPBPProtNS
		} else {
			csw |= CSWAPBPProtNS
		}
		csw |= CSWAPBPProtPriv
	default:
		log.Errorf("adi: unhandled AP type %d", apType)
	}
	return csw
}

// APTypeName names an ARM AP from its IDR type and class fields.
func APTypeName(apType, class uint8) string {
	if class != IDRClassMEM {
		if apType == APTypeJTAG && class == 0 {
			return "JTAG-AP"
		}
		return "Unknown"
	}
	switch apType {
	case APTypeAHB3:
		return "AHB3-AP"
	case APTypeAPB2_3:
		return "APB2/3-AP"
	case APTypeAXI3_4:
		return "AXI3/4-AP"
	case APTypeAHB5:
		return "AHB5-AP"
	case APTypeAPB4_5:
		return "APB4/5-AP"
	case APTypeAXI5:
		return "AXI5-AP"
	case APTypeAHB5HPROT:
		return "AHB5-AP (HPROT)"
	}
	return "Unknown"
}
