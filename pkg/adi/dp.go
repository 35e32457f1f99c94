package adi

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceADI/pkg/idcode"
)

// PowerUpTimeout bounds the wait for the debug and system power domains.
const PowerUpTimeout = 250 * time.Millisecond

// DP is one debug port connection. It is not safe for concurrent use.
type DP struct {
	t Transport

	DPIDR      idcode.DPIDR
	Version    uint8 // DP architecture version from DPIDR
	ADIVersion uint8 // 5 or 6
	Designer   uint16
	PartNo     uint16

	// TARGETID identity, present on DPv2 and later.
	HasTargetID    bool
	TargetDesigner uint16
	TargetPartNo   uint16

	// AddrWidth is the width of the AP address space: 32 on ADIv5,
	// DPIDR1.ASIZE on ADIv6.
	AddrWidth uint8
	// Base is the ADIv6 root ROM table address.
	Base uint64

	// Fault holds the last FAULT/no-response error. AP accesses are
	// refused while it is set; Error clears it.
	Fault error

	selectValue uint32
	selectValid bool
}

// NewDP identifies the DP behind t, powers up the debug domains and, on a
// DPv3, negotiates ADIv6 addressing.
func NewDP(t Transport) (*DP, error) {
	dp := &DP{t: t, ADIVersion: 5, AddrWidth: 32}

	raw, err := dp.ReadDP(DPIDR)
	if errors.Is(err, ErrTimeout) {
		log.Debug("adi: DP not responding, trying abort sequence")
		if err := dp.Abort(AbortDAPAbort); err != nil {
			return nil, fmt.Errorf("adi: abort: %w", err)
		}
		raw, err = dp.ReadDP(DPIDR)
	}
	if err != nil {
		return nil, fmt.Errorf("adi: read DPIDR: %w", err)
	}

	dp.DPIDR = idcode.ParseDPIDR(raw)
	dp.Version = dp.DPIDR.Version
	dp.Designer = dp.DPIDR.Designer
	dp.PartNo = uint16(dp.DPIDR.PartNo)
	dp.TargetDesigner = dp.Designer
	dp.TargetPartNo = dp.PartNo

	log.WithFields(log.Fields{
		"dpidr":    fmt.Sprintf("0x%08x", raw),
		"version":  dp.Version,
		"designer": fmt.Sprintf("0x%03x", dp.Designer),
		"partno":   fmt.Sprintf("0x%02x", dp.PartNo),
	}).Debug("adi: DP identified")

	if dp.Version >= 2 {
		tid, err := dp.ReadDP(TARGETID)
		if err != nil {
			return nil, fmt.Errorf("adi: read TARGETID: %w", err)
		}
		id := idcode.ParseTargetID(tid)
		dp.HasTargetID = true
		dp.TargetDesigner = id.Designer
		dp.TargetPartNo = id.PartNo
	}

	if err := dp.PowerUp(); err != nil {
		return nil, err
	}

	if dp.Version >= 3 {
		if err := dp.initADIv6(); err != nil {
			return nil, err
		}
	}
	return dp, nil
}

func (dp *DP) initADIv6() error {
	dpidr1, err := dp.ReadDP(DPIDR1)
	if err != nil {
		return fmt.Errorf("adi: read DPIDR1: %w", err)
	}
	dp.AddrWidth = uint8(dpidr1 & dpidr1ASizeMask)

	lo, err := dp.ReadDP(BASEPTR0)
	if err != nil {
		return fmt.Errorf("adi: read BASEPTR0: %w", err)
	}
	hi, err := dp.ReadDP(BASEPTR1)
	if err != nil {
		return fmt.Errorf("adi: read BASEPTR1: %w", err)
	}
	base := uint64(hi)<<32 | uint64(lo)
	log.Debugf("adi: DPIDR1 0x%08x, %d-bit addressing, BASEPTR 0x%016x", dpidr1, dp.AddrWidth, base)

	if base&baseptr0Valid == 0 {
		return fmt.Errorf("adi: no valid base pointer on DP: %w", ErrBaseNotPresent)
	}
	if !dp.fits(base) {
		return fmt.Errorf("adi: base pointer 0x%016x: %w", base, ErrAddressWidth)
	}
	dp.Base = base & baseptrAddrMask
	dp.ADIVersion = 6
	return nil
}

// fits reports whether addr is addressable with the negotiated width.
func (dp *DP) fits(addr uint64) bool {
	if dp.AddrWidth >= 64 {
		return true
	}
	return addr&^(uint64(1)<<dp.AddrWidth-1) == 0
}

// PowerUp requests the debug and system power domains and waits for both
// acknowledges.
func (dp *DP) PowerUp() error {
	ctrlstat, err := dp.ReadDP(CTRLSTAT)
	if err != nil {
		return fmt.Errorf("adi: read CTRL/STAT: %w", err)
	}
	ctrlstat |= CtrlStatCSysPwrUpReq | CtrlStatCDbgPwrUpReq
	if err := dp.WriteDP(CTRLSTAT, ctrlstat); err != nil {
		return fmt.Errorf("adi: power-up request: %w", err)
	}

	const ack = CtrlStatCSysPwrUpAck | CtrlStatCDbgPwrUpAck
	deadline := time.Now().Add(PowerUpTimeout)
	for {
		ctrlstat, err = dp.ReadDP(CTRLSTAT)
		if err != nil {
			return fmt.Errorf("adi: read CTRL/STAT: %w", err)
		}
		if ctrlstat&ack == ack {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("adi: power-up acknowledge (CTRL/STAT 0x%08x): %w", ctrlstat, ErrTimeout)
		}
	}
}

// ReadDP reads a DP register, switching DPBANKSEL for banked registers.
func (dp *DP) ReadDP(reg uint16) (uint32, error) {
	bank := (reg >> 4) & selectDPBankMask
	if bank == 0 {
		return dp.low(true, reg&0xc, 0)
	}
	if err := dp.selectBank(uint32(bank)); err != nil {
		return 0, err
	}
	v, err := dp.low(true, reg&0xc, 0)
	if serr := dp.selectBank(0); err == nil {
		err = serr
	}
	return v, err
}

// WriteDP writes a DP register, switching DPBANKSEL for banked registers.
func (dp *DP) WriteDP(reg uint16, value uint32) error {
	bank := (reg >> 4) & selectDPBankMask
	if bank == 0 {
		_, err := dp.low(false, reg&0xc, value)
		return err
	}
	if err := dp.selectBank(uint32(bank)); err != nil {
		return err
	}
	_, err := dp.low(false, reg&0xc, value)
	if serr := dp.selectBank(0); err == nil {
		err = serr
	}
	return err
}

func (dp *DP) selectBank(bank uint32) error {
	dp.selectValid = false
	_, err := dp.low(false, SELECT, bank)
	return err
}

// Abort writes the ABORT register.
func (dp *DP) Abort(flags uint32) error {
	_, err := dp.low(false, ABORT, flags)
	return err
}

// Error reads and clears the sticky error flags, clears Fault and returns
// the sticky bits that were set. A zero result means the DP is healthy.
func (dp *DP) Error() (uint32, error) {
	dp.Fault = nil
	ctrlstat, err := dp.ReadDP(CTRLSTAT)
	if err != nil {
		return 0, fmt.Errorf("adi: read CTRL/STAT: %w", err)
	}
	sticky := ctrlstat & ctrlStatErrors

	var clr uint32
	if sticky&CtrlStatStickyORun != 0 {
		clr |= AbortORUNERRCLR
	}
	if sticky&CtrlStatStickyCmp != 0 {
		clr |= AbortSTKCMPCLR
	}
	if sticky&CtrlStatStickyErr != 0 {
		clr |= AbortSTKERRCLR
	}
	if sticky&CtrlStatWDataErr != 0 {
		clr |= AbortWDERRCLR
	}
	if clr != 0 {
		if err := dp.Abort(clr); err != nil {
			return sticky, err
		}
	}
	return sticky, nil
}

// Faulted is the checked-error predicate: it reports a recorded transport
// fault or any sticky error, clearing both.
func (dp *DP) Faulted() bool {
	had := dp.Fault != nil
	sticky, err := dp.Error()
	return had || sticky != 0 || err != nil
}

// low performs one transport access and tracks the fault state.
func (dp *DP) low(read bool, addr uint16, value uint32) (uint32, error) {
	if addr&APnDP != 0 && dp.Fault != nil {
		return 0, fmt.Errorf("adi: AP access refused after %v: %w", dp.Fault, ErrFault)
	}

	var err error
	if read {
		value, err = dp.t.Read(addr)
	} else {
		err = dp.t.Write(addr, value)
	}
	if err == nil {
		return value, nil
	}

	if errors.Is(err, ErrTimeout) {
		// A stalled transfer is abandoned so the next access can proceed.
		if aerr := dp.t.Write(ABORT, AbortDAPAbort); aerr != nil {
			log.Debugf("adi: DAPABORT after timeout: %v", aerr)
		}
		dp.selectValid = false
		return 0, err
	}
	dp.Fault = err
	dp.selectValid = false
	return 0, err
}

// selectAP programs SELECT for an ADIv5 AP register bank.
func (dp *DP) selectAP(value uint32) error {
	if dp.selectValid && dp.selectValue == value {
		return nil
	}
	if _, err := dp.low(false, SELECT, value); err != nil {
		return err
	}
	dp.selectValue = value
	dp.selectValid = true
	return nil
}

// selectResource programs SELECT1 and SELECT for the 16 byte window of an
// ADIv6 resource address. It is issued before every access.
func (dp *DP) selectResource(addr uint64) error {
	if !dp.fits(addr) {
		return fmt.Errorf("adi: resource 0x%016x: %w", addr, ErrAddressWidth)
	}
	dp.selectValid = false
	if _, err := dp.low(false, SELECT, 5); err != nil {
		return err
	}
	if _, err := dp.low(false, SELECT1&0xc, uint32(addr>>32)); err != nil {
		return err
	}
	_, err := dp.low(false, SELECT, uint32(addr)&^0xf)
	return err
}

// ReadResource reads a word of the ADIv6 DP address space.
func (dp *DP) ReadResource(addr uint64) (uint32, error) {
	if err := dp.selectResource(addr); err != nil {
		return 0, err
	}
	return dp.low(true, APnDP|uint16(addr&0xc), 0)
}

// WriteResource writes a word of the ADIv6 DP address space.
func (dp *DP) WriteResource(addr uint64, value uint32) error {
	if err := dp.selectResource(addr); err != nil {
		return err
	}
	_, err := dp.low(false, APnDP|uint16(addr&0xc), value)
	return err
}

// Transport returns the transport the DP was created with.
func (dp *DP) Transport() Transport {
	return dp.t
}

// Resource is the ADIv6 DP address space viewed as a 32-bit bus, used to
// walk the root ROM table.
type Resource struct {
	DP *DP
}

// Read32 reads one word of the DP address space.
func (r Resource) Read32(addr uint64) (uint32, error) {
	return r.DP.ReadResource(addr)
}

// Write32 writes one word of the DP address space.
func (r Resource) Write32(addr uint64, value uint32) error {
	return r.DP.WriteResource(addr, value)
}
