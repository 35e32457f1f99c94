package dap

import (
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceADI/pkg/adi"
)

// SimAP is one access port of a simulated target. MEM-APs forward DRW and
// the banked data registers to Mem.
type SimAP struct {
	IDR      uint32
	CFG      uint32
	CSW      uint32
	Base     uint32
	BaseHigh uint32
	Mem      *SimMemory

	tar uint64
}

// DeviceEn and TrInProg are status bits a debugger cannot write.
const cswStatusBits = adi.CSWDeviceEn | adi.CSWTrInProg

const simAckBits = adi.CtrlStatCDbgPwrUpAck | adi.CtrlStatCSysPwrUpAck | adi.CtrlStatCDbgRstAck

// TAR returns the current transfer address.
func (a *SimAP) TAR() uint64 { return a.tar }

func (a *SimAP) read(reg uint16) (uint32, error) {
	switch reg {
	case adi.APCSW:
		return a.CSW, nil
	case adi.APTAR:
		return uint32(a.tar), nil
	case adi.APTARHigh:
		return uint32(a.tar >> 32), nil
	case adi.APDRW:
		v, err := a.memRead(a.tar)
		if err == nil {
			a.increment()
		}
		return v, err
	case 0x10, 0x14, 0x18, 0x1c:
		return a.memRead(a.tar&^0xf | uint64(reg&0xc))
	case adi.APBaseHigh:
		return a.BaseHigh, nil
	case adi.APCFG:
		return a.CFG, nil
	case adi.APBase:
		return a.Base, nil
	case adi.APIDR:
		return a.IDR, nil
	}
	return 0, nil
}

func (a *SimAP) write(reg uint16, value uint32) error {
	switch reg {
	case adi.APCSW:
		a.CSW = value&^cswStatusBits | a.CSW&cswStatusBits
	case adi.APTAR:
		a.tar = a.tar&^0xffffffff | uint64(value)
	case adi.APTARHigh:
		a.tar = a.tar&0xffffffff | uint64(value)<<32
	case adi.APDRW:
		if err := a.memWrite(a.tar, value); err != nil {
			return err
		}
		a.increment()
	case 0x10, 0x14, 0x18, 0x1c:
		addr := a.tar&^0xf | uint64(reg&0xc)
		return a.memWriteSized(addr, value, 0xffffffff)
	}
	return nil
}

func (a *SimAP) size() uint64 {
	switch a.CSW & adi.CSWSizeMask {
	case adi.CSWSizeByte:
		return 1
	case adi.CSWSizeHalfword:
		return 2
	}
	return 4
}

// increment advances TAR within its 1KiB auto-increment window.
func (a *SimAP) increment() {
	if a.CSW&adi.CSWAddrIncMask != adi.CSWAddrIncSingle {
		return
	}
	next := (a.tar + a.size()) & 0x3ff
	a.tar = a.tar&^0x3ff | next
}

func (a *SimAP) memRead(addr uint64) (uint32, error) {
	if a.Mem == nil {
		return 0, adi.ErrFault
	}
	return a.Mem.read(addr)
}

func (a *SimAP) memWrite(addr uint64, value uint32) error {
	var mask uint32
	switch a.size() {
	case 1:
		mask = 0xff << (uint(addr&3) * 8)
	case 2:
		mask = 0xffff << (uint(addr&2) * 8)
	default:
		mask = 0xffffffff
	}
	return a.memWriteSized(addr, value, mask)
}

func (a *SimAP) memWriteSized(addr uint64, value, mask uint32) error {
	if a.Mem == nil {
		return adi.ErrFault
	}
	return a.Mem.write(addr, value, mask)
}

// Access is one transfer seen by the simulator.
type Access struct {
	Read  bool
	Addr  uint16
	Value uint32
}

// Sim is an in-memory SWD target. It decodes DP registers including the
// DPv2 and DPv3 banks, routes AP transfers by APSEL on ADIv5 or by
// resource address on ADIv6, and models sticky errors and power-up
// acknowledges. It implements Probe.
type Sim struct {
	DPIDR    uint32
	TargetID uint32
	DLPIDR   uint32
	DPIDR1   uint32
	BasePtr  uint64

	// APs holds ADIv5 access ports by APSEL.
	APs map[uint8]*SimAP
	// Resources holds ADIv6 access ports by 4KiB block address. Only the
	// register window at APv6Offset is routed to the AP; the rest of the
	// block, such as its identification registers, lives in Space.
	Resources map[uint64]*SimAP
	// Space backs the rest of the ADIv6 DP address space, such as the
	// root ROM table.
	Space *SimMemory

	// NoPowerAck leaves the power-up acknowledges clear.
	NoPowerAck bool

	// OnAccess runs before every transfer. A non-nil error fails the
	// transfer without side effects.
	OnAccess func(read bool, addr uint16, value uint32) error
	// OnReset runs whenever nRESET changes state.
	OnReset func(asserted bool)

	Log    []Access
	Aborts []uint32

	ctrlstat uint32
	sticky   uint32
	sel      uint32
	sel1     uint32
	reset    bool
	info     ProbeInfo
}

// NewSim returns a simulator answering DPIDR with dpidr.
func NewSim(dpidr uint32) *Sim {
	return &Sim{
		DPIDR:     dpidr,
		APs:       make(map[uint8]*SimAP),
		Resources: make(map[uint64]*SimAP),
		Space:     NewSimMemory(),
		info: ProbeInfo{
			Name:         "Simulator",
			Vendor:       "OpenTraceLab",
			Model:        "sim",
			SerialNumber: "N/A",
			MinFrequency: 1,
			MaxFrequency: 100_000_000,
			SupportsSRST: true,
		},
	}
}

// AddMemAP installs an ADIv5 MEM-AP at sel backed by mem.
func (s *Sim) AddMemAP(sel uint8, idr, base uint32, mem *SimMemory) *SimAP {
	ap := &SimAP{IDR: idr, CSW: adi.CSWDeviceEn, Base: base, Mem: mem}
	s.APs[sel] = ap
	return ap
}

// AddResourceAP installs an ADIv6 MEM-AP at the 4KiB block addr.
func (s *Sim) AddResourceAP(addr uint64, idr, base uint32, mem *SimMemory) *SimAP {
	ap := &SimAP{IDR: idr, CSW: adi.CSWDeviceEn, Base: base, Mem: mem}
	s.Resources[addr&^0xfff] = ap
	return ap
}

// SetSticky raises sticky error bits in CTRL/STAT.
func (s *Sim) SetSticky(bits uint32) {
	s.sticky |= bits
}

// Select returns the last SELECT and SELECT1 values written.
func (s *Sim) Select() (uint32, uint32) {
	return s.sel, s.sel1
}

func (s *Sim) version() uint8 {
	return uint8(s.DPIDR>>12) & 0xf
}

func (s *Sim) adiv6() bool {
	return s.version() >= 3
}

func (s *Sim) bank() uint32 {
	return s.sel & 0xf
}

// Read implements adi.Transport.
func (s *Sim) Read(addr uint16) (uint32, error) {
	if s.OnAccess != nil {
		if err := s.OnAccess(true, addr, 0); err != nil {
			return 0, err
		}
	}
	v, err := s.read(addr)
	s.Log = append(s.Log, Access{Read: true, Addr: addr, Value: v})
	return v, err
}

// Write implements adi.Transport.
func (s *Sim) Write(addr uint16, value uint32) error {
	if s.OnAccess != nil {
		if err := s.OnAccess(false, addr, value); err != nil {
			return err
		}
	}
	s.Log = append(s.Log, Access{Addr: addr, Value: value})
	return s.write(addr, value)
}

func (s *Sim) read(addr uint16) (uint32, error) {
	if addr&adi.APnDP != 0 {
		return s.apRead(addr & 0xc)
	}
	switch addr & 0xc {
	case adi.DPIDR:
		switch s.bank() {
		case 0:
			return s.DPIDR, nil
		case 1:
			return s.DPIDR1, nil
		case 2:
			return uint32(s.BasePtr), nil
		case 3:
			return uint32(s.BasePtr >> 32), nil
		}
	case adi.CTRLSTAT:
		switch s.bank() {
		case 0:
			return s.ctrlStat(), nil
		case 2:
			return s.TargetID, nil
		case 3:
			return s.DLPIDR, nil
		case 5:
			return s.sel1, nil
		}
	case adi.RDBUFF:
		return 0, nil
	}
	return 0, nil
}

func (s *Sim) ctrlStat() uint32 {
	v := s.ctrlstat | s.sticky
	if !s.NoPowerAck {
		if v&adi.CtrlStatCDbgPwrUpReq != 0 {
			v |= adi.CtrlStatCDbgPwrUpAck
		}
		if v&adi.CtrlStatCSysPwrUpReq != 0 {
			v |= adi.CtrlStatCSysPwrUpAck
		}
		if v&adi.CtrlStatCDbgRstReq != 0 {
			v |= adi.CtrlStatCDbgRstAck
		}
	}
	return v
}

func (s *Sim) write(addr uint16, value uint32) error {
	if addr&adi.APnDP != 0 {
		return s.apWrite(addr&0xc, value)
	}
	switch addr & 0xc {
	case adi.ABORT:
		s.Aborts = append(s.Aborts, value)
		if value&adi.AbortSTKERRCLR != 0 {
			s.sticky &^= adi.CtrlStatStickyErr
		}
		if value&adi.AbortSTKCMPCLR != 0 {
			s.sticky &^= adi.CtrlStatStickyCmp
		}
		if value&adi.AbortWDERRCLR != 0 {
			s.sticky &^= adi.CtrlStatWDataErr
		}
		if value&adi.AbortORUNERRCLR != 0 {
			s.sticky &^= adi.CtrlStatStickyORun
		}
	case adi.CTRLSTAT:
		switch s.bank() {
		case 0:
			s.ctrlstat = value &^ simAckBits
		case 5:
			s.sel1 = value
		}
	case adi.SELECT:
		s.sel = value
	}
	return nil
}

// apTarget resolves the AP and register for an AP transfer.
func (s *Sim) apTarget(a32 uint16) (*SimAP, uint16, uint64, bool) {
	if !s.adiv6() {
		ap := s.APs[uint8(s.sel>>24)]
		return ap, uint16(s.sel&0xf0) | a32, 0, false
	}
	full := uint64(s.sel1)<<32 | uint64(s.sel&^0xf) | uint64(a32)
	block := full &^ 0xfff
	off := full & 0xfff
	if ap, ok := s.Resources[block]; ok && off >= adi.APv6Offset && off < adi.APv6Offset+0x100 {
		return ap, uint16(full & 0xfc), full, false
	}
	return nil, 0, full, true
}

func (s *Sim) apRead(a32 uint16) (uint32, error) {
	ap, reg, full, space := s.apTarget(a32)
	if space {
		v, err := s.Space.read(full)
		return v, s.fault(err)
	}
	if ap == nil {
		return 0, nil
	}
	v, err := ap.read(reg)
	return v, s.fault(err)
}

func (s *Sim) apWrite(a32 uint16, value uint32) error {
	ap, reg, full, space := s.apTarget(a32)
	if space {
		return s.fault(s.Space.write(full, value, 0xffffffff))
	}
	if ap == nil {
		return nil
	}
	return s.fault(ap.write(reg, value))
}

// fault converts a memory error into a FAULT acknowledge and raises
// STICKYERR the way a MEM-AP reports a bus error.
func (s *Sim) fault(err error) error {
	if err == nil || errors.Is(err, adi.ErrTimeout) {
		return err
	}
	s.sticky |= adi.CtrlStatStickyErr
	return fmt.Errorf("sim: %v: %w", err, adi.ErrFault)
}

// SetReset implements adi.ResetController.
func (s *Sim) SetReset(assert bool) error {
	if s.reset != assert && s.OnReset != nil {
		s.OnReset(assert)
	}
	s.reset = assert
	return nil
}

// ResetAsserted implements adi.ResetController.
func (s *Sim) ResetAsserted() (bool, error) {
	return s.reset, nil
}

// Info returns the simulator's probe description.
func (s *Sim) Info() (ProbeInfo, error) {
	return s.info, nil
}

// SetSpeed accepts any positive frequency.
func (s *Sim) SetSpeed(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("dap: invalid speed %dHz", hz)
	}
	return nil
}

// Close is a no-op.
func (s *Sim) Close() error {
	return nil
}
