package adi

// Transport moves single 32-bit words between the host and the target's
// DP. addr holds A[3:2] of the register in bits 3:2 and APnDP in bit 8.
// Errors must wrap ErrTimeout, ErrFault, ErrNoResponse or ErrProtocol so
// callers can tell a stalled bus from a broken one.
type Transport interface {
	Read(addr uint16) (uint32, error)
	Write(addr uint16, value uint32) error
}

// ResetController is implemented by transports that drive the target's
// nRST line.
type ResetController interface {
	SetReset(assert bool) error
	ResetAsserted() (bool, error)
}

// APnDP selects the AP register file in a Transport address.
const APnDP = 0x100

// DP register addresses. Banked registers carry DPBANKSEL in bits 7:4.
const (
	DPIDR     = 0x00
	ABORT     = 0x00
	CTRLSTAT  = 0x04
	SELECT    = 0x08
	RDBUFF    = 0x0c
	TARGETSEL = 0x0c

	DPIDR1   = 0x10 // bank 1, DPv3
	BASEPTR0 = 0x20 // bank 2, DPv3
	TARGETID = 0x24 // bank 2, DPv2
	BASEPTR1 = 0x30 // bank 3, DPv3
	DLPIDR   = 0x34 // bank 3, DPv2
	SELECT1  = 0x54 // bank 5, DPv3
)

// ABORT bits
const (
	AbortDAPAbort   = 1 << 0
	AbortSTKCMPCLR  = 1 << 1
	AbortSTKERRCLR  = 1 << 2
	AbortWDERRCLR   = 1 << 3
	AbortORUNERRCLR = 1 << 4
)

// CTRL/STAT bits
const (
	CtrlStatORUNDetect   = 1 << 0
	CtrlStatStickyORun   = 1 << 1
	CtrlStatStickyCmp    = 1 << 4
	CtrlStatStickyErr    = 1 << 5
	CtrlStatWDataErr     = 1 << 7
	CtrlStatCDbgRstReq   = 1 << 26
	CtrlStatCDbgRstAck   = 1 << 27
	CtrlStatCDbgPwrUpReq = 1 << 28
	CtrlStatCDbgPwrUpAck = 1 << 29
	CtrlStatCSysPwrUpReq = 1 << 30
	CtrlStatCSysPwrUpAck = 1 << 31

	ctrlStatErrors = CtrlStatStickyORun | CtrlStatStickyCmp | CtrlStatStickyErr | CtrlStatWDataErr
)

const (
	dpidr1ASizeMask  = 0x7f
	baseptr0Valid    = 1 << 0
	baseptrAddrMask  = ^uint64(0xfff)
	selectDPBankMask = 0xf
	// SelectAPBankMask covers the AP register bank on ADIv6.
	SelectAPBankMask = 0x0ff0
)
