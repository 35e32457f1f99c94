package cortexm

// System Control Space and debug unit addresses.
const (
	ppbBase = 0xe0000000
	scsBase = ppbBase + 0xe000

	regCPUID  = scsBase + 0xd00
	regCCR    = scsBase + 0xd14
	regAIRCR  = scsBase + 0xd0c
	regCFSR   = scsBase + 0xd28
	regHFSR   = scsBase + 0xd2c
	regDFSR   = scsBase + 0xd30
	regIDPFR1 = scsBase + 0xd44
	regCTR    = scsBase + 0xd7c
	regCPACR  = scsBase + 0xd88
	regDHCSR  = scsBase + 0xdf0
	regDCRSR  = scsBase + 0xdf4
	regDCRDR  = scsBase + 0xdf8
	regDEMCR  = scsBase + 0xdfc

	regICIALLU  = scsBase + 0xf50
	regDCCMVAC  = scsBase + 0xf68
	regDCCIMVAC = scsBase + 0xf70

	fpbBase    = ppbBase + 0x2000
	regFPCtrl  = fpbBase
	dwtBase    = ppbBase + 0x1000
	regDWTCtrl = dwtBase
)

func regFPComp(i int) uint32 { return fpbBase + 0x008 + 4*uint32(i) }
func regDWTComp(i int) uint32 { return dwtBase + 0x020 + 0x10*uint32(i) }
func regDWTMask(i int) uint32 { return dwtBase + 0x024 + 0x10*uint32(i) }
func regDWTFunc(i int) uint32 { return dwtBase + 0x028 + 0x10*uint32(i) }

// AIRCR
const (
	aircrVectKey       = 0x05fa << 16
	aircrSysResetReq   = 1 << 2
	aircrVectClrActive = 1 << 1
)

// CCR data cache enable
const ccrDC = 1 << 16

// HFSR
const hfsrForced = 1 << 30

// DFSR
const (
	dfsrResetAll = 0x1f
	dfsrExternal = 1 << 4
	dfsrVCatch   = 1 << 3
	dfsrDWTTrap  = 1 << 2
	dfsrBkpt     = 1 << 1
	dfsrHalted   = 1 << 0
)

// DHCSR
const (
	dhcsrDbgKey   = 0xa05f << 16
	dhcsrSResetSt = 1 << 25
	dhcsrSHalt    = 1 << 17
	dhcsrSRegRdy  = 1 << 16
	dhcsrCMaskInt = 1 << 3
	dhcsrCStep    = 1 << 2
	dhcsrCHalt    = 1 << 1
	dhcsrCDebugEn = 1 << 0
)

const dcrsrRegWnR = 1 << 16

// DEMCR
const (
	demcrTrcEna      = 1 << 24
	demcrVCHardErr   = 1 << 10
	demcrVCIntErr    = 1 << 9
	demcrVCBusErr    = 1 << 8
	demcrVCStatErr   = 1 << 7
	demcrVCChkErr    = 1 << 6
	demcrVCNoCPErr   = 1 << 5
	demcrVCMMErr     = 1 << 4
	demcrVCCoreReset = 1 << 0
)

// FP_CTRL
const (
	fpCtrlKey    = 1 << 1
	fpCtrlEnable = 1 << 0
)

// DWT_FUNCTION, ARMv6-M and ARMv7-M layout
const (
	dwtFuncMatched        = 1 << 24
	dwtFuncDataVSizeWord  = 2 << 10
	dwtFuncFuncRead       = 5
	dwtFuncFuncWrite      = 6
	dwtFuncFuncAccess     = 7
	dwtMaskMaxExponent    = 31
	dwtV2FuncMatchAccess  = 4
	dwtV2FuncMatchWrite   = 5
	dwtV2FuncMatchRead    = 6
	dwtV2FuncActionDebug  = 1 << 4
	dwtV2FuncDataVSizeBit = 10
)

// CPACR bits granting full access to CP10 and CP11.
const cpacrFP = 0x00f00000

// Architectural limits on comparators this driver tracks.
const (
	MaxBreakpoints = 6
	MaxWatchpoints = 4
)

// DCRSR register selectors.
const (
	selXPSR    = 0x10
	selMSP     = 0x11
	selPSP     = 0x12
	selSpecial = 0x14
	selMSPNS   = 0x18
	selPSPNS   = 0x19
	selMSPS    = 0x1a
	selPSPS    = 0x1b
	selFPSCR   = 0x21
	selS0      = 0x40
)

// Register file indices, in description order.
const (
	RegSP = 13 + iota
	RegLR
	RegPC
	RegXPSR
	RegMSP
	RegPSP
	RegPrimask
	RegBasepri
	RegFaultmask
	RegControl

	numBaseRegs
)

// CONTROL bits within the unpacked control register.
const (
	controlSPSel = 1 << 1
	controlFPCA  = 1 << 2
)

const (
	excReturnSPSel    = 1 << 2
	excReturnNoFPCtx  = 1 << 4
	xpsrStackAlign    = 1 << 9
	xpsrThumb         = 1 << 24
	frameSizeBasic    = 0x20
	frameSizeExtended = 0x68
)

// Thumb BKPT encodings.
const (
	bkptOpcode      = 0xbe00
	bkptMask        = 0xff00
	semihostingBkpt = 0xbeab
)
