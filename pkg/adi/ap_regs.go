package adi

// AP register offsets within an ADIv5 AP register file. ADIv6 APs place
// the same registers at APv6Offset within their 4KiB resource block.
const (
	APCSW      = 0x00
	APTAR      = 0x04
	APTARHigh  = 0x08
	APDRW      = 0x0c
	APBaseHigh = 0xf0
	APCFG      = 0xf4
	APBase     = 0xf8
	APIDR      = 0xfc

	APv6Offset = 0xd00
)

// APDB returns the offset of banked data register n (0..3).
func APDB(n int) uint16 {
	return 0x10 + 4*uint16(n&3)
}

// IDR fields
const (
	IDRClassMEM = 0x8

	APTypeJTAG      = 0x0
	APTypeAHB3      = 0x1
	APTypeAPB2_3    = 0x2
	APTypeAXI3_4    = 0x4
	APTypeAHB5      = 0x5
	APTypeAPB4_5    = 0x6
	APTypeAXI5      = 0x7
	APTypeAHB5HPROT = 0x8
)

// IDRType returns the bus type field.
func IDRType(idr uint32) uint8 { return uint8(idr & 0xf) }

// IDRVariant returns the variant field.
func IDRVariant(idr uint32) uint8 { return uint8((idr >> 4) & 0xf) }

// IDRClass returns the AP class field.
func IDRClass(idr uint32) uint8 { return uint8((idr >> 13) & 0xf) }

// IDRDesigner returns the raw 11-bit JEP106 designer field.
func IDRDesigner(idr uint32) uint16 { return uint16((idr >> 17) & 0x7ff) }

// IDRRevision returns the revision field.
func IDRRevision(idr uint32) uint8 { return uint8(idr >> 28) }

// CFG bits
const (
	CFGBigEndian    = 1 << 0
	CFGLargeAddress = 1 << 1
	CFGLargeData    = 1 << 2
)

// BASE bits
const (
	BaseFormat     = 1 << 1
	BasePresent    = 1 << 0
	BaseNotPresent = 0xffffffff
	BaseAddrMask   = ^uint64(0xfff)
)

// CSW bits shared by every MEM-AP.
const (
	CSWSizeMask     = 0x7
	CSWSizeByte     = 0x0
	CSWSizeHalfword = 0x1
	CSWSizeWord     = 0x2

	CSWAddrIncMask   = 0x3 << 4
	CSWAddrIncSingle = 0x1 << 4
	CSWAddrIncPacked = 0x2 << 4

	CSWDeviceEn    = 1 << 6
	CSWTrInProg    = 1 << 7
	CSWMTE         = 1 << 15
	CSWSPIDEN      = 1 << 23
	CSWDbgSwEnable = 1 << 31
)

// Bus specific protection bits.
const (
	CSWAHBHProtMask  = 0x7f << 24
	CSWAHBHProtData  = 1 << 24
	CSWAHBHProtPriv  = 1 << 25
	CSWAHBMasterType = 1 << 29
	CSWAHBHNonSec    = 1 << 30

	CSWAPBPProtMask = 0x7 << 28
	CSWAPBPProtPriv = 1 << 28
	CSWAPBPProtNS   = 1 << 29

	CSWAXI3_4ProtMask = 0x7 << 28
	CSWAXI5ProtMask   = 0x7f << 24
	CSWAXIProtPriv    = 1 << 28
	CSWAXIProtNS      = 1 << 29
)
