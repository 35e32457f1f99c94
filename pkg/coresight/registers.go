// Package coresight describes the identification registers shared by every
// CoreSight component and the table of ARM components known to the
// discovery walker.
package coresight

// Identification register offsets within a component's 4KiB block.
const (
	RegDEVARCH = 0xfbc
	RegDEVID   = 0xfc8
	RegDEVTYPE = 0xfcc
	RegPIDR4   = 0xfd0
	RegPIDR0   = 0xfe0
	RegCIDR0   = 0xff0
)

const (
	// CIDPreamble is the fixed pattern of CIDR3..0 outside the class nibble.
	CIDPreamble   = 0xb105000d
	cidClassMask  = 0x0000f000
	cidClassShift = 12

	pidrPartMask = 0xfff
	pidrSizeMask = uint64(0xf) << 36

	DevArchPresent    = 1 << 20
	DevArchArchIDMask = 0xffff
	DevTypeMask       = 0xff

	// ArchIDROMTableV0 is the DEVARCH archid of a CoreSight class 0x9 ROM table.
	ArchIDROMTableV0 = 0x0af7
	// ArchIDCortexMSCS is the DEVARCH archid of an ARMv8-M SCS.
	ArchIDCortexMSCS = 0x2a04
)

// CIDR0..3 and PIDR0..7 each carry one byte in bits 7:0 of a word.
const (
	CIDRWords = 4
	PIDRWords = 8
)

// CIDR assembles the component ID from the low bytes of CIDR0..3.
func CIDR(words [CIDRWords]uint32) uint32 {
	var cidr uint32
	for i, w := range words {
		cidr |= (w & 0xff) << (8 * i)
	}
	return cidr
}

// PIDR assembles the 64-bit peripheral ID. words[0..3] are PIDR0..3 read
// from RegPIDR0, words[4..7] are PIDR4..7 read from RegPIDR4.
func PIDR(words [PIDRWords]uint32) uint64 {
	var pidr uint64
	for i, w := range words[:4] {
		pidr |= uint64(w&0xff) << (8 * i)
	}
	for i, w := range words[4:] {
		pidr |= uint64(w&0xff) << (32 + 8*i)
	}
	return pidr
}

// ValidPreamble reports whether cidr carries the fixed CoreSight preamble.
func ValidPreamble(cidr uint32) bool {
	return cidr&^cidClassMask == CIDPreamble
}

// ClassOf extracts the component class from a CIDR value.
func ClassOf(cidr uint32) Class {
	return Class((cidr & cidClassMask) >> cidClassShift)
}

// PartNumber extracts the 12-bit part number from a PIDR value.
func PartNumber(pidr uint64) uint16 {
	return uint16(pidr & pidrPartMask)
}

// PIDRSize returns the 4KiB block count field; a ROM table must report zero.
func PIDRSize(pidr uint64) uint8 {
	return uint8((pidr & pidrSizeMask) >> 36)
}
