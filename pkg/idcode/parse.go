package idcode

// designerFromField converts the 11-bit JEP106 field used by DPIDR, TARGETID
// and the AP IDR (continuation count in bits 10:7, identity in bits 6:0)
// into the normalized designer code.
func designerFromField(field uint16) uint16 {
	return (field&0x780)<<1 | field&0x7f
}

// DesignerFromField normalizes a raw 11-bit JEP106 field.
func DesignerFromField(field uint16) uint16 {
	return designerFromField(field & 0x7ff)
}

// ParseDPIDR splits a raw DPIDR value into its fields.
func ParseDPIDR(raw uint32) DPIDR {
	return DPIDR{
		Raw:      raw,
		Revision: uint8((raw >> 28) & 0xf),
		PartNo:   uint8((raw >> 20) & 0xff),
		MinDP:    raw&(1<<16) != 0,
		Version:  uint8((raw >> 12) & 0xf),
		Designer: designerFromField(uint16((raw >> 1) & 0x7ff)),
	}
}

// ParseTargetID splits a raw TARGETID value into its fields.
func ParseTargetID(raw uint32) TargetID {
	return TargetID{
		Raw:      raw,
		Revision: uint8((raw >> 28) & 0xf),
		PartNo:   uint16((raw >> 12) & 0xffff),
		Designer: designerFromField(uint16((raw >> 1) & 0x7ff)),
	}
}
