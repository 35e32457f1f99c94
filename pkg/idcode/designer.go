package idcode

// PIDR bit layout for designer extraction.
const (
	pidrJEP106Used     = 1 << 19
	pidrJEP106CodeMask = 0x7f << 12
	pidrJEP106ContMask = uint64(0xf) << 32

	// ASCIIFlag marks a legacy, pre-JEP106 identity code.
	ASCIIFlag = 1 << 15
)

// DesignerFromPIDR decodes the designer of a CoreSight component from its
// 64-bit peripheral ID. The continuation count lands in bits 11:8 of the
// result and the identity code in bits 6:0. Legacy codes carry ASCIIFlag.
// Known non-compliant encodings are folded onto the ST code.
func DesignerFromPIDR(pidr uint64) uint16 {
	var code uint16
	if pidr&pidrJEP106Used != 0 {
		code = uint16((pidr&pidrJEP106ContMask)>>24) | uint16((pidr&pidrJEP106CodeMask)>>12)
	} else {
		code = ASCIIFlag | uint16((pidr>>12)&0x7f)
	}

	switch code {
	case ErrataSTM32WX, ErrataCS, ErrataCSASCII:
		return DesignerSTM
	}
	return code
}
