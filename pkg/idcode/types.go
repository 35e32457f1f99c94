package idcode

// DPIDR represents a parsed Debug Port identification register.
type DPIDR struct {
	Raw      uint32
	Revision uint8  // [31:28]
	PartNo   uint8  // [27:20]
	MinDP    bool   // bit 16, transaction counter and pushed ops absent
	Version  uint8  // [15:12]
	Designer uint16 // [11:1] JEP106, normalized
}

// TargetID represents a parsed DPv2 TARGETID register.
type TargetID struct {
	Raw      uint32
	Revision uint8  // [31:28]
	PartNo   uint16 // [27:12]
	Designer uint16 // [11:1] JEP106, normalized
}

// Manufacturer represents a JEP106 manufacturer entry
type Manufacturer struct {
	Code         uint16 // normalized designer code: continuation<<8 | identity
	Name         string // "STMicroelectronics"
	Abbreviation string // "STM"
}
