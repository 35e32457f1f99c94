package coresight

import "fmt"

// Class is the component class nibble of CIDR1.
type Class uint8

const (
	ClassGenericVerification Class = 0x0
	ClassROMTable            Class = 0x1
	ClassDebug               Class = 0x9
	ClassPeripheralTestBlock Class = 0xb
	ClassDataEngine          Class = 0xd
	ClassGenericIP           Class = 0xe
	ClassSystem              Class = 0xf
	// ClassUnknown means the table entry carries no expectation.
	ClassUnknown Class = 0x10
)

var classNames = map[Class]string{
	ClassGenericVerification: "Generic verification component",
	ClassROMTable:            "ROM Table",
	ClassDebug:               "Debug component",
	ClassPeripheralTestBlock: "Peripheral Test Block",
	ClassDataEngine:          "OptimoDE Data Engine SubSystem component",
	ClassGenericIP:           "Generic IP component",
	ClassSystem:              "Non STD System component",
	ClassUnknown:             "Unknown component class",
}

// String returns the human readable class name.
func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Reserved class 0x%x", uint8(c))
}

// adjustClass corrects the class reported by Cortex-M23/M33 SCS blocks,
// which advertise themselves as debug components.
func adjustClass(part, archID uint16, class Class) Class {
	if (part == 0xd20 || part == 0xd21) && archID == ArchIDCortexMSCS && class == ClassDebug {
		return ClassGenericIP
	}
	return class
}
