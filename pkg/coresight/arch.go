package coresight

// Arch selects how the discovery walker handles a recognised component.
type Arch uint8

const (
	ArchNoSupport Arch = iota
	ArchCortexM
	ArchCortexA
	ArchCortexR
	ArchROMTable
	ArchAccessPort
)

var archNames = [...]string{
	ArchNoSupport:  "unsupported",
	ArchCortexM:    "Cortex-M",
	ArchCortexA:    "Cortex-A",
	ArchCortexR:    "Cortex-R",
	ArchROMTable:   "ROM table",
	ArchAccessPort: "access port",
}

func (a Arch) String() string {
	if int(a) < len(archNames) {
		return archNames[a]
	}
	return "invalid"
}
