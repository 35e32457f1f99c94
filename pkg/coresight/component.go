package coresight

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Component describes one ARM CoreSight block. Entries are matched on the
// (PartNumber, DevType, ArchID) triple.
type Component struct {
	PartNumber uint16
	DevType    uint8
	ArchID     uint16
	Arch       Arch
	Class      Class // expected CIDR class, ClassUnknown if not checked
	Type       string
	Full       string
}

func (c *Component) String() string {
	return fmt.Sprintf("%s (%s)", c.Type, c.Full)
}

type componentKey struct {
	part    uint16
	devType uint8
	archID  uint16
}

var components = []Component{
	{0x000, 0x00, 0x0000, ArchCortexM, ClassGenericIP, "Cortex-M3 SCS", "System Control Space"},
	{0x001, 0x00, 0x0000, ArchNoSupport, ClassUnknown, "Cortex-M3 ITM", "Instrumentation Trace Module"},
	{0x002, 0x00, 0x0000, ArchNoSupport, ClassUnknown, "Cortex-M3 DWT", "Data Watchpoint and Trace"},
	{0x003, 0x00, 0x0000, ArchNoSupport, ClassUnknown, "Cortex-M3 FBP", "Flash Patch and Breakpoint"},
	{0x008, 0x00, 0x0000, ArchCortexM, ClassGenericIP, "Cortex-M0 SCS", "System Control Space"},
	{0x00a, 0x00, 0x0000, ArchNoSupport, ClassUnknown, "Cortex-M0 DWT", "Data Watchpoint and Trace"},
	{0x00b, 0x00, 0x0000, ArchNoSupport, ClassUnknown, "Cortex-M0 BPU", "Breakpoint Unit"},
	{0x00c, 0x00, 0x0000, ArchCortexM, ClassGenericIP, "Cortex-M4 SCS", "System Control Space"},
	{0x00d, 0x00, 0x0000, ArchNoSupport, ClassUnknown, "CoreSight ETM11", "Embedded Trace"},
	{0x00e, 0x00, 0x0000, ArchNoSupport, ClassUnknown, "Cortex-M7 FBP", "Flash Patch and Breakpoint"},
	{0x101, 0x00, 0x0000, ArchNoSupport, ClassUnknown, "System TSGEN", "Time Stamp Generator"},
	{0x471, 0x00, 0x0000, ArchNoSupport, ClassUnknown, "Cortex-M0 ROM", "Cortex-M0 ROM"},
	{0x490, 0x00, 0x0000, ArchNoSupport, ClassUnknown, "Cortex-A15 GIC", "Generic Interrupt Controller"},
	{0x4c0, 0x00, 0x0000, ArchNoSupport, ClassUnknown, "Cortex-M0+ ROM", "Cortex-M0+ ROM"},
	{0x4c3, 0x00, 0x0000, ArchNoSupport, ClassUnknown, "Cortex-M3 ROM", "Cortex-M3 ROM"},
	{0x4c4, 0x00, 0x0000, ArchNoSupport, ClassUnknown, "Cortex-M4 ROM", "Cortex-M4 ROM"},
	{0x4c7, 0x00, 0x0000, ArchNoSupport, ClassUnknown, "Cortex-M7 PPB", "Cortex-M7 PPB ROM Table"},
	{0x4c8, 0x00, 0x0000, ArchNoSupport, ClassUnknown, "Cortex-M7 ROM", "Cortex-M7 ROM"},
	{0x000, 0x00, 0x0af7, ArchROMTable, ClassDebug, "CoreSight ROM", "ROM Table"},
	{0x906, 0x14, 0x0000, ArchNoSupport, ClassUnknown, "CoreSight CTI", "Cross Trigger"},
	{0x907, 0x21, 0x0000, ArchNoSupport, ClassUnknown, "CoreSight ETB", "Trace Buffer"},
	{0x908, 0x12, 0x0000, ArchNoSupport, ClassUnknown, "CoreSight CSTF", "Trace Funnel"},
	{0x910, 0x00, 0x0000, ArchNoSupport, ClassUnknown, "CoreSight ETM9", "Embedded Trace"},
	{0x912, 0x11, 0x0000, ArchNoSupport, ClassUnknown, "CoreSight TPIU", "Trace Port Interface Unit"},
	{0x913, 0x43, 0x0000, ArchNoSupport, ClassUnknown, "CoreSight ITM", "Instrumentation Trace Macrocell"},
	{0x914, 0x11, 0x0000, ArchNoSupport, ClassUnknown, "CoreSight SWO", "Single Wire Output"},
	{0x917, 0x00, 0x0000, ArchNoSupport, ClassUnknown, "CoreSight HTM", "AHB Trace Macrocell"},
	{0x920, 0x00, 0x0000, ArchNoSupport, ClassUnknown, "CoreSight ETM11", "Embedded Trace"},
	{0x921, 0x13, 0x0000, ArchNoSupport, ClassUnknown, "Cortex-A8 ETM", "Embedded Trace"},
	{0x922, 0x14, 0x0000, ArchNoSupport, ClassUnknown, "Cortex-A8 CTI", "Cross Trigger"},
	{0x923, 0x11, 0x0000, ArchNoSupport, ClassUnknown, "Cortex-M3 TPIU", "Trace Port Interface Unit"},
	{0x924, 0x13, 0x0000, ArchNoSupport, ClassUnknown, "Cortex-M3 ETM", "Embedded Trace"},
	{0x925, 0x13, 0x0000, ArchNoSupport, ClassUnknown, "Cortex-M4 ETM", "Embedded Trace"},
	{0x930, 0x13, 0x0000, ArchNoSupport, ClassUnknown, "Cortex-R4 ETM", "Embedded Trace"},
	{0x932, 0x31, 0x0a31, ArchNoSupport, ClassUnknown, "CoreSight MTB-M0+", "Simple Execution Trace"},
	{0x941, 0x00, 0x0000, ArchNoSupport, ClassUnknown, "CoreSight TPIU-Lite", "Trace Port Interface Unit"},
	{0x950, 0x13, 0x0000, ArchNoSupport, ClassUnknown, "Cortex-A9 PTM", "Program Trace Macrocell"},
	{0x955, 0x00, 0x0000, ArchNoSupport, ClassUnknown, "CoreSight Component", "unidentified Cortex-A5 component"},
	{0x956, 0x13, 0x0000, ArchNoSupport, ClassUnknown, "Cortex-A7 ETM", "Embedded Trace"},
	{0x95d, 0x13, 0x0000, ArchNoSupport, ClassUnknown, "Cortex-A53 ETM", "Embedded Trace"},
	{0x95f, 0x00, 0x0000, ArchNoSupport, ClassUnknown, "Cortex-A15 PTM", "Program Trace Macrocell"},
	{0x961, 0x32, 0x0000, ArchNoSupport, ClassUnknown, "CoreSight TMC", "Trace Memory Controller"},
	{0x961, 0x21, 0x0000, ArchNoSupport, ClassUnknown, "CoreSight TMC", "Trace Buffer"},
	{0x962, 0x00, 0x0000, ArchNoSupport, ClassUnknown, "CoreSight STM", "System Trace Macrocell"},
	{0x963, 0x63, 0x0a63, ArchNoSupport, ClassUnknown, "CoreSight STM", "System Trace Macrocell"},
	{0x975, 0x13, 0x4a13, ArchNoSupport, ClassUnknown, "Cortex-M7 ETM", "Embedded Trace"},
	{0x9a0, 0x16, 0x0000, ArchNoSupport, ClassUnknown, "CoreSight PMU", "Performance Monitoring Unit"},
	{0x9a1, 0x11, 0x0000, ArchNoSupport, ClassUnknown, "Cortex-M4 TPIU", "Trace Port Interface Unit"},
	{0x9a6, 0x14, 0x1a14, ArchNoSupport, ClassDebug, "Cortex-M0+ CTI", "Cross Trigger Interface"},
	{0x9a9, 0x11, 0x0000, ArchNoSupport, ClassUnknown, "Cortex-M7 TPIU", "Trace Port Interface Unit"},
	{0x9a5, 0x13, 0x0000, ArchNoSupport, ClassUnknown, "Cortex-A5 ETM", "Embedded Trace"},
	{0x9a7, 0x16, 0x0000, ArchNoSupport, ClassUnknown, "Cortex-A7 PMU", "Performance Monitor Unit"},
	{0x9a8, 0x14, 0x1a14, ArchNoSupport, ClassUnknown, "Cortex-A53 CTI", "Cross Trigger"},
	{0x9af, 0x16, 0x0000, ArchNoSupport, ClassUnknown, "Cortex-A15 PMU", "Performance Monitor Unit"},
	{0x9d3, 0x16, 0x2a16, ArchNoSupport, ClassUnknown, "Cortex-A53 PMU", "Performance Monitor Unit"},
	{0xc05, 0x15, 0x0000, ArchCortexA, ClassDebug, "Cortex-A5", "Debug Unit"},
	{0xc07, 0x15, 0x0000, ArchCortexA, ClassDebug, "Cortex-A7", "Debug Unit"},
	{0xc08, 0x15, 0x0000, ArchCortexA, ClassDebug, "Cortex-A8", "Debug Unit"},
	{0xc09, 0x15, 0x0000, ArchCortexA, ClassDebug, "Cortex-A9", "Debug Unit"},
	{0xc0f, 0x15, 0x0000, ArchCortexA, ClassUnknown, "Cortex-A15", "Debug Unit"},
	{0xc14, 0x15, 0x0000, ArchCortexR, ClassUnknown, "Cortex-R4", "Debug Unit"},
	{0xcd0, 0x00, 0x0000, ArchNoSupport, ClassUnknown, "Atmel DSU", "Device Service Unit"},
	{0xd03, 0x15, 0x6a15, ArchCortexA, ClassDebug, "Cortex-A53", "Debug Unit"},
	{0xd05, 0x13, 0x4a13, ArchNoSupport, ClassDebug, "Cortex-A55 ETM", "Embedded Trace"},
	{0xd05, 0x14, 0x1a14, ArchNoSupport, ClassDebug, "Cortex-A55 CTI", "Cross Trigger"},
	{0xd05, 0x15, 0x8a15, ArchCortexA, ClassDebug, "Cortex-A55", "Debug Unit"},
	{0xd05, 0x16, 0x2a16, ArchNoSupport, ClassDebug, "Cortex-A55 PMU", "Performance Monitor Unit"},
	{0xd20, 0x00, 0x2a04, ArchCortexM, ClassGenericIP, "Cortex-M23", "System Control Space"},
	{0xd20, 0x11, 0x0000, ArchNoSupport, ClassDebug, "Cortex-M23", "Trace Port Interface Unit"},
	{0xd20, 0x13, 0x0000, ArchNoSupport, ClassDebug, "Cortex-M23", "Embedded Trace"},
	{0xd20, 0x31, 0x0a31, ArchNoSupport, ClassDebug, "Cortex-M23", "Micro Trace Buffer"},
	{0xd20, 0x00, 0x1a02, ArchNoSupport, ClassDebug, "Cortex-M23", "Data Watchpoint and Trace"},
	{0xd20, 0x00, 0x1a03, ArchNoSupport, ClassDebug, "Cortex-M23", "Breakpoint Unit"},
	{0xd20, 0x14, 0x1a14, ArchNoSupport, ClassDebug, "Cortex-M23", "Cross Trigger"},
	{0xd21, 0x00, 0x2a04, ArchCortexM, ClassGenericIP, "Cortex-M33", "System Control Space"},
	{0xd21, 0x31, 0x0a31, ArchNoSupport, ClassDebug, "Cortex-M33", "Micro Trace Buffer"},
	{0xd21, 0x43, 0x1a01, ArchNoSupport, ClassDebug, "Cortex-M33", "Instrumentation Trace Macrocell"},
	{0xd21, 0x00, 0x1a02, ArchNoSupport, ClassDebug, "Cortex-M33", "Data Watchpoint and Trace"},
	{0xd21, 0x00, 0x1a03, ArchNoSupport, ClassDebug, "Cortex-M33", "Breakpoint Unit"},
	{0xd21, 0x14, 0x1a14, ArchNoSupport, ClassDebug, "Cortex-M33", "Cross Trigger"},
	{0xd21, 0x13, 0x4a13, ArchNoSupport, ClassDebug, "Cortex-M33", "Embedded Trace"},
	{0xd21, 0x11, 0x0000, ArchNoSupport, ClassDebug, "Cortex-M33", "Trace Port Interface Unit"},
	{0xd22, 0x00, 0x2a04, ArchCortexM, ClassDebug, "Cortex-M55", "System Control Space"},
	{0xd22, 0x00, 0x1a02, ArchNoSupport, ClassDebug, "Cortex-M55", "Data Watchpoint and Trace"},
	{0xd22, 0x00, 0x1a03, ArchNoSupport, ClassDebug, "Cortex-M55", "Breakpoint Unit"},
	{0xd22, 0x43, 0x1a01, ArchNoSupport, ClassDebug, "Cortex-M55", "Instrumentation Trace Macrocell"},
	{0xd22, 0x13, 0x4a13, ArchNoSupport, ClassDebug, "Cortex-M55", "Embedded Trace"},
	{0xd22, 0x16, 0x0a06, ArchNoSupport, ClassDebug, "Cortex-M55", "Performance Monitoring Unit"},
	{0xd22, 0x14, 0x1a14, ArchNoSupport, ClassDebug, "Cortex-M55", "Cross Trigger"},
	{0x132, 0x31, 0x0a31, ArchNoSupport, ClassDebug, "STAR-MC1 MTB", "Execution Trace"},
	{0x132, 0x43, 0x1a01, ArchNoSupport, ClassDebug, "STAR-MC1 ITM", "Instrumentation Trace Module"},
	{0x132, 0x00, 0x1a02, ArchNoSupport, ClassDebug, "STAR-MC1 DWT", "Data Watchpoint and Trace"},
	{0x132, 0x00, 0x1a03, ArchNoSupport, ClassDebug, "STAR-MC1 BPU", "Breakpoint Unit"},
	{0x132, 0x14, 0x1a14, ArchNoSupport, ClassDebug, "STAR-MC1 CTI", "Cross Trigger"},
	{0x132, 0x00, 0x2a04, ArchCortexM, ClassDebug, "STAR-MC1 SCS", "System Control Space"},
	{0x132, 0x13, 0x4a13, ArchNoSupport, ClassDebug, "STAR-MC1 ETM", "Embedded Trace"},
	{0x132, 0x11, 0x0000, ArchNoSupport, ClassDebug, "STAR-MC1 TPIU", "Trace Port Interface Unit"},
	{0x9a3, 0x13, 0x0000, ArchNoSupport, ClassDebug, "nRF NTB", "Nordic Trace Buffer"},
	{0x9e2, 0x00, 0x0a17, ArchAccessPort, ClassDebug, "ADIv6 MEM-APv2", "Memory Access Port"},
	{0x9e3, 0x00, 0x0a17, ArchAccessPort, ClassDebug, "ADIv6 MEM-APv2", "Memory Access Port"},
	{0x193, 0x00, 0x0000, ArchNoSupport, ClassSystem, "CoreSight TSG", "Timestamp Generator"},
	{0x9e4, 0x00, 0x0a17, ArchNoSupport, ClassDebug, "CoreSight MTE", "Memory Tagging Extension"},
	{0x9e7, 0x11, 0x0000, ArchNoSupport, ClassDebug, "CoreSight TPIU", "Trace Port Interface Unit"},
	{0x9e8, 0x21, 0x0000, ArchNoSupport, ClassDebug, "CoreSight TCM", "Trace Memory Controller"},
	{0x9eb, 0x12, 0x0000, ArchNoSupport, ClassDebug, "CoreSight ATBF", "ATB Funnel"},
	{0x9ec, 0x22, 0x0000, ArchNoSupport, ClassDebug, "CoreSight ATBR", "ATB Replicator"},
	{0x9ed, 0x14, 0x1a14, ArchNoSupport, ClassDebug, "CoreSight CTI", "Cross Trigger Interface"},
	{0x9ee, 0x00, 0x0000, ArchNoSupport, ClassDebug, "CoreSight CATU", "CoreSight Address Translation Unit"},
}

var componentIndex = func() map[componentKey]*Component {
	idx := make(map[componentKey]*Component, len(components))
	for i := range components {
		c := &components[i]
		k := componentKey{c.PartNumber, c.DevType, c.ArchID}
		if _, dup := idx[k]; dup {
			panic(fmt.Sprintf("coresight: duplicate component %03x/%02x/%04x", k.part, k.devType, k.archID))
		}
		idx[k] = c
	}
	return idx
}()

// Components returns a copy of the component table.
func Components() []Component {
	out := make([]Component, len(components))
	copy(out, components)
	return out
}

// Lookup finds the descriptor for a component. base and entry are only used
// for diagnostics. The part number is taken from pidr unless archID marks a
// CoreSight ROM table, whose PIDR part number is vendor defined. A nil
// result means the component is unknown.
func Lookup(base uint64, entry int, class Class, pidr uint64, devType uint8, archID uint16) *Component {
	part := PartNumber(pidr)
	if archID == ArchIDROMTableV0 {
		part = 0
	}

	fields := log.Fields{
		"base":    fmt.Sprintf("0x%016x", base),
		"entry":   entry,
		"class":   class.String(),
		"pidr":    fmt.Sprintf("0x%010x", pidr),
		"devtype": fmt.Sprintf("0x%02x", devType),
		"archid":  fmt.Sprintf("0x%04x", archID),
	}

	c, ok := componentIndex[componentKey{part, devType, archID}]
	if !ok {
		log.WithFields(fields).Warn("coresight: unknown component")
		return nil
	}
	log.WithFields(fields).Debugf("coresight: %s", c)

	adjusted := adjustClass(part, archID, class)
	if c.Class != ClassUnknown && adjusted != c.Class {
		log.WithFields(fields).Warnf("coresight: %q expected, got %q", c.Class, adjusted)
	}
	return c
}
