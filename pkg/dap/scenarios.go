package dap

import "github.com/OpenTraceLab/OpenTraceADI/pkg/idcode"

// Identification values used by the predefined scenarios.
const (
	// ScenarioDPIDRv1 is an ARM SW-DP, version 1.
	ScenarioDPIDRv1 = 0x2ba01477
	// ScenarioDPIDRv3 is an ARM SW-DP, version 3 (ADIv6).
	ScenarioDPIDRv3 = 0x4c013477
	// ScenarioAHBAPIDR is an ARM AHB3-AP.
	ScenarioAHBAPIDR = 0x24770011
	// ScenarioAHB5APIDR is an ARM AHB5-AP.
	ScenarioAHB5APIDR = 0x54770015

	CPUIDCortexM4  = 0x410fc241
	CPUIDCortexM33 = 0x410fd214
)

// PIDRFor builds the peripheral ID of a JEP106 designer and part number.
// designer uses the normalized continuation<<8 | identity layout.
func PIDRFor(designer, part uint16) uint64 {
	cont := uint64(designer>>8) & 0xf
	code := uint64(designer) & 0x7f
	return cont<<32 | 1<<19 | code<<12 | uint64(part&0xfff)
}

// SimComponent is the identification block of a simulated CoreSight
// component.
type SimComponent struct {
	Class   uint8
	PIDR    uint64
	DevArch uint32
	DevType uint32 // DEVTYPE, or MEMTYPE on a legacy ROM table
	DevID   uint32
}

// Install writes the identification registers of the component whose
// 4KiB block starts at base.
func (c SimComponent) Install(mem *SimMemory, base uint64) {
	cidr := uint32(0xb105000d) | uint32(c.Class&0xf)<<12
	for i := 0; i < 4; i++ {
		mem.Poke32(base+0xff0+uint64(4*i), cidr>>(8*i)&0xff)
		mem.Poke32(base+0xfe0+uint64(4*i), uint32(c.PIDR>>(8*i))&0xff)
		mem.Poke32(base+0xfd0+uint64(4*i), uint32(c.PIDR>>(32+8*i))&0xff)
	}
	mem.Poke32(base+0xfbc, c.DevArch)
	mem.Poke32(base+0xfc8, c.DevID)
	mem.Poke32(base+0xfcc, c.DevType)
}

// PokeTable writes ROM table entries starting at base.
func PokeTable(mem *SimMemory, base uint64, entries ...uint32) {
	for i, e := range entries {
		mem.Poke32(base+uint64(4*i), e)
	}
}

// LegacyROM is a class 0x1 ROM table whose PIDR names the part. MEMTYPE
// reports system memory on the bus.
func LegacyROM(designer, part uint16) SimComponent {
	return SimComponent{Class: 0x1, PIDR: PIDRFor(designer, part), DevType: 1}
}

// Common component identities.
var (
	CoreSightROM = SimComponent{Class: 0x9, PIDR: PIDRFor(idcode.DesignerARM, 0x4c7), DevArch: 0x47700af7}

	// Cortex-M system blocks
	M4SCS  = SimComponent{Class: 0xe, PIDR: PIDRFor(idcode.DesignerARM, 0x00c)}
	M3DWT  = SimComponent{Class: 0xe, PIDR: PIDRFor(idcode.DesignerARM, 0x002)}
	M3FPB  = SimComponent{Class: 0xe, PIDR: PIDRFor(idcode.DesignerARM, 0x003)}
	M33SCS = SimComponent{Class: 0x9, PIDR: PIDRFor(idcode.DesignerARM, 0xd21), DevArch: 0x47702a04}

	MEMAPv2 = SimComponent{Class: 0x9, PIDR: PIDRFor(idcode.DesignerARM, 0x9e3), DevArch: 0x47700a17}
)

// BuildCortexM4Scenario creates an ADIv5 STM32F4-like target: one AHB-AP
// whose legacy ROM table at 0xe00ff000 lists the SCS, DWT and FPB.
func BuildCortexM4Scenario() (*Sim, *SimCortexM) {
	sim := NewSim(ScenarioDPIDRv1)
	mem := NewSimMemory()
	sim.AddMemAP(0, ScenarioAHBAPIDR, 0xe00ff003, mem)

	LegacyROM(idcode.DesignerSTM, 0x413).Install(mem, 0xe00ff000)
	PokeTable(mem, 0xe00ff000,
		0xfff0f003, // SCS
		0xfff02003, // DWT
		0xfff03003, // FPB
		0x00000000,
	)
	M4SCS.Install(mem, 0xe000e000)
	M3DWT.Install(mem, 0xe0001000)
	M3FPB.Install(mem, 0xe0002000)

	core := NewSimCortexM(CPUIDCortexM4)
	core.FPCtrl = 6<<4 | 1<<28
	core.DWTCtrl = 4 << 28
	core.CPACRMask = 0x00f00000
	core.Map(mem)
	core.Attach(sim)
	return sim, core
}

// BuildADIv6Scenario creates a DPv3 target whose root CoreSight ROM table
// at address zero of the DP address space lists one MEM-APv2. The AP's
// own legacy ROM table describes a Cortex-M33.
func BuildADIv6Scenario() (*Sim, *SimCortexM) {
	sim := NewSim(ScenarioDPIDRv3)
	sim.DPIDR1 = 32
	sim.BasePtr = 0x00000001
	sim.TargetID = 0x04c12001 // designer 0x000 leaves the AP identity in charge

	CoreSightROM.Install(sim.Space, 0x0000)
	PokeTable(sim.Space, 0x0000, 0x00001003, 0x00000000)
	MEMAPv2.Install(sim.Space, 0x1000)

	mem := NewSimMemory()
	sim.AddResourceAP(0x1000, ScenarioAHB5APIDR, 0xe00fe003, mem)
	LegacyROM(idcode.DesignerARM, 0x4c9).Install(mem, 0xe00fe000)
	PokeTable(mem, 0xe00fe000, 0xfff10003, 0x00000000)
	M33SCS.Install(mem, 0xe000e000)

	core := NewSimCortexM(CPUIDCortexM33)
	core.FPCtrl = 8<<4 | 1<<28
	core.DWTCtrl = 4 << 28
	core.IDPFR1 = 1 << 4
	core.Map(mem)
	core.Attach(sim)
	return sim, core
}
