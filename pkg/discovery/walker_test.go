package discovery_test

import (
	"context"
	"errors"
	"testing"

	"github.com/OpenTraceLab/OpenTraceADI/pkg/adi"
	"github.com/OpenTraceLab/OpenTraceADI/pkg/coresight"
	"github.com/OpenTraceLab/OpenTraceADI/pkg/cortexm"
	"github.com/OpenTraceLab/OpenTraceADI/pkg/dap"
	"github.com/OpenTraceLab/OpenTraceADI/pkg/discovery"
	"github.com/OpenTraceLab/OpenTraceADI/pkg/idcode"
	"github.com/OpenTraceLab/OpenTraceADI/pkg/target"
)

// tableBase is where the single AP of a bare simulator points.
const tableBase = 0x80000000

func newWalker(t *testing.T, sim *dap.Sim, opts *discovery.Options) (*discovery.Walker, *target.List, *adi.DP) {
	t.Helper()
	dp, err := adi.NewDP(sim)
	if err != nil {
		t.Fatalf("NewDP: %v", err)
	}
	list := &target.List{}
	return discovery.NewWalker(dp, list, opts), list, dp
}

// bareSim has one AHB-AP at APSEL 0 whose BASE points at tableBase.
func bareSim() (*dap.Sim, *dap.SimMemory) {
	sim := dap.NewSim(dap.ScenarioDPIDRv1)
	mem := dap.NewSimMemory()
	sim.AddMemAP(0, dap.ScenarioAHBAPIDR, tableBase|3, mem)
	return sim, mem
}

// probedBases records the block of every CIDR0 read.
func probedBases(mem *dap.SimMemory) *[]uint64 {
	var bases []uint64
	mem.OnRead = func(addr uint64) (uint32, bool, error) {
		if addr&0xfff == coresight.RegCIDR0 {
			bases = append(bases, addr&^0xfff)
		}
		return 0, false, nil
	}
	return &bases
}

func TestScanCortexM4(t *testing.T) {
	sim, core := dap.BuildCortexM4Scenario()
	w, list, _ := newWalker(t, sim, nil)

	if err := w.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if list.Len() != 1 {
		t.Fatalf("targets = %d, want 1", list.Len())
	}
	tgt, ok := list.Get(0).(*cortexm.Target)
	if !ok {
		t.Fatalf("target is %T", list.Get(0))
	}
	if got, want := tgt.Driver(), "STM32F40x/41x (ARM Cortex-M4)"; got != want {
		t.Errorf("Driver = %q, want %q", got, want)
	}

	ap := tgt.AP()
	if ap.Refs() != 1 {
		t.Errorf("AP refs = %d, want 1 held by the target", ap.Refs())
	}
	if ap.Designer != idcode.DesignerSTM || ap.PartNo != 0x413 {
		t.Errorf("AP identity = 0x%03x/0x%03x", ap.Designer, ap.PartNo)
	}
	if ap.Flags&adi.APFlagHasMem == 0 {
		t.Error("MEMTYPE.SYSMEM not recorded")
	}

	if !core.DebugEnabled() || core.Halted() {
		t.Errorf("core debug=%t halted=%t, want resumed", core.DebugEnabled(), core.Halted())
	}

	wantBases := []uint64{0xe00ff000, 0xe000e000, 0xe0001000, 0xe0002000}
	if len(w.Nodes) != len(wantBases) {
		t.Fatalf("nodes = %d, want %d", len(w.Nodes), len(wantBases))
	}
	for i, n := range w.Nodes {
		if n.Base != wantBases[i] {
			t.Errorf("node %d base = 0x%x, want 0x%x", i, n.Base, wantBases[i])
		}
		if n.AP != "AP0" {
			t.Errorf("node %d AP = %q", i, n.AP)
		}
	}
	if w.Nodes[0].Level != 0 || w.Nodes[1].Level != 1 {
		t.Errorf("levels = %d, %d", w.Nodes[0].Level, w.Nodes[1].Level)
	}
	if c := w.Nodes[1].Component; c == nil || c.Arch != coresight.ArchCortexM {
		t.Errorf("SCS component = %v", c)
	}
}

func TestScanConnectUnderReset(t *testing.T) {
	sim, core := dap.BuildCortexM4Scenario()
	opts := discovery.DefaultOptions()
	opts.ConnectUnderReset = true
	w, list, _ := newWalker(t, sim, opts)

	if err := w.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if list.Len() != 1 {
		t.Fatalf("targets = %d", list.Len())
	}
	if !core.Halted() || !core.DebugEnabled() {
		t.Errorf("core halted=%t debug=%t, want left halted", core.Halted(), core.DebugEnabled())
	}
}

func TestScanADIv6(t *testing.T) {
	sim, _ := dap.BuildADIv6Scenario()
	w, list, dp := newWalker(t, sim, nil)
	if dp.ADIVersion != 6 {
		t.Fatalf("ADIVersion = %d", dp.ADIVersion)
	}

	if err := w.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if list.Len() != 1 {
		t.Fatalf("targets = %d, want 1", list.Len())
	}
	tgt := list.Get(0).(*cortexm.Target)
	if tgt.Driver() != "ARM Cortex-M33" {
		t.Errorf("Driver = %q", tgt.Driver())
	}
	ap := tgt.AP()
	if ap.Addr != 0x1000 || ap.Refs() != 1 {
		t.Errorf("AP %s refs %d", ap, ap.Refs())
	}
	if ap.Designer != idcode.DesignerARM || ap.PartNo != 0x4c9 {
		t.Errorf("AP identity = 0x%03x/0x%03x", ap.Designer, ap.PartNo)
	}

	want := []struct {
		base  uint64
		ap    string
		level int
		arch  coresight.Arch
	}{
		{0x0, "", 0, coresight.ArchROMTable},
		{0x1000, "", 1, coresight.ArchAccessPort},
		{0xe00fe000, "AP@0x0000000000001000", 2, coresight.ArchNoSupport},
		{0xe000e000, "AP@0x0000000000001000", 3, coresight.ArchCortexM},
	}
	if len(w.Nodes) != len(want) {
		t.Fatalf("nodes = %+v", w.Nodes)
	}
	for i, n := range w.Nodes {
		if n.Base != want[i].base || n.AP != want[i].ap || n.Level != want[i].level {
			t.Errorf("node %d = %s 0x%x level %d, want %s 0x%x level %d",
				i, n.AP, n.Base, n.Level, want[i].ap, want[i].base, want[i].level)
		}
		if n.Component != nil && n.Component.Arch != want[i].arch {
			t.Errorf("node %d arch = %s, want %s", i, n.Component.Arch, want[i].arch)
		}
	}
}

func TestScanAPSelection(t *testing.T) {
	tests := []struct {
		name   string
		sels   []uint8
		limit  int
		wantAP []string
	}{
		{"first AP", []uint8{0}, 0, []string{"AP0"}},
		{"gap below limit", []uint8{0, 5}, 0, []string{"AP0", "AP5"}},
		{"beyond default limit", []uint8{9}, 0, nil},
		{"beyond raised limit", []uint8{9}, 16, []string{"AP9"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := dap.NewSim(dap.ScenarioDPIDRv1)
			for _, sel := range tt.sels {
				mem := dap.NewSimMemory()
				sim.AddMemAP(sel, dap.ScenarioAHBAPIDR, tableBase|3, mem)
				dap.LegacyROM(idcode.DesignerSTM, 0x413).Install(mem, tableBase)
			}
			opts := discovery.DefaultOptions()
			opts.VoidAPLimit = tt.limit
			w, _, _ := newWalker(t, sim, opts)

			if err := w.Scan(context.Background()); err != nil {
				t.Fatalf("Scan: %v", err)
			}
			var got []string
			for _, n := range w.Nodes {
				got = append(got, n.AP)
			}
			if len(got) != len(tt.wantAP) {
				t.Fatalf("walked %v, want %v", got, tt.wantAP)
			}
			for i := range got {
				if got[i] != tt.wantAP[i] {
					t.Errorf("walked %v, want %v", got, tt.wantAP)
				}
			}
		})
	}
}

func TestScanSkipsAPWithoutBase(t *testing.T) {
	sim := dap.NewSim(dap.ScenarioDPIDRv1)
	sim.AddMemAP(0, dap.ScenarioAHBAPIDR, 0xffffffff, dap.NewSimMemory())
	mem := dap.NewSimMemory()
	sim.AddMemAP(1, dap.ScenarioAHBAPIDR, tableBase|3, mem)
	dap.LegacyROM(idcode.DesignerSTM, 0x413).Install(mem, tableBase)

	w, _, _ := newWalker(t, sim, nil)
	if err := w.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(w.Nodes) != 1 || w.Nodes[0].AP != "AP1" {
		t.Errorf("nodes = %+v, want the AP1 ROM table only", w.Nodes)
	}
}

func TestROMTableTermination(t *testing.T) {
	notPresent := func(n int, entry uint32) []uint32 {
		entries := make([]uint32, n)
		for i := range entries {
			entries[i] = entry
		}
		return entries
	}
	wideROM := dap.CoreSightROM
	wideROM.DevID = 1 // 64-bit entries

	tests := []struct {
		name      string
		table     dap.SimComponent
		entries   []uint32
		wantChild []uint64
	}{
		{"legacy final first", dap.LegacyROM(idcode.DesignerSTM, 0x413), []uint32{0}, nil},
		{"legacy all not present", dap.LegacyROM(idcode.DesignerSTM, 0x413), notPresent(960, 0x00001002), nil},
		{"legacy one entry", dap.LegacyROM(idcode.DesignerSTM, 0x413), []uint32{0x00010003, 0}, []uint64{tableBase + 0x10000}},
		{"legacy negative offset", dap.LegacyROM(idcode.DesignerSTM, 0x413), []uint32{0xffff0003, 0}, []uint64{tableBase - 0x10000}},
		{"coresight final first", dap.CoreSightROM, []uint32{0}, nil},
		{"coresight all not present", dap.CoreSightROM, notPresent(512, 0x00001002), nil},
		{"coresight invalid skipped", dap.CoreSightROM, []uint32{0x00001001, 0x00020003, 0}, []uint64{tableBase + 0x20000}},
		{"coresight one entry", dap.CoreSightROM, []uint32{0x00010003, 0}, []uint64{tableBase + 0x10000}},
		{"coresight 64-bit entries", wideROM, []uint32{0x00001002, 0, 0x00030003, 0, 0, 0}, []uint64{tableBase + 0x30000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim, mem := bareSim()
			tt.table.Install(mem, tableBase)
			dap.PokeTable(mem, tableBase, tt.entries...)
			bases := probedBases(mem)

			w, _, _ := newWalker(t, sim, nil)
			if err := w.Scan(context.Background()); err != nil {
				t.Fatalf("Scan: %v", err)
			}

			got := (*bases)[1:]
			if (*bases)[0] != tableBase {
				t.Fatalf("first probe at 0x%x", (*bases)[0])
			}
			if len(got) != len(tt.wantChild) {
				t.Fatalf("children probed at %x, want %x", got, tt.wantChild)
			}
			for i := range got {
				if got[i] != tt.wantChild[i] {
					t.Errorf("child %d at 0x%x, want 0x%x", i, got[i], tt.wantChild[i])
				}
			}
		})
	}
}

func TestMaxDepth(t *testing.T) {
	sim, mem := bareSim()
	dap.LegacyROM(idcode.DesignerSTM, 0x413).Install(mem, tableBase)
	// The only entry points back at the table itself.
	dap.PokeTable(mem, tableBase, 0x00000001, 0)
	bases := probedBases(mem)

	opts := discovery.DefaultOptions()
	opts.MaxDepth = 3
	w, _, _ := newWalker(t, sim, opts)
	if err := w.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(*bases) != 4 {
		t.Errorf("table probed %d times, want 4", len(*bases))
	}
	if len(w.Nodes) != 4 || w.Nodes[3].Level != 3 {
		t.Errorf("nodes = %+v", w.Nodes)
	}
}

func TestPowerDomains(t *testing.T) {
	const (
		devIDHasPowerReq = 1 << 5
		dbgpcr3          = tableBase + 0xa0c
		dbgpsr3          = tableBase + 0xa8c
		child            = tableBase + 0x10000
	)

	tests := []struct {
		name      string
		powers    bool
		wantChild bool
	}{
		{"domain powers up", true, true},
		{"domain stays off", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim, mem := bareSim()
			rom := dap.CoreSightROM
			rom.DevID = devIDHasPowerReq
			rom.Install(mem, tableBase)
			mem.Poke32(tableBase+0xc00, 1) // PRIDR0 version 1
			mem.Poke32(dbgpcr3, 1)         // DBGPCR3.PRESENT
			// Present, power domain 3 valid
			dap.PokeTable(mem, tableBase, 0x00010000|3<<4|1<<2|3, 0)

			bases := probedBases(mem)
			if tt.powers {
				mem.OnWrite = func(addr uint64, value, _ uint32) (bool, error) {
					if addr == dbgpcr3 && value&2 != 0 {
						mem.Poke32(dbgpsr3, 1)
					}
					return false, nil
				}
			}

			w, _, dp := newWalker(t, sim, nil)
			ap := adi.NewAP(dp, 0)
			if err := ap.Configure(); err != nil {
				t.Fatalf("Configure: %v", err)
			}
			if err := w.ProbeComponent(context.Background(), ap, ap.Base); err != nil {
				t.Fatalf("ProbeComponent: %v", err)
			}

			if ap.Flags&adi.APFlagHasPowerCtrl == 0 {
				t.Error("power control not recorded")
			}
			if mem.Peek32(dbgpcr3)&2 == 0 {
				t.Error("DBGPCR3.PWRREQ not written")
			}
			probed := false
			for _, b := range *bases {
				probed = probed || b == child
			}
			if probed != tt.wantChild {
				t.Errorf("child probed = %t, want %t", probed, tt.wantChild)
			}
		})
	}
}

func TestDebugResetRequest(t *testing.T) {
	const (
		devIDHasPowerReq = 1 << 5
		dbgrstrr         = tableBase + 0xc10
		dbgrstar         = tableBase + 0xc14
	)
	sim, mem := bareSim()
	rom := dap.CoreSightROM
	rom.DevID = devIDHasPowerReq
	rom.Install(mem, tableBase)
	mem.Poke32(tableBase+0xc00, 1<<4|1<<5) // no power control, debug and system reset
	dap.PokeTable(mem, tableBase, 0)

	var requests []uint32
	mem.OnWrite = func(addr uint64, value, _ uint32) (bool, error) {
		if addr == dbgrstrr {
			requests = append(requests, value)
			if value&1 != 0 {
				mem.Poke32(dbgrstar, 1)
			}
		}
		return false, nil
	}

	w, _, dp := newWalker(t, sim, nil)
	ap := adi.NewAP(dp, 0)
	if err := ap.Configure(); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := w.ProbeComponent(context.Background(), ap, ap.Base); err != nil {
		t.Fatalf("ProbeComponent: %v", err)
	}

	if len(requests) != 2 || requests[0] != 1 || requests[1] != 0 {
		t.Errorf("DBGRSTRR writes = %v, want [1 0]", requests)
	}
	if ap.Flags&adi.APFlagHasSysResetReq == 0 {
		t.Error("system reset request not recorded")
	}
	if ap.Flags&adi.APFlagHasPowerCtrl != 0 {
		t.Error("power control recorded with PRIDR0 version 0")
	}
}

func TestScanFatalFault(t *testing.T) {
	sim, core := dap.BuildCortexM4Scenario()
	mem := sim.APs[0].Mem
	mem.OnRead = func(addr uint64) (uint32, bool, error) {
		if addr == 0xe00ff004 {
			return 0, true, errors.New("bus error")
		}
		return 0, false, nil
	}

	w, list, _ := newWalker(t, sim, nil)
	err := w.Scan(context.Background())
	if !errors.Is(err, adi.ErrFault) {
		t.Fatalf("Scan err = %v, want ErrFault", err)
	}
	if list.Len() != 0 {
		t.Errorf("targets = %d after a fatal fault", list.Len())
	}
	if core.DebugEnabled() {
		t.Error("core resumed after a fatal fault")
	}
}

func TestScanCancelled(t *testing.T) {
	sim, _ := dap.BuildCortexM4Scenario()
	w, list, _ := newWalker(t, sim, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Scan(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Scan err = %v, want context.Canceled", err)
	}
	if list.Len() != 0 {
		t.Errorf("targets = %d", list.Len())
	}
}

func TestSAMx5xProtection(t *testing.T) {
	tests := []struct {
		name      string
		status    uint32
		wantNodes int
	}{
		{"protected", 1 << 16, 1},
		{"open", 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim, mem := bareSim()
			dap.LegacyROM(idcode.DesignerAtmel, 0xcd0).Install(mem, tableBase)
			dap.PokeTable(mem, tableBase, 0x00010003, 0)
			dap.M3DWT.Install(mem, tableBase+0x10000)
			mem.Poke32(0x41002100, tt.status)
			core := dap.NewSimCortexM(dap.CPUIDCortexM4)
			core.Map(mem)
			core.Attach(sim)

			w, list, _ := newWalker(t, sim, nil)
			if err := w.Scan(context.Background()); err != nil {
				t.Fatalf("Scan: %v", err)
			}
			if len(w.Nodes) != tt.wantNodes {
				t.Errorf("nodes = %d, want %d", len(w.Nodes), tt.wantNodes)
			}
			wantTargets := 0
			if tt.status != 0 {
				wantTargets = 1
			}
			if list.Len() != wantTargets {
				t.Errorf("targets = %d, want %d", list.Len(), wantTargets)
			}
		})
	}
}

func TestUnclaimedAPReleased(t *testing.T) {
	sim, _ := dap.BuildCortexM4Scenario()
	w, list, _ := newWalker(t, sim, nil)

	var seen *adi.AP
	var bases []uint64
	w.Probes[coresight.ArchCortexM] = func(ap *adi.AP, base uint64) bool {
		seen = ap
		bases = append(bases, base)
		return false
	}

	if err := w.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(bases) != 1 || bases[0] != 0xe000e000 {
		t.Fatalf("probe called at %x", bases)
	}
	if !seen.Released() {
		t.Errorf("AP refs = %d, want released", seen.Refs())
	}
	if list.Len() != 0 {
		t.Errorf("targets = %d", list.Len())
	}
}

func TestNonARMComponentIgnored(t *testing.T) {
	sim, mem := bareSim()
	dap.LegacyROM(idcode.DesignerSTM, 0x413).Install(mem, tableBase)
	dap.PokeTable(mem, tableBase, 0x00010003, 0)
	// An ST debug block with an ARM SCS part number.
	dap.SimComponent{Class: 0xe, PIDR: dap.PIDRFor(idcode.DesignerSTM, 0x00c)}.Install(mem, tableBase+0x10000)

	w, list, _ := newWalker(t, sim, nil)
	if err := w.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if list.Len() != 0 {
		t.Errorf("targets = %d", list.Len())
	}
	if len(w.Nodes) != 2 || w.Nodes[1].Component != nil || w.Nodes[1].Note == "" {
		t.Errorf("nodes = %+v", w.Nodes)
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    discovery.Options
		wantErr bool
	}{
		{"zero fills defaults", discovery.Options{}, false},
		{"negative depth", discovery.Options{MaxDepth: -1}, true},
		{"too many APs", discovery.Options{ScanAPs: 257}, true},
		{"negative void limit", discovery.Options{VoidAPLimit: -2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			err := opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %t", err, tt.wantErr)
			}
			if !tt.wantErr && (opts.MaxDepth != discovery.DefaultMaxDepth ||
				opts.ScanAPs != discovery.DefaultScanAPs ||
				opts.VoidAPLimit != discovery.DefaultVoidAPLimit) {
				t.Errorf("defaults not applied: %+v", opts)
			}
		})
	}
}
