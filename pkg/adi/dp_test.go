package adi_test

import (
	"errors"
	"testing"

	"github.com/OpenTraceLab/OpenTraceADI/pkg/adi"
	"github.com/OpenTraceLab/OpenTraceADI/pkg/dap"
	"github.com/OpenTraceLab/OpenTraceADI/pkg/idcode"
)

func newDP(t *testing.T, sim *dap.Sim) *adi.DP {
	t.Helper()
	dp, err := adi.NewDP(sim)
	if err != nil {
		t.Fatalf("NewDP: %v", err)
	}
	return dp
}

func TestNewDPv1(t *testing.T) {
	sim := dap.NewSim(dap.ScenarioDPIDRv1)
	dp := newDP(t, sim)

	if dp.Version != 1 || dp.ADIVersion != 5 || dp.AddrWidth != 32 {
		t.Errorf("version %d ADIv%d width %d", dp.Version, dp.ADIVersion, dp.AddrWidth)
	}
	if dp.Designer != idcode.DesignerARM || dp.PartNo != 0xba {
		t.Errorf("designer 0x%03x part 0x%02x", dp.Designer, dp.PartNo)
	}
	if dp.HasTargetID {
		t.Error("DPv1 reported TARGETID")
	}

	ctrlstat, err := dp.ReadDP(adi.CTRLSTAT)
	if err != nil {
		t.Fatal(err)
	}
	const req = adi.CtrlStatCDbgPwrUpReq | adi.CtrlStatCSysPwrUpReq
	if ctrlstat&req != req {
		t.Errorf("power-up not requested: CTRL/STAT 0x%08x", ctrlstat)
	}
}

func TestNewDPTargetID(t *testing.T) {
	sim := dap.NewSim(0x2ba02477)
	sim.TargetID = 0x04c1202f // TI designer, part 0x4c12

	dp := newDP(t, sim)
	if !dp.HasTargetID || dp.TargetDesigner != idcode.DesignerTexas || dp.TargetPartNo != 0x4c12 {
		t.Errorf("target id: %v 0x%03x 0x%04x", dp.HasTargetID, dp.TargetDesigner, dp.TargetPartNo)
	}
	if sel, _ := sim.Select(); sel&0xf != 0 {
		t.Errorf("DPBANKSEL left at %d", sel&0xf)
	}
}

func TestNewDPv3(t *testing.T) {
	sim, _ := dap.BuildADIv6Scenario()
	dp := newDP(t, sim)

	if dp.ADIVersion != 6 || dp.AddrWidth != 32 || dp.Base != 0 {
		t.Errorf("ADIv%d width %d base 0x%x", dp.ADIVersion, dp.AddrWidth, dp.Base)
	}
}

func TestNewDPv3BasePointer(t *testing.T) {
	tests := []struct {
		name    string
		asize   uint32
		baseptr uint64
		wantErr error
	}{
		{"not valid", 32, 0x80000000, adi.ErrBaseNotPresent},
		{"beyond width", 32, 0x1_0000_0001, adi.ErrAddressWidth},
		{"wide", 40, 0x1_0000_0001, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := dap.NewSim(dap.ScenarioDPIDRv3)
			sim.DPIDR1 = tt.asize
			sim.BasePtr = tt.baseptr

			dp, err := adi.NewDP(sim)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("NewDP() = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if dp.Base != 0x1_0000_0000 {
				t.Errorf("Base = 0x%x", dp.Base)
			}
		})
	}
}

func TestNewDPPowerUpTimeout(t *testing.T) {
	sim := dap.NewSim(dap.ScenarioDPIDRv1)
	sim.NoPowerAck = true

	_, err := adi.NewDP(sim)
	if !errors.Is(err, adi.ErrTimeout) {
		t.Errorf("NewDP() = %v, want ErrTimeout", err)
	}
}

func TestNewDPAbortOnStalledIDRead(t *testing.T) {
	sim := dap.NewSim(dap.ScenarioDPIDRv1)
	stalled := false
	sim.OnAccess = func(read bool, addr uint16, value uint32) error {
		if read && addr == adi.DPIDR && !stalled {
			stalled = true
			return adi.ErrTimeout
		}
		return nil
	}

	dp := newDP(t, sim)
	if dp.Fault != nil {
		t.Errorf("timeout recorded as fault: %v", dp.Fault)
	}
	if len(sim.Aborts) == 0 || sim.Aborts[0] != adi.AbortDAPAbort {
		t.Errorf("Aborts = %x, want DAPABORT", sim.Aborts)
	}
}

func TestDPFaultBlocksAPAccess(t *testing.T) {
	sim := dap.NewSim(dap.ScenarioDPIDRv1)
	sim.AddMemAP(0, dap.ScenarioAHBAPIDR, 0xe00ff003, dap.NewSimMemory())
	dp := newDP(t, sim)

	fail := true
	sim.OnAccess = func(read bool, addr uint16, value uint32) error {
		if fail && addr&adi.APnDP != 0 {
			return adi.ErrNoResponse
		}
		return nil
	}

	ap := adi.NewAP(dp, 0)
	if _, err := ap.ReadReg(adi.APIDR); !errors.Is(err, adi.ErrNoResponse) {
		t.Fatalf("ReadReg() = %v, want ErrNoResponse", err)
	}
	if dp.Fault == nil {
		t.Fatal("Fault not recorded")
	}

	fail = false
	if _, err := ap.ReadReg(adi.APIDR); !errors.Is(err, adi.ErrFault) {
		t.Errorf("ReadReg() while faulted = %v, want ErrFault", err)
	}

	if !dp.Faulted() {
		t.Error("Faulted() = false with a recorded fault")
	}
	if dp.Fault != nil {
		t.Error("Faulted() did not clear the fault")
	}
	idr, err := ap.ReadReg(adi.APIDR)
	if err != nil || idr != dap.ScenarioAHBAPIDR {
		t.Errorf("ReadReg() after clear = 0x%08x, %v", idr, err)
	}
}

func TestDPErrorClearsSticky(t *testing.T) {
	sim := dap.NewSim(dap.ScenarioDPIDRv1)
	dp := newDP(t, sim)

	sim.SetSticky(adi.CtrlStatStickyErr | adi.CtrlStatWDataErr)
	sticky, err := dp.Error()
	if err != nil {
		t.Fatal(err)
	}
	if sticky != adi.CtrlStatStickyErr|adi.CtrlStatWDataErr {
		t.Errorf("sticky = 0x%x", sticky)
	}
	want := uint32(adi.AbortSTKERRCLR | adi.AbortWDERRCLR)
	if n := len(sim.Aborts); n == 0 || sim.Aborts[n-1] != want {
		t.Errorf("Aborts = %x, want last 0x%x", sim.Aborts, want)
	}
	if sticky, _ := dp.Error(); sticky != 0 {
		t.Errorf("sticky after clear = 0x%x", sticky)
	}
}

func TestResourceSelectSequence(t *testing.T) {
	sim, _ := dap.BuildADIv6Scenario()
	dp := newDP(t, sim)

	ap := adi.NewResourceAP(dp, 0x1000)
	for i := 0; i < 2; i++ {
		start := len(sim.Log)
		idr, err := ap.ReadReg(adi.APIDR)
		if err != nil {
			t.Fatal(err)
		}
		if idr != dap.ScenarioAHB5APIDR {
			t.Errorf("IDR = 0x%08x", idr)
		}

		got := sim.Log[start:]
		want := []dap.Access{
			{Addr: adi.SELECT, Value: 5},
			{Addr: adi.CTRLSTAT, Value: 0},
			{Addr: adi.SELECT, Value: 0x1df0},
			{Read: true, Addr: adi.APnDP | 0xc, Value: dap.ScenarioAHB5APIDR},
		}
		if len(got) != len(want) {
			t.Fatalf("access %d: log = %+v", i, got)
		}
		for j := range want {
			if got[j] != want[j] {
				t.Errorf("access %d step %d = %+v, want %+v", i, j, got[j], want[j])
			}
		}
	}
}

func TestResourceRead32(t *testing.T) {
	sim, _ := dap.BuildADIv6Scenario()
	dp := newDP(t, sim)

	entry, err := adi.Resource{DP: dp}.Read32(0)
	if err != nil {
		t.Fatal(err)
	}
	if entry != 0x00001003 {
		t.Errorf("root entry 0 = 0x%08x", entry)
	}
}
