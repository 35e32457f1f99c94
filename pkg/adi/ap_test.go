package adi_test

import (
	"errors"
	"testing"

	"github.com/OpenTraceLab/OpenTraceADI/pkg/adi"
	"github.com/OpenTraceLab/OpenTraceADI/pkg/dap"
)

// idr builds an ARM MEM-AP IDR for bus type typ.
func idr(typ uint32) uint32 {
	return 0x04770000 | typ
}

func TestConfigureCSWFixup(t *testing.T) {
	tests := []struct {
		name    string
		typ     uint32
		csw     uint32
		wantCSW uint32
	}{
		{"AHB3 non-secure", adi.APTypeAHB3, adi.CSWDeviceEn, 0xe3000040},
		{"AHB3 secure", adi.APTypeAHB3, adi.CSWDeviceEn | adi.CSWSPIDEN, 0xa3800040},
		{"AHB5 stale prot bits", adi.APTypeAHB5, adi.CSWDeviceEn | 0x7f<<24 | 0x37, 0xe3000040},
		{"APB2/3", adi.APTypeAPB2_3, adi.CSWDeviceEn | 0x12, 0x80000040},
		{"APB4/5", adi.APTypeAPB4_5, adi.CSWDeviceEn, 0xb0000040},
		{"AXI3/4", adi.APTypeAXI3_4, adi.CSWDeviceEn | adi.CSWMTE, 0xb0000040},
		{"AXI5 secure", adi.APTypeAXI5, adi.CSWDeviceEn | adi.CSWSPIDEN, 0x90800040},
		{"reserved bus type", 0x3, adi.CSWDeviceEn, 0x80000040},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := dap.NewSim(dap.ScenarioDPIDRv1)
			sap := sim.AddMemAP(0, idr(tt.typ), 0xe00ff003, dap.NewSimMemory())
			sap.CSW = tt.csw
			dp := newDP(t, sim)

			ap := adi.NewAP(dp, 0)
			if err := ap.Configure(); err != nil {
				t.Fatalf("Configure: %v", err)
			}
			if ap.CSW != tt.wantCSW {
				t.Errorf("CSW = 0x%08x, want 0x%08x", ap.CSW, tt.wantCSW)
			}
			if ap.Base != 0xe00ff000 {
				t.Errorf("Base = 0x%x", ap.Base)
			}
		})
	}
}

func TestConfigureIdempotent(t *testing.T) {
	sim := dap.NewSim(dap.ScenarioDPIDRv1)
	sim.AddMemAP(0, dap.ScenarioAHBAPIDR, 0xe00ff003, dap.NewSimMemory())
	dp := newDP(t, sim)

	ap := adi.NewAP(dp, 0)
	if err := ap.Configure(); err != nil {
		t.Fatal(err)
	}
	csw, base := ap.CSW, ap.Base
	if err := ap.Configure(); err != nil {
		t.Fatal(err)
	}
	if ap.CSW != csw || ap.Base != base {
		t.Errorf("second Configure: CSW 0x%08x base 0x%x, first CSW 0x%08x base 0x%x", ap.CSW, ap.Base, csw, base)
	}
}

func TestConfigureFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*dap.Sim)
		wantErr error
	}{
		{
			name:    "no AP",
			setup:   func(*dap.Sim) {},
			wantErr: adi.ErrNoAP,
		},
		{
			name: "base not present",
			setup: func(s *dap.Sim) {
				s.AddMemAP(0, dap.ScenarioAHBAPIDR, 0xffffffff, dap.NewSimMemory())
			},
			wantErr: adi.ErrBaseNotPresent,
		},
		{
			name: "format bit without present",
			setup: func(s *dap.Sim) {
				s.AddMemAP(0, dap.ScenarioAHBAPIDR, 0xe00ff002, dap.NewSimMemory())
			},
			wantErr: adi.ErrBaseNotPresent,
		},
		{
			name: "disabled",
			setup: func(s *dap.Sim) {
				s.AddMemAP(0, dap.ScenarioAHBAPIDR, 0xe00ff003, dap.NewSimMemory()).CSW = 0
			},
			wantErr: adi.ErrAPDisabled,
		},
		{
			name: "transfer in progress",
			setup: func(s *dap.Sim) {
				ap := s.AddMemAP(0, dap.ScenarioAHBAPIDR, 0xe00ff003, dap.NewSimMemory())
				ap.CSW = adi.CSWDeviceEn | adi.CSWTrInProg
			},
			wantErr: adi.ErrTransferInProgress,
		},
		{
			name: "LPAE legacy base",
			setup: func(s *dap.Sim) {
				ap := s.AddMemAP(0, dap.ScenarioAHBAPIDR, 0xe00ff000, dap.NewSimMemory())
				ap.CFG = adi.CFGLargeAddress
			},
			wantErr: adi.ErrInvalidBase,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := dap.NewSim(dap.ScenarioDPIDRv1)
			tt.setup(sim)
			dp := newDP(t, sim)

			err := adi.NewAP(dp, 0).Configure()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Configure() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigureNotPresentErrata(t *testing.T) {
	tests := []struct {
		name     string
		targetID uint32
		base     uint32
		wantBase uint64
		wantErr  bool
	}{
		{"TI MSPM0 AP0", 0x0000002f, 0xf0000002, 0xf0000000, false},
		{"TI other base", 0x0000002f, 0xe00ff002, 0, true},
		{"Nordic", 0x00000289, 0xe00ff002, 0xe00ff000, false},
		{"Nordic empty", 0x00000289, 0x00000002, 0, true},
		{"ARM", 0x00000477, 0xf0000002, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := dap.NewSim(0x2ba02477)
			sim.TargetID = tt.targetID
			sim.AddMemAP(0, dap.ScenarioAHBAPIDR, tt.base, dap.NewSimMemory())
			dp := newDP(t, sim)

			ap := adi.NewAP(dp, 0)
			err := ap.Configure()
			if tt.wantErr {
				if !errors.Is(err, adi.ErrBaseNotPresent) {
					t.Errorf("Configure() = %v, want ErrBaseNotPresent", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if ap.Base != tt.wantBase {
				t.Errorf("Base = 0x%x, want 0x%x", ap.Base, tt.wantBase)
			}
		})
	}
}

func TestConfigureLargeAddress(t *testing.T) {
	sim := dap.NewSim(dap.ScenarioDPIDRv1)
	sap := sim.AddMemAP(0, dap.ScenarioAHBAPIDR, 0x00001003, dap.NewSimMemory())
	sap.CFG = adi.CFGLargeAddress
	sap.BaseHigh = 0x1
	dp := newDP(t, sim)

	ap := adi.NewAP(dp, 0)
	if err := ap.Configure(); err != nil {
		t.Fatal(err)
	}
	if ap.Flags&adi.APFlag64Bit == 0 {
		t.Error("64-bit flag not set")
	}
	if ap.Base != 0x1_0000_1000 {
		t.Errorf("Base = 0x%x", ap.Base)
	}
}

func TestAPRefCount(t *testing.T) {
	sim := dap.NewSim(dap.ScenarioDPIDRv1)
	sim.AddMemAP(0, dap.ScenarioAHBAPIDR, 0xe00ff003, dap.NewSimMemory())
	dp := newDP(t, sim)

	ap := adi.NewAP(dp, 0)
	released := 0
	ap.OnRelease(func(*adi.AP) { released++ })

	ap.Ref()
	if ap.Refs() != 2 {
		t.Fatalf("Refs() = %d, want 2", ap.Refs())
	}
	if ap.Unref() {
		t.Error("Unref() with a reference left reported release")
	}
	if !ap.Unref() {
		t.Error("last Unref() did not report release")
	}
	if released != 1 || !ap.Released() {
		t.Errorf("released %d times, Released() = %v", released, ap.Released())
	}
	if ap.Unref() || released != 1 {
		t.Error("Unref() on a released AP ran the hooks again")
	}
	if ap.Ref(); ap.Refs() != 0 {
		t.Error("Ref() revived a released AP")
	}
	if _, err := ap.ReadReg(adi.APIDR); !errors.Is(err, adi.ErrReleased) {
		t.Errorf("ReadReg() after release = %v", err)
	}
}

func TestAPTypeName(t *testing.T) {
	tests := []struct {
		typ, class uint8
		want       string
	}{
		{adi.APTypeAHB3, adi.IDRClassMEM, "AHB3-AP"},
		{adi.APTypeAXI5, adi.IDRClassMEM, "AXI5-AP"},
		{adi.APTypeJTAG, 0, "JTAG-AP"},
		{0xf, adi.IDRClassMEM, "Unknown"},
	}
	for _, tt := range tests {
		if got := adi.APTypeName(tt.typ, tt.class); got != tt.want {
			t.Errorf("APTypeName(%d, %d) = %q, want %q", tt.typ, tt.class, got, tt.want)
		}
	}
}
