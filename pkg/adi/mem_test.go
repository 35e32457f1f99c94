package adi_test

import (
	"bytes"
	"testing"

	"github.com/OpenTraceLab/OpenTraceADI/pkg/adi"
	"github.com/OpenTraceLab/OpenTraceADI/pkg/dap"
)

func newMemAP(t *testing.T) (*adi.AP, *dap.SimMemory, *dap.Sim) {
	t.Helper()
	sim := dap.NewSim(dap.ScenarioDPIDRv1)
	mem := dap.NewSimMemory()
	sim.AddMemAP(0, dap.ScenarioAHBAPIDR, 0xe00ff003, mem)
	dp := newDP(t, sim)

	ap := adi.NewAP(dp, 0)
	if err := ap.Configure(); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	return ap, mem, sim
}

func TestMemWriteRead(t *testing.T) {
	tests := []struct {
		name string
		addr uint64
		n    int
	}{
		{"aligned words", 0x20000000, 16},
		{"unaligned head and tail", 0x20000101, 7},
		{"single byte", 0x20000203, 1},
		{"halfword", 0x20000302, 2},
		{"crosses 1KiB boundary", 0x200003f0, 48},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ap, mem, _ := newMemAP(t)
			src := make([]byte, tt.n)
			for i := range src {
				src[i] = byte(0xa0 + i)
			}

			if err := ap.MemWrite(tt.addr, src); err != nil {
				t.Fatalf("MemWrite: %v", err)
			}
			if got := mem.PeekBytes(tt.addr, tt.n); !bytes.Equal(got, src) {
				t.Errorf("memory = % x, want % x", got, src)
			}

			dst := make([]byte, tt.n)
			if err := ap.MemRead(dst, tt.addr); err != nil {
				t.Fatalf("MemRead: %v", err)
			}
			if !bytes.Equal(dst, src) {
				t.Errorf("MemRead = % x, want % x", dst, src)
			}
		})
	}
}

func TestMemWritePreservesNeighbours(t *testing.T) {
	ap, mem, _ := newMemAP(t)
	mem.Poke32(0x20000000, 0x11223344)

	if err := ap.MemWrite(0x20000001, []byte{0xaa, 0xbb}); err != nil {
		t.Fatal(err)
	}
	if got := mem.Peek32(0x20000000); got != 0x11bbaa44 {
		t.Errorf("word = 0x%08x, want 0x11bbaa44", got)
	}
}

func TestMemTARRewrittenAtBoundary(t *testing.T) {
	ap, _, sim := newMemAP(t)

	start := len(sim.Log)
	if err := ap.MemWrite(0x200003f8, make([]byte, 16)); err != nil {
		t.Fatal(err)
	}

	var tars []uint32
	for _, a := range sim.Log[start:] {
		if !a.Read && a.Addr == adi.APnDP|adi.APTAR {
			tars = append(tars, a.Value)
		}
	}
	if len(tars) != 2 || tars[0] != 0x200003f8 || tars[1] != 0x20000400 {
		t.Errorf("TAR writes = %x, want [200003f8 20000400]", tars)
	}
}

func TestMemWord(t *testing.T) {
	ap, mem, _ := newMemAP(t)

	if err := ap.Write32(0xe000edf0, 0xa05f0003); err != nil {
		t.Fatal(err)
	}
	if got := mem.Peek32(0xe000edf0); got != 0xa05f0003 {
		t.Errorf("stored 0x%08x", got)
	}
	v, err := ap.Read32(0xe000edf0)
	if err != nil || v != 0xa05f0003 {
		t.Errorf("Read32() = 0x%08x, %v", v, err)
	}
	h, err := ap.Read16(0xe000edf2)
	if err != nil || h != 0xa05f {
		t.Errorf("Read16() = 0x%04x, %v", h, err)
	}
}

func TestMemLargeAddress(t *testing.T) {
	sim := dap.NewSim(dap.ScenarioDPIDRv1)
	mem := dap.NewSimMemory()
	sap := sim.AddMemAP(0, dap.ScenarioAHBAPIDR, 0x00001003, mem)
	sap.CFG = adi.CFGLargeAddress
	dp := newDP(t, sim)

	ap := adi.NewAP(dp, 0)
	if err := ap.Configure(); err != nil {
		t.Fatal(err)
	}
	if err := ap.Write32(0x2_8000_0000, 0xcafef00d); err != nil {
		t.Fatal(err)
	}
	if got := mem.Peek32(0x2_8000_0000); got != 0xcafef00d {
		t.Errorf("high memory = 0x%08x", got)
	}
}

func TestMemFaultWrapsErrFault(t *testing.T) {
	ap, mem, _ := newMemAP(t)
	mem.OnRead = func(addr uint64) (uint32, bool, error) {
		if addr == 0x40000000 {
			return 0, true, adi.ErrFault
		}
		return 0, false, nil
	}

	_, err := ap.Read32(0x40000000)
	if err == nil {
		t.Fatal("Read32() of a faulting address succeeded")
	}
	if !ap.DP.Faulted() {
		t.Error("fault not visible through Faulted()")
	}
}
