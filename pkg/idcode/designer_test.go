package idcode

import "testing"

func pidrFor(cont, code uint64, jep106 bool, part uint64) uint64 {
	pidr := cont<<32 | (code&0x7f)<<12 | part&0xfff
	if jep106 {
		pidr |= 1 << 19
	}
	return pidr
}

func TestDesignerFromPIDR(t *testing.T) {
	tests := []struct {
		name string
		pidr uint64
		want uint16
	}{
		{"cortex-m4 scs", 0x4000bb00c, DesignerARM},
		{"arm china", pidrFor(0xa, 0x75, true, 0x132), DesignerARMChina},
		{"stm32 rom table", pidrFor(0, 0x20, true, 0x413), DesignerSTM},
		{"nordic", pidrFor(2, 0x44, true, 0x006), DesignerNordic},
		{"raspberry", pidrFor(9, 0x13, true, 0x002), DesignerRaspberry},
		{"legacy ascii", pidrFor(0, 0x41, false, 0x000), ASCIIFlag | 0x41},
		{"errata stm32wx", pidrFor(4, 0x20, true, 0x497), DesignerSTM},
		{"errata cs", pidrFor(5, 0x55, true, 0x410), DesignerSTM},
		{"errata cs ascii", pidrFor(0, 0x55, false, 0x410), DesignerSTM},
		{"errata cs ascii ignores continuation", pidrFor(7, 0x55, false, 0x410), DesignerSTM},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DesignerFromPIDR(tt.pidr); got != tt.want {
				t.Errorf("DesignerFromPIDR(%#x) = %#03x, want %#03x", tt.pidr, got, tt.want)
			}
		})
	}
}

func TestDesignerFromPIDRPacking(t *testing.T) {
	// Deterministic sweep over every continuation/identity pair with
	// noise in the unrelated PIDR fields.
	noise := uint64(0x0123_4567_89ab_cdef)
	for cont := uint64(0); cont < 16; cont++ {
		for code := uint64(0); code < 0x80; code++ {
			noise = noise*6364136223846793005 + 1442695040888963407
			pidr := noise&^(uint64(0xf)<<32|0x7f<<12) | cont<<32 | code<<12 | 1<<19

			want := uint16(((pidr >> 32) & 0xf) << 8) | uint16((pidr>>12)&0x7f)
			switch want {
			case ErrataSTM32WX, ErrataCS:
				want = DesignerSTM
			}
			if got := DesignerFromPIDR(pidr); got != want {
				t.Fatalf("DesignerFromPIDR(%#x) = %#03x, want %#03x", pidr, got, want)
			}
		}
	}
}

func TestParseDPIDR(t *testing.T) {
	// Cortex-M4 SW-DP: version 1, designer ARM
	id := ParseDPIDR(0x2ba01477)
	if id.Version != 1 {
		t.Errorf("Version = %d, want 1", id.Version)
	}
	if id.Designer != DesignerARM {
		t.Errorf("Designer = %#03x, want %#03x", id.Designer, DesignerARM)
	}
	if id.PartNo != 0xba {
		t.Errorf("PartNo = %#x, want 0xba", id.PartNo)
	}
	if id.MinDP {
		t.Errorf("MinDP = true, want false")
	}
}

func TestParseTargetID(t *testing.T) {
	// RP2040 core 0
	id := ParseTargetID(0x01002927)
	if id.Designer != DesignerRaspberry {
		t.Errorf("Designer = %#03x, want %#03x", id.Designer, DesignerRaspberry)
	}
	if id.PartNo != 0x1002 {
		t.Errorf("PartNo = %#x, want 0x1002", id.PartNo)
	}
	if id.Revision != 0 {
		t.Errorf("Revision = %d, want 0", id.Revision)
	}
}

func TestLookupManufacturer(t *testing.T) {
	if m, ok := LookupManufacturer(DesignerSTM); !ok || m.Abbreviation != "STM" {
		t.Errorf("LookupManufacturer(STM) = %+v, %v", m, ok)
	}
	m, ok := LookupManufacturer(0x7ff)
	if ok {
		t.Fatalf("LookupManufacturer(0x7ff) found an entry")
	}
	if m.Name != "Unknown (0x7FF)" {
		t.Errorf("Name = %q", m.Name)
	}
	if m, _ := LookupManufacturer(ASCIIFlag | 0x41); m.Name != "Legacy (0x41)" {
		t.Errorf("legacy Name = %q", m.Name)
	}
}
