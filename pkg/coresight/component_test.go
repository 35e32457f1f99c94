package coresight

import "testing"

func TestLookupTotality(t *testing.T) {
	for i := range components {
		c := &components[i]
		t.Run(c.Type, func(t *testing.T) {
			// Put noise above the part number to show only bits 11:0 matter.
			pidr := uint64(0x4_000bb000) | uint64(c.PartNumber)
			got := Lookup(0xe00ff000, i, c.Class, pidr, c.DevType, c.ArchID)
			if got != c {
				t.Fatalf("Lookup(%03x/%02x/%04x) = %v, want entry %d", c.PartNumber, c.DevType, c.ArchID, got, i)
			}
		})
	}
}

func TestLookupAbsent(t *testing.T) {
	tests := []struct {
		name    string
		pidr    uint64
		devType uint8
		archID  uint16
	}{
		{"unknown part", 0x4000bbfff, 0x00, 0x0000},
		{"known part wrong devtype", 0x4000bb00c, 0x15, 0x0000},
		{"known part wrong archid", 0x4000bbd21, 0x00, 0x1234},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Lookup(0, 0, ClassDebug, tt.pidr, tt.devType, tt.archID); got != nil {
				t.Fatalf("Lookup returned %v, want nil", got)
			}
		})
	}
}

func TestLookupROMTableIgnoresPartNumber(t *testing.T) {
	// A class 0x9 ROM table carries a vendor part number in PIDR.
	got := Lookup(0, 0, ClassDebug, 0x000a0413, 0, ArchIDROMTableV0)
	if got == nil || got.Arch != ArchROMTable {
		t.Fatalf("Lookup = %v, want CoreSight ROM table", got)
	}
}

func TestLookupClassAdjustment(t *testing.T) {
	// Cortex-M33 SCS reports class 0x9; the descriptor expects 0xe.
	got := Lookup(0xe000e000, 0, ClassDebug, 0x4000bbd21, 0, ArchIDCortexMSCS)
	if got == nil || got.Arch != ArchCortexM {
		t.Fatalf("Lookup = %v, want Cortex-M33 SCS", got)
	}
	if adjustClass(0xd21, ArchIDCortexMSCS, ClassDebug) != ClassGenericIP {
		t.Errorf("adjustClass did not promote M33 SCS to generic IP")
	}
	if adjustClass(0xd22, ArchIDCortexMSCS, ClassDebug) != ClassDebug {
		t.Errorf("adjustClass changed Cortex-M55 SCS class")
	}
}

func TestCIDRAndPIDRAssembly(t *testing.T) {
	cidr := CIDR([CIDRWords]uint32{0x0d, 0xe0, 0x05, 0xb1})
	if cidr != 0xb105e00d {
		t.Fatalf("CIDR = %#x, want 0xb105e00d", cidr)
	}
	if !ValidPreamble(cidr) {
		t.Errorf("ValidPreamble(%#x) = false", cidr)
	}
	if ClassOf(cidr) != ClassGenericIP {
		t.Errorf("ClassOf(%#x) = %v", cidr, ClassOf(cidr))
	}
	if ValidPreamble(0xb105e00c) {
		t.Errorf("ValidPreamble accepted a corrupt preamble")
	}

	// Upper bytes of each word are ignored.
	pidr := PIDR([PIDRWords]uint32{0xff0c, 0xb0, 0x0b, 0x00, 0x04, 0, 0, 0})
	if pidr != 0x4000bb00c {
		t.Fatalf("PIDR = %#x, want 0x4000bb00c", pidr)
	}
	if PartNumber(pidr) != 0x00c {
		t.Errorf("PartNumber = %#x", PartNumber(pidr))
	}
	if PIDRSize(pidr) != 0 {
		t.Errorf("PIDRSize = %d", PIDRSize(pidr))
	}
	if PIDRSize(0x14_00000000) != 1 {
		t.Errorf("PIDRSize of a 2-block component = %d, want 1", PIDRSize(0x14_00000000))
	}
}

func TestClassString(t *testing.T) {
	if ClassROMTable.String() != "ROM Table" {
		t.Errorf("ClassROMTable.String() = %q", ClassROMTable.String())
	}
	if Class(0x3).String() != "Reserved class 0x3" {
		t.Errorf("Class(3).String() = %q", Class(0x3).String())
	}
}
