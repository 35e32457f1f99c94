package deviceinfo

import (
	"testing"

	"github.com/OpenTraceLab/OpenTraceADI/pkg/idcode"
)

func TestLookup(t *testing.T) {
	info, ok := Lookup(idcode.DesignerSTM, 0x413)
	if !ok {
		t.Fatalf("Lookup(STM, 0x413) not found")
	}
	if info.Family != "STM32F4" {
		t.Errorf("Family = %q, want STM32F4", info.Family)
	}
	if info.Manufacturer.Abbreviation != "STM" {
		t.Errorf("Manufacturer = %+v", info.Manufacturer)
	}
	if info.PartNumber != 0x413 {
		t.Errorf("PartNumber = %#x", info.PartNumber)
	}
}

func TestLookupUnknown(t *testing.T) {
	info, ok := Lookup(idcode.DesignerARM, 0xfff)
	if ok {
		t.Fatalf("Lookup(ARM, 0xfff) unexpectedly found %+v", info)
	}
	if info.Name != "Unknown device" {
		t.Errorf("Name = %q", info.Name)
	}
	if info.Manufacturer.Code != idcode.DesignerARM {
		t.Errorf("Manufacturer.Code = %#x", info.Manufacturer.Code)
	}
}
