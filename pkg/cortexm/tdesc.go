package cortexm

import (
	"encoding/xml"
	"fmt"
)

const tdescHeader = `<?xml version="1.0"?>` + "\n" +
	`<!DOCTYPE target SYSTEM "gdb-target.dtd">` + "\n"

type tdescTarget struct {
	XMLName      xml.Name       `xml:"target"`
	Architecture string         `xml:"architecture"`
	Features     []tdescFeature `xml:"feature"`
}

type tdescFeature struct {
	Name string     `xml:"name,attr"`
	Regs []tdescReg `xml:"reg"`
}

type tdescReg struct {
	Name        string `xml:"name,attr"`
	BitSize     int    `xml:"bitsize,attr"`
	Type        string `xml:"type,attr,omitempty"`
	SaveRestore string `xml:"save-restore,attr,omitempty"`
}

func reg32(name, typ string) tdescReg {
	return tdescReg{Name: name, BitSize: 32, Type: typ}
}

func sysReg(name, typ string) tdescReg {
	return tdescReg{Name: name, BitSize: 32, Type: typ, SaveRestore: "no"}
}

func (t *Target) tdesc() tdescTarget {
	profile := tdescFeature{Name: "org.gnu.gdb.arm.m-profile"}
	for i := 0; i < 13; i++ {
		profile.Regs = append(profile.Regs, reg32(fmt.Sprintf("r%d", i), ""))
	}
	profile.Regs = append(profile.Regs,
		reg32("sp", "data_ptr"),
		reg32("lr", "code_ptr"),
		reg32("pc", "code_ptr"),
		reg32("xpsr", ""),
	)

	system := tdescFeature{Name: "org.gnu.gdb.arm.m-system", Regs: []tdescReg{
		sysReg("msp", "data_ptr"),
		sysReg("psp", "data_ptr"),
		sysReg("primask", ""),
		sysReg("basepri", ""),
		sysReg("faultmask", ""),
		sysReg("control", ""),
	}}

	desc := tdescTarget{Architecture: "arm", Features: []tdescFeature{profile, system}}
	if t.HasTZ {
		desc.Features = append(desc.Features, tdescFeature{Name: "org.gnu.gdb.arm.secext", Regs: []tdescReg{
			sysReg("msp_ns", "data_ptr"),
			sysReg("psp_ns", "data_ptr"),
			sysReg("msp_s", "data_ptr"),
			sysReg("psp_s", "data_ptr"),
		}})
	}
	if t.HasFP {
		vfp := tdescFeature{Name: "org.gnu.gdb.arm.vfp", Regs: []tdescReg{reg32("fpscr", "")}}
		for i := 0; i < 16; i++ {
			vfp.Regs = append(vfp.Regs, tdescReg{Name: fmt.Sprintf("d%d", i), BitSize: 64, Type: "ieee_double"})
		}
		desc.Features = append(desc.Features, vfp)
	}
	return desc
}

// Description implements target.Target. It lists the registers in the
// order RegsRead returns them; each 64-bit d register covers two words.
func (t *Target) Description() string {
	out, err := xml.MarshalIndent(t.tdesc(), "", "  ")
	if err != nil {
		// Only fixed string fields are marshalled.
		panic(err)
	}
	return tdescHeader + string(out)
}
