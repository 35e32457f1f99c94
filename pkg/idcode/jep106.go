package idcode

import "fmt"

// Normalized designer codes (continuation<<8 | identity).
const (
	DesignerFreescale   uint16 = 0x00e
	DesignerNXP         uint16 = 0x015
	DesignerTexas       uint16 = 0x017
	DesignerAtmel       uint16 = 0x01f
	DesignerSTM         uint16 = 0x020
	DesignerCypress     uint16 = 0x034
	DesignerInfineon    uint16 = 0x041
	DesignerNordic      uint16 = 0x244
	DesignerXilinx      uint16 = 0x309
	DesignerARM         uint16 = 0x43b
	DesignerRenesas     uint16 = 0x423
	DesignerSpecular    uint16 = 0x501
	DesignerEnergyMicro uint16 = 0x673
	DesignerGigaDevice  uint16 = 0x751
	DesignerRaspberry   uint16 = 0x913
	DesignerARMChina    uint16 = 0xa75

	// Codes seen on silicon that does not follow JEP106.
	ErrataSTM32WX uint16 = 0x420
	ErrataCS      uint16 = 0x555
	ErrataCSASCII uint16 = ASCIIFlag | 0x055
	// MindMotion MM32F5 reports this on its DP while the part carries ARM China.
	ErrataARMChina uint16 = 0xc7f
)

// manufacturers is the JEP106 manufacturer database keyed by normalized code
var manufacturers = map[uint16]Manufacturer{
	0x001:               {Code: 0x001, Name: "AMD", Abbreviation: "AMD"},
	0x009:               {Code: 0x009, Name: "Intel", Abbreviation: "Intel"},
	DesignerFreescale:   {Code: DesignerFreescale, Name: "Freescale (Motorola)", Abbreviation: "Freescale"},
	DesignerNXP:         {Code: DesignerNXP, Name: "NXP (Philips)", Abbreviation: "NXP"},
	DesignerTexas:       {Code: DesignerTexas, Name: "Texas Instruments", Abbreviation: "TI"},
	DesignerAtmel:       {Code: DesignerAtmel, Name: "Atmel", Abbreviation: "Atmel"},
	DesignerSTM:         {Code: DesignerSTM, Name: "STMicroelectronics", Abbreviation: "STM"},
	DesignerCypress:     {Code: DesignerCypress, Name: "Cypress Semiconductor", Abbreviation: "Cypress"},
	DesignerInfineon:    {Code: DesignerInfineon, Name: "Infineon", Abbreviation: "Infineon"},
	DesignerNordic:      {Code: DesignerNordic, Name: "Nordic Semiconductor", Abbreviation: "Nordic"},
	DesignerXilinx:      {Code: DesignerXilinx, Name: "Xilinx", Abbreviation: "Xilinx"},
	DesignerARM:         {Code: DesignerARM, Name: "ARM Ltd", Abbreviation: "ARM"},
	DesignerRenesas:     {Code: DesignerRenesas, Name: "Renesas", Abbreviation: "Renesas"},
	DesignerSpecular:    {Code: DesignerSpecular, Name: "Specular Networks", Abbreviation: "Specular"},
	DesignerEnergyMicro: {Code: DesignerEnergyMicro, Name: "Energy Micro", Abbreviation: "EFM32"},
	DesignerGigaDevice:  {Code: DesignerGigaDevice, Name: "GigaDevice", Abbreviation: "GD32"},
	DesignerRaspberry:   {Code: DesignerRaspberry, Name: "Raspberry Pi Trading", Abbreviation: "RPi"},
	DesignerARMChina:    {Code: DesignerARMChina, Name: "Arm China", Abbreviation: "ARM China"},
}

// LookupManufacturer returns manufacturer info for a normalized designer code
func LookupManufacturer(code uint16) (Manufacturer, bool) {
	m, ok := manufacturers[code]
	if !ok {
		name := fmt.Sprintf("Unknown (0x%03X)", code)
		if code&ASCIIFlag != 0 {
			name = fmt.Sprintf("Legacy (0x%02X)", code&0x7f)
		}
		return Manufacturer{
			Code:         code,
			Name:         name,
			Abbreviation: "Unknown",
		}, false
	}
	return m, true
}

// IsARM reports whether code belongs to ARM or ARM China, the designers whose
// CoreSight components are identified by part number.
func IsARM(code uint16) bool {
	return code == DesignerARM || code == DesignerARMChina
}
