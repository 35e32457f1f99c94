package deviceinfo

import "github.com/OpenTraceLab/OpenTraceADI/pkg/idcode"

func init() {
	// RP2040 exposes a multi-drop DPv2; the part comes from TARGETID.
	register(key{Designer: idcode.DesignerRaspberry, PartNumber: 0x1002}, DeviceInfo{
		Name:    "RP2040",
		Family:  "RP2",
		ARMCore: "Cortex-M0+",
		Cores:   2,
	})
	register(key{Designer: idcode.DesignerRaspberry, PartNumber: 0x0004}, DeviceInfo{
		Name:        "RP2350",
		Family:      "RP2",
		Description: "ADIv6 DP with dual Cortex-M33",
		ARMCore:     "Cortex-M33",
		Cores:       2,
	})

	register(key{Designer: idcode.DesignerNordic, PartNumber: 0x0006}, DeviceInfo{
		Name:    "nRF52",
		Family:  "nRF52",
		ARMCore: "Cortex-M4",
	})
	register(key{Designer: idcode.DesignerNordic, PartNumber: 0x0007}, DeviceInfo{
		Name:        "nRF5340",
		Family:      "nRF53",
		Description: "Application and network cores behind separate APs",
		ARMCore:     "Cortex-M33",
		Cores:       2,
	})

	register(key{Designer: idcode.DesignerAtmel, PartNumber: 0x0cd0}, DeviceInfo{
		Name:    "SAMx5x",
		Family:  "SAM D5x/E5x",
		ARMCore: "Cortex-M4",
	})

	register(key{Designer: idcode.DesignerTexas, PartNumber: 0xbb88}, DeviceInfo{
		Name:    "MSPM0",
		Family:  "MSPM0",
		ARMCore: "Cortex-M0+",
	})
}
