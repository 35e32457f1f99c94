package deviceinfo

import "github.com/OpenTraceLab/OpenTraceADI/pkg/idcode"

// STMicroelectronics parts. The ROM table part number equals the DBGMCU
// device id.
func init() {
	const stm = idcode.DesignerSTM

	register(key{Designer: stm, PartNumber: 0x410}, DeviceInfo{
		Name:    "STM32F10x (Medium-density)",
		Family:  "STM32F1",
		ARMCore: "Cortex-M3",
	})
	register(key{Designer: stm, PartNumber: 0x412}, DeviceInfo{
		Name:    "STM32F10x (Low-density)",
		Family:  "STM32F1",
		ARMCore: "Cortex-M3",
	})
	register(key{Designer: stm, PartNumber: 0x414}, DeviceInfo{
		Name:    "STM32F10x (High-density)",
		Family:  "STM32F1",
		ARMCore: "Cortex-M3",
	})
	register(key{Designer: stm, PartNumber: 0x413}, DeviceInfo{
		Name:        "STM32F40x/41x",
		Family:      "STM32F4",
		Description: "ARM Cortex-M4 MCU with FPU",
		ARMCore:     "Cortex-M4",
	})
	register(key{Designer: stm, PartNumber: 0x422}, DeviceInfo{
		Name:    "STM32F30x/31x",
		Family:  "STM32F3",
		ARMCore: "Cortex-M4",
	})
	register(key{Designer: stm, PartNumber: 0x449}, DeviceInfo{
		Name:    "STM32F74x/75x",
		Family:  "STM32F7",
		ARMCore: "Cortex-M7",
	})
	register(key{Designer: stm, PartNumber: 0x450}, DeviceInfo{
		Name:        "STM32H74x/75x",
		Family:      "STM32H7",
		Description: "Dual-core capable, Cortex-M7 with optional Cortex-M4",
		ARMCore:     "Cortex-M7",
	})
	register(key{Designer: stm, PartNumber: 0x460}, DeviceInfo{
		Name:    "STM32G07x/08x",
		Family:  "STM32G0",
		ARMCore: "Cortex-M0+",
	})
	register(key{Designer: stm, PartNumber: 0x472}, DeviceInfo{
		Name:    "STM32L55x/56x",
		Family:  "STM32L5",
		ARMCore: "Cortex-M33",
	})
	register(key{Designer: stm, PartNumber: 0x495}, DeviceInfo{
		Name:        "STM32WB5x",
		Family:      "STM32WB",
		Description: "Cortex-M4 application core with Cortex-M0+ radio core",
		ARMCore:     "Cortex-M4",
		Cores:       2,
	})
	register(key{Designer: stm, PartNumber: 0x497}, DeviceInfo{
		Name:    "STM32WLE5/WL5x",
		Family:  "STM32WL",
		ARMCore: "Cortex-M4",
	})
}
