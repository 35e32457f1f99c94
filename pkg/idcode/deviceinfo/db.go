package deviceinfo

import "github.com/OpenTraceLab/OpenTraceADI/pkg/idcode"

// key is used for device database lookups
type key struct {
	Designer   uint16
	PartNumber uint16
}

// db is the in-memory device database
var db = make(map[key]DeviceInfo)

// register adds a device entry to the database
func register(k key, info DeviceInfo) {
	info.PartNumber = k.PartNumber
	db[k] = info
}

// Lookup returns device information for a designer/part pair. The bool is
// false when the pair has no entry, in which case only the manufacturer and
// part number are filled in.
func Lookup(designer, part uint16) (DeviceInfo, bool) {
	m, _ := idcode.LookupManufacturer(designer)

	if info, ok := db[key{Designer: designer, PartNumber: part}]; ok {
		info.Manufacturer = m
		return info, true
	}

	return DeviceInfo{
		Manufacturer: m,
		PartNumber:   part,
		Name:         "Unknown device",
		Description:  "No entry in device database",
	}, false
}
