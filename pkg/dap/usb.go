package dap

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/gousb"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultPacketSize is the bulk packet size of a full-speed CMSIS-DAP
	// v2 probe. High-speed probes report their own.
	DefaultPacketSize = 64
	// DefaultUSBTimeout bounds one command/response exchange.
	DefaultUSBTimeout = 5 * time.Second
)

// InterfaceKind categorizes probe families.
type InterfaceKind string

const (
	InterfaceKindCMSISDAP InterfaceKind = "cmsis-dap"
	InterfaceKindSim      InterfaceKind = "simulator"
)

// InterfaceInfo describes a detected probe.
type InterfaceInfo struct {
	Kind        InterfaceKind
	Description string
	VendorID    uint16
	ProductID   uint16
	Serial      string
}

// Label returns a user-friendly description for the interface.
func (i InterfaceInfo) Label() string {
	label := i.Description
	if label == "" {
		label = fmt.Sprintf("%s (%04X:%04X)", i.Kind, i.VendorID, i.ProductID)
	}
	if i.Serial != "" {
		label += " #" + i.Serial
	}
	return label
}

type usbProbe struct {
	vid, pid uint16
	name     string
}

// knownProbes lists probes that expose a CMSIS-DAP v2 bulk interface.
var knownProbes = []usbProbe{
	{0x2e8a, 0x000c, "Raspberry Pi Debug Probe"},
	{0x0d28, 0x0204, "DAPLink CMSIS-DAP"},
	{0x1366, 0x0101, "SEGGER J-Link CMSIS-DAP"},
	{0xc251, 0xf001, "Keil ULINKplus"},
	{0x1fc9, 0x0143, "NXP MCU-Link"},
}

// LookupInterface returns the known probe entry for vid:pid.
func LookupInterface(vid, pid uint16) (InterfaceInfo, bool) {
	for _, p := range knownProbes {
		if p.vid == vid && p.pid == pid {
			return InterfaceInfo{
				Kind:        InterfaceKindCMSISDAP,
				Description: p.name,
				VendorID:    vid,
				ProductID:   pid,
			}, true
		}
	}
	return InterfaceInfo{}, false
}

// USBSelector picks a probe on the bus. A zero VID matches every known
// CMSIS-DAP probe and an empty Serial matches any serial number.
type USBSelector struct {
	VID, PID uint16
	Serial   string
}

func (s USBSelector) matchDesc(desc *gousb.DeviceDesc) bool {
	vid, pid := uint16(desc.Vendor), uint16(desc.Product)
	if s.VID == 0 {
		_, ok := LookupInterface(vid, pid)
		return ok
	}
	return vid == s.VID && pid == s.PID
}

func (s USBSelector) matchSerial(dev *gousb.Device) bool {
	if s.Serial == "" {
		return true
	}
	got, err := dev.SerialNumber()
	return err == nil && got == s.Serial
}

func (s USBSelector) String() string {
	if s.VID == 0 {
		return "any CMSIS-DAP probe"
	}
	return fmt.Sprintf("%04X:%04X", s.VID, s.PID)
}

// DiscoverInterfaces enumerates connected CMSIS-DAP probes. The simulator
// entry is always last so a scan can be exercised without hardware.
func DiscoverInterfaces(ctx context.Context) ([]InterfaceInfo, error) {
	usb := gousb.NewContext()
	defer usb.Close()

	sel := USBSelector{}
	devs, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return ctx.Err() == nil && sel.matchDesc(desc)
	})
	var results []InterfaceInfo
	for _, dev := range devs {
		info, _ := LookupInterface(uint16(dev.Desc.Vendor), uint16(dev.Desc.Product))
		info.Serial, _ = dev.SerialNumber()
		if product, perr := dev.Product(); perr == nil && product != "" {
			info.Description = product
		}
		results = append(results, info)
		dev.Close()
	}
	if err != nil && err != gousb.ErrorAccess {
		return results, fmt.Errorf("dap: enumerate USB: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}

	results = append(results, InterfaceInfo{
		Kind:        InterfaceKindSim,
		Description: "Simulator (no hardware)",
	})
	return results, nil
}

// link is the packet exchange the adapter needs from its transport.
type link interface {
	WriteRead(cmd []byte) ([]byte, error)
	PacketSize() int
	Close() error
}

// USBTransport exchanges CMSIS-DAP v2 packets over a probe's vendor bulk
// interface.
type USBTransport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface

	out *gousb.OutEndpoint
	in  *gousb.InEndpoint

	packetSize int
	// Timeout bounds each WriteRead.
	Timeout time.Duration
}

// OpenUSB claims the CMSIS-DAP interface of the first probe sel matches.
func OpenUSB(sel USBSelector) (*USBTransport, error) {
	t := &USBTransport{ctx: gousb.NewContext(), Timeout: DefaultUSBTimeout}
	if err := t.open(sel); err != nil {
		t.Close()
		return nil, err
	}
	log.WithFields(log.Fields{
		"device": t.dev.String(),
		"packet": t.packetSize,
	}).Debug("dap: USB interface claimed")
	return t, nil
}

func (t *USBTransport) open(sel USBSelector) error {
	devs, err := t.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return sel.matchDesc(desc)
	})
	for _, d := range devs {
		if t.dev == nil && sel.matchSerial(d) {
			t.dev = d
			continue
		}
		d.Close()
	}
	if t.dev == nil {
		if err != nil {
			return fmt.Errorf("dap: open %s: %w", sel, err)
		}
		return fmt.Errorf("dap: %s not found", sel)
	}

	// Not fatal on platforms without kernel drivers to detach.
	_ = t.dev.SetAutoDetach(true)

	num, ok := vendorInterface(t.dev.Desc)
	if !ok {
		return fmt.Errorf("dap: %s has no CMSIS-DAP v2 interface", t.dev)
	}
	cfgNum, err := t.dev.ActiveConfigNum()
	if err != nil {
		return fmt.Errorf("dap: active configuration: %w", err)
	}
	if t.cfg, err = t.dev.Config(cfgNum); err != nil {
		return fmt.Errorf("dap: configuration %d: %w", cfgNum, err)
	}
	if t.intf, err = t.cfg.Interface(num, 0); err != nil {
		return fmt.Errorf("dap: claim interface %d: %w", num, err)
	}

	out, in, err := bulkPair(t.intf.Setting)
	if err != nil {
		return err
	}
	if t.out, err = t.intf.OutEndpoint(out.Number); err != nil {
		return fmt.Errorf("dap: OUT endpoint %d: %w", out.Number, err)
	}
	if t.in, err = t.intf.InEndpoint(in.Number); err != nil {
		return fmt.Errorf("dap: IN endpoint %d: %w", in.Number, err)
	}
	t.packetSize = in.MaxPacketSize
	if t.packetSize == 0 {
		t.packetSize = DefaultPacketSize
	}
	return nil
}

// vendorInterface returns the first vendor class interface with a bulk
// endpoint pair, which is where CMSIS-DAP v2 lives.
func vendorInterface(desc *gousb.DeviceDesc) (int, bool) {
	for _, cfg := range desc.Configs {
		for _, intf := range cfg.Interfaces {
			if len(intf.AltSettings) == 0 {
				continue
			}
			alt := intf.AltSettings[0]
			if alt.Class != gousb.ClassVendorSpec {
				continue
			}
			if _, _, err := bulkPair(alt); err == nil {
				return intf.Number, true
			}
		}
	}
	return 0, false
}

// bulkPair picks the lowest numbered bulk OUT and bulk IN endpoints.
func bulkPair(s gousb.InterfaceSetting) (out, in gousb.EndpointDesc, err error) {
	eps := make([]gousb.EndpointDesc, 0, len(s.Endpoints))
	for _, ep := range s.Endpoints {
		if ep.TransferType == gousb.TransferTypeBulk {
			eps = append(eps, ep)
		}
	}
	sort.Slice(eps, func(i, j int) bool { return eps[i].Number < eps[j].Number })

	var haveOut, haveIn bool
	for _, ep := range eps {
		switch {
		case ep.Direction == gousb.EndpointDirectionOut && !haveOut:
			out, haveOut = ep, true
		case ep.Direction == gousb.EndpointDirectionIn && !haveIn:
			in, haveIn = ep, true
		}
	}
	if !haveOut || !haveIn {
		return out, in, fmt.Errorf("dap: interface %d lacks a bulk endpoint pair", s.Number)
	}
	return out, in, nil
}

// WriteRead sends one command packet, padded to the packet size, and
// returns the response.
func (t *USBTransport) WriteRead(cmd []byte) ([]byte, error) {
	if len(cmd) > t.packetSize {
		return nil, fmt.Errorf("dap: command of %d bytes exceeds packet size %d", len(cmd), t.packetSize)
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.Timeout)
	defer cancel()

	packet := make([]byte, t.packetSize)
	copy(packet, cmd)
	if _, err := t.out.WriteContext(ctx, packet); err != nil {
		return nil, fmt.Errorf("dap: USB write: %w", err)
	}
	resp := make([]byte, t.packetSize)
	n, err := t.in.ReadContext(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("dap: USB read: %w", err)
	}
	return resp[:n], nil
}

// PacketSize returns the bulk packet size.
func (t *USBTransport) PacketSize() int {
	return t.packetSize
}

// Close releases the interface, the device and the USB context.
func (t *USBTransport) Close() error {
	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
	}
	if t.cfg != nil {
		t.cfg.Close()
		t.cfg = nil
	}
	if t.dev != nil {
		t.dev.Close()
		t.dev = nil
	}
	if t.ctx != nil {
		t.ctx.Close()
		t.ctx = nil
	}
	return nil
}
