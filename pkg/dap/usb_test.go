package dap

import (
	"context"
	"testing"
	"time"

	"github.com/google/gousb"
)

func endpoint(num int, dir gousb.EndpointDirection, tt gousb.TransferType) gousb.EndpointDesc {
	addr := gousb.EndpointAddress(num)
	if dir == gousb.EndpointDirectionIn {
		addr |= 0x80
	}
	return gousb.EndpointDesc{
		Address:       addr,
		Number:        num,
		Direction:     dir,
		TransferType:  tt,
		MaxPacketSize: 512,
	}
}

func setting(class gousb.Class, eps ...gousb.EndpointDesc) gousb.InterfaceSetting {
	s := gousb.InterfaceSetting{Class: class, Endpoints: map[gousb.EndpointAddress]gousb.EndpointDesc{}}
	for _, ep := range eps {
		s.Endpoints[ep.Address] = ep
	}
	return s
}

func TestBulkPair(t *testing.T) {
	out, in := gousb.EndpointDirectionOut, gousb.EndpointDirectionIn
	bulk, intr := gousb.TransferTypeBulk, gousb.TransferTypeInterrupt

	tests := []struct {
		name    string
		s       gousb.InterfaceSetting
		wantOut int
		wantIn  int
		wantErr bool
	}{
		{
			name:    "DAPLink pair plus SWO",
			s:       setting(gousb.ClassVendorSpec, endpoint(1, out, bulk), endpoint(2, in, bulk), endpoint(3, in, bulk)),
			wantOut: 1,
			wantIn:  2,
		},
		{
			name:    "interrupt endpoints ignored",
			s:       setting(gousb.ClassVendorSpec, endpoint(1, out, intr), endpoint(1, in, intr), endpoint(4, out, bulk), endpoint(5, in, bulk)),
			wantOut: 4,
			wantIn:  5,
		},
		{
			name:    "no IN endpoint",
			s:       setting(gousb.ClassVendorSpec, endpoint(1, out, bulk)),
			wantErr: true,
		},
		{
			name:    "no endpoints",
			s:       setting(gousb.ClassVendorSpec),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, i, err := bulkPair(tt.s)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("bulkPair() = %d, %d, want error", o.Number, i.Number)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if o.Number != tt.wantOut || i.Number != tt.wantIn {
				t.Errorf("bulkPair() = %d, %d, want %d, %d", o.Number, i.Number, tt.wantOut, tt.wantIn)
			}
		})
	}
}

func TestVendorInterface(t *testing.T) {
	out, in := gousb.EndpointDirectionOut, gousb.EndpointDirectionIn
	bulk := gousb.TransferTypeBulk

	hid := setting(gousb.ClassHID, endpoint(1, out, gousb.TransferTypeInterrupt), endpoint(1, in, gousb.TransferTypeInterrupt))
	cdc := setting(gousb.ClassData, endpoint(2, out, bulk), endpoint(2, in, bulk))
	dap := setting(gousb.ClassVendorSpec, endpoint(4, out, bulk), endpoint(5, in, bulk))

	desc := &gousb.DeviceDesc{Configs: map[int]gousb.ConfigDesc{
		1: {Number: 1, Interfaces: []gousb.InterfaceDesc{
			{Number: 0, AltSettings: []gousb.InterfaceSetting{hid}},
			{Number: 1, AltSettings: []gousb.InterfaceSetting{cdc}},
			{Number: 3, AltSettings: []gousb.InterfaceSetting{dap}},
		}},
	}}
	if n, ok := vendorInterface(desc); !ok || n != 3 {
		t.Errorf("vendorInterface() = %d, %v, want 3", n, ok)
	}

	desc.Configs[1].Interfaces[2].AltSettings[0] = setting(gousb.ClassVendorSpec, endpoint(4, out, bulk))
	if n, ok := vendorInterface(desc); ok {
		t.Errorf("vendorInterface() = %d on a v1 (HID only) probe", n)
	}
}

func TestLookupInterface(t *testing.T) {
	info, ok := LookupInterface(0x2e8a, 0x000c)
	if !ok || info.Kind != InterfaceKindCMSISDAP || info.Description != "Raspberry Pi Debug Probe" {
		t.Errorf("LookupInterface(RPi debug probe) = %+v, %v", info, ok)
	}
	if _, ok := LookupInterface(0xdead, 0xbeef); ok {
		t.Error("LookupInterface(unknown) matched")
	}
}

func TestUSBSelector(t *testing.T) {
	known := &gousb.DeviceDesc{Vendor: 0x0d28, Product: 0x0204}
	other := &gousb.DeviceDesc{Vendor: 0x046d, Product: 0xc52b}

	if !(USBSelector{}).matchDesc(known) || (USBSelector{}).matchDesc(other) {
		t.Error("zero selector should match known probes only")
	}
	sel := USBSelector{VID: 0x046d, PID: 0xc52b}
	if !sel.matchDesc(other) || sel.matchDesc(known) {
		t.Error("explicit selector should match its VID:PID only")
	}
	if got := sel.String(); got != "046D:C52B" {
		t.Errorf("String() = %q", got)
	}
}

func TestInterfaceLabel(t *testing.T) {
	tests := []struct {
		info InterfaceInfo
		want string
	}{
		{InterfaceInfo{Kind: InterfaceKindSim, Description: "Simulator (no hardware)"}, "Simulator (no hardware)"},
		{InterfaceInfo{Kind: InterfaceKindCMSISDAP, VendorID: 0x1fc9, ProductID: 0x0143}, "cmsis-dap (1FC9:0143)"},
		{InterfaceInfo{Description: "MCU-Link", Serial: "ABC123"}, "MCU-Link #ABC123"},
	}
	for _, tt := range tests {
		if got := tt.info.Label(); got != tt.want {
			t.Errorf("Label() = %q, want %q", got, tt.want)
		}
	}
}

func TestDiscoverInterfaces(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping USB enumeration in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	infos, err := DiscoverInterfaces(ctx)
	if err != nil {
		t.Skipf("USB enumeration unavailable: %v", err)
	}
	if len(infos) == 0 || infos[len(infos)-1].Kind != InterfaceKindSim {
		t.Fatalf("simulator entry missing: %+v", infos)
	}
	for _, info := range infos {
		t.Logf("  %s", info.Label())
	}
}

// Integration test - only runs with real hardware
func TestUSBTransportIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	transport, err := OpenUSB(USBSelector{})
	if err != nil {
		t.Skipf("No CMSIS-DAP hardware found: %v", err)
	}
	defer transport.Close()

	if size := transport.PacketSize(); size < DefaultPacketSize {
		t.Errorf("Packet size too small: %d", size)
	}

	resp, err := transport.WriteRead([]byte{CmdInfo, InfoVendorID})
	if err != nil {
		t.Fatalf("DAP_Info failed: %v", err)
	}
	if len(resp) < 2 || resp[0] != CmdInfo {
		t.Errorf("unexpected DAP_Info response % x", resp)
	}
}
