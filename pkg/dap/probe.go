// Package dap provides the wire side of a debug port connection: a
// CMSIS-DAP SWD probe driven over USB and an in-memory SWD target for
// tests. Both implement adi.Transport.
package dap

import (
	"errors"

	"github.com/OpenTraceLab/OpenTraceADI/pkg/adi"
)

// ProbeInfo describes capabilities reported by a debug probe.
type ProbeInfo struct {
	Name         string
	Vendor       string
	Model        string
	SerialNumber string
	Firmware     string
	MinFrequency int // Hertz
	MaxFrequency int // Hertz
	SupportsSRST bool
	Notes        string
}

// Probe is a debug probe that can carry DP/AP transfers.
type Probe interface {
	adi.Transport
	adi.ResetController
	Info() (ProbeInfo, error)
	SetSpeed(hz int) error
	Close() error
}

// ErrNotImplemented lets backends signal a missing capability.
var ErrNotImplemented = errors.New("dap: not implemented")

// requestByte packs a transport address into the DAP_Transfer request
// layout: APnDP in bit 0, RnW in bit 1, A[3:2] in bits 3:2.
func requestByte(addr uint16, read bool) byte {
	req := byte(addr & 0xc)
	if addr&adi.APnDP != 0 {
		req |= TransferAPnDP
	}
	if read {
		req |= TransferRnW
	}
	return req
}
