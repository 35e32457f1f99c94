package discovery

import (
	"fmt"
	"time"

	"github.com/OpenTraceLab/OpenTraceADI/pkg/cortexm"
)

const (
	// DefaultMaxDepth bounds nested ROM tables below one AP.
	DefaultMaxDepth = 8
	// MaxAPNesting bounds ADIv6 access ports found behind other access
	// ports.
	MaxAPNesting = 4
	// DefaultVoidAPLimit ends an ADIv5 AP scan after this many consecutive
	// APSELs without an AP.
	DefaultVoidAPLimit = 8
	// DefaultScanAPs is the number of APSEL values an ADIv5 scan tries.
	DefaultScanAPs = 256

	// PowerTimeout bounds the wait for a ROM table power domain.
	PowerTimeout = 250 * time.Millisecond
	// ResetTimeout bounds the debug reset handshake of a ROM table.
	ResetTimeout = 250 * time.Millisecond
)

// Options control a discovery pass.
type Options struct {
	MaxDepth int // Nested ROM table limit (default: 8)

	// ConnectUnderReset leaves discovered cores halted; otherwise each
	// core is resumed once its AP has been walked.
	ConnectUnderReset bool

	ScanAPs     int // APSEL values tried on ADIv5 (default: 256)
	VoidAPLimit int // Consecutive empty APSELs that end the scan (default: 8)

	// Core is passed to the Cortex-M probe. Its List and
	// ConnectUnderReset fields are filled in by the walker.
	Core cortexm.Options
}

// DefaultOptions returns Options for a plain scan.
func DefaultOptions() *Options {
	return &Options{
		MaxDepth:    DefaultMaxDepth,
		ScanAPs:     DefaultScanAPs,
		VoidAPLimit: DefaultVoidAPLimit,
	}
}

// Validate fills zero values with defaults and rejects out of range ones.
func (o *Options) Validate() error {
	if o.MaxDepth == 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.ScanAPs == 0 {
		o.ScanAPs = DefaultScanAPs
	}
	if o.VoidAPLimit == 0 {
		o.VoidAPLimit = DefaultVoidAPLimit
	}

	if o.MaxDepth < 0 {
		return fmt.Errorf("max depth %d is negative", o.MaxDepth)
	}
	if o.ScanAPs < 0 || o.ScanAPs > DefaultScanAPs {
		return fmt.Errorf("AP count %d out of range 1-%d", o.ScanAPs, DefaultScanAPs)
	}
	if o.VoidAPLimit < 0 {
		return fmt.Errorf("void AP limit %d is negative", o.VoidAPLimit)
	}
	return nil
}
