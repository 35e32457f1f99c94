// Package discovery walks the debug infrastructure behind a DP. It scans
// ADIv5 access ports or the ADIv6 root ROM table, follows legacy and
// CoreSight ROM tables, powers up and resets debug domains, and hands
// recognised cores to architecture probes that add targets to a list.
package discovery

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceADI/pkg/adi"
	"github.com/OpenTraceLab/OpenTraceADI/pkg/coresight"
	"github.com/OpenTraceLab/OpenTraceADI/pkg/cortexm"
	"github.com/OpenTraceLab/OpenTraceADI/pkg/target"
)

// Bus is a 32-bit view of an address space holding CoreSight components.
// Both a MEM-AP and the ADIv6 DP address space (adi.Resource) are buses.
type Bus interface {
	Read32(addr uint64) (uint32, error)
	Write32(addr uint64, value uint32) error
}

// ProbeFunc claims the core whose debug block sits at base behind ap and
// reports whether it added a target. A probe that keeps the AP must take
// its own reference.
type ProbeFunc func(ap *adi.AP, base uint64) bool

// Node is one component met during a walk, in walk order.
type Node struct {
	Level int    // nesting below the first table, for display
	AP    string // empty for the ADIv6 DP address space
	Base  uint64
	Entry int // ordinal in the parent table, -1 for a top level component

	Class    coresight.Class
	PIDR     uint64
	Designer uint16
	PartNo   uint16

	// Component is the matched descriptor. It is nil for legacy ROM
	// tables and for unknown or third party components.
	Component *coresight.Component
	Note      string
}

// Walker runs discovery passes over one DP.
type Walker struct {
	// Probes maps an architecture to the probe that claims its cores.
	// NewWalker installs the Cortex-M probe.
	Probes map[coresight.Arch]ProbeFunc
	// Nodes lists the components seen by the last Scan.
	Nodes []Node

	dp   *adi.DP
	list *target.List
	opts Options

	// rootFlags stands in for AP flags while walking the DP address space.
	rootFlags adi.APFlags
	err       error
}

// NewWalker returns a walker that adds the targets it finds to list. A nil
// opts uses DefaultOptions.
func NewWalker(dp *adi.DP, list *target.List, opts *Options) *Walker {
	if opts == nil {
		opts = DefaultOptions()
	}
	w := &Walker{dp: dp, list: list, opts: *opts}
	w.Probes = map[coresight.Arch]ProbeFunc{
		coresight.ArchCortexM: w.probeCortexM,
	}
	return w
}

func (w *Walker) probeCortexM(ap *adi.AP, base uint64) bool {
	opts := w.opts.Core
	opts.ConnectUnderReset = w.opts.ConnectUnderReset
	opts.List = w.list
	_, ok := cortexm.Probe(ap, opts)
	return ok
}

// branch is the state carried down one path of the walk.
type branch struct {
	bus   Bus
	ap    *adi.AP // nil in the ADIv6 DP address space
	flags *adi.APFlags
	depth int // ROM table nesting below the current AP
	level int
	nest  int // ADIv6 APs above this one
}

func (b branch) child() branch {
	b.depth++
	b.level++
	return b
}

func (b branch) apName() string {
	if b.ap == nil {
		return ""
	}
	return b.ap.String()
}

func (b branch) fields(base uint64, entry int) log.Fields {
	name := b.apName()
	if name == "" {
		name = "DP"
	}
	return log.Fields{
		"ap":    name,
		"base":  fmt.Sprintf("0x%016x", base),
		"entry": entry,
		"depth": b.depth,
	}
}

// Scan runs one discovery pass. A bus fault while reading a ROM table, or
// ctx ending, aborts the pass: every target found so far is released and
// the error is returned. Unsupported or malformed components only end
// their own branch.
func (w *Walker) Scan(ctx context.Context) error {
	if err := w.opts.Validate(); err != nil {
		return fmt.Errorf("discovery: invalid options: %w", err)
	}
	w.err = nil
	w.Nodes = nil
	w.rootFlags = 0

	if w.dp.ADIVersion == 6 {
		log.WithField("base", fmt.Sprintf("0x%016x", w.dp.Base)).Debug("discovery: walking DP root table")
		b := branch{bus: adi.Resource{DP: w.dp}, flags: &w.rootFlags}
		w.probeComponent(ctx, b, w.dp.Base, -1)
	} else {
		w.scanAPs(ctx)
	}

	if w.err != nil {
		log.Errorf("discovery: %v, releasing %d targets", w.err, w.list.Len())
		w.list.Free()
		return w.err
	}
	log.Infof("discovery: %d targets found", w.list.Len())
	return nil
}

func (w *Walker) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *Walker) cancelled(ctx context.Context) bool {
	if err := ctx.Err(); err != nil {
		w.fail(fmt.Errorf("discovery: %w", err))
		return true
	}
	return w.err != nil
}

// scanAPs tries each ADIv5 APSEL in turn.
func (w *Walker) scanAPs(ctx context.Context) {
	void := 0
	for sel := 0; sel < w.opts.ScanAPs; sel++ {
		if w.cancelled(ctx) {
			return
		}

		ap := adi.NewAP(w.dp, uint8(sel))
		err := ap.Configure()
		if ap.IDR == 0 {
			w.dp.Faulted()
			ap.Unref()
			void++
			if void >= w.opts.VoidAPLimit {
				log.Debugf("discovery: %d empty APSELs, AP scan stopped at %d", void, sel)
				return
			}
			continue
		}
		void = 0

		if err != nil {
			log.WithField("ap", ap.String()).Debugf("discovery: AP skipped: %v", err)
			w.dp.Faulted()
			ap.Unref()
			continue
		}
		if !ap.IsMemAP() {
			log.WithField("ap", ap.String()).Debugf("discovery: not a MEM-AP (IDR 0x%08x)", ap.IDR)
			ap.Unref()
			continue
		}
		w.walkAP(ctx, ap, 0, 0)
	}
}

// walkAP probes the component at the AP's base, resumes the cores found
// behind it and drops the walker's reference. Targets hold their own, so
// an AP no core claimed is released here.
func (w *Walker) walkAP(ctx context.Context, ap *adi.AP, nest, level int) {
	b := branch{bus: ap, ap: ap, flags: &ap.Flags, level: level, nest: nest}
	w.probeComponent(ctx, b, ap.Base, -1)
	if w.err == nil {
		w.resumeCores(ap)
	}
	if ap.Unref() {
		log.WithField("ap", ap.String()).Debug("discovery: no core claimed AP")
	}
}

// resumeCores lets the cores behind ap run again unless the session
// connects under reset.
func (w *Walker) resumeCores(ap *adi.AP) {
	if w.opts.ConnectUnderReset {
		return
	}
	for _, t := range w.list.All() {
		owner, ok := t.(interface{ AP() *adi.AP })
		if ok && owner.AP() == ap {
			t.HaltResume(false)
		}
	}
}

func (w *Walker) record(b branch, n Node) {
	n.Level = b.level
	n.AP = b.apName()
	w.Nodes = append(w.Nodes, n)
}
