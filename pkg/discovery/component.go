package discovery

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceADI/pkg/adi"
	"github.com/OpenTraceLab/OpenTraceADI/pkg/coresight"
	"github.com/OpenTraceLab/OpenTraceADI/pkg/idcode"
)

// readID assembles a CIDR or PIDR half from four byte-wide registers.
func readID(bus Bus, addr uint64) ([4]uint32, error) {
	var words [4]uint32
	for i := range words {
		v, err := bus.Read32(addr + uint64(4*i))
		if err != nil {
			return words, err
		}
		words[i] = v
	}
	return words, nil
}

func readCIDR(bus Bus, base uint64) (uint32, error) {
	words, err := readID(bus, base+coresight.RegCIDR0)
	if err != nil {
		return 0, err
	}
	return coresight.CIDR(words), nil
}

func readPIDR(bus Bus, base uint64) (uint64, error) {
	var words [coresight.PIDRWords]uint32
	lo, err := readID(bus, base+coresight.RegPIDR0)
	if err != nil {
		return 0, err
	}
	hi, err := readID(bus, base+coresight.RegPIDR4)
	if err != nil {
		return 0, err
	}
	copy(words[:4], lo[:])
	copy(words[4:], hi[:])
	return coresight.PIDR(words), nil
}

// ProbeComponent identifies the component at base behind ap and follows
// it: ROM tables are walked, cores are handed to the registered probes
// and ADIv6 access ports are opened and walked in turn.
func (w *Walker) ProbeComponent(ctx context.Context, ap *adi.AP, base uint64) error {
	if err := w.opts.Validate(); err != nil {
		return fmt.Errorf("discovery: invalid options: %w", err)
	}
	w.err = nil
	b := branch{bus: ap, ap: ap, flags: &ap.Flags}
	w.probeComponent(ctx, b, base, -1)
	return w.err
}

func (w *Walker) probeComponent(ctx context.Context, b branch, base uint64, entry int) {
	if w.cancelled(ctx) {
		return
	}
	fields := b.fields(base, entry)
	if b.depth > w.opts.MaxDepth {
		log.WithFields(fields).Warnf("discovery: ROM tables nested deeper than %d, branch abandoned", w.opts.MaxDepth)
		return
	}

	cidr, err := readCIDR(b.bus, base)
	if err != nil {
		w.dp.Faulted()
		log.WithFields(fields).Debugf("discovery: read CIDR: %v", err)
		return
	}
	if !coresight.ValidPreamble(cidr) {
		log.WithFields(fields).Debugf("discovery: CIDR 0x%08x does not match preamble 0x%08x", cidr, uint32(coresight.CIDPreamble))
		return
	}
	class := coresight.ClassOf(cidr)
	fields["class"] = class.String()

	pidr, err := readPIDR(b.bus, base)
	if err != nil {
		w.dp.Faulted()
		log.WithFields(fields).Debugf("discovery: read PIDR: %v", err)
		return
	}
	fields["pidr"] = fmt.Sprintf("0x%010x", pidr)

	node := Node{
		Base:     base,
		Entry:    entry,
		Class:    class,
		PIDR:     pidr,
		Designer: idcode.DesignerFromPIDR(pidr),
		PartNo:   coresight.PartNumber(pidr),
	}
	fields["designer"] = fmt.Sprintf("0x%03x", node.Designer)
	fields["partno"] = fmt.Sprintf("0x%03x", node.PartNo)

	if class == coresight.ClassROMTable {
		if size := coresight.PIDRSize(pidr); size != 0 {
			log.WithFields(fields).Debugf("discovery: ROM table reports size %d, branch abandoned", size)
			return
		}
		w.record(b, node)
		w.walkLegacy(ctx, b, base, pidr)
		return
	}

	if node.Designer != idcode.DesignerARM && node.Designer != idcode.DesignerARMChina {
		node.Note = "non-ARM component ignored"
		w.record(b, node)
		log.WithFields(fields).Debug("discovery: non-ARM component ignored")
		return
	}

	var devType uint8
	var archID uint16
	if class == coresight.ClassDebug {
		devarch, err1 := b.bus.Read32(base + coresight.RegDEVARCH)
		devtype, err2 := b.bus.Read32(base + coresight.RegDEVTYPE)
		if err := errors.Join(err1, err2); err != nil {
			w.dp.Faulted()
			log.WithFields(fields).Debugf("discovery: read DEVARCH/DEVTYPE: %v", err)
			return
		}
		devType = uint8(devtype & coresight.DevTypeMask)
		if devarch&coresight.DevArchPresent != 0 {
			archID = uint16(devarch & coresight.DevArchArchIDMask)
		}
	}

	c := coresight.Lookup(base, entry, class, pidr, devType, archID)
	node.Component = c
	w.record(b, node)
	if c == nil {
		return
	}

	switch c.Arch {
	case coresight.ArchCortexM, coresight.ArchCortexA, coresight.ArchCortexR:
		w.probeCore(b, c.Arch, base, fields)
	case coresight.ArchROMTable:
		if size := coresight.PIDRSize(pidr); size != 0 {
			log.WithFields(fields).Debugf("discovery: ROM table reports size %d, branch abandoned", size)
			return
		}
		w.walkCoreSight(ctx, b, base)
	case coresight.ArchAccessPort:
		w.probeAccessPort(ctx, b, base, fields)
	case coresight.ArchNoSupport:
	default:
		log.WithFields(fields).Errorf("discovery: no handler for %s", c.Arch)
	}
}

func (w *Walker) probeCore(b branch, arch coresight.Arch, base uint64, fields log.Fields) {
	probe := w.Probes[arch]
	if probe == nil {
		log.WithFields(fields).Debugf("discovery: no %s probe", arch)
		return
	}
	if b.ap == nil {
		log.WithFields(fields).Debugf("discovery: %s core outside any access port", arch)
		return
	}
	log.WithFields(fields).Debugf("discovery: -> %s probe", arch)
	if !probe(b.ap, base) {
		log.WithFields(fields).Debugf("discovery: %s probe did not claim the core", arch)
	}
}

// probeAccessPort opens the ADIv6 AP whose register block is at base and
// walks it as a new top level.
func (w *Walker) probeAccessPort(ctx context.Context, b branch, base uint64, fields log.Fields) {
	if b.nest >= MaxAPNesting {
		log.WithFields(fields).Warnf("discovery: access ports nested deeper than %d, branch abandoned", MaxAPNesting)
		return
	}
	if w.dp.ADIVersion != 6 {
		log.WithFields(fields).Debug("discovery: ADIv6 access port on an ADIv5 DP ignored")
		return
	}

	ap := adi.NewResourceAP(w.dp, base)
	if err := ap.Configure(); err != nil {
		w.dp.Faulted()
		log.WithFields(fields).Debugf("discovery: %v", err)
		ap.Unref()
		return
	}
	// The AP's own ROM table overrides this identity when it has one.
	if b.ap != nil {
		ap.Designer, ap.PartNo = b.ap.Designer, b.ap.PartNo
	} else if w.dp.HasTargetID && w.dp.TargetDesigner != 0 {
		ap.Designer, ap.PartNo = w.dp.TargetDesigner, w.dp.TargetPartNo
	}
	if !ap.IsMemAP() {
		log.WithFields(fields).Debugf("discovery: not a MEM-AP (IDR 0x%08x)", ap.IDR)
		ap.Unref()
		return
	}
	w.walkAP(ctx, ap, b.nest+1, b.level+1)
}
