package cortexm

import (
	"fmt"
	"math/bits"

	bitmap "github.com/boljen/go-bitmap"

	"github.com/OpenTraceLab/OpenTraceADI/pkg/target"
)

// FPB revision 0 comparators only reach the code region.
const fpbRev0Limit = 0x20000000

// allocSlot marks and returns the first free slot of used, or -1.
func allocSlot(used bitmap.Bitmap, n int) int {
	for i := 0; i < n; i++ {
		if !used.Get(i) {
			used.Set(i, true)
			return i
		}
	}
	return -1
}

// fpbComparator encodes a breakpoint at addr for the FPB revision.
func fpbComparator(revision, addr uint32) (uint32, error) {
	if revision != 0 {
		return addr&^1 | 1, nil
	}
	if addr >= fpbRev0Limit {
		return 0, fmt.Errorf("cortexm: breakpoint at 0x%08x outside code region: %w", addr, target.ErrUnsupported)
	}
	// REPLACE selects the halfword of the word to match.
	val := addr & 0x1ffffffc
	if addr&2 != 0 {
		val |= 0x80000000
	} else {
		val |= 0x40000000
	}
	return val | 1, nil
}

// dwtMask is the DWT_MASK exponent covering size bytes.
func dwtMask(size uint32) uint32 {
	if size == 0 {
		return 0
	}
	return min(uint32(bits.Len32(size)-1), dwtMaskMaxExponent)
}

func dwtFunction(kind target.BreakwatchKind, profile Profile) uint32 {
	var fn uint32
	switch kind {
	case target.WatchWrite:
		fn = dwtFuncFuncWrite
	case target.WatchRead:
		fn = dwtFuncFuncRead
	case target.WatchAccess:
		fn = dwtFuncFuncAccess
	}
	if profile != ProfileV6M {
		fn |= dwtFuncDataVSizeWord
	}
	return fn
}

// dwtV2Function encodes an ARMv8-M watchpoint raising a debug event on a
// 1, 2 or 4 byte access.
func dwtV2Function(kind target.BreakwatchKind, size uint32) (uint32, error) {
	var fn uint32
	switch kind {
	case target.WatchWrite:
		fn = dwtV2FuncMatchWrite
	case target.WatchRead:
		fn = dwtV2FuncMatchRead
	case target.WatchAccess:
		fn = dwtV2FuncMatchAccess
	}
	switch size {
	case 1, 2, 4:
	default:
		return 0, fmt.Errorf("cortexm: %d byte watchpoint: %w", size, target.ErrUnsupported)
	}
	return fn | dwtV2FuncActionDebug | (size>>1)<<dwtV2FuncDataVSizeBit, nil
}

// BreakwatchSet implements target.Target. Only hardware breakpoints and
// data watchpoints are supported.
func (t *Target) BreakwatchSet(bw *target.Breakwatch) error {
	switch {
	case bw.Kind == target.BreakHard:
		return t.setBreakpoint(bw)
	case bw.Kind.IsWatch():
		return t.setWatchpoint(bw)
	}
	return fmt.Errorf("cortexm: %s: %w", bw.Kind, target.ErrUnsupported)
}

func (t *Target) setBreakpoint(bw *target.Breakwatch) error {
	val, err := fpbComparator(t.fpbRevision, bw.Addr)
	if err != nil {
		return err
	}
	i := allocSlot(t.bpUsed, t.bpMax)
	if i < 0 {
		return fmt.Errorf("cortexm: breakpoint at 0x%08x: %w", bw.Addr, target.ErrNoSlot)
	}
	if err := t.write32(regFPComp(i), val); err != nil {
		t.bpUsed.Set(i, false)
		return fmt.Errorf("cortexm: set breakpoint %d: %w", i, err)
	}
	bw.Slot = i
	return nil
}

func (t *Target) setWatchpoint(bw *target.Breakwatch) error {
	v2 := t.Profile == ProfileV8M
	var fn uint32
	if v2 {
		var err error
		if fn, err = dwtV2Function(bw.Kind, bw.Size); err != nil {
			return err
		}
	} else {
		fn = dwtFunction(bw.Kind, t.Profile)
	}

	i := allocSlot(t.wpUsed, t.wpMax)
	if i < 0 {
		return fmt.Errorf("cortexm: watchpoint at 0x%08x: %w", bw.Addr, target.ErrNoSlot)
	}
	err := t.write32(regDWTComp(i), bw.Addr)
	if err == nil && !v2 {
		err = t.write32(regDWTMask(i), dwtMask(bw.Size))
	}
	if err == nil {
		err = t.write32(regDWTFunc(i), fn)
	}
	if err != nil {
		t.wpUsed.Set(i, false)
		return fmt.Errorf("cortexm: set watchpoint %d: %w", i, err)
	}
	bw.Slot = i
	return nil
}

// BreakwatchClear implements target.Target. A breakpoint comparator is
// written as zero rather than just disabled, since its other fields must
// read as zero while unused.
func (t *Target) BreakwatchClear(bw *target.Breakwatch) error {
	i := bw.Slot
	switch {
	case bw.Kind == target.BreakHard:
		if i < 0 || i >= t.bpMax || !t.bpUsed.Get(i) {
			return fmt.Errorf("cortexm: breakpoint slot %d not in use", i)
		}
		t.bpUsed.Set(i, false)
		return t.write32(regFPComp(i), 0)
	case bw.Kind.IsWatch():
		if i < 0 || i >= t.wpMax || !t.wpUsed.Get(i) {
			return fmt.Errorf("cortexm: watchpoint slot %d not in use", i)
		}
		t.wpUsed.Set(i, false)
		return t.write32(regDWTFunc(i), 0)
	}
	return fmt.Errorf("cortexm: %s: %w", bw.Kind, target.ErrUnsupported)
}

// FreeBreakpoints returns how many breakpoint comparators are unused.
func (t *Target) FreeBreakpoints() int {
	n := 0
	for i := 0; i < t.bpMax; i++ {
		if !t.bpUsed.Get(i) {
			n++
		}
	}
	return n
}

// FreeWatchpoints returns how many watchpoint comparators are unused.
func (t *Target) FreeWatchpoints() int {
	n := 0
	for i := 0; i < t.wpMax; i++ {
		if !t.wpUsed.Get(i) {
			n++
		}
	}
	return n
}
