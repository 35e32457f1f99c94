// Package target defines the debug-core interface the session layer drives
// once discovery has found a supported core, along with the list that owns
// every discovered target.
package target

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrNoSlot reports that every hardware breakpoint or watchpoint
	// comparator is in use.
	ErrNoSlot = errors.New("target: no free slot")
	// ErrUnsupported reports a breakwatch kind or length the hardware
	// cannot match.
	ErrUnsupported = errors.New("target: unsupported")
)

// HaltReason is the outcome of a halt poll.
type HaltReason uint8

const (
	HaltRunning HaltReason = iota
	HaltError
	HaltRequest
	HaltStepping
	HaltBreakpoint
	HaltWatchpoint
	HaltFault
)

var haltReasonNames = map[HaltReason]string{
	HaltRunning:    "running",
	HaltError:      "error",
	HaltRequest:    "request",
	HaltStepping:   "stepping",
	HaltBreakpoint: "breakpoint",
	HaltWatchpoint: "watchpoint",
	HaltFault:      "fault",
}

func (r HaltReason) String() string {
	if name, ok := haltReasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("HaltReason(%d)", uint8(r))
}

// BreakwatchKind selects a breakpoint or watchpoint flavour.
type BreakwatchKind uint8

const (
	BreakSoft BreakwatchKind = iota
	BreakHard
	WatchWrite
	WatchRead
	WatchAccess
)

func (k BreakwatchKind) String() string {
	switch k {
	case BreakSoft:
		return "soft breakpoint"
	case BreakHard:
		return "hard breakpoint"
	case WatchWrite:
		return "write watchpoint"
	case WatchRead:
		return "read watchpoint"
	case WatchAccess:
		return "access watchpoint"
	}
	return fmt.Sprintf("BreakwatchKind(%d)", uint8(k))
}

// IsWatch reports whether the kind is served by a data watchpoint.
func (k BreakwatchKind) IsWatch() bool {
	return k >= WatchWrite
}

// Breakwatch is one breakpoint or watchpoint. Slot is filled in by the
// target when the comparator is allocated.
type Breakwatch struct {
	Kind BreakwatchKind
	Addr uint32
	Size uint32
	Slot int
}

// Command is a monitor command a target contributes to the session layer.
// Run writes its report to out.
type Command struct {
	Name string
	Help string
	Run  func(out io.Writer, args []string) error
}

// Target is a debug core owned by a List.
type Target interface {
	// Driver names the core, such as "ARM Cortex-M4".
	Driver() string
	// Description is the register description announced to a debugger.
	Description() string

	Attach() error
	Detach() error
	// CheckError reports and clears a sticky bus error.
	CheckError() bool

	MemRead(dst []byte, addr uint32) error
	MemWrite(addr uint32, src []byte) error
	// RegsRead and RegsWrite transfer the whole register file in
	// description order.
	RegsRead() ([]uint32, error)
	RegsWrite(regs []uint32) error

	Reset() error
	HaltRequest()
	// HaltPoll reports why the core stopped. The address is the data
	// address of a watchpoint hit.
	HaltPoll() (HaltReason, uint32)
	HaltResume(step bool)

	BreakwatchSet(bw *Breakwatch) error
	BreakwatchClear(bw *Breakwatch) error

	Commands() []Command

	// Release drops every resource the target holds, including its
	// reference on the access port.
	Release()
}
