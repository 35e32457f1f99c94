package cortexm

import (
	"fmt"
	"io"
	"strings"
)

var vectorNames = []struct {
	name string
	bit  uint32
}{
	{"reset", demcrVCCoreReset},
	{"mm", demcrVCMMErr},
	{"nocp", demcrVCNoCPErr},
	{"chk", demcrVCChkErr},
	{"stat", demcrVCStatErr},
	{"bus", demcrVCBusErr},
	{"int", demcrVCIntErr},
	{"hard", demcrVCHardErr},
}

const vectorUsage = "(vector ...) where vector is one of: reset mm nocp chk stat bus int hard"

func vectorBit(name string) (uint32, bool) {
	for _, v := range vectorNames {
		if v.name == name {
			return v.bit, true
		}
	}
	return 0, false
}

// vectorCatchCommand implements "vector_catch enable|disable vector...".
// With no arguments it only prints the current set.
func (t *Target) vectorCatchCommand(out io.Writer, args []string) error {
	if len(args) > 0 {
		if len(args) == 1 {
			return fmt.Errorf("usage: vector_catch enable|disable %s", vectorUsage)
		}
		var mask uint32
		for _, name := range args[1:] {
			bit, ok := vectorBit(name)
			if !ok {
				return fmt.Errorf("vector_catch: unknown vector %q", name)
			}
			mask |= bit
		}
		switch args[0] {
		case "enable":
			t.demcr |= mask
		case "disable":
			t.demcr &^= mask
		default:
			return fmt.Errorf("usage: vector_catch enable|disable %s", vectorUsage)
		}
		if err := t.write32(regDEMCR, t.demcr); err != nil {
			return fmt.Errorf("vector_catch: write DEMCR: %w", err)
		}
	}

	var caught []string
	for _, v := range vectorNames {
		if t.demcr&v.bit != 0 {
			caught = append(caught, v.name)
		}
	}
	if len(caught) == 0 {
		fmt.Fprintln(out, "Catching vectors: none")
		return nil
	}
	fmt.Fprintf(out, "Catching vectors: %s\n", strings.Join(caught, " "))
	return nil
}
