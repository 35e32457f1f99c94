package target

import (
	"io"
	"testing"
)

type stubTarget struct {
	name     string
	released int
}

func (s *stubTarget) Driver() string { return s.name }
func (s *stubTarget) Description() string { return "" }
func (s *stubTarget) Attach() error { return nil }
func (s *stubTarget) Detach() error { return nil }
func (s *stubTarget) CheckError() bool { return false }
func (s *stubTarget) MemRead([]byte, uint32) error { return nil }
func (s *stubTarget) MemWrite(uint32, []byte) error { return nil }
func (s *stubTarget) RegsRead() ([]uint32, error) { return nil, nil }
func (s *stubTarget) RegsWrite([]uint32) error { return nil }
func (s *stubTarget) Reset() error { return nil }
func (s *stubTarget) HaltRequest() {}
func (s *stubTarget) HaltPoll() (HaltReason, uint32) { return HaltRunning, 0 }
func (s *stubTarget) HaltResume(bool) {}
func (s *stubTarget) BreakwatchSet(*Breakwatch) error { return ErrUnsupported }
func (s *stubTarget) BreakwatchClear(*Breakwatch) error { return ErrUnsupported }
func (s *stubTarget) Release() { s.released++ }

func (s *stubTarget) Commands() []Command {
	return []Command{{Name: "noop", Run: func(io.Writer, []string) error { return nil }}}
}

func TestList(t *testing.T) {
	var l List
	a, b := &stubTarget{name: "a"}, &stubTarget{name: "b"}

	if n := l.Add(a); n != 0 {
		t.Errorf("Add(a) = %d", n)
	}
	if n := l.Add(b); n != 1 {
		t.Errorf("Add(b) = %d", n)
	}
	if l.Len() != 2 || l.Get(1) != Target(b) {
		t.Errorf("Len %d Get(1) %v", l.Len(), l.Get(1))
	}
	if l.Get(2) != nil || l.Get(-1) != nil {
		t.Error("Get out of range returned a target")
	}

	all := l.All()
	all[0] = nil
	if l.Get(0) == nil {
		t.Error("All() exposed the backing slice")
	}

	l.Free()
	if a.released != 1 || b.released != 1 {
		t.Errorf("released a=%d b=%d", a.released, b.released)
	}
	if l.Len() != 0 {
		t.Errorf("Len after Free = %d", l.Len())
	}
	l.Free()
	if a.released != 1 {
		t.Error("second Free released again")
	}
}

func TestHaltReasonString(t *testing.T) {
	tests := []struct {
		r    HaltReason
		want string
	}{
		{HaltRunning, "running"},
		{HaltError, "error"},
		{HaltRequest, "request"},
		{HaltStepping, "stepping"},
		{HaltBreakpoint, "breakpoint"},
		{HaltWatchpoint, "watchpoint"},
		{HaltFault, "fault"},
		{HaltReason(42), "HaltReason(42)"},
	}
	for _, tt := range tests {
		if got := tt.r.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.r, got, tt.want)
		}
	}
}

func TestBreakwatchKind(t *testing.T) {
	for _, k := range []BreakwatchKind{BreakSoft, BreakHard} {
		if k.IsWatch() {
			t.Errorf("%v.IsWatch() = true", k)
		}
	}
	for _, k := range []BreakwatchKind{WatchWrite, WatchRead, WatchAccess} {
		if !k.IsWatch() {
			t.Errorf("%v.IsWatch() = false", k)
		}
	}
}
