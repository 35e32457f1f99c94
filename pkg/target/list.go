package target

// List owns the targets discovered on one debug port. Discovery appends
// to it and every session operation that must visit each core, such as
// resuming cores after a scan, walks it.
type List struct {
	targets []Target
}

// Add appends t and returns its index.
func (l *List) Add(t Target) int {
	l.targets = append(l.targets, t)
	return len(l.targets) - 1
}

// Len returns the number of targets.
func (l *List) Len() int {
	return len(l.targets)
}

// Get returns target n, or nil if n is out of range.
func (l *List) Get(n int) Target {
	if n < 0 || n >= len(l.targets) {
		return nil
	}
	return l.targets[n]
}

// All returns the targets in discovery order.
func (l *List) All() []Target {
	out := make([]Target, len(l.targets))
	copy(out, l.targets)
	return out
}

// Free releases every target and empties the list.
func (l *List) Free() {
	for _, t := range l.targets {
		t.Release()
	}
	l.targets = nil
}
