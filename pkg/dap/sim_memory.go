package dap

import "sort"

// ReadHook may answer a word read in place of the backing store.
type ReadHook func(addr uint64) (value uint32, handled bool, err error)

// WriteHook sees every word write before it reaches the backing store.
// mask selects the byte lanes being written.
type WriteHook func(addr uint64, value, mask uint32) (handled bool, err error)

// SimDevice is a memory-mapped peripheral model. Offsets are relative
// to the mapped base and word aligned.
type SimDevice interface {
	Read32(off uint64) (uint32, error)
	Write32(off uint64, value, mask uint32) error
}

type simRegion struct {
	base, size uint64
	dev        SimDevice
}

// SimMemory is a sparse word-addressed little-endian memory. Unwritten
// words read as zero. Mapped devices take precedence over the hooks, and
// the hooks over the backing store.
type SimMemory struct {
	words   map[uint64]uint32
	regions []simRegion

	OnRead  ReadHook
	OnWrite WriteHook
}

// NewSimMemory returns an empty memory.
func NewSimMemory() *SimMemory {
	return &SimMemory{words: make(map[uint64]uint32)}
}

// Map routes accesses in [base, base+size) to dev.
func (m *SimMemory) Map(base, size uint64, dev SimDevice) {
	m.regions = append(m.regions, simRegion{base: base, size: size, dev: dev})
}

func (m *SimMemory) device(addr uint64) (SimDevice, uint64) {
	for _, r := range m.regions {
		if addr >= r.base && addr-r.base < r.size {
			return r.dev, addr - r.base
		}
	}
	return nil, 0
}

// Poke32 stores v at the word containing addr, bypassing hooks.
func (m *SimMemory) Poke32(addr uint64, v uint32) {
	m.words[addr&^3] = v
}

// Peek32 returns the word containing addr, bypassing hooks.
func (m *SimMemory) Peek32(addr uint64) uint32 {
	return m.words[addr&^3]
}

// PokeBytes stores b starting at addr, bypassing hooks.
func (m *SimMemory) PokeBytes(addr uint64, b []byte) {
	for i, c := range b {
		a := addr + uint64(i)
		shift := uint(a&3) * 8
		w := m.words[a&^3]
		w = w&^(0xff<<shift) | uint32(c)<<shift
		m.words[a&^3] = w
	}
}

// PeekBytes returns n bytes starting at addr, bypassing hooks.
func (m *SimMemory) PeekBytes(addr uint64, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		a := addr + uint64(i)
		out[i] = byte(m.words[a&^3] >> (uint(a&3) * 8))
	}
	return out
}

// Written returns the addresses of every stored word in ascending order.
func (m *SimMemory) Written() []uint64 {
	addrs := make([]uint64, 0, len(m.words))
	for a := range m.words {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

func (m *SimMemory) read(addr uint64) (uint32, error) {
	addr &^= 3
	if dev, off := m.device(addr); dev != nil {
		return dev.Read32(off)
	}
	if m.OnRead != nil {
		v, handled, err := m.OnRead(addr)
		if err != nil || handled {
			return v, err
		}
	}
	return m.words[addr], nil
}

func (m *SimMemory) write(addr uint64, value, mask uint32) error {
	addr &^= 3
	if dev, off := m.device(addr); dev != nil {
		return dev.Write32(off, value, mask)
	}
	if m.OnWrite != nil {
		handled, err := m.OnWrite(addr, value, mask)
		if err != nil || handled {
			return err
		}
	}
	m.words[addr] = m.words[addr]&^mask | value&mask
	return nil
}
