package adi

import (
	"encoding/binary"
	"fmt"
)

// TAR auto-increment is only guaranteed within a 1KiB block.
const tarWrapMask = 0x3ff

type accessSize uint8

const (
	size8  accessSize = 1
	size16 accessSize = 2
	size32 accessSize = 4
)

func (s accessSize) csw() uint32 {
	switch s {
	case size8:
		return CSWSizeByte
	case size16:
		return CSWSizeHalfword
	}
	return CSWSizeWord
}

// sizeFor picks the widest naturally aligned transfer for addr with n bytes
// remaining.
func sizeFor(addr uint64, n int) accessSize {
	switch {
	case addr&3 == 0 && n >= 4:
		return size32
	case addr&1 == 0 && n >= 2:
		return size16
	}
	return size8
}

// setup programs CSW and TAR for a run of auto-incrementing transfers.
func (ap *AP) setup(addr uint64, size accessSize) error {
	if err := ap.WriteReg(APCSW, ap.CSW|CSWAddrIncSingle|size.csw()); err != nil {
		return err
	}
	if ap.Flags&APFlag64Bit != 0 {
		if err := ap.WriteReg(APTARHigh, uint32(addr>>32)); err != nil {
			return err
		}
	}
	return ap.WriteReg(APTAR, uint32(addr))
}

// MemRead fills dst from target memory at addr through this MEM-AP.
func (ap *AP) MemRead(dst []byte, addr uint64) error {
	var cur accessSize
	for len(dst) > 0 {
		size := sizeFor(addr, len(dst))
		if size != cur || addr&tarWrapMask == 0 {
			if err := ap.setup(addr, size); err != nil {
				return fmt.Errorf("adi: %s: read 0x%x: %w", ap, addr, err)
			}
			cur = size
		}
		v, err := ap.ReadReg(APDRW)
		if err != nil {
			return fmt.Errorf("adi: %s: read 0x%x: %w", ap, addr, err)
		}
		lane := uint(addr&3) * 8
		for i := 0; i < int(size); i++ {
			dst[i] = byte(v >> (lane + 8*uint(i)))
		}
		dst = dst[size:]
		addr += uint64(size)
	}
	return nil
}

// MemWrite stores src to target memory at addr through this MEM-AP.
func (ap *AP) MemWrite(addr uint64, src []byte) error {
	var cur accessSize
	for len(src) > 0 {
		size := sizeFor(addr, len(src))
		if size != cur || addr&tarWrapMask == 0 {
			if err := ap.setup(addr, size); err != nil {
				return fmt.Errorf("adi: %s: write 0x%x: %w", ap, addr, err)
			}
			cur = size
		}
		lane := uint(addr&3) * 8
		var v uint32
		for i := 0; i < int(size); i++ {
			v |= uint32(src[i]) << (lane + 8*uint(i))
		}
		if err := ap.WriteReg(APDRW, v); err != nil {
			return fmt.Errorf("adi: %s: write 0x%x: %w", ap, addr, err)
		}
		src = src[size:]
		addr += uint64(size)
	}
	return nil
}

// Read32 reads one word of target memory.
func (ap *AP) Read32(addr uint64) (uint32, error) {
	var buf [4]byte
	if err := ap.MemRead(buf[:], addr); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// Write32 writes one word of target memory.
func (ap *AP) Write32(addr uint64, value uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	return ap.MemWrite(addr, buf[:])
}

// Read16 reads one halfword of target memory.
func (ap *AP) Read16(addr uint64) (uint16, error) {
	var buf [2]byte
	if err := ap.MemRead(buf[:], addr); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}
