package cortexm

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	log "github.com/sirupsen/logrus"
)

// Semihosting operation numbers.
const (
	SysOpen       = 0x01
	SysClose      = 0x02
	SysWriteC     = 0x03
	SysWrite0     = 0x04
	SysWrite      = 0x05
	SysRead       = 0x06
	SysReadC      = 0x07
	SysIsError    = 0x08
	SysIsTTY      = 0x09
	SysSeek       = 0x0a
	SysFLen       = 0x0c
	SysClock      = 0x10
	SysTime       = 0x11
	SysErrno      = 0x13
	SysGetCmdline = 0x15
	SysHeapInfo   = 0x16
	SysExit       = 0x18
	SysExitExt    = 0x20
	SysElapsed    = 0x30
	SysTickFreq   = 0x31
)

// Console handles as seen by the target.
const (
	handleStdout = 1
	handleStderr = 2
)

// errnoEBADF is the newlib errno for a bad handle.
const errnoEBADF = 9

// write0Limit caps the string SYS_WRITE0 will fetch.
const write0Limit = 1024

// writeChunk is the largest piece of a SYS_WRITE buffer held on the host
// at once.
const writeChunk = 1024

// Memory is the target memory a semihosting host reads arguments from.
type Memory interface {
	MemRead(dst []byte, addr uint32) error
	MemWrite(addr uint32, src []byte) error
}

// Semihost services one semihosting call. op and param are the target's
// r0 and r1. result is written back to r0. stop reports that the target
// asked to end the session, which halts it instead of resuming.
type Semihost interface {
	Call(mem Memory, op, param uint32) (result uint32, stop bool)
}

// HeapInfo is the block returned by SYS_HEAPINFO.
type HeapInfo struct {
	HeapBase, HeapLimit   uint32
	StackBase, StackLimit uint32
}

// HostIO is a console-only semihosting host. Nil writers discard output
// and a nil reader reports end of file.
type HostIO struct {
	Stdout  io.Writer
	Stderr  io.Writer
	Stdin   io.Reader
	Cmdline string
	Heap    HeapInfo

	// ExitCode holds the reason code of the last SYS_EXIT.
	ExitCode uint32

	start time.Time
	errno uint32
}

// TickFreq is the SYS_ELAPSED tick rate.
const TickFreq = 1_000_000

func (h *HostIO) elapsed() time.Duration {
	if h.start.IsZero() {
		h.start = time.Now()
	}
	return time.Since(h.start)
}

func (h *HostIO) writer(handle uint32) io.Writer {
	switch handle {
	case handleStdout:
		if h.Stdout == nil {
			return io.Discard
		}
		return h.Stdout
	case handleStderr:
		if h.Stderr == nil {
			return io.Discard
		}
		return h.Stderr
	}
	return nil
}

func readWords(mem Memory, addr uint32, n int) ([]uint32, error) {
	buf := make([]byte, 4*n)
	if err := mem.MemRead(buf, addr); err != nil {
		return nil, err
	}
	words := make([]uint32, n)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(buf[4*i:])
	}
	return words, nil
}

func writeWords(mem Memory, addr uint32, words ...uint32) error {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}
	return mem.MemWrite(addr, buf)
}

const failed = ^uint32(0)

// Call implements Semihost.
func (h *HostIO) Call(mem Memory, op, param uint32) (uint32, bool) {
	h.elapsed()
	switch op {
	case SysWriteC:
		var c [1]byte
		if err := mem.MemRead(c[:], param); err != nil {
			return failed, false
		}
		h.writer(handleStdout).Write(c[:])
		return 0, false

	case SysWrite0:
		buf := make([]byte, write0Limit)
		if err := mem.MemRead(buf, param); err != nil {
			return failed, false
		}
		if i := bytes.IndexByte(buf, 0); i >= 0 {
			buf = buf[:i]
		}
		h.writer(handleStdout).Write(buf)
		return 0, false

	case SysWrite:
		args, err := readWords(mem, param, 3)
		if err != nil {
			return failed, false
		}
		w := h.writer(args[0])
		if w == nil {
			h.errno = errnoEBADF
			return failed, false
		}
		return copyOut(mem, w, args[1], args[2]), false

	case SysReadC:
		var c [1]byte
		if h.Stdin == nil {
			return failed, false
		}
		if _, err := io.ReadFull(h.Stdin, c[:]); err != nil {
			return failed, false
		}
		return uint32(c[0]), false

	case SysIsTTY:
		args, err := readWords(mem, param, 1)
		if err != nil {
			return failed, false
		}
		if h.writer(args[0]) != nil {
			return 1, false
		}
		return 0, false

	case SysClock:
		return uint32(h.elapsed() / (10 * time.Millisecond)), false

	case SysTime:
		return uint32(time.Now().Unix()), false

	case SysErrno:
		return h.errno, false

	case SysGetCmdline:
		args, err := readWords(mem, param, 2)
		if err != nil {
			return failed, false
		}
		cmd := append([]byte(h.Cmdline), 0)
		if uint32(len(cmd)) > args[1] {
			return failed, false
		}
		if mem.MemWrite(args[0], cmd) != nil || writeWords(mem, param+4, uint32(len(h.Cmdline))) != nil {
			return failed, false
		}
		return 0, false

	case SysHeapInfo:
		args, err := readWords(mem, param, 1)
		if err != nil {
			return failed, false
		}
		hi := h.Heap
		if writeWords(mem, args[0], hi.HeapBase, hi.HeapLimit, hi.StackBase, hi.StackLimit) != nil {
			return failed, false
		}
		return 0, false

	case SysExit, SysExitExt:
		h.ExitCode = param
		return 0, true

	case SysElapsed:
		ticks := uint64(h.elapsed() / time.Microsecond)
		if writeWords(mem, param, uint32(ticks), uint32(ticks>>32)) != nil {
			return failed, false
		}
		return 0, false

	case SysTickFreq:
		return TickFreq, false
	}

	log.Debugf("cortexm: unsupported semihosting call 0x%02x", op)
	return failed, false
}

// semihostRequest services the BKPT 0xAB the core halted on. It reports
// whether the host asked to stop.
func (t *Target) semihostRequest() bool {
	op, err := t.RegRead(0)
	if err != nil {
		return true
	}
	param, err := t.RegRead(1)
	if err != nil {
		return true
	}
	log.WithField("ap", t.ap.String()).Debugf("cortexm: semihosting call 0x%02x (0x%08x)", op, param)
	result, stop := t.host.Call(t, op, param)
	if err := t.RegWrite(0, result); err != nil {
		return true
	}
	return stop
}

// copyOut streams n bytes at addr to w in chunks and returns the number
// of bytes left unwritten.
func copyOut(mem Memory, w io.Writer, addr, n uint32) uint32 {
	buf := make([]byte, min(n, writeChunk))
	for n > 0 {
		chunk := buf[:min(n, uint32(len(buf)))]
		if err := mem.MemRead(chunk, addr); err != nil {
			return n
		}
		written, err := w.Write(chunk)
		n -= uint32(written)
		if err != nil || written < len(chunk) {
			return n
		}
		addr += uint32(written)
	}
	return 0
}
