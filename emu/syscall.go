package emu

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sarchlab/mipsim/mem"
)

// Syscall service numbers, read from $v0.
const (
	SyscallPrintInt    uint32 = 1
	SyscallPrintString uint32 = 4
	SyscallReadInt     uint32 = 5
	SyscallReadString  uint32 = 8
	SyscallSbrk        uint32 = 9
	SyscallExit        uint32 = 10
	SyscallPrintChar   uint32 = 11
	SyscallReadChar    uint32 = 12
	SyscallOpen        uint32 = 13
	SyscallRead        uint32 = 14
	SyscallWrite       uint32 = 15
	SyscallClose       uint32 = 16
	SyscallExit2       uint32 = 17
)

// Argument and result register numbers for the syscall convention.
const (
	regV0 = 2
	regA0 = 4
	regA1 = 5
	regA2 = 6
)

// SyscallResult reports the outcome of one serviced syscall.
type SyscallResult struct {
	// Exited is true if the service terminated the program.
	Exited bool

	// ExitCode is the exit status when Exited is true.
	ExitCode int32

	// Fault is set when the service raised a machine fault, such as a
	// bad buffer address; the engine vectors it like any exception.
	Fault *SimError
}

// SyscallHandler services syscall instructions. The service number is
// in $v0 and arguments in $a0-$a2; results go back through $v0. All
// machine mutation must go through the engine's commit helpers so the
// back-stepper can reverse it.
type SyscallHandler interface {
	Handle(e *Engine) SyscallResult
}

// DefaultSyscallHandler implements the conventional console and file
// service set.
type DefaultSyscallHandler struct {
	stdin   *bufio.Reader
	stdout  io.Writer
	fdTable *FDTable
}

// NewDefaultSyscallHandler creates the standard handler.
func NewDefaultSyscallHandler(stdin io.Reader, stdout io.Writer) *DefaultSyscallHandler {
	return &DefaultSyscallHandler{
		stdin:   bufio.NewReader(stdin),
		stdout:  stdout,
		fdTable: NewFDTable(),
	}
}

// Reset closes every file the simulated program opened. The engine
// calls it whenever a program is assembled or cleared.
func (h *DefaultSyscallHandler) Reset() {
	h.fdTable.CloseAll()
}

// Handle services one syscall.
func (h *DefaultSyscallHandler) Handle(e *Engine) SyscallResult {
	service := e.regFile.Peek(regV0)
	a0 := e.regFile.Peek(regA0)

	switch service {
	case SyscallPrintInt:
		fmt.Fprintf(h.stdout, "%d", int32(a0))

	case SyscallPrintString:
		s, fault := h.readString(e, a0)
		if fault != nil {
			return SyscallResult{Fault: fault}
		}
		fmt.Fprint(h.stdout, s)

	case SyscallReadInt:
		line, err := h.stdin.ReadString('\n')
		if err != nil && line == "" {
			e.setReg(regV0, 0)
			break
		}
		v, perr := strconv.ParseInt(strings.TrimSpace(line), 10, 64)
		if perr != nil {
			v = 0
		}
		e.setReg(regV0, uint32(int32(v)))

	case SyscallReadString:
		return h.readInto(e, a0, e.regFile.Peek(regA1))

	case SyscallSbrk:
		prior := e.memory.HeapTop()
		addr, err := e.memory.AllocateHeap(a0)
		if err != nil {
			accessErr := err.(*mem.AccessError)
			return SyscallResult{Fault: accessFault(accessErr, e.stepPC)}
		}
		e.backStepper.RecordHeapTop(prior)
		e.setReg(regV0, addr)

	case SyscallExit:
		return SyscallResult{Exited: true}

	case SyscallPrintChar:
		fmt.Fprintf(h.stdout, "%c", rune(a0))

	case SyscallReadChar:
		c, err := h.stdin.ReadByte()
		if err != nil {
			c = 0
		}
		e.setReg(regV0, uint32(c))

	case SyscallOpen:
		path, fault := h.readString(e, a0)
		if fault != nil {
			return SyscallResult{Fault: fault}
		}
		flags := hostFlags(e.regFile.Peek(regA1))
		fd, err := h.fdTable.Open(path, flags, 0644)
		if err != nil {
			e.setReg(regV0, ^uint32(0))
			break
		}
		e.setReg(regV0, fd)

	case SyscallRead:
		fd := a0
		buf := make([]byte, e.regFile.Peek(regA2))
		n, err := h.fdTable.Read(fd, buf)
		if err != nil {
			e.setReg(regV0, ^uint32(0))
			break
		}
		base := e.regFile.Peek(regA1)
		for i := 0; i < n; i++ {
			if werr := e.storeMem(base+uint32(i), mem.WidthByte, uint32(buf[i])); werr != nil {
				return SyscallResult{Fault: werr}
			}
		}
		e.setReg(regV0, uint32(n))

	case SyscallWrite:
		fd := a0
		base := e.regFile.Peek(regA1)
		count := e.regFile.Peek(regA2)
		buf := make([]byte, count)
		for i := uint32(0); i < count; i++ {
			buf[i] = byte(e.memory.Peek(base+i, mem.WidthByte))
		}
		if fd == 1 || fd == 2 {
			n, _ := h.stdout.Write(buf)
			e.setReg(regV0, uint32(n))
			break
		}
		n, err := h.fdTable.Write(fd, buf)
		if err != nil {
			e.setReg(regV0, ^uint32(0))
			break
		}
		e.setReg(regV0, uint32(n))

	case SyscallClose:
		_ = h.fdTable.Close(a0)

	case SyscallExit2:
		return SyscallResult{Exited: true, ExitCode: int32(a0)}

	default:
		return SyscallResult{Fault: &SimError{
			Code: ExcSyscall, PC: e.stepPC,
			Message: fmt.Sprintf("unknown syscall service %d", service),
		}}
	}
	return SyscallResult{}
}

// readString walks a NUL-terminated string out of simulated memory.
func (h *DefaultSyscallHandler) readString(e *Engine, addr uint32) (string, *SimError) {
	var b strings.Builder
	for {
		v, err := e.memory.Read(addr, mem.WidthByte, true)
		if err != nil {
			return "", accessFault(err.(*mem.AccessError), e.stepPC)
		}
		if v == 0 {
			return b.String(), nil
		}
		b.WriteByte(byte(v))
		addr++
	}
}

// readInto reads a line of input into a simulated buffer, with the
// conventional NUL terminator and size-1 capacity.
func (h *DefaultSyscallHandler) readInto(e *Engine, base, size uint32) SyscallResult {
	if size == 0 {
		return SyscallResult{}
	}
	line, _ := h.stdin.ReadString('\n')
	if uint32(len(line)) > size-1 {
		line = line[:size-1]
	}
	for i := 0; i < len(line); i++ {
		if fault := e.storeMem(base+uint32(i), mem.WidthByte, uint32(line[i])); fault != nil {
			return SyscallResult{Fault: fault}
		}
	}
	if fault := e.storeMem(base+uint32(len(line)), mem.WidthByte, 0); fault != nil {
		return SyscallResult{Fault: fault}
	}
	return SyscallResult{}
}

// hostFlags maps the simulated open flags (0 read, 1 write-create,
// 9 append) onto the host's.
func hostFlags(flags uint32) int {
	switch flags {
	case 1:
		return os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case 9:
		return os.O_WRONLY | os.O_CREATE | os.O_APPEND
	default:
		return os.O_RDONLY
	}
}
