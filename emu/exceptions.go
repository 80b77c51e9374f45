package emu

import (
	"fmt"

	"github.com/sarchlab/mipsim/mem"
)

// SimError describes a simulated-machine fault: the CP0 cause code,
// the program counter of the faulting instruction, and the faulting
// address when one is meaningful. It is the recoverable taxonomy the
// engine vectors through the exception dispatcher; it only surfaces to
// the caller when no handler is installed.
type SimError struct {
	Code    int
	PC      uint32
	Address uint32
	Message string
}

func (e *SimError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s at pc=0x%08x: %s", causeName(e.Code), e.PC, e.Message)
	}
	return fmt.Sprintf("%s at pc=0x%08x (address 0x%08x)", causeName(e.Code), e.PC, e.Address)
}

func causeName(code int) string {
	switch code {
	case ExcInterrupt:
		return "external interrupt"
	case ExcAddrLoad:
		return "address error on load or fetch"
	case ExcAddrStore:
		return "address error on store"
	case ExcSyscall:
		return "syscall exception"
	case ExcBreakpoint:
		return "breakpoint exception"
	case ExcReservedInstruct:
		return "reserved instruction"
	case ExcOverflow:
		return "arithmetic overflow"
	case ExcTrap:
		return "trap exception"
	case ExcDivideByZero:
		return "division by zero"
	}
	return fmt.Sprintf("exception %d", code)
}

// accessFault converts a rejected memory access into the simulated
// machine's fault taxonomy.
func accessFault(err *mem.AccessError, pc uint32) *SimError {
	code := ExcAddrLoad
	if err.Kind == mem.AccessWrite {
		code = ExcAddrStore
	}
	return &SimError{Code: code, PC: pc, Address: err.Address, Message: err.Error()}
}

// dispatch vectors a fault or interrupt: saves cause and EPC in
// coprocessor 0 and redirects to the kernel handler when one is
// assembled, or terminates the program with the fault when not.
// Synchronous exceptions are never maskable; the caller gates
// external interrupts on the status register before coming here.
func (e *Engine) dispatch(fault *SimError, epc uint32, inDelaySlot bool) StepResult {
	e.backStepper.RecordCP0(CP0Status, e.cp0.Read(CP0Status))
	e.backStepper.RecordCP0(CP0Cause, e.cp0.Read(CP0Cause))
	e.backStepper.RecordCP0(CP0EPC, e.cp0.Read(CP0EPC))
	e.backStepper.RecordCP0(CP0BadVAddr, e.cp0.Read(CP0BadVAddr))

	e.cp0.Write(CP0BadVAddr, fault.Address)
	e.cp0.EnterException(fault.Code, epc, inDelaySlot)

	if e.program != nil && e.program.HasHandler {
		// A pending delayed branch does not survive into the handler.
		e.branch = branchState{}
		e.regFile.SetPC(e.memory.Configuration().ExceptionHandler)
		return StepResult{}
	}

	e.state = StateTerminated
	return StepResult{Terminated: true, ExitCode: -1, Err: fault}
}
