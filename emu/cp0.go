package emu

// Coprocessor 0 register numbers, as used by mfc0/mtc0.
const (
	CP0BadVAddr = 8  // faulting address on address errors
	CP0Status   = 12 // interrupt enable and mask bits
	CP0Cause    = 13 // exception code and pending-interrupt bits
	CP0EPC      = 14 // saved program counter for exception return
)

// Status register bits.
const (
	StatusIE  uint32 = 1 << 0 // global interrupt enable
	StatusEXL uint32 = 1 << 1 // exception level, set while handling

	// StatusIMShift positions the 8-bit interrupt mask field.
	StatusIMShift = 8
)

// Cause register fields.
const (
	CauseCodeShift = 2
	CauseCodeMask  uint32 = 0x1F << CauseCodeShift

	// CauseIPShift positions the 8-bit pending-interrupt field.
	CauseIPShift = 8

	// CauseBD marks an exception taken in a branch delay slot.
	CauseBD uint32 = 1 << 31
)

// Exception cause codes.
const (
	ExcInterrupt        = 0
	ExcAddrLoad         = 4 // address error on load or fetch
	ExcAddrStore        = 5
	ExcSyscall          = 8
	ExcBreakpoint       = 9
	ExcReservedInstruct = 10
	ExcOverflow         = 12
	ExcTrap             = 13
	ExcDivideByZero     = 15
)

// Coprocessor0 holds the exception-control registers. Values are plain
// 32-bit words addressed by CP0 register number; only the four
// registers the simulated machine uses are backed.
type Coprocessor0 struct {
	status   uint32
	cause    uint32
	epc      uint32
	badVAddr uint32
}

// NewCoprocessor0 creates the bank with interrupts enabled and the
// full interrupt mask open, the state user programs expect at startup.
func NewCoprocessor0() *Coprocessor0 {
	cp := &Coprocessor0{}
	cp.Reset()
	return cp
}

// Reset restores the power-on register values.
func (cp *Coprocessor0) Reset() {
	cp.status = StatusIE | 0xFF<<StatusIMShift
	cp.cause = 0
	cp.epc = 0
	cp.badVAddr = 0
}

// Read returns a CP0 register by number. Unbacked registers read zero.
func (cp *Coprocessor0) Read(reg uint8) uint32 {
	switch reg {
	case CP0BadVAddr:
		return cp.badVAddr
	case CP0Status:
		return cp.status
	case CP0Cause:
		return cp.cause
	case CP0EPC:
		return cp.epc
	}
	return 0
}

// Write sets a CP0 register by number. Writes to unbacked registers
// are dropped.
func (cp *Coprocessor0) Write(reg uint8, value uint32) {
	switch reg {
	case CP0BadVAddr:
		cp.badVAddr = value
	case CP0Status:
		cp.status = value
	case CP0Cause:
		cp.cause = value
	case CP0EPC:
		cp.epc = value
	}
}

// InterruptsEnabled reports whether external interrupts may be taken:
// the global enable set and not already at exception level.
func (cp *Coprocessor0) InterruptsEnabled() bool {
	return cp.status&StatusIE != 0 && cp.status&StatusEXL == 0
}

// EnterException records cause and return address and raises the
// exception level so nested interrupts stay masked.
func (cp *Coprocessor0) EnterException(code int, epc uint32, inDelaySlot bool) {
	cause := cp.cause &^ (CauseCodeMask | CauseBD)
	cause |= uint32(code) << CauseCodeShift
	if inDelaySlot {
		cause |= CauseBD
	}
	cp.cause = cause
	cp.epc = epc
	cp.status |= StatusEXL
}

// ExitException clears the exception level; eret then resumes at EPC.
func (cp *Coprocessor0) ExitException() {
	cp.status &^= StatusEXL
}
