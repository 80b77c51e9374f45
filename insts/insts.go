// Package insts provides MIPS32 instruction definitions and decoding.
//
// This package implements decoding of MIPS32 machine code into structured
// instruction representations. It covers the core integer ISA (arithmetic,
// logical, shift, load/store, branch, and jump instructions), the system
// instructions (SYSCALL, BREAK, ERET), coprocessor 0 moves, and a
// single/double-precision subset of coprocessor 1.
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst := decoder.Decode(0x20080005) // ADDI $t0, $zero, 5
//	fmt.Printf("Op: %v, Rt: %d, Rs: %d, Imm: %d\n", inst.Op, inst.Rt, inst.Rs, inst.Imm)
package insts

// Op represents a MIPS32 operation.
type Op uint16

// MIPS32 operations.
const (
	OpUnknown Op = iota

	// R-type arithmetic and logic
	OpADD
	OpADDU
	OpSUB
	OpSUBU
	OpAND
	OpOR
	OpXOR
	OpNOR
	OpSLT
	OpSLTU

	// Shifts
	OpSLL
	OpSRL
	OpSRA
	OpSLLV
	OpSRLV
	OpSRAV

	// Multiply/divide and HI/LO moves
	OpMULT
	OpMULTU
	OpDIV
	OpDIVU
	OpMFHI
	OpMTHI
	OpMFLO
	OpMTLO

	// Immediate arithmetic and logic
	OpADDI
	OpADDIU
	OpSLTI
	OpSLTIU
	OpANDI
	OpORI
	OpXORI
	OpLUI

	// Loads and stores
	OpLB
	OpLH
	OpLW
	OpLBU
	OpLHU
	OpSB
	OpSH
	OpSW

	// Branches
	OpBEQ
	OpBNE
	OpBLEZ
	OpBGTZ
	OpBLTZ
	OpBGEZ
	OpBLTZAL
	OpBGEZAL

	// Jumps
	OpJ
	OpJAL
	OpJR
	OpJALR

	// System
	OpSYSCALL
	OpBREAK
	OpERET

	// Coprocessor 0 moves
	OpMFC0
	OpMTC0

	// Coprocessor 1 moves and arithmetic
	OpMFC1
	OpMTC1
	OpFADD
	OpFSUB
	OpFMUL
	OpFDIV
	OpFMOV
	OpLWC1
	OpSWC1
	OpLDC1
	OpSDC1
)

// Format represents an instruction encoding format.
type Format uint8

// Instruction formats.
const (
	FormatUnknown     Format = iota
	FormatR                  // Register-type (funct-encoded, opcode 0)
	FormatShift              // Shift by immediate amount (R-type with shamt)
	FormatIArith             // Immediate arithmetic/logic
	FormatLoadStore          // Loads and stores (base register + signed offset)
	FormatBranch             // Conditional branches (PC-relative, two registers)
	FormatBranchZero         // Compare-against-zero branches (incl. REGIMM)
	FormatJump               // J-type absolute jumps
	FormatJumpReg            // Jump through register (JR, JALR)
	FormatSystem             // SYSCALL, BREAK, ERET
	FormatCop0               // MFC0, MTC0
	FormatCop1Move           // MFC1, MTC1
	FormatFPArith            // Coprocessor 1 arithmetic
	FormatFPLoadStore        // LWC1, SWC1, LDC1, SDC1
)

// Instruction represents a decoded MIPS32 instruction.
type Instruction struct {
	Op     Op     // Operation
	Format Format // Encoding format
	Word   uint32 // Raw encoded form

	// Integer register operands
	Rs uint8 // First source / base register
	Rt uint8 // Second source / destination of immediate forms
	Rd uint8 // Destination of R-type forms

	// Shift amount for FormatShift
	Shamt uint8

	// Sign-extended 16-bit immediate (arithmetic, load/store offsets,
	// branch displacements measured in instructions)
	Imm int32

	// Zero-extended 16-bit immediate (logical immediates, LUI)
	UImm uint32

	// 26-bit jump target field (word-addressed)
	Target uint32

	// Coprocessor 1 operands
	Fd, Fs, Ft uint8
	Double     bool // true for .d (paired-register) arithmetic

	// BREAK/SYSCALL code field
	Code uint32
}

// IsBranch reports whether the instruction can transfer control.
func (i *Instruction) IsBranch() bool {
	switch i.Format {
	case FormatBranch, FormatBranchZero, FormatJump, FormatJumpReg:
		return true
	}
	return false
}

// WritesLink reports whether the instruction writes a return address to $ra.
func (i *Instruction) WritesLink() bool {
	switch i.Op {
	case OpJAL, OpBLTZAL, OpBGEZAL:
		return true
	}
	return false
}
