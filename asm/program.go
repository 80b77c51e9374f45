package asm

import (
	"fmt"
	"os"

	"github.com/sarchlab/mipsim/insts"
)

// SourceFile is one input to the assembler.
type SourceFile struct {
	Name string
	Text string
}

// ReadSourceFile loads a source file from disk.
func ReadSourceFile(path string) (SourceFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SourceFile{}, fmt.Errorf("reading source file: %w", err)
	}
	return SourceFile{Name: path, Text: string(data)}, nil
}

// Statement is one assembled instruction: its source position, encoded
// word, decoded form, and memory address. Immutable once pass 2
// completes; the engine addresses statements by program-counter value.
type Statement struct {
	File    string
	Line    int
	Source  string
	Address uint32
	Word    uint32
	Inst    *insts.Instruction

	// pass-2 working state
	ln  sourceLine
	def insts.Def
}

// Program is the output of one successful assembly: the ordered
// statement list, an address index over it, and the symbol table.
// Discarded and replaced on the next assemble or reset.
type Program struct {
	Statements []*Statement
	ByAddress  map[uint32]*Statement
	Symbols    *SymbolTable

	// EntryPoint is the initial program counter: the first text
	// instruction, or the address of global label "main" when the
	// start-at-main option is set and main is defined.
	EntryPoint uint32

	// DelayedBranching records the policy the program was assembled
	// under. Changing the policy invalidates the program.
	DelayedBranching bool

	// HasHandler reports whether an instruction was assembled at the
	// configuration's exception handler address.
	HasHandler bool
}

// StatementAt returns the statement mapped at the given address.
func (p *Program) StatementAt(addr uint32) (*Statement, bool) {
	s, ok := p.ByAddress[addr]
	return s, ok
}
