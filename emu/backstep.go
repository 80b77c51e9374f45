package emu

import (
	"github.com/sarchlab/mipsim/mem"
)

// undoKind tags one recorded mutation variant.
type undoKind uint8

const (
	undoRegister  undoKind = iota // GPR, PC, HI, or LO by register id
	undoCP0                       // coprocessor 0 register
	undoCP1                       // coprocessor 1 register
	undoMemory                    // one memory write
	undoDelaySlot                 // pending delayed-branch state
	undoHeapTop                   // sbrk allocation pointer
	undoInterrupt                 // consumed external-interrupt latch
)

// undoEntry records the pre-state of one committed mutation. Entries
// carrying the same sequence number belong to the same instruction.
type undoEntry struct {
	seq  uint64
	kind undoKind

	reg   int
	addr  uint32
	width mem.Width
	prior uint32

	priorActive bool // delay-slot variant: branch pending flag
}

// BackStepper makes forward execution reversible. The engine records
// the pre-state of every mutation before committing it; BackStep pops
// and inverts one instruction's worth of entries. History is cleared
// on reset or re-assembly and is unbounded otherwise.
type BackStepper struct {
	regFile *RegFile
	cp0     *Coprocessor0
	cp1     *Coprocessor1
	memory  *mem.Memory

	enabled bool
	stack   []undoEntry
	seq     uint64
}

// NewBackStepper creates a back-stepper over the machine's state.
func NewBackStepper(rf *RegFile, cp0 *Coprocessor0, cp1 *Coprocessor1, m *mem.Memory) *BackStepper {
	return &BackStepper{regFile: rf, cp0: cp0, cp1: cp1, memory: m, enabled: true}
}

// SetEnabled toggles recording. Disabling discards existing history.
func (b *BackStepper) SetEnabled(enabled bool) {
	b.enabled = enabled
	if !enabled {
		b.Clear()
	}
}

// Enabled reports whether recording is on.
func (b *BackStepper) Enabled() bool { return b.enabled }

// Empty reports whether there is anything to undo.
func (b *BackStepper) Empty() bool { return len(b.stack) == 0 }

// Clear discards all history.
func (b *BackStepper) Clear() {
	b.stack = b.stack[:0]
}

// Begin opens a new instruction's undo group. Every Record call until
// the next Begin belongs to this group.
func (b *BackStepper) Begin() {
	b.seq++
}

func (b *BackStepper) push(e undoEntry) {
	if !b.enabled {
		return
	}
	e.seq = b.seq
	b.stack = append(b.stack, e)
}

// RecordRegister saves the prior value of a GPR, PC, HI, or LO.
func (b *BackStepper) RecordRegister(reg int, prior uint32) {
	b.push(undoEntry{kind: undoRegister, reg: reg, prior: prior})
}

// RecordCP0 saves the prior value of a coprocessor 0 register.
func (b *BackStepper) RecordCP0(reg uint8, prior uint32) {
	b.push(undoEntry{kind: undoCP0, reg: int(reg), prior: prior})
}

// RecordCP1 saves the prior value of a coprocessor 1 register.
func (b *BackStepper) RecordCP1(reg uint8, prior uint32) {
	b.push(undoEntry{kind: undoCP1, reg: int(reg), prior: prior})
}

// RecordMemory saves the prior contents of one memory location.
func (b *BackStepper) RecordMemory(addr uint32, w mem.Width, prior uint32) {
	b.push(undoEntry{kind: undoMemory, addr: addr, width: w, prior: prior})
}

// RecordDelaySlot saves the prior pending-branch state.
func (b *BackStepper) RecordDelaySlot(priorActive bool, priorTarget uint32) {
	b.push(undoEntry{kind: undoDelaySlot, priorActive: priorActive, prior: priorTarget})
}

// RecordHeapTop saves the prior sbrk allocation pointer.
func (b *BackStepper) RecordHeapTop(prior uint32) {
	b.push(undoEntry{kind: undoHeapTop, prior: prior})
}

// RecordInterrupt saves the external-interrupt latch the dispatch is
// about to consume, so undoing the dispatch re-raises the request.
func (b *BackStepper) RecordInterrupt(level int32) {
	b.push(undoEntry{kind: undoInterrupt, reg: int(level)})
}

// restored carries the engine-tracked state a BackStep recovered, in
// addition to what the register banks and memory hold themselves.
type restored struct {
	branch       branchState
	hadBranch    bool
	interrupt    int32
	hadInterrupt bool
}

// BackStep undoes the most recently executed instruction, restoring
// registers, memory, the pending-branch state, and the interrupt
// latch in reverse commit order. The engine-tracked pieces are
// returned for it to reinstate. Returns false when empty.
func (b *BackStepper) BackStep() (r restored, ok bool) {
	if len(b.stack) == 0 {
		return restored{}, false
	}
	seq := b.stack[len(b.stack)-1].seq
	for len(b.stack) > 0 {
		e := b.stack[len(b.stack)-1]
		if e.seq != seq {
			break
		}
		b.stack = b.stack[:len(b.stack)-1]
		switch e.kind {
		case undoRegister:
			switch e.reg {
			case RegPC:
				b.regFile.SetPC(e.prior)
			case RegHI:
				b.regFile.SetHI(e.prior)
			case RegLO:
				b.regFile.SetLO(e.prior)
			default:
				b.regFile.Write(uint8(e.reg), e.prior, true)
			}
		case undoCP0:
			b.cp0.Write(uint8(e.reg), e.prior)
		case undoCP1:
			b.cp1.Write(uint8(e.reg), e.prior)
		case undoMemory:
			// The forward write passed the same policy checks, so the
			// restore cannot fail.
			_ = b.memory.Write(e.addr, e.width, e.prior, true)
		case undoDelaySlot:
			r.branch = branchState{active: e.priorActive, target: e.prior}
			r.hadBranch = true
		case undoHeapTop:
			b.memory.SetHeapTop(e.prior)
		case undoInterrupt:
			r.interrupt = int32(e.reg)
			r.hadInterrupt = true
		}
	}
	return r, true
}
