// Package emu provides functional MIPS32 simulation: the register
// banks, the execution engine with its reversible stepping support,
// and the exception/interrupt dispatcher.
package emu

import (
	"github.com/sarchlab/mipsim/mem"
)

// Identifiers for registers outside the general-purpose bank, used in
// register access notices and undo records.
const (
	RegPC = 32 + iota
	RegHI
	RegLO
)

// RegNotice reports one register access to subscribers.
type RegNotice struct {
	// Register is the GPR number 0-31, or RegPC/RegHI/RegLO.
	Register int
	Value    uint32
	Kind     mem.AccessKind

	// FromCPU marks accesses made by simulated instruction execution,
	// as opposed to tooling reads and writes.
	FromCPU bool
}

// RegSubscriber observes register accesses.
type RegSubscriber interface {
	OnRegAccess(RegNotice)
}

type regSubscription struct {
	register int
	sub      RegSubscriber
}

// RegFile is the general-purpose register bank plus the program
// counter and the HI/LO multiply results. Register 0 ($zero) accepts
// writes, so undo records stay uniform, but always reads as zero.
type RegFile struct {
	gpr [32]uint32
	pc  uint32
	hi  uint32
	lo  uint32

	subs []regSubscription
}

// NewRegFile creates a zeroed register file.
func NewRegFile() *RegFile {
	return &RegFile{}
}

// Subscribe registers sub for accesses to one register.
func (r *RegFile) Subscribe(register int, sub RegSubscriber) {
	r.subs = append(r.subs, regSubscription{register: register, sub: sub})
}

// Unsubscribe removes every subscription held by sub.
func (r *RegFile) Unsubscribe(sub RegSubscriber) {
	kept := r.subs[:0]
	for _, s := range r.subs {
		if s.sub != sub {
			kept = append(kept, s)
		}
	}
	r.subs = kept
}

func (r *RegFile) notify(n RegNotice) {
	for _, s := range r.subs {
		if s.register == n.Register {
			s.sub.OnRegAccess(n)
		}
	}
}

// Read returns a general-purpose register value. Register 0 reads zero.
func (r *RegFile) Read(reg uint8, fromCPU bool) uint32 {
	var value uint32
	if reg != 0 {
		value = r.gpr[reg]
	}
	r.notify(RegNotice{Register: int(reg), Value: value, Kind: mem.AccessRead, FromCPU: fromCPU})
	return value
}

// Write stores a general-purpose register value.
func (r *RegFile) Write(reg uint8, value uint32, fromCPU bool) {
	r.gpr[reg] = value
	r.notify(RegNotice{Register: int(reg), Value: value, Kind: mem.AccessWrite, FromCPU: fromCPU})
}

// Peek reads a register without posting a notice; used by undo
// recording and state dumps.
func (r *RegFile) Peek(reg uint8) uint32 {
	if reg == 0 {
		return 0
	}
	return r.gpr[reg]
}

// PC returns the program counter.
func (r *RegFile) PC() uint32 {
	return r.pc
}

// SetPC sets the program counter.
func (r *RegFile) SetPC(pc uint32) {
	r.pc = pc
	r.notify(RegNotice{Register: RegPC, Value: pc, Kind: mem.AccessWrite, FromCPU: true})
}

// HI returns the multiply/divide high result register.
func (r *RegFile) HI() uint32 { return r.hi }

// LO returns the multiply/divide low result register.
func (r *RegFile) LO() uint32 { return r.lo }

// SetHI sets the multiply/divide high result register.
func (r *RegFile) SetHI(v uint32) {
	r.hi = v
	r.notify(RegNotice{Register: RegHI, Value: v, Kind: mem.AccessWrite, FromCPU: true})
}

// SetLO sets the multiply/divide low result register.
func (r *RegFile) SetLO(v uint32) {
	r.lo = v
	r.notify(RegNotice{Register: RegLO, Value: v, Kind: mem.AccessWrite, FromCPU: true})
}

// Reset zeroes every register and reinstalls the conventional initial
// values for the stack and global pointers. Subscriptions survive.
func (r *RegFile) Reset(cfg mem.Configuration, entry uint32) {
	r.gpr = [32]uint32{}
	r.hi = 0
	r.lo = 0
	r.gpr[28] = cfg.GlobalPointer // $gp
	r.gpr[29] = cfg.StackBase     // $sp
	r.pc = entry
}
