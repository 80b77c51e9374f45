package emu

import "math"

// Coprocessor1 is the floating-point register bank: 32 single-width
// registers that double-precision operations access as even-numbered
// pairs, little-endian within the pair.
type Coprocessor1 struct {
	regs [32]uint32
}

// NewCoprocessor1 creates a zeroed floating-point bank.
func NewCoprocessor1() *Coprocessor1 {
	return &Coprocessor1{}
}

// Reset zeroes every register.
func (cp *Coprocessor1) Reset() {
	cp.regs = [32]uint32{}
}

// Read returns the raw 32-bit contents of one register.
func (cp *Coprocessor1) Read(reg uint8) uint32 {
	return cp.regs[reg&31]
}

// Write sets the raw 32-bit contents of one register.
func (cp *Coprocessor1) Write(reg uint8, value uint32) {
	cp.regs[reg&31] = value
}

// ReadPair returns the 64-bit value held by the even/odd register pair
// starting at reg. The low word lives in the even register.
func (cp *Coprocessor1) ReadPair(reg uint8) uint64 {
	reg &= 30
	return uint64(cp.regs[reg]) | uint64(cp.regs[reg+1])<<32
}

// WritePair sets the even/odd register pair starting at reg.
func (cp *Coprocessor1) WritePair(reg uint8, value uint64) {
	reg &= 30
	cp.regs[reg] = uint32(value)
	cp.regs[reg+1] = uint32(value >> 32)
}

// ReadFloat interprets one register as a single-precision value.
func (cp *Coprocessor1) ReadFloat(reg uint8) float32 {
	return math.Float32frombits(cp.Read(reg))
}

// WriteFloat stores a single-precision value.
func (cp *Coprocessor1) WriteFloat(reg uint8, v float32) {
	cp.Write(reg, math.Float32bits(v))
}

// ReadDouble interprets a register pair as a double-precision value.
func (cp *Coprocessor1) ReadDouble(reg uint8) float64 {
	return math.Float64frombits(cp.ReadPair(reg))
}

// WriteDouble stores a double-precision value into a register pair.
func (cp *Coprocessor1) WriteDouble(reg uint8, v float64) {
	cp.WritePair(reg, math.Float64bits(v))
}
