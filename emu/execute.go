package emu

import (
	"fmt"
	"math"

	"github.com/sarchlab/mipsim/insts"
	"github.com/sarchlab/mipsim/mem"
)

// execOutcome carries one instruction's control-flow result back to
// the step loop.
type execOutcome struct {
	fault    *SimError
	exited   bool
	exitCode int32

	// taken reports a control transfer; target is where to. immediate
	// bypasses the delay slot (eret).
	taken     bool
	immediate bool
	target    uint32
}

func taken(target uint32) execOutcome {
	return execOutcome{taken: true, target: target}
}

func fault(f *SimError) execOutcome {
	return execOutcome{fault: f}
}

// execute commits the effects of one decoded instruction. The program
// counter has already been advanced past the instruction; pc is the
// instruction's own address, used for branch arithmetic and fault
// attribution.
func (e *Engine) execute(inst *insts.Instruction, pc uint32) execOutcome {
	if inst.Op == insts.OpUnknown {
		return fault(&SimError{
			Code: ExcReservedInstruct, PC: pc,
			Message: fmt.Sprintf("reserved instruction word 0x%08x", inst.Word),
		})
	}

	switch inst.Format {
	case insts.FormatR:
		return e.executeR(inst, pc)
	case insts.FormatShift:
		e.executeShift(inst)
	case insts.FormatIArith:
		return e.executeIArith(inst, pc)
	case insts.FormatLoadStore:
		return e.executeLoadStore(inst, pc)
	case insts.FormatBranch:
		return e.executeBranch(inst, pc)
	case insts.FormatBranchZero:
		return e.executeBranchZero(inst, pc)
	case insts.FormatJump:
		target := (pc+4)&0xF0000000 | inst.Target<<2
		if inst.Op == insts.OpJAL {
			e.setReg(31, e.linkAddress(pc))
		}
		return taken(target)
	case insts.FormatJumpReg:
		target := e.regFile.Read(inst.Rs, true)
		if inst.Op == insts.OpJALR {
			e.setReg(inst.Rd, e.linkAddress(pc))
		}
		return taken(target)
	case insts.FormatSystem:
		return e.executeSystem(inst, pc)
	case insts.FormatCop0:
		if inst.Op == insts.OpMFC0 {
			e.setReg(inst.Rt, e.cp0.Read(inst.Rd))
		} else {
			e.setCP0(inst.Rd, e.regFile.Read(inst.Rt, true))
		}
	case insts.FormatCop1Move:
		if inst.Op == insts.OpMFC1 {
			e.setReg(inst.Rt, e.cp1.Read(inst.Fs))
		} else {
			e.setCP1(inst.Fs, e.regFile.Read(inst.Rt, true))
		}
	case insts.FormatFPArith:
		e.executeFPArith(inst)
	case insts.FormatFPLoadStore:
		return e.executeFPLoadStore(inst, pc)
	}
	return execOutcome{}
}

// linkAddress is the return address a linking jump or branch stores:
// past the delay slot when delayed branching is on.
func (e *Engine) linkAddress(pc uint32) uint32 {
	if e.asmOpts.DelayedBranching {
		return pc + 8
	}
	return pc + 4
}

func (e *Engine) executeR(inst *insts.Instruction, pc uint32) execOutcome {
	a := e.regFile.Read(inst.Rs, true)
	b := e.regFile.Read(inst.Rt, true)

	switch inst.Op {
	case insts.OpADD:
		r := a + b
		if addOverflows(int32(a), int32(b), int32(r)) {
			return fault(&SimError{Code: ExcOverflow, PC: pc, Message: "add overflow"})
		}
		e.setReg(inst.Rd, r)
	case insts.OpADDU:
		e.setReg(inst.Rd, a+b)
	case insts.OpSUB:
		r := a - b
		if subOverflows(int32(a), int32(b), int32(r)) {
			return fault(&SimError{Code: ExcOverflow, PC: pc, Message: "subtract overflow"})
		}
		e.setReg(inst.Rd, r)
	case insts.OpSUBU:
		e.setReg(inst.Rd, a-b)
	case insts.OpAND:
		e.setReg(inst.Rd, a&b)
	case insts.OpOR:
		e.setReg(inst.Rd, a|b)
	case insts.OpXOR:
		e.setReg(inst.Rd, a^b)
	case insts.OpNOR:
		e.setReg(inst.Rd, ^(a | b))
	case insts.OpSLT:
		e.setReg(inst.Rd, boolWord(int32(a) < int32(b)))
	case insts.OpSLTU:
		e.setReg(inst.Rd, boolWord(a < b))

	case insts.OpSLLV:
		e.setReg(inst.Rd, b<<(a&31))
	case insts.OpSRLV:
		e.setReg(inst.Rd, b>>(a&31))
	case insts.OpSRAV:
		e.setReg(inst.Rd, uint32(int32(b)>>(a&31)))

	case insts.OpMULT:
		prod := int64(int32(a)) * int64(int32(b))
		e.setHI(uint32(uint64(prod) >> 32))
		e.setLO(uint32(uint64(prod)))
	case insts.OpMULTU:
		prod := uint64(a) * uint64(b)
		e.setHI(uint32(prod >> 32))
		e.setLO(uint32(prod))
	case insts.OpDIV:
		// Division by zero leaves HI/LO unchanged, as the reference
		// machine leaves them undefined rather than trapping.
		if b != 0 {
			e.setLO(uint32(int32(a) / int32(b)))
			e.setHI(uint32(int32(a) % int32(b)))
		}
	case insts.OpDIVU:
		if b != 0 {
			e.setLO(a / b)
			e.setHI(a % b)
		}
	case insts.OpMFHI:
		e.setReg(inst.Rd, e.regFile.HI())
	case insts.OpMFLO:
		e.setReg(inst.Rd, e.regFile.LO())
	case insts.OpMTHI:
		e.setHI(a)
	case insts.OpMTLO:
		e.setLO(a)
	}
	return execOutcome{}
}

func (e *Engine) executeShift(inst *insts.Instruction) {
	v := e.regFile.Read(inst.Rt, true)
	switch inst.Op {
	case insts.OpSLL:
		e.setReg(inst.Rd, v<<inst.Shamt)
	case insts.OpSRL:
		e.setReg(inst.Rd, v>>inst.Shamt)
	case insts.OpSRA:
		e.setReg(inst.Rd, uint32(int32(v)>>inst.Shamt))
	}
}

func (e *Engine) executeIArith(inst *insts.Instruction, pc uint32) execOutcome {
	a := e.regFile.Read(inst.Rs, true)

	switch inst.Op {
	case insts.OpADDI:
		r := a + uint32(inst.Imm)
		if addOverflows(int32(a), inst.Imm, int32(r)) {
			return fault(&SimError{Code: ExcOverflow, PC: pc, Message: "add immediate overflow"})
		}
		e.setReg(inst.Rt, r)
	case insts.OpADDIU:
		e.setReg(inst.Rt, a+uint32(inst.Imm))
	case insts.OpSLTI:
		e.setReg(inst.Rt, boolWord(int32(a) < inst.Imm))
	case insts.OpSLTIU:
		e.setReg(inst.Rt, boolWord(a < uint32(inst.Imm)))
	case insts.OpANDI:
		e.setReg(inst.Rt, a&inst.UImm)
	case insts.OpORI:
		e.setReg(inst.Rt, a|inst.UImm)
	case insts.OpXORI:
		e.setReg(inst.Rt, a^inst.UImm)
	case insts.OpLUI:
		e.setReg(inst.Rt, inst.UImm<<16)
	}
	return execOutcome{}
}

func (e *Engine) executeLoadStore(inst *insts.Instruction, pc uint32) execOutcome {
	addr := e.regFile.Read(inst.Rs, true) + uint32(inst.Imm)

	load := func(w mem.Width) (uint32, *SimError) {
		v, err := e.memory.Read(addr, w, true)
		if err != nil {
			return 0, accessFault(err.(*mem.AccessError), pc)
		}
		return v, nil
	}

	switch inst.Op {
	case insts.OpLW:
		v, f := load(mem.WidthWord)
		if f != nil {
			return fault(f)
		}
		e.setReg(inst.Rt, v)
	case insts.OpLH:
		v, f := load(mem.WidthHalf)
		if f != nil {
			return fault(f)
		}
		e.setReg(inst.Rt, uint32(int32(int16(v))))
	case insts.OpLHU:
		v, f := load(mem.WidthHalf)
		if f != nil {
			return fault(f)
		}
		e.setReg(inst.Rt, v)
	case insts.OpLB:
		v, f := load(mem.WidthByte)
		if f != nil {
			return fault(f)
		}
		e.setReg(inst.Rt, uint32(int32(int8(v))))
	case insts.OpLBU:
		v, f := load(mem.WidthByte)
		if f != nil {
			return fault(f)
		}
		e.setReg(inst.Rt, v)
	case insts.OpSW:
		if f := e.storeMem(addr, mem.WidthWord, e.regFile.Read(inst.Rt, true)); f != nil {
			return fault(f)
		}
	case insts.OpSH:
		if f := e.storeMem(addr, mem.WidthHalf, e.regFile.Read(inst.Rt, true)&0xFFFF); f != nil {
			return fault(f)
		}
	case insts.OpSB:
		if f := e.storeMem(addr, mem.WidthByte, e.regFile.Read(inst.Rt, true)&0xFF); f != nil {
			return fault(f)
		}
	}
	return execOutcome{}
}

func (e *Engine) executeBranch(inst *insts.Instruction, pc uint32) execOutcome {
	a := e.regFile.Read(inst.Rs, true)
	b := e.regFile.Read(inst.Rt, true)
	target := branchTarget(pc, inst.Imm)

	switch inst.Op {
	case insts.OpBEQ:
		if a == b {
			return taken(target)
		}
	case insts.OpBNE:
		if a != b {
			return taken(target)
		}
	}
	return execOutcome{}
}

func (e *Engine) executeBranchZero(inst *insts.Instruction, pc uint32) execOutcome {
	a := int32(e.regFile.Read(inst.Rs, true))
	target := branchTarget(pc, inst.Imm)

	switch inst.Op {
	case insts.OpBLEZ:
		if a <= 0 {
			return taken(target)
		}
	case insts.OpBGTZ:
		if a > 0 {
			return taken(target)
		}
	case insts.OpBLTZ:
		if a < 0 {
			return taken(target)
		}
	case insts.OpBGEZ:
		if a >= 0 {
			return taken(target)
		}
	case insts.OpBLTZAL:
		e.setReg(31, e.linkAddress(pc))
		if a < 0 {
			return taken(target)
		}
	case insts.OpBGEZAL:
		e.setReg(31, e.linkAddress(pc))
		if a >= 0 {
			return taken(target)
		}
	}
	return execOutcome{}
}

func (e *Engine) executeSystem(inst *insts.Instruction, pc uint32) execOutcome {
	switch inst.Op {
	case insts.OpSYSCALL:
		res := e.syscalls.Handle(e)
		if res.Fault != nil {
			return fault(res.Fault)
		}
		if res.Exited {
			return execOutcome{exited: true, exitCode: res.ExitCode}
		}
	case insts.OpBREAK:
		return fault(&SimError{
			Code: ExcBreakpoint, PC: pc,
			Message: fmt.Sprintf("break with code %d", inst.Code),
		})
	case insts.OpERET:
		e.setCP0(CP0Status, e.cp0.Read(CP0Status)&^StatusEXL)
		return execOutcome{taken: true, immediate: true, target: e.cp0.Read(CP0EPC)}
	}
	return execOutcome{}
}

func (e *Engine) executeFPArith(inst *insts.Instruction) {
	if inst.Double {
		a := e.cp1.ReadDouble(inst.Fs)
		b := e.cp1.ReadDouble(inst.Ft)
		switch inst.Op {
		case insts.OpFADD:
			e.setCP1PairDouble(inst.Fd, a+b)
		case insts.OpFSUB:
			e.setCP1PairDouble(inst.Fd, a-b)
		case insts.OpFMUL:
			e.setCP1PairDouble(inst.Fd, a*b)
		case insts.OpFDIV:
			e.setCP1PairDouble(inst.Fd, a/b)
		case insts.OpFMOV:
			e.setCP1Pair(inst.Fd, e.cp1.ReadPair(inst.Fs))
		}
		return
	}

	a := e.cp1.ReadFloat(inst.Fs)
	b := e.cp1.ReadFloat(inst.Ft)
	switch inst.Op {
	case insts.OpFADD:
		e.setCP1Float(inst.Fd, a+b)
	case insts.OpFSUB:
		e.setCP1Float(inst.Fd, a-b)
	case insts.OpFMUL:
		e.setCP1Float(inst.Fd, a*b)
	case insts.OpFDIV:
		e.setCP1Float(inst.Fd, a/b)
	case insts.OpFMOV:
		e.setCP1(inst.Fd, e.cp1.Read(inst.Fs))
	}
}

func (e *Engine) executeFPLoadStore(inst *insts.Instruction, pc uint32) execOutcome {
	addr := e.regFile.Read(inst.Rs, true) + uint32(inst.Imm)

	switch inst.Op {
	case insts.OpLWC1:
		v, err := e.memory.Read(addr, mem.WidthWord, true)
		if err != nil {
			return fault(accessFault(err.(*mem.AccessError), pc))
		}
		e.setCP1(inst.Ft, v)
	case insts.OpSWC1:
		if f := e.storeMem(addr, mem.WidthWord, e.cp1.Read(inst.Ft)); f != nil {
			return fault(f)
		}
	case insts.OpLDC1:
		lo, err := e.memory.Read(addr, mem.WidthWord, true)
		if err != nil {
			return fault(accessFault(err.(*mem.AccessError), pc))
		}
		hi, err := e.memory.Read(addr+4, mem.WidthWord, true)
		if err != nil {
			return fault(accessFault(err.(*mem.AccessError), pc))
		}
		e.setCP1Pair(inst.Ft, uint64(lo)|uint64(hi)<<32)
	case insts.OpSDC1:
		pair := e.cp1.ReadPair(inst.Ft)
		if f := e.storeMem(addr, mem.WidthWord, uint32(pair)); f != nil {
			return fault(f)
		}
		if f := e.storeMem(addr+4, mem.WidthWord, uint32(pair>>32)); f != nil {
			return fault(f)
		}
	}
	return execOutcome{}
}

// setCP1Float commits a single-precision result with undo recording.
func (e *Engine) setCP1Float(reg uint8, v float32) {
	e.setCP1(reg, math.Float32bits(v))
}

// setCP1PairDouble commits a double-precision result with undo
// recording.
func (e *Engine) setCP1PairDouble(reg uint8, v float64) {
	e.setCP1Pair(reg, math.Float64bits(v))
}

func branchTarget(pc uint32, offset int32) uint32 {
	return uint32(int32(pc+4) + offset<<2)
}

func boolWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func addOverflows(a, b, r int32) bool {
	return (a >= 0 && b >= 0 && r < 0) || (a < 0 && b < 0 && r >= 0)
}

func subOverflows(a, b, r int32) bool {
	return (a >= 0 && b < 0 && r < 0) || (a < 0 && b >= 0 && r >= 0)
}
