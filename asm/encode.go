package asm

import (
	"fmt"

	"github.com/sarchlab/mipsim/insts"
)

// encode resolves the operands of one statement against the symbol
// table and produces the 32-bit instruction word.
func (a *Assembler) encode(stmt *Statement, symbols *SymbolTable) (uint32, error) {
	ln := stmt.ln
	def := stmt.def
	ops := ln.operands

	needOps := func(n int) error {
		if len(ops) != n {
			return fmt.Errorf("%s expects %d operands, got %d", ln.mnemonic, n, len(ops))
		}
		return nil
	}
	gpr := func(s string) (uint8, error) {
		r, ok := insts.ParseGPR(s)
		if !ok {
			return 0, fmt.Errorf("%q is not a general-purpose register", s)
		}
		return r, nil
	}
	fpr := func(s string) (uint8, error) {
		r, ok := insts.ParseFPR(s)
		if !ok {
			return 0, fmt.Errorf("%q is not a floating-point register", s)
		}
		return r, nil
	}
	imm16 := func(s string) (uint32, error) {
		v, err := a.evalExpr(s, stmt.File, symbols)
		if err != nil {
			return 0, err
		}
		if v < -32768 || v > 65535 {
			return 0, fmt.Errorf("immediate %d does not fit in 16 bits", v)
		}
		return uint32(v) & 0xFFFF, nil
	}
	// branchOffset computes the instruction-count displacement from the
	// slot after this statement to a label, or passes a numeric literal
	// through unchanged.
	branchOffset := func(s string) (uint32, error) {
		if v, err := parseImmediate(s); err == nil {
			return uint32(v) & 0xFFFF, nil
		}
		sym, ok := symbols.Lookup(s, stmt.File)
		if !ok {
			return 0, fmt.Errorf("undefined branch target %q", s)
		}
		diff := (int32(sym.Address) - int32(stmt.Address+4)) / 4
		if diff < -32768 || diff > 32767 {
			return 0, fmt.Errorf("branch target %q is out of range", s)
		}
		return uint32(diff) & 0xFFFF, nil
	}

	switch def.Format {
	case insts.FormatR:
		return a.encodeR(stmt, gpr, needOps)

	case insts.FormatShift:
		if err := needOps(3); err != nil {
			return 0, err
		}
		rd, err := gpr(ops[0])
		if err != nil {
			return 0, err
		}
		rt, err := gpr(ops[1])
		if err != nil {
			return 0, err
		}
		sh, err := a.evalExpr(ops[2], stmt.File, symbols)
		if err != nil {
			return 0, err
		}
		if sh < 0 || sh > 31 {
			return 0, fmt.Errorf("shift amount %d is outside 0..31", sh)
		}
		return insts.FormR(def.Funct, 0, rt, rd, uint8(sh)), nil

	case insts.FormatIArith:
		if def.Op == insts.OpLUI {
			if err := needOps(2); err != nil {
				return 0, err
			}
			rt, err := gpr(ops[0])
			if err != nil {
				return 0, err
			}
			imm, err := imm16(ops[1])
			if err != nil {
				return 0, err
			}
			return insts.FormI(def.Opcode, 0, rt, imm), nil
		}
		if err := needOps(3); err != nil {
			return 0, err
		}
		rt, err := gpr(ops[0])
		if err != nil {
			return 0, err
		}
		rs, err := gpr(ops[1])
		if err != nil {
			return 0, err
		}
		imm, err := imm16(ops[2])
		if err != nil {
			return 0, err
		}
		return insts.FormI(def.Opcode, rs, rt, imm), nil

	case insts.FormatLoadStore, insts.FormatFPLoadStore:
		if err := needOps(2); err != nil {
			return 0, err
		}
		var rt uint8
		var err error
		if def.Format == insts.FormatFPLoadStore {
			rt, err = fpr(ops[0])
		} else {
			rt, err = gpr(ops[0])
		}
		if err != nil {
			return 0, err
		}
		offPart, basePart, err := parseBaseOffset(ops[1])
		if err != nil {
			return 0, err
		}
		base, err := gpr(basePart)
		if err != nil {
			return 0, err
		}
		var off uint32
		if offPart != "" {
			off, err = imm16(offPart)
			if err != nil {
				return 0, err
			}
		}
		return insts.FormI(def.Opcode, base, rt, off), nil

	case insts.FormatBranch:
		if err := needOps(3); err != nil {
			return 0, err
		}
		rs, err := gpr(ops[0])
		if err != nil {
			return 0, err
		}
		rt, err := gpr(ops[1])
		if err != nil {
			return 0, err
		}
		off, err := branchOffset(ops[2])
		if err != nil {
			return 0, err
		}
		return insts.FormI(def.Opcode, rs, rt, off), nil

	case insts.FormatBranchZero:
		if err := needOps(2); err != nil {
			return 0, err
		}
		rs, err := gpr(ops[0])
		if err != nil {
			return 0, err
		}
		off, err := branchOffset(ops[1])
		if err != nil {
			return 0, err
		}
		return insts.FormI(def.Opcode, rs, def.RtSel, off), nil

	case insts.FormatJump:
		if err := needOps(1); err != nil {
			return 0, err
		}
		target, err := a.evalExpr(ops[0], stmt.File, symbols)
		if err != nil {
			return 0, err
		}
		if uint32(target)>>28 != (stmt.Address+4)>>28 {
			return 0, fmt.Errorf("jump target 0x%08x is outside the current 256MB region", uint32(target))
		}
		return insts.FormJ(def.Opcode, uint32(target)>>2), nil

	case insts.FormatJumpReg:
		return a.encodeJumpReg(stmt, gpr)

	case insts.FormatSystem:
		switch def.Op {
		case insts.OpERET:
			return insts.ERETWord, nil
		case insts.OpBREAK:
			var code uint32
			if len(ops) == 1 {
				v, err := parseImmediate(ops[0])
				if err != nil || v < 0 || v > 0xFFFFF {
					return 0, fmt.Errorf("bad break code %q", ops[0])
				}
				code = uint32(v)
			}
			return insts.FormR(0x0D, 0, 0, 0, 0) | code<<6, nil
		default: // syscall
			return insts.FormR(0x0C, 0, 0, 0, 0), nil
		}

	case insts.FormatCop0:
		if err := needOps(2); err != nil {
			return 0, err
		}
		rt, err := gpr(ops[0])
		if err != nil {
			return 0, err
		}
		cp0, err := a.evalExpr(ops[1], stmt.File, symbols)
		if err != nil || cp0 < 0 || cp0 > 31 {
			return 0, fmt.Errorf("%q is not a coprocessor 0 register number", ops[1])
		}
		dir := insts.CopMF
		if def.Op == insts.OpMTC0 {
			dir = insts.CopMT
		}
		return insts.FormCop(def.Opcode, dir, rt, uint8(cp0)), nil

	case insts.FormatCop1Move:
		if err := needOps(2); err != nil {
			return 0, err
		}
		rt, err := gpr(ops[0])
		if err != nil {
			return 0, err
		}
		fs, err := fpr(ops[1])
		if err != nil {
			return 0, err
		}
		dir := insts.CopMF
		if def.Op == insts.OpMTC1 {
			dir = insts.CopMT
		}
		return insts.FormCop(def.Opcode, dir, rt, fs), nil

	case insts.FormatFPArith:
		return a.encodeFPArith(stmt, fpr, needOps)
	}

	return 0, fmt.Errorf("cannot encode %q", ln.mnemonic)
}

// encodeR handles the operand-order variants of funct-encoded
// instructions.
func (a *Assembler) encodeR(stmt *Statement,
	gpr func(string) (uint8, error), needOps func(int) error) (uint32, error) {
	ln := stmt.ln
	def := stmt.def
	ops := ln.operands

	switch def.Op {
	case insts.OpMULT, insts.OpMULTU, insts.OpDIV, insts.OpDIVU:
		if err := needOps(2); err != nil {
			return 0, err
		}
		rs, err := gpr(ops[0])
		if err != nil {
			return 0, err
		}
		rt, err := gpr(ops[1])
		if err != nil {
			return 0, err
		}
		return insts.FormR(def.Funct, rs, rt, 0, 0), nil

	case insts.OpMFHI, insts.OpMFLO:
		if err := needOps(1); err != nil {
			return 0, err
		}
		rd, err := gpr(ops[0])
		if err != nil {
			return 0, err
		}
		return insts.FormR(def.Funct, 0, 0, rd, 0), nil

	case insts.OpMTHI, insts.OpMTLO:
		if err := needOps(1); err != nil {
			return 0, err
		}
		rs, err := gpr(ops[0])
		if err != nil {
			return 0, err
		}
		return insts.FormR(def.Funct, rs, 0, 0, 0), nil

	case insts.OpSLLV, insts.OpSRLV, insts.OpSRAV:
		// rd, rt, rs: the shift amount register comes last.
		if err := needOps(3); err != nil {
			return 0, err
		}
		rd, err := gpr(ops[0])
		if err != nil {
			return 0, err
		}
		rt, err := gpr(ops[1])
		if err != nil {
			return 0, err
		}
		rs, err := gpr(ops[2])
		if err != nil {
			return 0, err
		}
		return insts.FormR(def.Funct, rs, rt, rd, 0), nil
	}

	// Default three-register form: rd, rs, rt.
	if err := needOps(3); err != nil {
		return 0, err
	}
	rd, err := gpr(ops[0])
	if err != nil {
		return 0, err
	}
	rs, err := gpr(ops[1])
	if err != nil {
		return 0, err
	}
	rt, err := gpr(ops[2])
	if err != nil {
		return 0, err
	}
	return insts.FormR(def.Funct, rs, rt, rd, 0), nil
}

// encodeJumpReg handles JR and the one- and two-operand JALR forms.
func (a *Assembler) encodeJumpReg(stmt *Statement,
	gpr func(string) (uint8, error)) (uint32, error) {
	ln := stmt.ln
	def := stmt.def
	ops := ln.operands

	if def.Op == insts.OpJR {
		if len(ops) != 1 {
			return 0, fmt.Errorf("jr expects one register")
		}
		rs, err := gpr(ops[0])
		if err != nil {
			return 0, err
		}
		return insts.FormR(def.Funct, rs, 0, 0, 0), nil
	}

	// jalr rs (rd defaults to $ra) or jalr rd, rs
	switch len(ops) {
	case 1:
		rs, err := gpr(ops[0])
		if err != nil {
			return 0, err
		}
		return insts.FormR(def.Funct, rs, 0, 31, 0), nil
	case 2:
		rd, err := gpr(ops[0])
		if err != nil {
			return 0, err
		}
		rs, err := gpr(ops[1])
		if err != nil {
			return 0, err
		}
		return insts.FormR(def.Funct, rs, 0, rd, 0), nil
	}
	return 0, fmt.Errorf("jalr expects one or two registers")
}

// encodeFPArith handles coprocessor 1 arithmetic, including the
// two-operand mov forms.
func (a *Assembler) encodeFPArith(stmt *Statement,
	fpr func(string) (uint8, error), needOps func(int) error) (uint32, error) {
	ln := stmt.ln
	def := stmt.def
	ops := ln.operands

	double := def.Fmt == 0x11
	checkEven := func(r uint8, name string) error {
		if double && r%2 != 0 {
			return fmt.Errorf("%s: double-precision register %s must be even-numbered", ln.mnemonic, name)
		}
		return nil
	}

	if def.Op == insts.OpFMOV {
		if err := needOps(2); err != nil {
			return 0, err
		}
		fd, err := fpr(ops[0])
		if err != nil {
			return 0, err
		}
		fs, err := fpr(ops[1])
		if err != nil {
			return 0, err
		}
		if err := checkEven(fd, ops[0]); err != nil {
			return 0, err
		}
		if err := checkEven(fs, ops[1]); err != nil {
			return 0, err
		}
		return insts.FormFP(def.Fmt, def.Funct, fd, fs, 0), nil
	}

	if err := needOps(3); err != nil {
		return 0, err
	}
	fd, err := fpr(ops[0])
	if err != nil {
		return 0, err
	}
	fs, err := fpr(ops[1])
	if err != nil {
		return 0, err
	}
	ft, err := fpr(ops[2])
	if err != nil {
		return 0, err
	}
	for i, r := range []uint8{fd, fs, ft} {
		if err := checkEven(r, ops[i]); err != nil {
			return 0, err
		}
	}
	return insts.FormFP(def.Fmt, def.Funct, fd, fs, ft), nil
}
