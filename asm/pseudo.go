package asm

import (
	"fmt"
	"strings"
)

// Pseudo-instruction expansion. When extended instructions are enabled,
// pass 1 rewrites each pseudo into one or more hardware instructions
// before statements are laid out, so the location counter already
// accounts for the expansion. $at is the assembler temporary.
//
// When delayed branching is enabled, every branch-producing pseudo gets
// a trailing nop so user code never lands in a synthesized delay slot.
// This is why toggling the delayed-branching setting forces re-assembly.

// isPseudo reports whether mnemonic requires expansion. A load or store
// whose operand is a bare label (no base register) also expands.
func isPseudo(ln sourceLine) bool {
	switch ln.mnemonic {
	case "nop", "move", "li", "la", "not", "neg", "negu", "abs",
		"mul", "rem", "b", "bal", "beqz", "bnez", "blt", "ble", "bgt", "bge":
		return true
	case "lw", "lh", "lb", "lhu", "lbu", "sw", "sh", "sb":
		return len(ln.operands) == 2 && !strings.Contains(ln.operands[1], "(") && !isNumeric(ln.operands[1])
	case "div", "divu":
		// Three-operand div is a pseudo; two-operand is hardware.
		return len(ln.operands) == 3
	}
	return false
}

func isNumeric(s string) bool {
	_, err := parseImmediate(s)
	return err == nil
}

// mk builds an expanded line carrying the origin's position.
func mk(ln sourceLine, mnemonic string, operands ...string) sourceLine {
	return sourceLine{
		file: ln.file, num: ln.num, raw: ln.raw,
		mnemonic: mnemonic, operands: operands,
	}
}

// expandPseudo rewrites one pseudo-instruction into hardware
// instructions. The caller has already checked isPseudo.
func expandPseudo(ln sourceLine, delayedBranching bool) ([]sourceLine, error) {
	out, err := expand(ln)
	if err != nil {
		return nil, err
	}
	if delayedBranching && len(out) > 0 {
		last := out[len(out)-1]
		if def, ok := lookupBasic(last.mnemonic); ok && def.branches {
			out = append(out, mk(ln, "sll", "$zero", "$zero", "0"))
		}
	}
	return out, nil
}

func expand(ln sourceLine) ([]sourceLine, error) {
	ops := ln.operands
	need := func(n int) error {
		if len(ops) != n {
			return fmt.Errorf("%s expects %d operands, got %d", ln.mnemonic, n, len(ops))
		}
		return nil
	}

	switch ln.mnemonic {
	case "nop":
		return []sourceLine{mk(ln, "sll", "$zero", "$zero", "0")}, nil

	case "move":
		if err := need(2); err != nil {
			return nil, err
		}
		return []sourceLine{mk(ln, "addu", ops[0], "$zero", ops[1])}, nil

	case "li":
		if err := need(2); err != nil {
			return nil, err
		}
		v, err := parseImmediate(ops[1])
		if err != nil {
			return nil, err
		}
		switch {
		case v >= -32768 && v <= 32767:
			return []sourceLine{mk(ln, "addiu", ops[0], "$zero", ops[1])}, nil
		case v >= 0 && v <= 0xFFFF:
			return []sourceLine{mk(ln, "ori", ops[0], "$zero", ops[1])}, nil
		default:
			hi := fmt.Sprintf("0x%x", uint32(v)>>16)
			lo := fmt.Sprintf("0x%x", uint32(v)&0xFFFF)
			return []sourceLine{
				mk(ln, "lui", "$at", hi),
				mk(ln, "ori", ops[0], "$at", lo),
			}, nil
		}

	case "la":
		if err := need(2); err != nil {
			return nil, err
		}
		return []sourceLine{
			mk(ln, "lui", "$at", "%hi("+ops[1]+")"),
			mk(ln, "ori", ops[0], "$at", "%lo("+ops[1]+")"),
		}, nil

	case "not":
		if err := need(2); err != nil {
			return nil, err
		}
		return []sourceLine{mk(ln, "nor", ops[0], ops[1], "$zero")}, nil

	case "neg":
		if err := need(2); err != nil {
			return nil, err
		}
		return []sourceLine{mk(ln, "sub", ops[0], "$zero", ops[1])}, nil

	case "negu":
		if err := need(2); err != nil {
			return nil, err
		}
		return []sourceLine{mk(ln, "subu", ops[0], "$zero", ops[1])}, nil

	case "abs":
		if err := need(2); err != nil {
			return nil, err
		}
		return []sourceLine{
			mk(ln, "sra", "$at", ops[1], "31"),
			mk(ln, "xor", ops[0], ops[1], "$at"),
			mk(ln, "subu", ops[0], ops[0], "$at"),
		}, nil

	case "mul":
		if err := need(3); err != nil {
			return nil, err
		}
		return []sourceLine{
			mk(ln, "mult", ops[1], ops[2]),
			mk(ln, "mflo", ops[0]),
		}, nil

	case "rem":
		if err := need(3); err != nil {
			return nil, err
		}
		return []sourceLine{
			mk(ln, "div", ops[1], ops[2]),
			mk(ln, "mfhi", ops[0]),
		}, nil

	case "div", "divu":
		// Three-operand form: quotient into ops[0].
		if err := need(3); err != nil {
			return nil, err
		}
		return []sourceLine{
			mk(ln, ln.mnemonic, ops[1], ops[2]),
			mk(ln, "mflo", ops[0]),
		}, nil

	case "b":
		if err := need(1); err != nil {
			return nil, err
		}
		return []sourceLine{mk(ln, "beq", "$zero", "$zero", ops[0])}, nil

	case "bal":
		if err := need(1); err != nil {
			return nil, err
		}
		return []sourceLine{mk(ln, "bgezal", "$zero", ops[0])}, nil

	case "beqz":
		if err := need(2); err != nil {
			return nil, err
		}
		return []sourceLine{mk(ln, "beq", ops[0], "$zero", ops[1])}, nil

	case "bnez":
		if err := need(2); err != nil {
			return nil, err
		}
		return []sourceLine{mk(ln, "bne", ops[0], "$zero", ops[1])}, nil

	case "blt":
		if err := need(3); err != nil {
			return nil, err
		}
		return []sourceLine{
			mk(ln, "slt", "$at", ops[0], ops[1]),
			mk(ln, "bne", "$at", "$zero", ops[2]),
		}, nil

	case "bge":
		if err := need(3); err != nil {
			return nil, err
		}
		return []sourceLine{
			mk(ln, "slt", "$at", ops[0], ops[1]),
			mk(ln, "beq", "$at", "$zero", ops[2]),
		}, nil

	case "bgt":
		if err := need(3); err != nil {
			return nil, err
		}
		return []sourceLine{
			mk(ln, "slt", "$at", ops[1], ops[0]),
			mk(ln, "bne", "$at", "$zero", ops[2]),
		}, nil

	case "ble":
		if err := need(3); err != nil {
			return nil, err
		}
		return []sourceLine{
			mk(ln, "slt", "$at", ops[1], ops[0]),
			mk(ln, "beq", "$at", "$zero", ops[2]),
		}, nil

	case "lw", "lh", "lb", "lhu", "lbu", "sw", "sh", "sb":
		// Label-addressed load/store: compute the address into $at.
		if err := need(2); err != nil {
			return nil, err
		}
		return []sourceLine{
			mk(ln, "lui", "$at", "%hi("+ops[1]+")"),
			mk(ln, ln.mnemonic, ops[0], "%lo("+ops[1]+")($at)"),
		}, nil
	}

	return nil, fmt.Errorf("unknown pseudo-instruction %q", ln.mnemonic)
}
