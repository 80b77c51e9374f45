package insts

import "fmt"

// Conventional names of the 32 general-purpose registers, by number.
var gprNames = [32]string{
	"zero", "at", "v0", "v1", "a0", "a1", "a2", "a3",
	"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7",
	"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7",
	"t8", "t9", "k0", "k1", "gp", "sp", "fp", "ra",
}

var gprByName = func() map[string]uint8 {
	m := make(map[string]uint8, 64)
	for i, name := range gprNames {
		m[name] = uint8(i)
	}
	// $s8 is an accepted alias for $fp.
	m["s8"] = 30
	return m
}()

// GPRName returns the conventional name of a general-purpose register,
// e.g. GPRName(8) == "$t0".
func GPRName(reg uint8) string {
	if reg > 31 {
		return fmt.Sprintf("$?%d", reg)
	}
	return "$" + gprNames[reg]
}

// FPRName returns the name of a coprocessor 1 register, e.g. "$f12".
func FPRName(reg uint8) string {
	return fmt.Sprintf("$f%d", reg)
}

// ParseGPR resolves a general-purpose register name to its number.
// Both symbolic ("$t0") and numeric ("$8") forms are accepted.
func ParseGPR(name string) (uint8, bool) {
	if len(name) < 2 || name[0] != '$' {
		return 0, false
	}
	body := name[1:]
	if n, ok := gprByName[body]; ok {
		return n, true
	}
	// Numeric form
	var v int
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + int(c-'0')
		if v > 31 {
			return 0, false
		}
	}
	return uint8(v), true
}

// ParseFPR resolves a coprocessor 1 register name ("$f0" … "$f31")
// to its number.
func ParseFPR(name string) (uint8, bool) {
	if len(name) < 3 || name[0] != '$' || name[1] != 'f' {
		return 0, false
	}
	body := name[2:]
	var v int
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + int(c-'0')
		if v > 31 {
			return 0, false
		}
	}
	return uint8(v), true
}
