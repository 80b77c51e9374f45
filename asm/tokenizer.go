package asm

import (
	"fmt"
	"strconv"
	"strings"
)

// sourceLine is one preprocessed line of input.
type sourceLine struct {
	file     string
	num      int
	label    string
	mnemonic string
	operands []string
	raw      string
}

// splitLine breaks one raw source line into label, mnemonic, and
// comma-separated operands. Comments start at an unquoted '#'.
func splitLine(file string, num int, raw string) (sourceLine, error) {
	line := stripComment(raw)
	out := sourceLine{file: file, num: num, raw: strings.TrimSpace(raw)}

	// Labels end with ':' before any operand text.
	if idx := labelColon(line); idx >= 0 {
		label := strings.TrimSpace(line[:idx])
		if !validLabel(label) {
			return out, fmt.Errorf("%q is not a valid label name", label)
		}
		out.label = label
		line = line[idx+1:]
	}

	line = strings.TrimSpace(line)
	if line == "" {
		return out, nil
	}

	fields := strings.SplitN(line, " ", 2)
	if tab := strings.IndexByte(fields[0], '\t'); tab >= 0 {
		fields = strings.SplitN(line, "\t", 2)
	}
	out.mnemonic = strings.ToLower(strings.TrimSpace(fields[0]))
	if len(fields) > 1 {
		out.operands = splitOperands(fields[1])
	}
	return out, nil
}

// stripComment removes everything from the first '#' outside a string
// or character literal.
func stripComment(line string) string {
	inString := false
	inChar := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++ // skip escaped character
		case '"':
			if !inChar {
				inString = !inString
			}
		case '\'':
			if !inString {
				inChar = !inChar
			}
		case '#':
			if !inString && !inChar {
				return line[:i]
			}
		}
	}
	return line
}

// labelColon locates the colon ending a leading label, or -1.
func labelColon(line string) int {
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == ':':
			return i
		case c == '"' || c == '\'' || c == '#':
			return -1
		case c == ' ' || c == '\t':
			// a label may be separated from its colon by whitespace
			rest := strings.TrimLeft(line[i:], " \t")
			if strings.HasPrefix(rest, ":") {
				return i + (len(line[i:]) - len(rest))
			}
			return -1
		}
	}
	return -1
}

// validLabel reports whether s is a legal label identifier.
func validLabel(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_', c == '.', c == '$':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// splitOperands splits on top-level commas, keeping quoted strings and
// parenthesized base registers intact.
func splitOperands(s string) []string {
	var out []string
	depth := 0
	inString := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			inString = !inString
		case '(':
			if !inString {
				depth++
			}
		case ')':
			if !inString {
				depth--
			}
		case ',':
			if !inString && depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	last := strings.TrimSpace(s[start:])
	if last != "" || len(out) > 0 {
		out = append(out, last)
	}
	return out
}

// parseImmediate parses a decimal, hexadecimal, or character literal.
func parseImmediate(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("expected a literal, got nothing")
	}
	if len(s) >= 3 && s[0] == '\'' && s[len(s)-1] == '\'' {
		body, err := unescape(s[1 : len(s)-1])
		if err != nil || len(body) != 1 {
			return 0, fmt.Errorf("%s is not a valid character literal", s)
		}
		return int64(body[0]), nil
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	base := 10
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		base = 16
		s = s[2:]
	}
	v, err := strconv.ParseUint(s, base, 33)
	if err != nil {
		return 0, fmt.Errorf("%q is not a valid integer literal", s)
	}
	if v > 0xFFFFFFFF {
		return 0, fmt.Errorf("%q does not fit in 32 bits", s)
	}
	value := int64(v)
	if neg {
		value = -value
	}
	return value, nil
}

// parseStringLiteral parses a double-quoted string with escapes.
func parseStringLiteral(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", fmt.Errorf("expected a quoted string, got %q", s)
	}
	return unescape(s[1 : len(s)-1])
}

// unescape processes backslash escapes in string and char literal bodies.
func unescape(s string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(s) {
			return "", fmt.Errorf("dangling escape in string literal")
		}
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '0':
			b.WriteByte(0)
		case '"':
			b.WriteByte('"')
		case '\'':
			b.WriteByte('\'')
		case '\\':
			b.WriteByte('\\')
		default:
			return "", fmt.Errorf("unknown escape \\%c", s[i])
		}
	}
	return b.String(), nil
}

// parseBaseOffset parses a "literal($reg)" load/store operand. The
// base register is the trailing parenthesized group; the literal part
// may be empty, a number, or an expression carrying its own
// parentheses, such as the %lo(label) the pseudo expansion emits. It
// is returned unevaluated in labelPart.
func parseBaseOffset(s string) (labelPart string, base string, err error) {
	t := strings.TrimSpace(s)
	open := strings.LastIndexByte(t, '(')
	if open < 0 || !strings.HasSuffix(t, ")") {
		return "", "", fmt.Errorf("expected an offset(base) operand, got %q", s)
	}
	return strings.TrimSpace(t[:open]), strings.TrimSpace(t[open+1 : len(t)-1]), nil
}
