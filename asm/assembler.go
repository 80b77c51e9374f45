package asm

import (
	"fmt"
	"strings"

	"github.com/sarchlab/mipsim/insts"
	"github.com/sarchlab/mipsim/mem"
)

// Options configure one assembly run.
type Options struct {
	// ExtendedInstructions permits pseudo-instruction expansion.
	ExtendedInstructions bool
	// WarningsAreErrors promotes warnings to assembly failures.
	WarningsAreErrors bool
	// DelayedBranching must match the engine's execution policy; it
	// changes the code generated for pseudo-branches.
	DelayedBranching bool
	// StartAtMain sets the entry point to global label "main" when defined.
	StartAtMain bool
}

// Assembler is the two-pass translator from source text to a machine
// image. Pass 1 tokenizes, expands pseudo-instructions, lays out
// segments, and collects symbols; pass 2 resolves operands, encodes
// each instruction, and writes the image into memory.
type Assembler struct {
	opts    Options
	decoder *insts.Decoder
}

// NewAssembler creates an assembler with the given options.
func NewAssembler(opts Options) *Assembler {
	return &Assembler{opts: opts, decoder: insts.NewDecoder()}
}

// basicDef pairs an encoding definition with assembler-side attributes.
type basicDef struct {
	def      insts.Def
	branches bool
}

func lookupBasic(mnemonic string) (basicDef, bool) {
	def, ok := insts.LookupDef(mnemonic)
	if !ok {
		return basicDef{}, false
	}
	branches := def.Format == insts.FormatBranch || def.Format == insts.FormatBranchZero
	return basicDef{def: def, branches: branches}, true
}

// dataItem is a pass-2 obligation to encode one data value whose
// expression may reference a not-yet-defined label.
type dataItem struct {
	addr  uint32
	width mem.Width
	expr  string
	file  string
	line  int
}

// counters tracks the per-segment location counters. extern is the
// allocation pointer for .extern declarations, which live below the
// .data placement area.
type counters struct {
	text, data, ktext, kdata uint32
	extern                   uint32
}

func (c *counters) addr(seg mem.Segment) *uint32 {
	switch seg {
	case mem.SegText:
		return &c.text
	case mem.SegKText:
		return &c.ktext
	case mem.SegKData:
		return &c.kdata
	default:
		return &c.data
	}
}

// Assemble translates the given files into memory. On failure the
// returned program is nil and the error list holds the full report.
// memory is expected to be freshly reset; its configuration determines
// segment bases.
func (a *Assembler) Assemble(files []SourceFile, memory *mem.Memory) (*Program, *ErrorList) {
	errs := NewErrorList(a.opts.WarningsAreErrors)
	cfg := memory.Configuration()

	prog := &Program{
		ByAddress:        make(map[uint32]*Statement),
		Symbols:          NewSymbolTable(),
		DelayedBranching: a.opts.DelayedBranching,
	}

	loc := counters{
		text:   cfg.TextBase,
		data:   cfg.StaticBase,
		ktext:  cfg.KTextBase,
		kdata:  cfg.KDataBase,
		extern: cfg.ExternBase,
	}

	var items []dataItem
	for _, f := range files {
		items = append(items, a.passOne(f, prog, &loc, &cfg, errs)...)
	}

	a.passTwo(prog, items, memory, errs)

	if errs.Failed() {
		return nil, errs
	}

	prog.EntryPoint = cfg.TextBase
	if a.opts.StartAtMain {
		if sym, ok := prog.Symbols.LookupGlobal("main"); ok {
			prog.EntryPoint = sym.Address
		}
	}
	_, prog.HasHandler = prog.ByAddress[cfg.ExceptionHandler]
	return prog, errs
}

// passOne processes one file: segments, labels, directives, and
// statement layout. Returned data items are encoded in pass 2.
func (a *Assembler) passOne(f SourceFile, prog *Program, loc *counters,
	cfg *mem.Configuration, errs *ErrorList) []dataItem {
	var items []dataItem
	seg := mem.SegText
	eqv := make(map[string]string)
	var pendingGlobals []string

	lines := strings.Split(f.Text, "\n")
	for i, raw := range lines {
		ln, err := splitLine(f.Name, i+1, raw)
		if err != nil {
			errs.Add(f.Name, i+1, 1, "%v", err)
			continue
		}

		// Substitute .eqv names in operands.
		for oi, op := range ln.operands {
			if repl, ok := eqv[op]; ok {
				ln.operands[oi] = repl
			}
		}

		if ln.label != "" {
			inData := seg == mem.SegData || seg == mem.SegKData
			if !prog.Symbols.Define(ln.label, *loc.addr(seg), f.Name, inData) {
				errs.Add(f.Name, i+1, 1, "label %q is already defined", ln.label)
			}
		}

		if ln.mnemonic == "" {
			continue
		}

		if strings.HasPrefix(ln.mnemonic, ".") {
			seg = a.directive(ln, seg, loc, prog, &items, eqv, &pendingGlobals, errs)
			continue
		}

		if seg == mem.SegData || seg == mem.SegKData {
			errs.Add(f.Name, i+1, 1, "instruction %q in a data segment", ln.mnemonic)
			continue
		}

		expanded := []sourceLine{ln}
		if isPseudo(ln) {
			if !a.opts.ExtendedInstructions {
				errs.Add(f.Name, i+1, 1,
					"%q is an extended (pseudo) instruction, and extended instructions are disabled", ln.mnemonic)
				continue
			}
			expanded, err = expandPseudo(ln, a.opts.DelayedBranching)
			if err != nil {
				errs.Add(f.Name, i+1, 1, "%v", err)
				continue
			}
		}

		for _, basic := range expanded {
			bd, ok := lookupBasic(basic.mnemonic)
			if !ok {
				errs.Add(f.Name, i+1, 1, "unrecognized mnemonic %q", basic.mnemonic)
				continue
			}
			counter := loc.addr(seg)
			stmt := &Statement{
				File:    f.Name,
				Line:    i + 1,
				Source:  ln.raw,
				Address: *counter,
				ln:      basic,
				def:     bd.def,
			}
			prog.Statements = append(prog.Statements, stmt)
			prog.ByAddress[stmt.Address] = stmt
			*counter += 4
		}
	}

	for _, name := range pendingGlobals {
		if !prog.Symbols.Promote(name, f.Name) {
			errs.Add(f.Name, 0, 0, "global label %q collides with a definition in another file", name)
		}
	}
	return items
}

// directive handles one assembler directive, returning the (possibly
// changed) current segment.
func (a *Assembler) directive(ln sourceLine, seg mem.Segment, loc *counters,
	prog *Program, items *[]dataItem, eqv map[string]string,
	pendingGlobals *[]string, errs *ErrorList) mem.Segment {

	fail := func(format string, args ...interface{}) {
		errs.Add(ln.file, ln.num, 1, format, args...)
	}

	switch ln.mnemonic {
	case ".text", ".ktext", ".data", ".kdata":
		var next mem.Segment
		switch ln.mnemonic {
		case ".text":
			next = mem.SegText
		case ".ktext":
			next = mem.SegKText
		case ".data":
			next = mem.SegData
		case ".kdata":
			next = mem.SegKData
		}
		if len(ln.operands) == 1 {
			v, err := parseImmediate(ln.operands[0])
			if err != nil {
				fail("bad %s address: %v", ln.mnemonic, err)
				return next
			}
			*loc.addr(next) = uint32(v)
		} else if len(ln.operands) > 1 {
			fail("%s takes at most one address operand", ln.mnemonic)
		}
		return next

	case ".word", ".half", ".byte":
		width := mem.WidthWord
		switch ln.mnemonic {
		case ".half":
			width = mem.WidthHalf
		case ".byte":
			width = mem.WidthByte
		}
		counter := loc.addr(seg)
		*counter = align(*counter, uint32(width))
		if ln.label != "" {
			// Re-point the label past any alignment padding.
			if sym, ok := prog.Symbols.Lookup(ln.label, ln.file); ok {
				sym.Address = *counter
			}
		}
		for _, op := range ln.operands {
			*items = append(*items, dataItem{
				addr: *counter, width: width, expr: op, file: ln.file, line: ln.num,
			})
			*counter += uint32(width)
		}

	case ".space":
		if len(ln.operands) != 1 {
			fail(".space expects one operand")
			return seg
		}
		n, err := parseImmediate(ln.operands[0])
		if err != nil || n < 0 {
			fail("bad .space size %q", ln.operands[0])
			return seg
		}
		*loc.addr(seg) += uint32(n)

	case ".align":
		if len(ln.operands) != 1 {
			fail(".align expects one operand")
			return seg
		}
		n, err := parseImmediate(ln.operands[0])
		if err != nil || n < 0 || n > 16 {
			fail("bad .align amount %q", ln.operands[0])
			return seg
		}
		counter := loc.addr(seg)
		*counter = align(*counter, 1<<uint(n))

	case ".ascii", ".asciiz":
		if len(ln.operands) != 1 {
			fail("%s expects one quoted string", ln.mnemonic)
			return seg
		}
		s, err := parseStringLiteral(ln.operands[0])
		if err != nil {
			fail("%v", err)
			return seg
		}
		if ln.mnemonic == ".asciiz" {
			s += "\x00"
		}
		counter := loc.addr(seg)
		for j := 0; j < len(s); j++ {
			*items = append(*items, dataItem{
				addr: *counter, width: mem.WidthByte,
				expr: fmt.Sprintf("%d", s[j]), file: ln.file, line: ln.num,
			})
			*counter++
		}

	case ".globl":
		if len(ln.operands) == 0 {
			fail(".globl expects at least one label")
			return seg
		}
		*pendingGlobals = append(*pendingGlobals, ln.operands...)

	case ".extern":
		if len(ln.operands) != 2 {
			fail(".extern expects a label and a size")
			return seg
		}
		n, err := parseImmediate(ln.operands[1])
		if err != nil || n <= 0 {
			fail("bad .extern size %q", ln.operands[1])
			return seg
		}
		loc.extern = align(loc.extern, 4)
		if !prog.Symbols.Define(ln.operands[0], loc.extern, ln.file, true) {
			fail("label %q is already defined", ln.operands[0])
			return seg
		}
		prog.Symbols.Promote(ln.operands[0], ln.file)
		loc.extern += uint32(n)

	case ".eqv":
		if len(ln.operands) != 2 {
			fail(".eqv expects a name and a value")
			return seg
		}
		eqv[ln.operands[0]] = ln.operands[1]

	default:
		errs.AddWarning(ln.file, ln.num, 1, "unrecognized directive %q ignored", ln.mnemonic)
	}
	return seg
}

func align(addr, to uint32) uint32 {
	return (addr + to - 1) &^ (to - 1)
}

// passTwo resolves operands, encodes every statement, and writes the
// image (instructions and data) into memory.
func (a *Assembler) passTwo(prog *Program, items []dataItem, memory *mem.Memory, errs *ErrorList) {
	for _, stmt := range prog.Statements {
		word, err := a.encode(stmt, prog.Symbols)
		if err != nil {
			errs.Add(stmt.File, stmt.Line, 1, "%v", err)
			continue
		}
		stmt.Word = word
		stmt.Inst = a.decoder.Decode(word)
		if werr := memory.WriteWord(stmt.Address, word, false); werr != nil {
			errs.Add(stmt.File, stmt.Line, 1, "cannot place instruction: %v", werr)
		}
	}

	for _, item := range items {
		v, err := a.evalExpr(item.expr, item.file, prog.Symbols)
		if err != nil {
			errs.Add(item.file, item.line, 1, "%v", err)
			continue
		}
		if overflows(v, item.width) {
			errs.AddWarning(item.file, item.line, 1,
				"value %d truncated to %d byte(s)", v, item.width)
		}
		if werr := memory.Write(item.addr, item.width, uint32(v), false); werr != nil {
			errs.Add(item.file, item.line, 1, "cannot place data: %v", werr)
		}
	}
}

func overflows(v int64, w mem.Width) bool {
	switch w {
	case mem.WidthByte:
		return v < -128 || v > 255
	case mem.WidthHalf:
		return v < -32768 || v > 65535
	}
	return false
}

// evalExpr evaluates a data or immediate expression: a literal, a
// label, or a %hi(...)/%lo(...) split of either.
func (a *Assembler) evalExpr(expr, file string, symbols *SymbolTable) (int64, error) {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "%hi(") && strings.HasSuffix(expr, ")") {
		v, err := a.evalExpr(expr[4:len(expr)-1], file, symbols)
		if err != nil {
			return 0, err
		}
		return int64(uint32(v) >> 16), nil
	}
	if strings.HasPrefix(expr, "%lo(") && strings.HasSuffix(expr, ")") {
		v, err := a.evalExpr(expr[4:len(expr)-1], file, symbols)
		if err != nil {
			return 0, err
		}
		return int64(uint32(v) & 0xFFFF), nil
	}
	if v, err := parseImmediate(expr); err == nil {
		return v, nil
	}
	if sym, ok := symbols.Lookup(expr, file); ok {
		return int64(sym.Address), nil
	}
	return 0, fmt.Errorf("undefined symbol %q", expr)
}
