package insts

// Field formers shared by the assembler and the decoder tests. Each
// produces a complete 32-bit instruction word from its field values.

// FormR forms an opcode-0 register-type word.
func FormR(funct uint32, rs, rt, rd, shamt uint8) uint32 {
	return uint32(rs)<<21 | uint32(rt)<<16 | uint32(rd)<<11 | uint32(shamt)<<6 | funct
}

// FormI forms an immediate-type word. Only the low 16 bits of imm are kept.
func FormI(opcode uint32, rs, rt uint8, imm uint32) uint32 {
	return opcode<<26 | uint32(rs)<<21 | uint32(rt)<<16 | imm&0xFFFF
}

// FormJ forms a jump-type word from a word-addressed 26-bit target.
func FormJ(opcode uint32, target uint32) uint32 {
	return opcode<<26 | target&0x03FFFFFF
}

// FormFP forms a coprocessor 1 arithmetic word.
func FormFP(fmt uint32, funct uint32, fd, fs, ft uint8) uint32 {
	return uint32(opcCop1)<<26 | fmt<<21 | uint32(ft)<<16 | uint32(fs)<<11 | uint32(fd)<<6 | funct
}

// FormCop forms a coprocessor move word (MFC0/MTC0/MFC1/MTC1).
func FormCop(opcode uint32, dir uint32, rt, rd uint8) uint32 {
	return opcode<<26 | dir<<21 | uint32(rt)<<16 | uint32(rd)<<11
}

// ERETWord is the fixed encoding of the ERET instruction.
const ERETWord uint32 = uint32(opcCop0)<<26 | cop0COBit | fnERET

// Def describes how a mnemonic is encoded. The assembler looks
// mnemonics up here and selects operand syntax from Format.
type Def struct {
	Op     Op
	Format Format
	Opcode uint32 // primary opcode
	Funct  uint32 // SPECIAL or COP1 funct field
	RtSel  uint8  // REGIMM rt selector
	Fmt    uint32 // COP1 fmt field for FP arithmetic
}

var defs = map[string]Def{
	"add":   {Op: OpADD, Format: FormatR, Funct: fnADD},
	"addu":  {Op: OpADDU, Format: FormatR, Funct: fnADDU},
	"sub":   {Op: OpSUB, Format: FormatR, Funct: fnSUB},
	"subu":  {Op: OpSUBU, Format: FormatR, Funct: fnSUBU},
	"and":   {Op: OpAND, Format: FormatR, Funct: fnAND},
	"or":    {Op: OpOR, Format: FormatR, Funct: fnOR},
	"xor":   {Op: OpXOR, Format: FormatR, Funct: fnXOR},
	"nor":   {Op: OpNOR, Format: FormatR, Funct: fnNOR},
	"slt":   {Op: OpSLT, Format: FormatR, Funct: fnSLT},
	"sltu":  {Op: OpSLTU, Format: FormatR, Funct: fnSLTU},
	"sllv":  {Op: OpSLLV, Format: FormatR, Funct: fnSLLV},
	"srlv":  {Op: OpSRLV, Format: FormatR, Funct: fnSRLV},
	"srav":  {Op: OpSRAV, Format: FormatR, Funct: fnSRAV},
	"mult":  {Op: OpMULT, Format: FormatR, Funct: fnMULT},
	"multu": {Op: OpMULTU, Format: FormatR, Funct: fnMULTU},
	"div":   {Op: OpDIV, Format: FormatR, Funct: fnDIV},
	"divu":  {Op: OpDIVU, Format: FormatR, Funct: fnDIVU},
	"mfhi":  {Op: OpMFHI, Format: FormatR, Funct: fnMFHI},
	"mthi":  {Op: OpMTHI, Format: FormatR, Funct: fnMTHI},
	"mflo":  {Op: OpMFLO, Format: FormatR, Funct: fnMFLO},
	"mtlo":  {Op: OpMTLO, Format: FormatR, Funct: fnMTLO},

	"sll": {Op: OpSLL, Format: FormatShift, Funct: fnSLL},
	"srl": {Op: OpSRL, Format: FormatShift, Funct: fnSRL},
	"sra": {Op: OpSRA, Format: FormatShift, Funct: fnSRA},

	"addi":  {Op: OpADDI, Format: FormatIArith, Opcode: opcADDI},
	"addiu": {Op: OpADDIU, Format: FormatIArith, Opcode: opcADDIU},
	"slti":  {Op: OpSLTI, Format: FormatIArith, Opcode: opcSLTI},
	"sltiu": {Op: OpSLTIU, Format: FormatIArith, Opcode: opcSLTIU},
	"andi":  {Op: OpANDI, Format: FormatIArith, Opcode: opcANDI},
	"ori":   {Op: OpORI, Format: FormatIArith, Opcode: opcORI},
	"xori":  {Op: OpXORI, Format: FormatIArith, Opcode: opcXORI},
	"lui":   {Op: OpLUI, Format: FormatIArith, Opcode: opcLUI},

	"lb":  {Op: OpLB, Format: FormatLoadStore, Opcode: opcLB},
	"lh":  {Op: OpLH, Format: FormatLoadStore, Opcode: opcLH},
	"lw":  {Op: OpLW, Format: FormatLoadStore, Opcode: opcLW},
	"lbu": {Op: OpLBU, Format: FormatLoadStore, Opcode: opcLBU},
	"lhu": {Op: OpLHU, Format: FormatLoadStore, Opcode: opcLHU},
	"sb":  {Op: OpSB, Format: FormatLoadStore, Opcode: opcSB},
	"sh":  {Op: OpSH, Format: FormatLoadStore, Opcode: opcSH},
	"sw":  {Op: OpSW, Format: FormatLoadStore, Opcode: opcSW},

	"beq":    {Op: OpBEQ, Format: FormatBranch, Opcode: opcBEQ},
	"bne":    {Op: OpBNE, Format: FormatBranch, Opcode: opcBNE},
	"blez":   {Op: OpBLEZ, Format: FormatBranchZero, Opcode: opcBLEZ},
	"bgtz":   {Op: OpBGTZ, Format: FormatBranchZero, Opcode: opcBGTZ},
	"bltz":   {Op: OpBLTZ, Format: FormatBranchZero, Opcode: opcRegImm, RtSel: rtBLTZ},
	"bgez":   {Op: OpBGEZ, Format: FormatBranchZero, Opcode: opcRegImm, RtSel: rtBGEZ},
	"bltzal": {Op: OpBLTZAL, Format: FormatBranchZero, Opcode: opcRegImm, RtSel: rtBLTZAL},
	"bgezal": {Op: OpBGEZAL, Format: FormatBranchZero, Opcode: opcRegImm, RtSel: rtBGEZAL},

	"j":    {Op: OpJ, Format: FormatJump, Opcode: opcJ},
	"jal":  {Op: OpJAL, Format: FormatJump, Opcode: opcJAL},
	"jr":   {Op: OpJR, Format: FormatJumpReg, Funct: fnJR},
	"jalr": {Op: OpJALR, Format: FormatJumpReg, Funct: fnJALR},

	"syscall": {Op: OpSYSCALL, Format: FormatSystem, Funct: fnSYSCALL},
	"break":   {Op: OpBREAK, Format: FormatSystem, Funct: fnBREAK},
	"eret":    {Op: OpERET, Format: FormatSystem},

	"mfc0": {Op: OpMFC0, Format: FormatCop0, Opcode: opcCop0},
	"mtc0": {Op: OpMTC0, Format: FormatCop0, Opcode: opcCop0},
	"mfc1": {Op: OpMFC1, Format: FormatCop1Move, Opcode: opcCop1},
	"mtc1": {Op: OpMTC1, Format: FormatCop1Move, Opcode: opcCop1},

	"add.s": {Op: OpFADD, Format: FormatFPArith, Fmt: fmtSingle, Funct: fnFPADD},
	"sub.s": {Op: OpFSUB, Format: FormatFPArith, Fmt: fmtSingle, Funct: fnFPSUB},
	"mul.s": {Op: OpFMUL, Format: FormatFPArith, Fmt: fmtSingle, Funct: fnFPMUL},
	"div.s": {Op: OpFDIV, Format: FormatFPArith, Fmt: fmtSingle, Funct: fnFPDIV},
	"mov.s": {Op: OpFMOV, Format: FormatFPArith, Fmt: fmtSingle, Funct: fnFPMOV},
	"add.d": {Op: OpFADD, Format: FormatFPArith, Fmt: fmtDouble, Funct: fnFPADD},
	"sub.d": {Op: OpFSUB, Format: FormatFPArith, Fmt: fmtDouble, Funct: fnFPSUB},
	"mul.d": {Op: OpFMUL, Format: FormatFPArith, Fmt: fmtDouble, Funct: fnFPMUL},
	"div.d": {Op: OpFDIV, Format: FormatFPArith, Fmt: fmtDouble, Funct: fnFPDIV},
	"mov.d": {Op: OpFMOV, Format: FormatFPArith, Fmt: fmtDouble, Funct: fnFPMOV},

	"lwc1": {Op: OpLWC1, Format: FormatFPLoadStore, Opcode: opcLWC1},
	"swc1": {Op: OpSWC1, Format: FormatFPLoadStore, Opcode: opcSWC1},
	"ldc1": {Op: OpLDC1, Format: FormatFPLoadStore, Opcode: opcLDC1},
	"sdc1": {Op: OpSDC1, Format: FormatFPLoadStore, Opcode: opcSDC1},
}

// LookupDef resolves a mnemonic to its encoding definition.
func LookupDef(mnemonic string) (Def, bool) {
	d, ok := defs[mnemonic]
	return d, ok
}

// CopMF and CopMT are the coprocessor move direction selectors
// used with FormCop.
const (
	CopMF uint32 = copMF
	CopMT uint32 = copMT
)
