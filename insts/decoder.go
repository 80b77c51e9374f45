package insts

// MIPS32 primary opcode values.
const (
	opcSpecial = 0x00
	opcRegImm  = 0x01
	opcJ       = 0x02
	opcJAL     = 0x03
	opcBEQ     = 0x04
	opcBNE     = 0x05
	opcBLEZ    = 0x06
	opcBGTZ    = 0x07
	opcADDI    = 0x08
	opcADDIU   = 0x09
	opcSLTI    = 0x0A
	opcSLTIU   = 0x0B
	opcANDI    = 0x0C
	opcORI     = 0x0D
	opcXORI    = 0x0E
	opcLUI     = 0x0F
	opcCop0    = 0x10
	opcCop1    = 0x11
	opcLB      = 0x20
	opcLH      = 0x21
	opcLW      = 0x23
	opcLBU     = 0x24
	opcLHU     = 0x25
	opcSB      = 0x28
	opcSH      = 0x29
	opcSW      = 0x2B
	opcLWC1    = 0x31
	opcLDC1    = 0x35
	opcSWC1    = 0x39
	opcSDC1    = 0x3D
)

// SPECIAL funct field values.
const (
	fnSLL     = 0x00
	fnSRL     = 0x02
	fnSRA     = 0x03
	fnSLLV    = 0x04
	fnSRLV    = 0x06
	fnSRAV    = 0x07
	fnJR      = 0x08
	fnJALR    = 0x09
	fnSYSCALL = 0x0C
	fnBREAK   = 0x0D
	fnMFHI    = 0x10
	fnMTHI    = 0x11
	fnMFLO    = 0x12
	fnMTLO    = 0x13
	fnMULT    = 0x18
	fnMULTU   = 0x19
	fnDIV     = 0x1A
	fnDIVU    = 0x1B
	fnADD     = 0x20
	fnADDU    = 0x21
	fnSUB     = 0x22
	fnSUBU    = 0x23
	fnAND     = 0x24
	fnOR      = 0x25
	fnXOR     = 0x26
	fnNOR     = 0x27
	fnSLT     = 0x2A
	fnSLTU    = 0x2B
)

// REGIMM rt field values.
const (
	rtBLTZ   = 0x00
	rtBGEZ   = 0x01
	rtBLTZAL = 0x10
	rtBGEZAL = 0x11
)

// Coprocessor rs field values.
const (
	copMF      = 0x00
	copMT      = 0x04
	fmtSingle  = 0x10
	fmtDouble  = 0x11
	fnERET     = 0x18
	cop0COBit  = 1 << 25
	fnFPADD    = 0x00
	fnFPSUB    = 0x01
	fnFPMUL    = 0x02
	fnFPDIV    = 0x03
	fnFPMOV    = 0x06
)

// Decoder decodes MIPS32 machine code into instructions.
type Decoder struct{}

// NewDecoder creates a new MIPS32 instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a 32-bit MIPS instruction word. Unrecognized encodings
// yield an Instruction with Op == OpUnknown; the engine raises a
// reserved-instruction exception for those.
func (d *Decoder) Decode(word uint32) *Instruction {
	inst := &Instruction{
		Op:     OpUnknown,
		Format: FormatUnknown,
		Word:   word,
		Rs:     uint8((word >> 21) & 0x1F),
		Rt:     uint8((word >> 16) & 0x1F),
		Rd:     uint8((word >> 11) & 0x1F),
		Shamt:  uint8((word >> 6) & 0x1F),
		Imm:    int32(int16(word & 0xFFFF)),
		UImm:   word & 0xFFFF,
		Target: word & 0x03FFFFFF,
	}

	opcode := word >> 26
	switch opcode {
	case opcSpecial:
		d.decodeSpecial(word, inst)
	case opcRegImm:
		d.decodeRegImm(inst)
	case opcJ:
		inst.Op, inst.Format = OpJ, FormatJump
	case opcJAL:
		inst.Op, inst.Format = OpJAL, FormatJump
	case opcBEQ:
		inst.Op, inst.Format = OpBEQ, FormatBranch
	case opcBNE:
		inst.Op, inst.Format = OpBNE, FormatBranch
	case opcBLEZ:
		inst.Op, inst.Format = OpBLEZ, FormatBranchZero
	case opcBGTZ:
		inst.Op, inst.Format = OpBGTZ, FormatBranchZero
	case opcADDI:
		inst.Op, inst.Format = OpADDI, FormatIArith
	case opcADDIU:
		inst.Op, inst.Format = OpADDIU, FormatIArith
	case opcSLTI:
		inst.Op, inst.Format = OpSLTI, FormatIArith
	case opcSLTIU:
		inst.Op, inst.Format = OpSLTIU, FormatIArith
	case opcANDI:
		inst.Op, inst.Format = OpANDI, FormatIArith
	case opcORI:
		inst.Op, inst.Format = OpORI, FormatIArith
	case opcXORI:
		inst.Op, inst.Format = OpXORI, FormatIArith
	case opcLUI:
		inst.Op, inst.Format = OpLUI, FormatIArith
	case opcCop0:
		d.decodeCop0(word, inst)
	case opcCop1:
		d.decodeCop1(word, inst)
	case opcLB:
		inst.Op, inst.Format = OpLB, FormatLoadStore
	case opcLH:
		inst.Op, inst.Format = OpLH, FormatLoadStore
	case opcLW:
		inst.Op, inst.Format = OpLW, FormatLoadStore
	case opcLBU:
		inst.Op, inst.Format = OpLBU, FormatLoadStore
	case opcLHU:
		inst.Op, inst.Format = OpLHU, FormatLoadStore
	case opcSB:
		inst.Op, inst.Format = OpSB, FormatLoadStore
	case opcSH:
		inst.Op, inst.Format = OpSH, FormatLoadStore
	case opcSW:
		inst.Op, inst.Format = OpSW, FormatLoadStore
	case opcLWC1:
		inst.Op, inst.Format = OpLWC1, FormatFPLoadStore
		inst.Ft = inst.Rt
	case opcLDC1:
		inst.Op, inst.Format = OpLDC1, FormatFPLoadStore
		inst.Ft = inst.Rt
	case opcSWC1:
		inst.Op, inst.Format = OpSWC1, FormatFPLoadStore
		inst.Ft = inst.Rt
	case opcSDC1:
		inst.Op, inst.Format = OpSDC1, FormatFPLoadStore
		inst.Ft = inst.Rt
	}

	return inst
}

// decodeSpecial decodes opcode-0 (funct-selected) instructions.
func (d *Decoder) decodeSpecial(word uint32, inst *Instruction) {
	funct := word & 0x3F

	switch funct {
	case fnSLL:
		inst.Op, inst.Format = OpSLL, FormatShift
	case fnSRL:
		inst.Op, inst.Format = OpSRL, FormatShift
	case fnSRA:
		inst.Op, inst.Format = OpSRA, FormatShift
	case fnSLLV:
		inst.Op, inst.Format = OpSLLV, FormatR
	case fnSRLV:
		inst.Op, inst.Format = OpSRLV, FormatR
	case fnSRAV:
		inst.Op, inst.Format = OpSRAV, FormatR
	case fnJR:
		inst.Op, inst.Format = OpJR, FormatJumpReg
	case fnJALR:
		inst.Op, inst.Format = OpJALR, FormatJumpReg
	case fnSYSCALL:
		inst.Op, inst.Format = OpSYSCALL, FormatSystem
		inst.Code = (word >> 6) & 0xFFFFF
	case fnBREAK:
		inst.Op, inst.Format = OpBREAK, FormatSystem
		inst.Code = (word >> 6) & 0xFFFFF
	case fnMFHI:
		inst.Op, inst.Format = OpMFHI, FormatR
	case fnMTHI:
		inst.Op, inst.Format = OpMTHI, FormatR
	case fnMFLO:
		inst.Op, inst.Format = OpMFLO, FormatR
	case fnMTLO:
		inst.Op, inst.Format = OpMTLO, FormatR
	case fnMULT:
		inst.Op, inst.Format = OpMULT, FormatR
	case fnMULTU:
		inst.Op, inst.Format = OpMULTU, FormatR
	case fnDIV:
		inst.Op, inst.Format = OpDIV, FormatR
	case fnDIVU:
		inst.Op, inst.Format = OpDIVU, FormatR
	case fnADD:
		inst.Op, inst.Format = OpADD, FormatR
	case fnADDU:
		inst.Op, inst.Format = OpADDU, FormatR
	case fnSUB:
		inst.Op, inst.Format = OpSUB, FormatR
	case fnSUBU:
		inst.Op, inst.Format = OpSUBU, FormatR
	case fnAND:
		inst.Op, inst.Format = OpAND, FormatR
	case fnOR:
		inst.Op, inst.Format = OpOR, FormatR
	case fnXOR:
		inst.Op, inst.Format = OpXOR, FormatR
	case fnNOR:
		inst.Op, inst.Format = OpNOR, FormatR
	case fnSLT:
		inst.Op, inst.Format = OpSLT, FormatR
	case fnSLTU:
		inst.Op, inst.Format = OpSLTU, FormatR
	}
}

// decodeRegImm decodes opcode-1 (rt-selected) branch instructions.
func (d *Decoder) decodeRegImm(inst *Instruction) {
	switch inst.Rt {
	case rtBLTZ:
		inst.Op, inst.Format = OpBLTZ, FormatBranchZero
	case rtBGEZ:
		inst.Op, inst.Format = OpBGEZ, FormatBranchZero
	case rtBLTZAL:
		inst.Op, inst.Format = OpBLTZAL, FormatBranchZero
	case rtBGEZAL:
		inst.Op, inst.Format = OpBGEZAL, FormatBranchZero
	}
}

// decodeCop0 decodes coprocessor 0 instructions.
func (d *Decoder) decodeCop0(word uint32, inst *Instruction) {
	if word&cop0COBit != 0 {
		if word&0x3F == fnERET {
			inst.Op, inst.Format = OpERET, FormatSystem
		}
		return
	}
	switch inst.Rs {
	case copMF:
		inst.Op, inst.Format = OpMFC0, FormatCop0
	case copMT:
		inst.Op, inst.Format = OpMTC0, FormatCop0
	}
}

// decodeCop1 decodes coprocessor 1 moves and arithmetic.
func (d *Decoder) decodeCop1(word uint32, inst *Instruction) {
	switch inst.Rs {
	case copMF:
		inst.Op, inst.Format = OpMFC1, FormatCop1Move
		inst.Fs = inst.Rd
	case copMT:
		inst.Op, inst.Format = OpMTC1, FormatCop1Move
		inst.Fs = inst.Rd
	case fmtSingle, fmtDouble:
		inst.Double = inst.Rs == fmtDouble
		inst.Ft = inst.Rt
		inst.Fs = inst.Rd
		inst.Fd = inst.Shamt
		inst.Format = FormatFPArith
		switch word & 0x3F {
		case fnFPADD:
			inst.Op = OpFADD
		case fnFPSUB:
			inst.Op = OpFSUB
		case fnFPMUL:
			inst.Op = OpFMUL
		case fnFPDIV:
			inst.Op = OpFDIV
		case fnFPMOV:
			inst.Op = OpFMOV
		default:
			inst.Format = FormatUnknown
		}
	}
}
