package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mipsim/insts"
)

var _ = Describe("Decoder", func() {
	var d *insts.Decoder

	BeforeEach(func() {
		d = insts.NewDecoder()
	})

	It("decodes register-type arithmetic", func() {
		// add $t0, $t1, $t2
		inst := d.Decode(insts.FormR(0x20, 9, 10, 8, 0))

		Expect(inst.Op).To(Equal(insts.OpADD))
		Expect(inst.Format).To(Equal(insts.FormatR))
		Expect(inst.Rs).To(Equal(uint8(9)))
		Expect(inst.Rt).To(Equal(uint8(10)))
		Expect(inst.Rd).To(Equal(uint8(8)))
	})

	It("sign-extends immediate operands", func() {
		// addi $t0, $zero, -5
		inst := d.Decode(insts.FormI(0x08, 0, 8, 0xFFFB))

		Expect(inst.Op).To(Equal(insts.OpADDI))
		Expect(inst.Imm).To(Equal(int32(-5)))
		Expect(inst.UImm).To(Equal(uint32(0xFFFB)))
	})

	It("decodes shift amounts", func() {
		// sll $t0, $t1, 4
		inst := d.Decode(insts.FormR(0x00, 0, 9, 8, 4))

		Expect(inst.Op).To(Equal(insts.OpSLL))
		Expect(inst.Format).To(Equal(insts.FormatShift))
		Expect(inst.Shamt).To(Equal(uint8(4)))
	})

	It("decodes jump targets", func() {
		inst := d.Decode(insts.FormJ(0x02, 0x0100004))

		Expect(inst.Op).To(Equal(insts.OpJ))
		Expect(inst.Format).To(Equal(insts.FormatJump))
		Expect(inst.Target).To(Equal(uint32(0x0100004)))
	})

	It("selects REGIMM branches by the rt field", func() {
		// bgezal $t1, -1
		inst := d.Decode(insts.FormI(0x01, 9, 0x11, 0xFFFF))

		Expect(inst.Op).To(Equal(insts.OpBGEZAL))
		Expect(inst.Format).To(Equal(insts.FormatBranchZero))
		Expect(inst.Imm).To(Equal(int32(-1)))
	})

	It("decodes loads and stores", func() {
		// sw $t0, 16($gp)
		inst := d.Decode(insts.FormI(0x2B, 28, 8, 16))

		Expect(inst.Op).To(Equal(insts.OpSW))
		Expect(inst.Format).To(Equal(insts.FormatLoadStore))
		Expect(inst.Rs).To(Equal(uint8(28)))
		Expect(inst.Imm).To(Equal(int32(16)))
	})

	It("decodes syscall and break codes", func() {
		inst := d.Decode(insts.FormR(0x0D, 0, 0, 0, 0) | 7<<6)

		Expect(inst.Op).To(Equal(insts.OpBREAK))
		Expect(inst.Format).To(Equal(insts.FormatSystem))
		Expect(inst.Code).To(Equal(uint32(7)))

		Expect(d.Decode(insts.FormR(0x0C, 0, 0, 0, 0)).Op).To(Equal(insts.OpSYSCALL))
	})

	It("decodes eret", func() {
		inst := d.Decode(insts.ERETWord)

		Expect(inst.Op).To(Equal(insts.OpERET))
		Expect(inst.Format).To(Equal(insts.FormatSystem))
	})

	It("decodes coprocessor 0 moves", func() {
		// mtc0 $t0, $12
		inst := d.Decode(insts.FormCop(0x10, insts.CopMT, 8, 12))

		Expect(inst.Op).To(Equal(insts.OpMTC0))
		Expect(inst.Rt).To(Equal(uint8(8)))
		Expect(inst.Rd).To(Equal(uint8(12)))
	})

	It("decodes floating-point arithmetic", func() {
		// add.d $f2, $f4, $f6
		inst := d.Decode(insts.FormFP(0x11, 0x00, 2, 4, 6))

		Expect(inst.Op).To(Equal(insts.OpFADD))
		Expect(inst.Format).To(Equal(insts.FormatFPArith))
		Expect(inst.Double).To(BeTrue())
		Expect(inst.Fd).To(Equal(uint8(2)))
		Expect(inst.Fs).To(Equal(uint8(4)))
		Expect(inst.Ft).To(Equal(uint8(6)))
	})

	It("decodes floating-point loads", func() {
		// lwc1 $f4, 8($t0)
		inst := d.Decode(insts.FormI(0x31, 8, 4, 8))

		Expect(inst.Op).To(Equal(insts.OpLWC1))
		Expect(inst.Ft).To(Equal(uint8(4)))
	})

	It("marks unrecognized encodings as unknown", func() {
		Expect(d.Decode(0xFFFFFFFF).Op).To(Equal(insts.OpUnknown))
		Expect(d.Decode(insts.FormR(0x3F, 1, 2, 3, 0)).Op).To(Equal(insts.OpUnknown))
	})

	It("round-trips every defined mnemonic through the lookup table", func() {
		def, ok := insts.LookupDef("addu")
		Expect(ok).To(BeTrue())
		Expect(d.Decode(insts.FormR(def.Funct, 1, 2, 3, 0)).Op).To(Equal(insts.OpADDU))

		_, ok = insts.LookupDef("no-such-mnemonic")
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("Register names", func() {
	It("parses symbolic general-purpose names", func() {
		r, ok := insts.ParseGPR("$t0")
		Expect(ok).To(BeTrue())
		Expect(r).To(Equal(uint8(8)))

		r, ok = insts.ParseGPR("$ra")
		Expect(ok).To(BeTrue())
		Expect(r).To(Equal(uint8(31)))
	})

	It("parses numeric register forms", func() {
		r, ok := insts.ParseGPR("$8")
		Expect(ok).To(BeTrue())
		Expect(r).To(Equal(uint8(8)))
	})

	It("accepts $s8 as an alias for $fp", func() {
		r, ok := insts.ParseGPR("$s8")
		Expect(ok).To(BeTrue())
		Expect(r).To(Equal(uint8(30)))
	})

	It("rejects malformed names", func() {
		_, ok := insts.ParseGPR("t0")
		Expect(ok).To(BeFalse())
		_, ok = insts.ParseGPR("$t0x")
		Expect(ok).To(BeFalse())
		_, ok = insts.ParseGPR("$32")
		Expect(ok).To(BeFalse())
	})

	It("names registers conventionally", func() {
		Expect(insts.GPRName(0)).To(Equal("$zero"))
		Expect(insts.GPRName(8)).To(Equal("$t0"))
		Expect(insts.GPRName(28)).To(Equal("$gp"))
	})

	It("parses floating-point register names", func() {
		r, ok := insts.ParseFPR("$f12")
		Expect(ok).To(BeTrue())
		Expect(r).To(Equal(uint8(12)))

		_, ok = insts.ParseFPR("$t0")
		Expect(ok).To(BeFalse())

		Expect(insts.FPRName(12)).To(Equal("$f12"))
	})
})
