package emu_test

import (
	"bytes"
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mipsim/asm"
	"github.com/sarchlab/mipsim/emu"
	"github.com/sarchlab/mipsim/mem"
)

var _ = Describe("Exception dispatch", func() {
	var (
		engine *emu.Engine
		stdout *bytes.Buffer
	)

	BeforeEach(func() {
		stdout = &bytes.Buffer{}
		engine = emu.NewEngine(
			emu.WithStdout(stdout),
			emu.WithStderr(&bytes.Buffer{}),
		)
	})

	It("terminates on an unaligned load with no handler installed", func() {
		loadProgram(engine, "lw $t0, 1($gp)\n")
		gp := engine.Memory().Configuration().GlobalPointer

		res := engine.Step()

		Expect(res.Terminated).To(BeTrue())
		Expect(res.ExitCode).To(Equal(int32(-1)))
		Expect(res.Err).NotTo(BeNil())
		Expect(res.Err.Code).To(Equal(emu.ExcAddrLoad))
		Expect(res.Err.Address).To(Equal(gp + 1))
		Expect(res.Err.PC).To(Equal(uint32(0x00400000)))
		Expect(engine.State()).To(Equal(emu.StateTerminated))

		cp0 := engine.CP0()
		Expect(cp0.Read(emu.CP0BadVAddr)).To(Equal(gp + 1))
		Expect(cp0.Read(emu.CP0EPC)).To(Equal(uint32(0x00400000)))
		code := (cp0.Read(emu.CP0Cause) & emu.CauseCodeMask) >> emu.CauseCodeShift
		Expect(code).To(Equal(uint32(emu.ExcAddrLoad)))
		Expect(cp0.Read(emu.CP0Status) & emu.StatusEXL).NotTo(BeZero())
	})

	It("leaves memory untouched on a rejected store", func() {
		loadProgram(engine, "li $t0, 5\nsw $t0, 1($gp)\n")
		gp := engine.Memory().Configuration().GlobalPointer

		engine.Step()
		res := engine.Step()

		Expect(res.Terminated).To(BeTrue())
		Expect(res.Err.Code).To(Equal(emu.ExcAddrStore))
		for i := uint32(0); i < 8; i++ {
			Expect(engine.Memory().Peek(gp+i, mem.WidthByte)).To(Equal(uint32(0)))
		}
	})

	It("raises overflow without clobbering the destination", func() {
		loadProgram(engine, "li $t0, 0x7fffffff\naddi $t0, $t0, 1\n")

		res := engine.Run(context.Background(), 0)

		Expect(res.Terminated).To(BeTrue())
		Expect(res.Err.Code).To(Equal(emu.ExcOverflow))
		Expect(engine.RegFile().Peek(8)).To(Equal(uint32(0x7FFFFFFF)))
	})

	It("raises a breakpoint exception for break", func() {
		loadProgram(engine, "break 2\n")
		res := engine.Step()
		Expect(res.Terminated).To(BeTrue())
		Expect(res.Err.Code).To(Equal(emu.ExcBreakpoint))
	})

	It("vectors to an assembled handler and returns with eret", func() {
		loadProgram(engine, `
	lw $t0, 1($gp)
	li $v0, 10
	syscall
.ktext 0x80000180
	eret
`)
		Expect(engine.Program().HasHandler).To(BeTrue())

		res := engine.Step()
		Expect(res.Terminated).To(BeFalse())
		Expect(engine.State()).To(Equal(emu.StateRunnable))
		Expect(engine.RegFile().PC()).To(Equal(uint32(0x80000180)))
		Expect(engine.CP0().Read(emu.CP0EPC)).To(Equal(uint32(0x00400000)))
		Expect(engine.CP0().Read(emu.CP0Status) & emu.StatusEXL).NotTo(BeZero())

		// eret transfers immediately, with no delay slot.
		engine.Step()
		Expect(engine.RegFile().PC()).To(Equal(uint32(0x00400000)))
		Expect(engine.CP0().Read(emu.CP0Status) & emu.StatusEXL).To(BeZero())
	})

	Describe("external interrupts", func() {
		BeforeEach(func() {
			loadProgram(engine, "nop\nnop\nnop\nnop\nnop\nnop\n")
		})

		It("stays pending while the global enable is clear", func() {
			engine.CP0().Write(emu.CP0Status, 0xFF<<emu.StatusIMShift)
			engine.RaiseInterrupt(3)

			Expect(engine.Step().Terminated).To(BeFalse())
			Expect(engine.Step().Terminated).To(BeFalse())
			Expect(engine.State()).To(Equal(emu.StateRunnable))

			// Unmasking lets the pending request dispatch.
			engine.CP0().Write(emu.CP0Status, emu.StatusIE|0xFF<<emu.StatusIMShift)
			res := engine.Step()
			Expect(res.Terminated).To(BeTrue())
			Expect(res.Err.Code).To(Equal(emu.ExcInterrupt))
		})

		It("stays pending while the level's mask bit is clear", func() {
			engine.CP0().Write(emu.CP0Status, emu.StatusIE)
			engine.RaiseInterrupt(3)

			Expect(engine.Step().Terminated).To(BeFalse())

			engine.CP0().Write(emu.CP0Status, emu.StatusIE|1<<(emu.StatusIMShift+3))
			res := engine.Step()
			Expect(res.Terminated).To(BeTrue())
			Expect(res.Err.Code).To(Equal(emu.ExcInterrupt))

			cause := engine.CP0().Read(emu.CP0Cause)
			Expect(cause & (1 << (emu.CauseIPShift + 3))).NotTo(BeZero())
		})

		It("saves the next instruction in EPC", func() {
			engine.RaiseInterrupt(0)

			res := engine.Step()
			Expect(res.Terminated).To(BeTrue())
			Expect(engine.CP0().Read(emu.CP0EPC)).To(Equal(uint32(0x00400004)))
		})

		It("drops out-of-range levels", func() {
			engine.RaiseInterrupt(8)
			Expect(engine.Step().Terminated).To(BeFalse())
		})

		It("services an interrupt through the handler and resumes", func() {
			handled := emu.NewEngine(emu.WithStdout(stdout), emu.WithStderr(&bytes.Buffer{}))
			loadProgram(handled, `
	nop
	nop
	nop
	li $v0, 10
	syscall
.ktext 0x80000180
	eret
`)
			handled.RaiseInterrupt(2)

			Expect(handled.Step().Terminated).To(BeFalse())
			Expect(handled.RegFile().PC()).To(Equal(uint32(0x80000180)))
			Expect(handled.CP0().Read(emu.CP0EPC)).To(Equal(uint32(0x00400004)))

			// Return from the handler and run to completion.
			handled.Step()
			Expect(handled.RegFile().PC()).To(Equal(uint32(0x00400004)))

			res := handled.Run(context.Background(), 0)
			Expect(res.Terminated).To(BeTrue())
			Expect(res.Err).To(BeNil())
		})
	})
})

var _ = Describe("Delayed branching", func() {
	var engine *emu.Engine

	BeforeEach(func() {
		engine = emu.NewEngine(
			emu.WithStdout(&bytes.Buffer{}),
			emu.WithStderr(&bytes.Buffer{}),
			emu.WithAssemblerOptions(asm.Options{
				ExtendedInstructions: true,
				DelayedBranching:     true,
			}),
		)
	})

	It("executes the delay slot exactly once before the transfer", func() {
		loadProgram(engine, `
	beq $zero, $zero, done
	addi $t0, $zero, 1
	addi $t1, $zero, 2
done:	addi $t2, $zero, 3
`)
		engine.Step() // beq: transfer is pending
		Expect(engine.RegFile().PC()).To(Equal(uint32(0x00400004)))

		engine.Step() // delay slot
		Expect(engine.RegFile().Peek(8)).To(Equal(uint32(1)))
		Expect(engine.RegFile().PC()).To(Equal(uint32(0x0040000C)))

		engine.Step()
		Expect(engine.RegFile().Peek(10)).To(Equal(uint32(3)))
		Expect(engine.RegFile().Peek(9)).To(Equal(uint32(0)))
	})

	It("restores the pending transfer when the delay slot is undone", func() {
		loadProgram(engine, `
	beq $zero, $zero, done
	addi $t0, $zero, 1
	addi $t1, $zero, 2
done:	addi $t2, $zero, 3
`)
		engine.Step()
		engine.Step()
		Expect(engine.RegFile().PC()).To(Equal(uint32(0x0040000C)))

		Expect(engine.BackStep()).To(BeTrue())
		Expect(engine.RegFile().PC()).To(Equal(uint32(0x00400004)))
		Expect(engine.RegFile().Peek(8)).To(Equal(uint32(0)))

		// Replaying the delay slot lands at the branch target again.
		engine.Step()
		Expect(engine.RegFile().Peek(8)).To(Equal(uint32(1)))
		Expect(engine.RegFile().PC()).To(Equal(uint32(0x0040000C)))
	})

	It("links past the delay slot", func() {
		loadProgram(engine, `
	jal func
	addi $t0, $zero, 1
	addi $t9, $zero, 9
func:	jr $ra
`)
		engine.Step() // jal: pending
		Expect(engine.RegFile().Peek(31)).To(Equal(uint32(0x00400008)))

		engine.Step() // delay slot, then transfer
		Expect(engine.RegFile().Peek(8)).To(Equal(uint32(1)))
		Expect(engine.RegFile().PC()).To(Equal(uint32(0x0040000C)))
	})

	It("transfers immediately when the policy is off", func() {
		plain := emu.NewEngine(emu.WithStdout(&bytes.Buffer{}), emu.WithStderr(&bytes.Buffer{}))
		loadProgram(plain, `
	beq $zero, $zero, done
	addi $t0, $zero, 1
	addi $t1, $zero, 2
done:	addi $t2, $zero, 3
`)
		plain.Step()
		Expect(plain.RegFile().PC()).To(Equal(uint32(0x0040000C)))

		plain.Step()
		Expect(plain.RegFile().Peek(10)).To(Equal(uint32(3)))
		Expect(plain.RegFile().Peek(8)).To(Equal(uint32(0)))
	})

	It("holds an interrupt until the pending transfer commits", func() {
		loadProgram(engine, `
	beq $zero, $zero, done
	addi $t0, $zero, 1
	addi $t1, $zero, 2
done:	addi $t2, $zero, 3
	li $v0, 10
	syscall
.ktext 0x80000180
	eret
`)
		engine.RaiseInterrupt(0)

		// The branch leaves a transfer pending, so the request waits.
		engine.Step()
		Expect(engine.RegFile().PC()).To(Equal(uint32(0x00400004)))
		Expect(engine.CP0().Read(emu.CP0EPC)).To(Equal(uint32(0)))

		// The delay slot runs, the transfer commits, then the handler
		// is entered with EPC at the branch target.
		engine.Step()
		Expect(engine.RegFile().Peek(8)).To(Equal(uint32(1)))
		Expect(engine.RegFile().PC()).To(Equal(uint32(0x80000180)))
		Expect(engine.CP0().Read(emu.CP0EPC)).To(Equal(uint32(0x0040000C)))
		Expect(engine.CP0().Read(emu.CP0Cause) & emu.CauseBD).To(BeZero())

		engine.Step() // eret
		Expect(engine.RegFile().PC()).To(Equal(uint32(0x0040000C)))

		res := engine.Run(context.Background(), 0)
		Expect(res.Terminated).To(BeTrue())
		Expect(res.Err).To(BeNil())
		Expect(engine.RegFile().Peek(10)).To(Equal(uint32(3)))
		Expect(engine.RegFile().Peek(9)).To(Equal(uint32(0)))
	})

	It("marks a delay-slot fault with the BD bit", func() {
		loadProgram(engine, `
	beq $zero, $zero, done
	lw $t0, 1($gp)
done:	addi $t2, $zero, 3
`)
		engine.Step() // branch pending
		res := engine.Step()

		Expect(res.Terminated).To(BeTrue())
		Expect(res.Err.Code).To(Equal(emu.ExcAddrLoad))
		Expect(engine.CP0().Read(emu.CP0Cause) & emu.CauseBD).NotTo(BeZero())
	})
})
