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

// loadProgram assembles one in-memory source file into the engine.
func loadProgram(e *emu.Engine, text string) *asm.Program {
	prog, errs := e.Assemble([]asm.SourceFile{{Name: "test.asm", Text: text}})
	ExpectWithOffset(1, errs.Failed()).To(BeFalse(), errs.Report())
	ExpectWithOffset(1, prog).NotTo(BeNil())
	return prog
}

var _ = Describe("Engine", func() {
	var (
		engine *emu.Engine
		stdout *bytes.Buffer
		stderr *bytes.Buffer
	)

	BeforeEach(func() {
		stdout = &bytes.Buffer{}
		stderr = &bytes.Buffer{}
		engine = emu.NewEngine(
			emu.WithStdout(stdout),
			emu.WithStderr(stderr),
		)
	})

	It("starts idle and becomes runnable after assembly", func() {
		Expect(engine.State()).To(Equal(emu.StateIdle))

		loadProgram(engine, "addi $t0, $zero, 5\n")

		cfg := engine.Memory().Configuration()
		Expect(engine.State()).To(Equal(emu.StateRunnable))
		Expect(engine.RegFile().PC()).To(Equal(uint32(0x00400000)))
		Expect(engine.RegFile().Peek(29)).To(Equal(cfg.StackBase))
		Expect(engine.RegFile().Peek(28)).To(Equal(cfg.GlobalPointer))
	})

	It("steps one instruction at a time", func() {
		loadProgram(engine, "addi $t0, $zero, 5\naddi $t1, $t0, 2\n")

		res := engine.Step()
		Expect(res.Terminated).To(BeFalse())
		Expect(engine.RegFile().Peek(8)).To(Equal(uint32(5)))
		Expect(engine.RegFile().PC()).To(Equal(uint32(0x00400004)))
		Expect(engine.InstructionCount()).To(Equal(uint64(1)))

		engine.Step()
		Expect(engine.RegFile().Peek(9)).To(Equal(uint32(7)))
	})

	It("keeps $zero hardwired to zero", func() {
		loadProgram(engine, "addi $zero, $zero, 7\naddi $t0, $zero, 0\n")
		engine.Step()
		engine.Step()
		Expect(engine.RegFile().Peek(0)).To(Equal(uint32(0)))
		Expect(engine.RegFile().Peek(8)).To(Equal(uint32(0)))
	})

	It("runs to an exit syscall", func() {
		loadProgram(engine, `
	li $v0, 1
	li $a0, 42
	syscall
	li $v0, 10
	syscall
`)
		res := engine.Run(context.Background(), 0)

		Expect(res.Terminated).To(BeTrue())
		Expect(res.ExitCode).To(Equal(int32(0)))
		Expect(stdout.String()).To(Equal("42"))
		Expect(engine.State()).To(Equal(emu.StateTerminated))

		// A terminated engine refuses further stepping.
		Expect(engine.Step().Terminated).To(BeTrue())
		Expect(engine.Run(context.Background(), 0).Terminated).To(BeTrue())
	})

	It("reports the exit2 status code", func() {
		loadProgram(engine, "li $a0, 3\nli $v0, 17\nsyscall\n")
		res := engine.Run(context.Background(), 0)
		Expect(res.Terminated).To(BeTrue())
		Expect(res.ExitCode).To(Equal(int32(3)))
	})

	It("terminates when execution drops off the bottom", func() {
		loadProgram(engine, "addi $t0, $zero, 5\n")

		Expect(engine.Step().Terminated).To(BeFalse())
		res := engine.Step()
		Expect(res.Terminated).To(BeTrue())
		Expect(res.DroppedOff).To(BeTrue())
		Expect(stderr.String()).To(ContainSubstring("dropped off"))
	})

	It("computes with HI and LO", func() {
		loadProgram(engine, `
	li $t0, 6
	li $t1, 7
	mult $t0, $t1
	mflo $t2
	mfhi $t3
`)
		for i := 0; i < 5; i++ {
			engine.Step()
		}
		Expect(engine.RegFile().Peek(10)).To(Equal(uint32(42)))
		Expect(engine.RegFile().Peek(11)).To(Equal(uint32(0)))
	})

	It("leaves HI and LO unchanged on division by zero", func() {
		loadProgram(engine, `
	li $t0, 7
	mthi $t0
	mtlo $t0
	div $t0, $t1
	mfhi $t2
	mflo $t3
`)
		for i := 0; i < 6; i++ {
			Expect(engine.Step().Terminated).To(BeFalse())
		}
		Expect(engine.RegFile().Peek(10)).To(Equal(uint32(7)))
		Expect(engine.RegFile().Peek(11)).To(Equal(uint32(7)))
	})

	It("links and returns through $ra", func() {
		loadProgram(engine, `
	jal func
	addi $t0, $zero, 1
	addi $t9, $zero, 9
func:	jr $ra
`)
		engine.Step() // jal
		Expect(engine.RegFile().Peek(31)).To(Equal(uint32(0x00400004)))
		Expect(engine.RegFile().PC()).To(Equal(uint32(0x0040000C)))

		engine.Step() // jr
		Expect(engine.RegFile().PC()).To(Equal(uint32(0x00400004)))

		engine.Step()
		Expect(engine.RegFile().Peek(8)).To(Equal(uint32(1)))
	})

	It("moves values between the CPU and coprocessor 0", func() {
		loadProgram(engine, `
	li $t0, 0x1234
	mtc0 $t0, 14
	mfc0 $t1, 14
`)
		for i := 0; i < 3; i++ {
			engine.Step()
		}
		Expect(engine.CP0().Read(emu.CP0EPC)).To(Equal(uint32(0x1234)))
		Expect(engine.RegFile().Peek(9)).To(Equal(uint32(0x1234)))
	})

	It("accepts a write to the transmitter data register", func() {
		loadProgram(engine, `
	li $t0, 0xffff000c
	li $t1, 65
	sw $t1, 0($t0)
	li $v0, 10
	syscall
`)
		res := engine.Run(context.Background(), 0)
		Expect(res.Terminated).To(BeTrue())
		Expect(res.Err).To(BeNil())

		addr := engine.MMIOAddress(emu.MMIOTransmitterData)
		Expect(engine.Memory().Peek(addr, mem.WidthWord)).To(Equal(uint32(65)))
	})

	Describe("run control", func() {
		BeforeEach(func() {
			loadProgram(engine, "loop:	j loop\n")
		})

		It("pauses at the step limit", func() {
			res := engine.Run(context.Background(), 5)

			Expect(res.Paused).To(BeTrue())
			Expect(res.LimitReached).To(BeTrue())
			Expect(res.Steps).To(Equal(uint64(5)))
			Expect(engine.State()).To(Equal(emu.StateRunnable))
			Expect(stderr.String()).To(ContainSubstring("paused"))
		})

		It("observes context cancellation between instructions", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			res := engine.Run(ctx, 0)
			Expect(res.Paused).To(BeTrue())
			Expect(engine.State()).To(Equal(emu.StateRunnable))
		})

		It("pauses on request and stays resumable", func() {
			done := make(chan emu.RunResult, 1)
			go func() { done <- engine.Run(context.Background(), 0) }()

			Eventually(engine.InstructionCount).Should(BeNumerically(">", 100))
			engine.Pause()

			var res emu.RunResult
			Eventually(done).Should(Receive(&res))
			Expect(res.Paused).To(BeTrue())
			Expect(engine.State()).To(Equal(emu.StateRunnable))

			// Resumable: running again keeps executing the loop.
			res = engine.Run(context.Background(), 3)
			Expect(res.LimitReached).To(BeTrue())
		})
	})

	Describe("breakpoints", func() {
		BeforeEach(func() {
			loadProgram(engine, `
	addi $t0, $zero, 1
	addi $t1, $zero, 2
	addi $t2, $zero, 3
	li $v0, 10
	syscall
`)
		})

		It("stops a run at a breakpoint and resumes past it", func() {
			engine.AddBreakpoint(0x00400008)

			res := engine.Run(context.Background(), 0)
			Expect(res.Breakpoint).To(BeTrue())
			Expect(res.Paused).To(BeTrue())
			Expect(res.Steps).To(Equal(uint64(2)))
			Expect(engine.RegFile().PC()).To(Equal(uint32(0x00400008)))
			Expect(engine.State()).To(Equal(emu.StateRunnable))

			res = engine.Run(context.Background(), 0)
			Expect(res.Terminated).To(BeTrue())
			Expect(engine.RegFile().Peek(10)).To(Equal(uint32(3)))
		})

		It("ignores removed breakpoints", func() {
			engine.AddBreakpoint(0x00400008)
			engine.RemoveBreakpoint(0x00400008)

			res := engine.Run(context.Background(), 0)
			Expect(res.Terminated).To(BeTrue())
		})
	})

	Describe("policy changes", func() {
		It("re-assembles when delayed branching is toggled", func() {
			loadProgram(engine, "b done\ndone:	li $v0, 10\nsyscall\n")
			Expect(engine.Program().Statements).To(HaveLen(3))

			Expect(engine.SetDelayedBranching(true)).To(Succeed())

			// The pseudo-branch gained its trailing nop.
			Expect(engine.Program().Statements).To(HaveLen(4))
			Expect(engine.Program().DelayedBranching).To(BeTrue())
			Expect(engine.State()).To(Equal(emu.StateRunnable))
			Expect(engine.RegFile().PC()).To(Equal(uint32(0x00400000)))
		})

		It("invalidates the program on a configuration switch", func() {
			loadProgram(engine, "addi $t0, $zero, 1\n")

			compact := mem.CompactTextAtZeroConfiguration()
			Expect(engine.SetConfiguration(compact)).To(Succeed())
			Expect(engine.State()).To(Equal(emu.StateIdle))
			Expect(engine.Program()).To(BeNil())

			prog := loadProgram(engine, "addi $t0, $zero, 1\n")
			Expect(prog.EntryPoint).To(Equal(uint32(0)))
			engine.Step()
			Expect(engine.RegFile().Peek(8)).To(Equal(uint32(1)))
		})

		It("rejects an invalid configuration", func() {
			bad := mem.DefaultConfiguration()
			bad.ExceptionHandler = bad.TextBase
			Expect(engine.SetConfiguration(bad)).NotTo(Succeed())
		})
	})

	Describe("reset", func() {
		It("restores the freshly assembled state, data included", func() {
			loadProgram(engine, `
.data
val:	.word 7
.text
	la $t0, val
	lw $t1, 0($t0)
	addi $t1, $t1, 1
	sw $t1, 0($t0)
	li $v0, 10
	syscall
`)
			res := engine.Run(context.Background(), 0)
			Expect(res.Terminated).To(BeTrue())
			Expect(engine.Memory().Peek(0x10010000, mem.WidthWord)).To(Equal(uint32(8)))

			engine.Reset()

			Expect(engine.State()).To(Equal(emu.StateRunnable))
			Expect(engine.RegFile().PC()).To(Equal(uint32(0x00400000)))
			Expect(engine.RegFile().Peek(9)).To(Equal(uint32(0)))
			Expect(engine.Memory().Peek(0x10010000, mem.WidthWord)).To(Equal(uint32(7)))
			Expect(engine.InstructionCount()).To(Equal(uint64(0)))
		})

		It("clears to idle without sources", func() {
			engine.Reset()
			Expect(engine.State()).To(Equal(emu.StateIdle))
		})
	})

	Describe("self-modifying code", func() {
		It("executes instructions written by the program", func() {
			smc := emu.NewEngine(
				emu.WithStdout(stdout),
				emu.WithStderr(stderr),
				emu.WithSelfModifyingCode(true),
			)
			loadProgram(smc, `
	la $t1, slot
	li $t0, 0x240a0007	# addiu $t2, $zero, 7
	sw $t0, 0($t1)
slot:	sll $zero, $zero, 0
	li $v0, 10
	syscall
`)
			res := smc.Run(context.Background(), 0)
			Expect(res.Terminated).To(BeTrue())
			Expect(res.Err).To(BeNil())
			Expect(smc.RegFile().Peek(10)).To(Equal(uint32(7)))
		})

		It("faults on a text store when the policy is off", func() {
			loadProgram(engine, `
	la $t1, slot
	li $t0, 1
	sw $t0, 0($t1)
slot:	sll $zero, $zero, 0
`)
			res := engine.Run(context.Background(), 0)
			Expect(res.Terminated).To(BeTrue())
			Expect(res.Err).NotTo(BeNil())
			Expect(res.Err.Code).To(Equal(emu.ExcAddrStore))
		})
	})

	Describe("register observers", func() {
		It("reports simulated writes to subscribed registers", func() {
			sub := &regRecorder{}
			engine.RegFile().Subscribe(8, sub)
			loadProgram(engine, "addi $t0, $zero, 5\naddi $t1, $zero, 6\n")

			engine.Step()
			engine.Step()

			writes := 0
			for _, n := range sub.notices {
				if n.Kind == mem.AccessWrite && n.FromCPU {
					writes++
					Expect(n.Value).To(Equal(uint32(5)))
				}
			}
			Expect(writes).To(Equal(1))
		})
	})
})

// regRecorder collects register notices for inspection.
type regRecorder struct {
	notices []emu.RegNotice
}

func (r *regRecorder) OnRegAccess(n emu.RegNotice) {
	r.notices = append(r.notices, n)
}
