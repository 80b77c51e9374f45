package emu

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/sarchlab/mipsim/asm"
	"github.com/sarchlab/mipsim/insts"
	"github.com/sarchlab/mipsim/mem"
)

// State is the engine's execution state.
type State uint8

// Engine states.
const (
	StateIdle       State = iota // no successful assembly yet
	StateRunnable                // assembled; stopped between instructions
	StateRunning                 // continuous run in progress
	StateTerminated              // program ended or trapped fatally
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunnable:
		return "Runnable"
	case StateRunning:
		return "Running"
	case StateTerminated:
		return "Terminated"
	}
	return "Unknown"
}

// branchState tracks a taken branch awaiting its delay slot.
type branchState struct {
	active bool
	target uint32
}

// StepResult reports the outcome of executing one instruction.
type StepResult struct {
	// Terminated is true when the program ended: exit syscall, cliff,
	// or unhandled exception.
	Terminated bool

	// ExitCode is the program's exit status when Terminated.
	ExitCode int32

	// DroppedOff marks a cliff termination: execution ran past the
	// last mapped instruction without an exit syscall.
	DroppedOff bool

	// Err is the unhandled fault that terminated the program, if any.
	Err *SimError
}

// RunResult reports the outcome of a continuous run.
type RunResult struct {
	Terminated bool
	ExitCode   int32
	DroppedOff bool

	// Paused is true when the run stopped on a pause/stop request or
	// context cancellation, leaving the engine Runnable.
	Paused bool

	// Breakpoint is true when the run stopped at a breakpoint address.
	Breakpoint bool

	// LimitReached is true when the runaway step limit paused the run.
	LimitReached bool

	Steps uint64
	Err   *SimError
}

// Engine owns the machine state and orchestrates fetch, decode,
// execute, undo recording, and exception dispatch. One exclusive lock
// covers memory and every register bank; outside readers share it via
// Locked. The lock is never held across a run-loop suspension point.
type Engine struct {
	mu sync.Mutex

	memory      *mem.Memory
	regFile     *RegFile
	cp0         *Coprocessor0
	cp1         *Coprocessor1
	backStepper *BackStepper
	decoder     *insts.Decoder
	syscalls    SyscallHandler

	asmOpts     asm.Options
	sources     []asm.SourceFile
	handlerPath string
	program     *asm.Program

	state         State
	branch        branchState
	selfModifying bool

	// stepPC is the address of the instruction currently executing,
	// used to attribute faults raised mid-execution.
	stepPC uint32

	// pending is the single-slot external interrupt request: the
	// device's interrupt level 0-7, or -1 when empty.
	pending int32

	breakpoints map[uint32]bool

	stopReq  atomic.Bool
	pauseReq atomic.Bool

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	instructionCount uint64
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithConfiguration selects the memory layout.
func WithConfiguration(cfg mem.Configuration) EngineOption {
	return func(e *Engine) {
		e.memory = mem.NewMemory(cfg)
	}
}

// WithStdout sets the writer syscall output goes to.
func WithStdout(w io.Writer) EngineOption {
	return func(e *Engine) { e.stdout = w }
}

// WithStderr sets the writer diagnostics go to.
func WithStderr(w io.Writer) EngineOption {
	return func(e *Engine) { e.stderr = w }
}

// WithStdin sets the reader syscall input comes from.
func WithStdin(r io.Reader) EngineOption {
	return func(e *Engine) { e.stdin = r }
}

// WithSyscallHandler replaces the default syscall service set.
func WithSyscallHandler(h SyscallHandler) EngineOption {
	return func(e *Engine) { e.syscalls = h }
}

// WithAssemblerOptions sets the assembly policy flags.
func WithAssemblerOptions(opts asm.Options) EngineOption {
	return func(e *Engine) { e.asmOpts = opts }
}

// WithExceptionHandlerFile links the given source file into kernel
// text on every assembly.
func WithExceptionHandlerFile(path string) EngineOption {
	return func(e *Engine) { e.handlerPath = path }
}

// WithSelfModifyingCode permits writes into text segments and
// instruction fetch from modified memory.
func WithSelfModifyingCode(enabled bool) EngineOption {
	return func(e *Engine) { e.selfModifying = enabled }
}

// NewEngine creates an idle engine over a fresh machine state.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		memory:      mem.NewMemory(mem.DefaultConfiguration()),
		regFile:     NewRegFile(),
		cp0:         NewCoprocessor0(),
		cp1:         NewCoprocessor1(),
		decoder:     insts.NewDecoder(),
		pending:     -1,
		breakpoints: make(map[uint32]bool),
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		asmOpts: asm.Options{
			ExtendedInstructions: true,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.memory.SetSelfModifyingCode(e.selfModifying)
	e.backStepper = NewBackStepper(e.regFile, e.cp0, e.cp1, e.memory)
	if e.syscalls == nil {
		e.syscalls = NewDefaultSyscallHandler(e.stdin, e.stdout)
	}
	return e
}

// Memory returns the machine's memory.
func (e *Engine) Memory() *mem.Memory { return e.memory }

// RegFile returns the general-purpose register bank.
func (e *Engine) RegFile() *RegFile { return e.regFile }

// CP0 returns coprocessor 0.
func (e *Engine) CP0() *Coprocessor0 { return e.cp0 }

// CP1 returns coprocessor 1.
func (e *Engine) CP1() *Coprocessor1 { return e.cp1 }

// BackStepper returns the undo recorder.
func (e *Engine) BackStepper() *BackStepper { return e.backStepper }

// Program returns the currently assembled program, or nil.
func (e *Engine) Program() *asm.Program {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.program
}

// State returns the engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// InstructionCount returns the number of instructions executed since
// the last assembly, net of back-steps.
func (e *Engine) InstructionCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.instructionCount
}

// Locked runs f under the machine lock. Outside readers needing an
// atomic multi-value snapshot (a 64-bit register pair, a memory range)
// use this to synchronize with the run loop.
func (e *Engine) Locked(f func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f()
}

// Assemble translates files and, on success, readies the machine at
// the program's entry point. Prior undo history is always discarded.
func (e *Engine) Assemble(files []asm.SourceFile) (*asm.Program, *asm.ErrorList) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.assembleLocked(files)
}

func (e *Engine) assembleLocked(files []asm.SourceFile) (*asm.Program, *asm.ErrorList) {
	if e.handlerPath != "" {
		handler, err := asm.ReadSourceFile(e.handlerPath)
		if err != nil {
			errs := asm.NewErrorList(e.asmOpts.WarningsAreErrors)
			errs.Add(e.handlerPath, 0, 0, "%v", err)
			return nil, errs
		}
		files = append(files, handler)
	}

	e.memory.Reset()
	e.backStepper.Clear()
	e.cp0.Reset()
	e.cp1.Reset()
	e.branch = branchState{}
	e.pending = -1
	e.program = nil
	e.state = StateIdle
	e.instructionCount = 0
	e.resetSyscalls()

	assembler := asm.NewAssembler(e.asmOpts)
	prog, errs := assembler.Assemble(files, e.memory)
	if prog == nil {
		return nil, errs
	}

	e.sources = files
	e.program = prog
	e.state = StateRunnable
	e.regFile.Reset(e.memory.Configuration(), prog.EntryPoint)
	return prog, errs
}

// Reset re-assembles the current sources, restoring the machine to its
// freshly assembled state. Without sources it clears to Idle.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sources) == 0 {
		e.memory.Reset()
		e.backStepper.Clear()
		e.cp0.Reset()
		e.cp1.Reset()
		e.branch = branchState{}
		e.pending = -1
		e.program = nil
		e.state = StateIdle
		e.instructionCount = 0
		e.resetSyscalls()
		return
	}
	sources := e.sources
	e.handlerPathReassemble(sources)
}

// resetSyscalls lets the syscall handler release host resources, such
// as files the previous program left open.
func (e *Engine) resetSyscalls() {
	if r, ok := e.syscalls.(interface{ Reset() }); ok {
		r.Reset()
	}
}

// handlerPathReassemble re-runs assembly on sources, compensating for
// the handler file assembleLocked appends on every call.
func (e *Engine) handlerPathReassemble(sources []asm.SourceFile) {
	if e.handlerPath != "" && len(sources) > 0 {
		sources = sources[:len(sources)-1]
	}
	e.assembleLocked(sources)
}

// SetDelayedBranching changes the delayed-branching policy. The policy
// alters generated code for pseudo-branches, so changing it with a
// program loaded forces a synchronous re-assembly.
func (e *Engine) SetDelayedBranching(enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateRunning {
		return fmt.Errorf("cannot change delayed branching while running")
	}
	if e.asmOpts.DelayedBranching == enabled {
		return nil
	}
	e.asmOpts.DelayedBranching = enabled
	if e.program != nil {
		e.handlerPathReassemble(e.sources)
	}
	return nil
}

// SetSelfModifyingCode toggles the self-modifying-code policy.
func (e *Engine) SetSelfModifyingCode(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selfModifying = enabled
	e.memory.SetSelfModifyingCode(enabled)
}

// SetBackStepping toggles undo recording.
func (e *Engine) SetBackStepping(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.backStepper.SetEnabled(enabled)
}

// SetConfiguration switches the memory layout. Refused while running;
// otherwise it invalidates the assembled program and clears to Idle.
func (e *Engine) SetConfiguration(cfg mem.Configuration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateRunning {
		return fmt.Errorf("cannot change memory configuration while running")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.memory.SetConfiguration(cfg)
	e.backStepper.Clear()
	e.program = nil
	e.sources = nil
	e.state = StateIdle
	return nil
}

// AddBreakpoint sets a breakpoint at an instruction address.
func (e *Engine) AddBreakpoint(addr uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.breakpoints[addr] = true
}

// RemoveBreakpoint clears a breakpoint.
func (e *Engine) RemoveBreakpoint(addr uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.breakpoints, addr)
}

// ClearBreakpoints removes every breakpoint.
func (e *Engine) ClearBreakpoints() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.breakpoints = make(map[uint32]bool)
}

// RaiseInterrupt requests external interrupt service at the given
// device level 0-7. Only one request can be pending; further requests
// are dropped until the first is dispatched.
func (e *Engine) RaiseInterrupt(level int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending < 0 && level >= 0 && level < 8 {
		e.pending = int32(level)
	}
}

// Step executes one instruction. Valid in Runnable state only.
func (e *Engine) Step() StepResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRunnable {
		return StepResult{Terminated: e.state == StateTerminated}
	}
	return e.stepLocked()
}

// Run executes continuously until termination, a breakpoint, a
// pause/stop request, cancellation, or the step limit. It runs on the
// caller's goroutine; callers wanting asynchrony spawn it themselves.
// maxSteps of 0 means no limit. Requests and cancellation are observed
// between instructions only.
func (e *Engine) Run(ctx context.Context, maxSteps uint64) RunResult {
	e.mu.Lock()
	if e.state != StateRunnable {
		terminated := e.state == StateTerminated
		e.mu.Unlock()
		return RunResult{Terminated: terminated}
	}
	e.state = StateRunning
	e.mu.Unlock()

	e.stopReq.Store(false)
	e.pauseReq.Store(false)

	var steps uint64
	for {
		if ctx.Err() != nil || e.stopReq.Load() || e.pauseReq.Load() {
			e.mu.Lock()
			e.state = StateRunnable
			e.mu.Unlock()
			return RunResult{Paused: true, Steps: steps}
		}
		if maxSteps > 0 && steps >= maxSteps {
			e.mu.Lock()
			e.state = StateRunnable
			e.mu.Unlock()
			fmt.Fprintf(e.stderr, "run paused after %d instructions\n", steps)
			return RunResult{Paused: true, LimitReached: true, Steps: steps}
		}

		e.mu.Lock()
		if steps > 0 && e.breakpoints[e.regFile.PC()] {
			e.state = StateRunnable
			e.mu.Unlock()
			return RunResult{Breakpoint: true, Paused: true, Steps: steps}
		}
		res := e.stepLocked()
		e.mu.Unlock()
		steps++

		if res.Terminated {
			return RunResult{
				Terminated: true,
				ExitCode:   res.ExitCode,
				DroppedOff: res.DroppedOff,
				Steps:      steps,
				Err:        res.Err,
			}
		}
	}
}

// Pause asks a running engine to stop after the current instruction,
// leaving it Runnable for resumption.
func (e *Engine) Pause() {
	e.pauseReq.Store(true)
}

// Stop discards the remainder of the current run.
func (e *Engine) Stop() {
	e.stopReq.Store(true)
}

// BackStep undoes the most recently executed instruction. Returns
// false when there is no history. A Terminated engine becomes
// Runnable again.
func (e *Engine) BackStep() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.program == nil || e.backStepper.Empty() {
		return false
	}
	r, ok := e.backStepper.BackStep()
	if !ok {
		return false
	}
	if r.hadBranch {
		e.branch = r.branch
	}
	if r.hadInterrupt {
		e.pending = r.interrupt
	}
	e.state = StateRunnable
	if e.instructionCount > 0 {
		e.instructionCount--
	}
	return true
}

// stepLocked executes exactly one instruction under the machine lock:
// fetch, decode, record undo pre-state, commit effects, move the
// program counter per the delayed-branch policy, then give a pending
// external interrupt its dispatch opportunity.
func (e *Engine) stepLocked() StepResult {
	pc := e.regFile.PC()
	e.stepPC = pc
	pendingBranch := e.branch

	var inst *insts.Instruction
	if e.selfModifying {
		word, err := e.memory.FetchInstruction(pc)
		if err != nil {
			e.backStepper.Begin()
			e.backStepper.RecordRegister(RegPC, pc)
			e.backStepper.RecordDelaySlot(pendingBranch.active, pendingBranch.target)
			return e.dispatch(accessFault(err.(*mem.AccessError), pc), pc, pendingBranch.active)
		}
		inst = e.decoder.Decode(word)
	} else if stmt, ok := e.program.StatementAt(pc); ok {
		inst = stmt.Inst
	} else {
		// Cliff termination: execution ran past the last instruction.
		e.state = StateTerminated
		fmt.Fprintf(e.stderr, "program dropped off the bottom at 0x%08x\n", pc)
		return StepResult{Terminated: true, DroppedOff: true}
	}

	e.backStepper.Begin()
	e.backStepper.RecordRegister(RegPC, pc)
	e.backStepper.RecordDelaySlot(pendingBranch.active, pendingBranch.target)
	e.instructionCount++

	e.regFile.SetPC(pc + 4)
	out := e.execute(inst, pc)

	if out.fault != nil {
		return e.dispatch(out.fault, pc, pendingBranch.active)
	}
	if out.exited {
		e.state = StateTerminated
		return StepResult{Terminated: true, ExitCode: out.exitCode}
	}

	if out.taken {
		if out.immediate || !e.asmOpts.DelayedBranching {
			e.branch = branchState{}
			e.regFile.SetPC(out.target)
		} else {
			e.branch = branchState{active: true, target: out.target}
		}
	} else if pendingBranch.active {
		// This instruction was the delay slot; transfer control now.
		e.branch = branchState{}
		e.regFile.SetPC(pendingBranch.target)
	}

	// Delivery waits for a pending delayed branch to commit, so the
	// delay slot runs exactly once and the transfer is never lost to
	// the handler's eret.
	if e.pending >= 0 && !e.branch.active {
		level := uint(e.pending)
		enabled := e.cp0.InterruptsEnabled() &&
			e.cp0.Read(CP0Status)&(1<<(StatusIMShift+level)) != 0
		if enabled {
			e.backStepper.RecordInterrupt(e.pending)
			e.pending = -1
			e.backStepper.RecordCP0(CP0Cause, e.cp0.Read(CP0Cause))
			e.cp0.Write(CP0Cause, e.cp0.Read(CP0Cause)|1<<(CauseIPShift+level))
			fault := &SimError{
				Code: ExcInterrupt, PC: e.regFile.PC(),
				Message: fmt.Sprintf("device interrupt at level %d", level),
			}
			// EPC is the next instruction; the handler returns there.
			return e.dispatch(fault, e.regFile.PC(), false)
		}
	}

	return StepResult{}
}

// setReg commits a GPR write with undo recording.
func (e *Engine) setReg(reg uint8, v uint32) {
	e.backStepper.RecordRegister(int(reg), e.regFile.Peek(reg))
	e.regFile.Write(reg, v, true)
}

// setHI commits a HI write with undo recording.
func (e *Engine) setHI(v uint32) {
	e.backStepper.RecordRegister(RegHI, e.regFile.HI())
	e.regFile.SetHI(v)
}

// setLO commits a LO write with undo recording.
func (e *Engine) setLO(v uint32) {
	e.backStepper.RecordRegister(RegLO, e.regFile.LO())
	e.regFile.SetLO(v)
}

// setCP0 commits a coprocessor 0 write with undo recording.
func (e *Engine) setCP0(reg uint8, v uint32) {
	e.backStepper.RecordCP0(reg, e.cp0.Read(reg))
	e.cp0.Write(reg, v)
}

// setCP1 commits a coprocessor 1 write with undo recording.
func (e *Engine) setCP1(reg uint8, v uint32) {
	e.backStepper.RecordCP1(reg, e.cp1.Read(reg))
	e.cp1.Write(reg, v)
}

// setCP1Pair commits a 64-bit register-pair write with undo recording.
func (e *Engine) setCP1Pair(reg uint8, v uint64) {
	reg &= 30
	e.backStepper.RecordCP1(reg, e.cp1.Read(reg))
	e.backStepper.RecordCP1(reg+1, e.cp1.Read(reg+1))
	e.cp1.WritePair(reg, v)
}

// storeMem commits a memory write with undo recording, converting a
// rejected access into the machine fault taxonomy. Nothing is recorded
// for rejected writes; memory is untouched.
func (e *Engine) storeMem(addr uint32, w mem.Width, v uint32) *SimError {
	prior := e.memory.Peek(addr, w)
	if err := e.memory.Write(addr, w, v, true); err != nil {
		return accessFault(err.(*mem.AccessError), e.stepPC)
	}
	e.backStepper.RecordMemory(addr, w, prior)
	return nil
}
