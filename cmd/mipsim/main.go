// Package main provides the entry point for mipsim, a MIPS32
// assemble-and-simulate engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/k0kubun/pp/v3"

	"github.com/sarchlab/mipsim/asm"
	"github.com/sarchlab/mipsim/emu"
	"github.com/sarchlab/mipsim/insts"
	"github.com/sarchlab/mipsim/mem"
	"github.com/sarchlab/mipsim/timing/cache"
)

var (
	configName  = flag.String("memory", "Default", "Memory configuration: Default, CompactDataAtZero, CompactTextAtZero")
	configPath  = flag.String("memory-config", "", "Path to a custom memory configuration JSON file")
	maxSteps    = flag.Uint64("max-steps", 0, "Pause after this many instructions (0 = no limit)")
	handlerPath = flag.String("handler", "", "Exception handler source file to link into kernel text")
	startAtMain = flag.Bool("start-at-main", false, "Start at global label main when defined")
	delayed     = flag.Bool("delayed-branching", false, "Simulate branch delay slots")
	selfMod     = flag.Bool("self-modifying", false, "Permit writes into text segments")
	noExtended  = flag.Bool("no-extended", false, "Reject pseudo-instructions")
	warnErrors  = flag.Bool("werror", false, "Treat assembly warnings as errors")
	cacheStats  = flag.Bool("cache", false, "Report cache-behavior statistics for data accesses")
	dump        = flag.Bool("dump", false, "Pretty-print final machine state")
	verbose     = flag.Bool("v", false, "Verbose output")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: mipsim [options] <program.asm> [more.asm ...]\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := selectConfiguration()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var files []asm.SourceFile
	for _, path := range flag.Args() {
		f, err := asm.ReadSourceFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		files = append(files, f)
	}

	engine := emu.NewEngine(
		emu.WithConfiguration(cfg),
		emu.WithSelfModifyingCode(*selfMod),
		emu.WithExceptionHandlerFile(*handlerPath),
		emu.WithAssemblerOptions(asm.Options{
			ExtendedInstructions: !*noExtended,
			WarningsAreErrors:    *warnErrors,
			DelayedBranching:     *delayed,
			StartAtMain:          *startAtMain,
		}),
	)

	var model *cache.Model
	if *cacheStats {
		model = cache.New(cache.DefaultConfig())
		engine.Memory().Subscribe(cfg.DataBase, cfg.StackBase, model)
	}

	prog, errs := engine.Assemble(files)
	if report := errs.Report(); report != "" {
		fmt.Fprint(os.Stderr, report)
	}
	if prog == nil {
		os.Exit(1)
	}
	if *verbose {
		fmt.Printf("Assembled %d instructions, entry point 0x%08x\n",
			len(prog.Statements), prog.EntryPoint)
	}

	result := engine.Run(context.Background(), *maxSteps)

	if *verbose || result.Err != nil {
		report(result)
	}
	if *cacheStats {
		stats := model.Stats()
		fmt.Printf("Cache: %d reads, %d writes, %d hits, %d misses, %d evictions (%.1f%% hit rate)\n",
			stats.Reads, stats.Writes, stats.Hits, stats.Misses, stats.Evictions,
			100*stats.HitRate())
	}
	if *dump {
		dumpState(engine)
	}

	os.Exit(int(result.ExitCode))
}

func selectConfiguration() (mem.Configuration, error) {
	if *configPath != "" {
		return mem.LoadConfiguration(*configPath)
	}
	cfg, ok := mem.Configurations()[*configName]
	if !ok {
		return mem.Configuration{}, fmt.Errorf("unknown memory configuration %q", *configName)
	}
	return cfg, nil
}

func report(result emu.RunResult) {
	switch {
	case result.Err != nil:
		fmt.Fprintf(os.Stderr, "Unhandled exception: %v\n", result.Err)
	case result.DroppedOff:
		fmt.Fprintf(os.Stderr, "Program terminated by dropping off the bottom\n")
	case result.LimitReached:
		fmt.Fprintf(os.Stderr, "Step limit reached after %d instructions\n", result.Steps)
	case result.Terminated:
		fmt.Printf("Program exited with code %d after %d instructions\n",
			result.ExitCode, result.Steps)
	}
}

// machineDump is the pretty-printed final-state snapshot.
type machineDump struct {
	State     string
	PC        string
	Registers map[string]string
	HI, LO    string
	Status    string
	Cause     string
	EPC       string
}

func dumpState(engine *emu.Engine) {
	d := machineDump{
		State:     engine.State().String(),
		Registers: make(map[string]string),
	}
	engine.Locked(func() {
		rf := engine.RegFile()
		d.PC = fmt.Sprintf("0x%08x", rf.PC())
		d.HI = fmt.Sprintf("0x%08x", rf.HI())
		d.LO = fmt.Sprintf("0x%08x", rf.LO())
		for i := uint8(0); i < 32; i++ {
			d.Registers[insts.GPRName(i)] = fmt.Sprintf("0x%08x", rf.Peek(i))
		}
		cp0 := engine.CP0()
		d.Status = fmt.Sprintf("0x%08x", cp0.Read(emu.CP0Status))
		d.Cause = fmt.Sprintf("0x%08x", cp0.Read(emu.CP0Cause))
		d.EPC = fmt.Sprintf("0x%08x", cp0.Read(emu.CP0EPC))
	})
	pp.Println(d)
}
