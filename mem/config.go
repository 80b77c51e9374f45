// Package mem provides the segmented, observable memory of the simulated
// machine. Addresses resolve to named segments (text, data, heap, stack,
// kernel text, kernel data, and the memory-mapped I/O window) whose base
// addresses come from a Configuration. Every successful access is reported
// to range-keyed subscribers in program order.
package mem

import (
	"encoding/json"
	"fmt"
	"os"
)

// Segment identifies the purpose of an address range.
type Segment uint8

// Memory segments.
const (
	SegNone   Segment = iota
	SegText           // user program text
	SegData           // static data
	SegHeap           // dynamic data, grows upward from HeapBase
	SegStack          // grows downward from StackBase
	SegKText          // kernel text (exception handlers)
	SegKData          // kernel data
	SegMMIO           // memory-mapped device registers
)

// String returns the segment's directive-style name.
func (s Segment) String() string {
	switch s {
	case SegText:
		return "text"
	case SegData:
		return "data"
	case SegHeap:
		return "heap"
	case SegStack:
		return "stack"
	case SegKText:
		return "ktext"
	case SegKData:
		return "kdata"
	case SegMMIO:
		return "mmio"
	}
	return "unmapped"
}

// Configuration holds the base addresses of every segment. A small set of
// named presets ships with the package; custom layouts load from JSON.
// Switching configurations invalidates any previously assembled program.
type Configuration struct {
	Name string `json:"name"`

	// TextBase is where user program text starts.
	TextBase uint32 `json:"text_base"`
	// TextLimit is the first address past the text segment.
	TextLimit uint32 `json:"text_limit"`

	// DataBase is the bottom of the static data segment.
	DataBase uint32 `json:"data_base"`
	// StaticBase is where the .data directive starts placing values.
	// It may sit above DataBase, leaving room for .extern allocations
	// and $gp-relative addressing below it.
	StaticBase uint32 `json:"static_base"`
	// ExternBase is where .extern declarations allocate.
	ExternBase uint32 `json:"extern_base"`
	// HeapBase is where dynamic (sbrk) allocation starts.
	HeapBase uint32 `json:"heap_base"`
	// StackBase is the initial stack pointer; the stack grows downward.
	StackBase uint32 `json:"stack_base"`
	// StackLimit is the lowest address the stack may reach.
	StackLimit uint32 `json:"stack_limit"`

	// KTextBase is where kernel text starts.
	KTextBase uint32 `json:"ktext_base"`
	// KTextLimit is the first address past kernel text.
	KTextLimit uint32 `json:"ktext_limit"`
	// KDataBase is where kernel data starts.
	KDataBase uint32 `json:"kdata_base"`
	// KDataLimit is the first address past kernel data.
	KDataLimit uint32 `json:"kdata_limit"`

	// MMIOBase is the bottom of the memory-mapped I/O window.
	MMIOBase uint32 `json:"mmio_base"`
	// MMIOLimit is the first address past the MMIO window (0 wraps to top).
	MMIOLimit uint32 `json:"mmio_limit"`

	// ExceptionHandler is the fixed kernel-text vector address.
	ExceptionHandler uint32 `json:"exception_handler"`
	// GlobalPointer is the initial $gp value.
	GlobalPointer uint32 `json:"global_pointer"`
}

// DefaultConfiguration returns the standard 32-bit layout.
func DefaultConfiguration() Configuration {
	return Configuration{
		Name:             "Default",
		TextBase:         0x00400000,
		TextLimit:        0x10000000,
		DataBase:         0x10000000,
		StaticBase:       0x10010000,
		ExternBase:       0x10000000,
		HeapBase:         0x10040000,
		StackBase:        0x7FFFEFFC,
		StackLimit:       0x40000000,
		KTextBase:        0x80000000,
		KTextLimit:       0x90000000,
		KDataBase:        0x90000000,
		KDataLimit:       0xFFFF0000,
		MMIOBase:         0xFFFF0000,
		MMIOLimit:        0, // top of the address space
		ExceptionHandler: 0x80000180,
		GlobalPointer:    0x10008000,
	}
}

// CompactDataAtZeroConfiguration returns a small layout with data at
// address zero, convenient for teaching absolute addressing.
func CompactDataAtZeroConfiguration() Configuration {
	return Configuration{
		Name:             "CompactDataAtZero",
		DataBase:         0x00000000,
		StaticBase:       0x00000000,
		ExternBase:       0x00001000,
		HeapBase:         0x00002000,
		StackBase:        0x00002FFC,
		StackLimit:       0x00002800,
		TextBase:         0x00003000,
		TextLimit:        0x00004000,
		KTextBase:        0x00004000,
		KTextLimit:       0x00005000,
		KDataBase:        0x00005000,
		KDataLimit:       0x00007F00,
		MMIOBase:         0x00007F00,
		MMIOLimit:        0x00008000,
		ExceptionHandler: 0x00004180,
		GlobalPointer:    0x00001800,
	}
}

// CompactTextAtZeroConfiguration returns a small layout with text at
// address zero.
func CompactTextAtZeroConfiguration() Configuration {
	return Configuration{
		Name:             "CompactTextAtZero",
		TextBase:         0x00000000,
		TextLimit:        0x00001000,
		DataBase:         0x00001000,
		StaticBase:       0x00001000,
		ExternBase:       0x00002000,
		HeapBase:         0x00003000,
		StackBase:        0x00003FFC,
		StackLimit:       0x00003800,
		KTextBase:        0x00004000,
		KTextLimit:       0x00005000,
		KDataBase:        0x00005000,
		KDataLimit:       0x00007F00,
		MMIOBase:         0x00007F00,
		MMIOLimit:        0x00008000,
		ExceptionHandler: 0x00004180,
		GlobalPointer:    0x00001800,
	}
}

// Configurations returns the built-in presets by name.
func Configurations() map[string]Configuration {
	return map[string]Configuration{
		"Default":           DefaultConfiguration(),
		"CompactDataAtZero": CompactDataAtZeroConfiguration(),
		"CompactTextAtZero": CompactTextAtZeroConfiguration(),
	}
}

// LoadConfiguration reads a custom Configuration from a JSON file.
func LoadConfiguration(path string) (Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Configuration{}, fmt.Errorf("reading memory configuration: %w", err)
	}
	cfg := DefaultConfiguration()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Configuration{}, fmt.Errorf("parsing memory configuration %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}

// Validate checks segment ordering constraints.
func (c Configuration) Validate() error {
	if c.TextBase%4 != 0 || c.DataBase%4 != 0 || c.KTextBase%4 != 0 {
		return fmt.Errorf("configuration %q: segment bases must be word-aligned", c.Name)
	}
	if c.TextBase >= c.TextLimit {
		return fmt.Errorf("configuration %q: text segment is empty", c.Name)
	}
	if c.KTextBase >= c.KTextLimit {
		return fmt.Errorf("configuration %q: kernel text segment is empty", c.Name)
	}
	if c.ExceptionHandler < c.KTextBase || c.ExceptionHandler >= c.KTextLimit {
		return fmt.Errorf("configuration %q: exception handler 0x%08x outside kernel text",
			c.Name, c.ExceptionHandler)
	}
	return nil
}

// SegmentOf resolves an address to its segment, or SegNone when the
// address maps to no segment in this configuration.
func (c Configuration) SegmentOf(addr uint32) Segment {
	switch {
	case c.inMMIO(addr):
		return SegMMIO
	case addr >= c.TextBase && addr < c.TextLimit:
		return SegText
	case addr >= c.DataBase && addr < c.HeapBase:
		return SegData
	case addr >= c.HeapBase && addr < c.StackLimit:
		return SegHeap
	case addr >= c.StackLimit && addr <= c.StackBase:
		return SegStack
	case addr >= c.KTextBase && addr < c.KTextLimit:
		return SegKText
	case addr >= c.KDataBase && addr < c.KDataLimit:
		return SegKData
	}
	return SegNone
}

func (c Configuration) inMMIO(addr uint32) bool {
	if c.MMIOLimit == 0 {
		return addr >= c.MMIOBase
	}
	return addr >= c.MMIOBase && addr < c.MMIOLimit
}

// InText reports whether addr lies in user or kernel text.
func (c Configuration) InText(addr uint32) bool {
	seg := c.SegmentOf(addr)
	return seg == SegText || seg == SegKText
}
