package mem

import "fmt"

// AccessReason classifies why a memory access failed.
type AccessReason uint8

// Access failure reasons.
const (
	ReasonUnaligned AccessReason = iota
	ReasonUnmapped
	ReasonTextProtected
	ReasonNotExecutable
	ReasonHeapExhausted
)

// AccessError reports a rejected memory access. The engine converts it
// into an address-error CPU exception rather than failing the process.
type AccessError struct {
	Address uint32
	Width   Width
	Kind    AccessKind
	Reason  AccessReason
}

func (e *AccessError) Error() string {
	op := "read"
	if e.Kind == AccessWrite {
		op = "write"
	}
	switch e.Reason {
	case ReasonUnaligned:
		return fmt.Sprintf("%s of width %d at unaligned address 0x%08x", op, e.Width, e.Address)
	case ReasonUnmapped:
		return fmt.Sprintf("%s at unmapped address 0x%08x", op, e.Address)
	case ReasonTextProtected:
		return fmt.Sprintf("write to text segment address 0x%08x without self-modifying code enabled", e.Address)
	case ReasonNotExecutable:
		return fmt.Sprintf("instruction fetch from non-text address 0x%08x", e.Address)
	case ReasonHeapExhausted:
		return fmt.Sprintf("heap allocation failed at 0x%08x", e.Address)
	}
	return fmt.Sprintf("%s at 0x%08x failed", op, e.Address)
}

const pageShift = 12
const pageSize = 1 << pageShift

// Memory is the simulated machine's segmented address space. Storage is
// a sparse map of fixed-size pages; absent pages read as zero. Values
// are stored little-endian.
type Memory struct {
	cfg   Configuration
	pages map[uint32][]byte
	subs  []subscription

	// selfModifying permits writes into text segments and relaxes
	// alignment checking, mirroring the self-modifying-code setting.
	selfModifying bool

	heapTop uint32
}

// NewMemory creates an empty memory laid out per cfg.
func NewMemory(cfg Configuration) *Memory {
	return &Memory{
		cfg:     cfg,
		pages:   make(map[uint32][]byte),
		heapTop: cfg.HeapBase,
	}
}

// Configuration returns the active segment layout.
func (m *Memory) Configuration() Configuration {
	return m.cfg
}

// SetSelfModifyingCode toggles the self-modifying-code policy.
func (m *Memory) SetSelfModifyingCode(enabled bool) {
	m.selfModifying = enabled
}

// Reset clears all contents and returns the heap pointer to its base.
// Subscriptions survive a reset.
func (m *Memory) Reset() {
	m.pages = make(map[uint32][]byte)
	m.heapTop = m.cfg.HeapBase
}

// SetConfiguration switches to a new segment layout, clearing all
// contents. Subscriptions survive the switch.
func (m *Memory) SetConfiguration(cfg Configuration) {
	m.cfg = cfg
	m.Reset()
}

// Read reads a byte, halfword, or word at addr. fromCPU marks accesses
// originating from simulated instruction execution.
func (m *Memory) Read(addr uint32, w Width, fromCPU bool) (uint32, error) {
	if err := m.check(addr, w, AccessRead, fromCPU); err != nil {
		return 0, err
	}
	value := m.load(addr, w)
	m.notify(AccessNotice{Address: addr, Width: w, Value: value, Kind: AccessRead, FromCPU: fromCPU})
	return value, nil
}

// Write writes a byte, halfword, or word at addr.
func (m *Memory) Write(addr uint32, w Width, value uint32, fromCPU bool) error {
	if err := m.check(addr, w, AccessWrite, fromCPU); err != nil {
		return err
	}
	m.store(addr, w, value)
	m.notify(AccessNotice{Address: addr, Width: w, Value: value, Kind: AccessWrite, FromCPU: fromCPU})
	return nil
}

// Peek reads without policy checks and without posting a notice; used
// for undo recording and state dumps.
func (m *Memory) Peek(addr uint32, w Width) uint32 {
	return m.load(addr, w)
}

// ReadWord reads a 4-byte value at a word-aligned address.
func (m *Memory) ReadWord(addr uint32, fromCPU bool) (uint32, error) {
	return m.Read(addr, WidthWord, fromCPU)
}

// WriteWord writes a 4-byte value at a word-aligned address.
func (m *Memory) WriteWord(addr uint32, value uint32, fromCPU bool) error {
	return m.Write(addr, WidthWord, value, fromCPU)
}

// FetchInstruction reads the instruction word at addr. The address must
// lie in a text segment unless self-modifying code is enabled. No access
// notice is posted for fetches; only operand accesses are observable.
func (m *Memory) FetchInstruction(addr uint32) (uint32, error) {
	if addr%4 != 0 {
		return 0, &AccessError{Address: addr, Width: WidthWord, Kind: AccessRead, Reason: ReasonUnaligned}
	}
	if !m.cfg.InText(addr) && !m.selfModifying {
		return 0, &AccessError{Address: addr, Width: WidthWord, Kind: AccessRead, Reason: ReasonNotExecutable}
	}
	return m.load(addr, WidthWord), nil
}

// AllocateHeap reserves n bytes of dynamic data, rounded up to a word
// boundary, and returns the address of the reservation.
func (m *Memory) AllocateHeap(n uint32) (uint32, error) {
	rounded := (n + 3) &^ 3
	if m.heapTop+rounded < m.heapTop || m.heapTop+rounded > m.cfg.StackLimit {
		return 0, &AccessError{Address: m.heapTop, Width: WidthWord, Kind: AccessWrite, Reason: ReasonHeapExhausted}
	}
	addr := m.heapTop
	m.heapTop += rounded
	return addr, nil
}

// HeapTop returns the current dynamic-data high-water mark.
func (m *Memory) HeapTop() uint32 {
	return m.heapTop
}

// SetHeapTop restores the heap pointer; used when undoing an sbrk.
func (m *Memory) SetHeapTop(top uint32) {
	m.heapTop = top
}

// check validates alignment and segment policy for one access.
func (m *Memory) check(addr uint32, w Width, kind AccessKind, fromCPU bool) error {
	if addr%uint32(w) != 0 && !m.selfModifying {
		return &AccessError{Address: addr, Width: w, Kind: kind, Reason: ReasonUnaligned}
	}
	seg := m.cfg.SegmentOf(addr)
	if seg == SegNone {
		return &AccessError{Address: addr, Width: w, Kind: kind, Reason: ReasonUnmapped}
	}
	if kind == AccessWrite && fromCPU && (seg == SegText || seg == SegKText) && !m.selfModifying {
		return &AccessError{Address: addr, Width: w, Kind: kind, Reason: ReasonTextProtected}
	}
	return nil
}

// page returns the backing page for addr, allocating it if needed.
func (m *Memory) page(addr uint32) []byte {
	idx := addr >> pageShift
	p, ok := m.pages[idx]
	if !ok {
		p = make([]byte, pageSize)
		m.pages[idx] = p
	}
	return p
}

// load reads w bytes little-endian without policy checks.
func (m *Memory) load(addr uint32, w Width) uint32 {
	var value uint32
	for i := uint32(0); i < uint32(w); i++ {
		a := addr + i
		p, ok := m.pages[a>>pageShift]
		if !ok {
			continue
		}
		value |= uint32(p[a&(pageSize-1)]) << (8 * i)
	}
	return value
}

// store writes w bytes little-endian without policy checks.
func (m *Memory) store(addr uint32, w Width, value uint32) {
	for i := uint32(0); i < uint32(w); i++ {
		a := addr + i
		m.page(a)[a&(pageSize-1)] = byte(value >> (8 * i))
	}
}
