package mem

// Width is the size of a memory access in bytes.
type Width uint8

// Access widths.
const (
	WidthByte Width = 1
	WidthHalf Width = 2
	WidthWord Width = 4
)

// AccessKind distinguishes reads from writes.
type AccessKind uint8

// Access kinds.
const (
	AccessRead AccessKind = iota
	AccessWrite
)

// AccessNotice describes one successful memory access. Notices are
// delivered synchronously, in program order, to every subscriber whose
// registered range overlaps the accessed word.
type AccessNotice struct {
	Address uint32
	Width   Width
	Value   uint32
	Kind    AccessKind

	// FromCPU is true when the access originates from simulated
	// instruction execution, false for tool- or assembler-originated
	// accesses.
	FromCPU bool
}

// Subscriber receives memory access notices. Implementations must not
// call back into Memory from OnAccess.
type Subscriber interface {
	OnAccess(AccessNotice)
}

type subscription struct {
	low, high uint32 // inclusive address range
	sub       Subscriber
}

// Subscribe registers sub for accesses touching [low, high].
func (m *Memory) Subscribe(low, high uint32, sub Subscriber) {
	m.subs = append(m.subs, subscription{low: low, high: high, sub: sub})
}

// Unsubscribe removes every registration of sub.
func (m *Memory) Unsubscribe(sub Subscriber) {
	kept := m.subs[:0]
	for _, s := range m.subs {
		if s.sub != sub {
			kept = append(kept, s)
		}
	}
	m.subs = kept
}

// notify dispatches a notice to all overlapping subscriptions.
func (m *Memory) notify(n AccessNotice) {
	last := n.Address + uint32(n.Width) - 1
	for _, s := range m.subs {
		if n.Address <= s.high && last >= s.low {
			s.sub.OnAccess(n)
		}
	}
}
