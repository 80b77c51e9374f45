// Package cache models the cache behavior of a simulated program's
// memory traffic. A Model subscribes to an address range on the
// machine's memory and classifies every program-order access as a hit,
// miss, or eviction using an Akita cache directory. It keeps
// statistics only; it stores no data, since the observed memory is
// the backing truth.
package cache

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/mipsim/mem"
)

// Config holds the modeled cache's shape.
type Config struct {
	// Size in bytes.
	Size int
	// Associativity (number of ways).
	Associativity int
	// BlockSize in bytes (cache line size).
	BlockSize int
}

// DefaultConfig returns a small direct-mapped cache, the conventional
// starting point for visualizing locality effects.
func DefaultConfig() Config {
	return Config{
		Size:          512,
		Associativity: 1,
		BlockSize:     16,
	}
}

// SetAssociativeConfig returns a 2-way configuration for contrasting
// against the direct-mapped default.
func SetAssociativeConfig() Config {
	return Config{
		Size:          512,
		Associativity: 2,
		BlockSize:     16,
	}
}

// Statistics counts classified accesses.
type Statistics struct {
	Reads     uint64
	Writes    uint64
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// HitRate returns the fraction of accesses that hit, or 0 with no
// accesses yet.
func (s Statistics) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Model is a cache-behavior observer over simulated memory. It
// implements mem.Subscriber; attach it with Memory.Subscribe over the
// address range of interest.
type Model struct {
	config    Config
	directory *akitacache.DirectoryImpl
	stats     Statistics

	// cpuOnly restricts classification to accesses made by simulated
	// instruction execution, ignoring tooling reads and writes.
	cpuOnly bool
}

// New creates a cache model.
func New(config Config) *Model {
	numSets := config.Size / (config.Associativity * config.BlockSize)
	return &Model{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		cpuOnly: true,
	}
}

// SetCPUOnly controls whether tool-originated accesses are modeled.
func (m *Model) SetCPUOnly(cpuOnly bool) {
	m.cpuOnly = cpuOnly
}

// Config returns the modeled shape.
func (m *Model) Config() Config {
	return m.config
}

// Stats returns the counters so far.
func (m *Model) Stats() Statistics {
	return m.stats
}

// Reset invalidates every modeled line and clears the counters.
func (m *Model) Reset() {
	m.directory.Reset()
	m.stats = Statistics{}
}

// OnAccess classifies one observed memory access. Notices arrive in
// program order, so LRU state tracks the simulated program exactly.
func (m *Model) OnAccess(n mem.AccessNotice) {
	if m.cpuOnly && !n.FromCPU {
		return
	}
	if n.Kind == mem.AccessWrite {
		m.stats.Writes++
	} else {
		m.stats.Reads++
	}
	m.access(uint64(n.Address), n.Kind == mem.AccessWrite)
}

func (m *Model) access(addr uint64, write bool) {
	blockAddr := addr / uint64(m.config.BlockSize) * uint64(m.config.BlockSize)

	block := m.directory.Lookup(0, blockAddr)
	if block != nil && block.IsValid {
		m.stats.Hits++
		if write {
			block.IsDirty = true
		}
		m.directory.Visit(block)
		return
	}

	m.stats.Misses++
	victim := m.directory.FindVictim(blockAddr)
	if victim == nil {
		return
	}
	if victim.IsValid {
		m.stats.Evictions++
	}
	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = write
	m.directory.Visit(victim)
}
