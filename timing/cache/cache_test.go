package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mipsim/mem"
	"github.com/sarchlab/mipsim/timing/cache"
)

func read(addr uint32) mem.AccessNotice {
	return mem.AccessNotice{Address: addr, Width: mem.WidthWord, Kind: mem.AccessRead, FromCPU: true}
}

func write(addr uint32) mem.AccessNotice {
	return mem.AccessNotice{Address: addr, Width: mem.WidthWord, Kind: mem.AccessWrite, FromCPU: true}
}

var _ = Describe("Model", func() {
	var model *cache.Model

	BeforeEach(func() {
		// 512 B direct-mapped with 16 B lines: 32 sets.
		model = cache.New(cache.DefaultConfig())
	})

	It("misses cold and hits within a resident block", func() {
		model.OnAccess(read(0x1000))
		model.OnAccess(read(0x1004))
		model.OnAccess(read(0x100C))

		stats := model.Stats()
		Expect(stats.Reads).To(Equal(uint64(3)))
		Expect(stats.Misses).To(Equal(uint64(1)))
		Expect(stats.Hits).To(Equal(uint64(2)))
		Expect(stats.Evictions).To(Equal(uint64(0)))
	})

	It("counts conflict evictions in a direct-mapped shape", func() {
		// 0x1000 and 0x1200 are one cache size apart: same set.
		model.OnAccess(read(0x1000))
		model.OnAccess(read(0x1200))
		model.OnAccess(read(0x1000))

		stats := model.Stats()
		Expect(stats.Misses).To(Equal(uint64(3)))
		Expect(stats.Evictions).To(Equal(uint64(2)))
		Expect(stats.Hits).To(Equal(uint64(0)))
	})

	It("keeps conflicting blocks resident with two ways", func() {
		model = cache.New(cache.SetAssociativeConfig())

		model.OnAccess(read(0x1000))
		model.OnAccess(read(0x1200))
		model.OnAccess(read(0x1000))
		model.OnAccess(read(0x1200))

		stats := model.Stats()
		Expect(stats.Misses).To(Equal(uint64(2)))
		Expect(stats.Hits).To(Equal(uint64(2)))
		Expect(stats.Evictions).To(Equal(uint64(0)))
	})

	It("separates read and write counters", func() {
		model.OnAccess(write(0x2000))
		model.OnAccess(read(0x2004))

		stats := model.Stats()
		Expect(stats.Writes).To(Equal(uint64(1)))
		Expect(stats.Reads).To(Equal(uint64(1)))
		Expect(stats.Hits).To(Equal(uint64(1)))
	})

	It("ignores tool-originated accesses by default", func() {
		n := read(0x1000)
		n.FromCPU = false
		model.OnAccess(n)
		Expect(model.Stats().Reads).To(Equal(uint64(0)))

		model.SetCPUOnly(false)
		model.OnAccess(n)
		Expect(model.Stats().Reads).To(Equal(uint64(1)))
	})

	It("computes the hit rate", func() {
		Expect(model.Stats().HitRate()).To(Equal(0.0))

		model.OnAccess(read(0x1000))
		model.OnAccess(read(0x1004))
		model.OnAccess(read(0x1008))
		model.OnAccess(read(0x100C))

		Expect(model.Stats().HitRate()).To(BeNumerically("~", 0.75, 1e-9))
	})

	It("clears lines and counters on Reset", func() {
		model.OnAccess(read(0x1000))
		model.Reset()
		Expect(model.Stats()).To(Equal(cache.Statistics{}))

		// The previously resident block must miss again.
		model.OnAccess(read(0x1000))
		Expect(model.Stats().Misses).To(Equal(uint64(1)))
	})

	It("classifies traffic observed from simulated memory", func() {
		cfg := mem.DefaultConfiguration()
		m := mem.NewMemory(cfg)
		m.Subscribe(cfg.DataBase, cfg.StackBase, model)

		Expect(m.WriteWord(cfg.DataBase, 5, true)).To(Succeed())
		_, err := m.ReadWord(cfg.DataBase, true)
		Expect(err).NotTo(HaveOccurred())
		_, err = m.ReadWord(cfg.DataBase+4, true)
		Expect(err).NotTo(HaveOccurred())

		stats := model.Stats()
		Expect(stats.Writes).To(Equal(uint64(1)))
		Expect(stats.Reads).To(Equal(uint64(2)))
		Expect(stats.Misses).To(Equal(uint64(1)))
		Expect(stats.Hits).To(Equal(uint64(2)))
	})
})
