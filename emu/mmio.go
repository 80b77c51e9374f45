package emu

// Memory-mapped device register offsets from the MMIO window base.
// The engine treats these addresses as ordinary memory; device
// semantics (ready bits, character transfer) belong to whatever
// subscriber simulates the device.
const (
	MMIOReceiverControl    = 0x00 // bit 0: character available
	MMIOReceiverData       = 0x04 // low byte: received character
	MMIOTransmitterControl = 0x08 // bit 0: ready to transmit
	MMIOTransmitterData    = 0x0C // low byte: character to transmit
)

// MMIOAddress resolves a device register offset against the engine's
// configured MMIO window base.
func (e *Engine) MMIOAddress(offset uint32) uint32 {
	return e.memory.Configuration().MMIOBase + offset
}
