// Package bus drives an HD Audio link controller: the outbound/inbound
// hardware ring buffers, the per-cycle service scheduler that shares
// transmit space across codecs, and the registry that runs service cycles
// on a single worker goroutine.
package bus

// controller register offsets

const (
	regGCTL     = 0x08 // global control (RW)
	regWAKEEN   = 0x0c // wake enable bits (RW)
	regSTATESTS = 0x0e // codec state-change/wake bits (RW1C)
	regCORBWP   = 0x48 // outbound ring write pointer (RW)
	regCORBRP   = 0x4a // outbound ring read pointer (RW; bit 15 resets)
	regCORBCTL  = 0x4c // outbound ring control (RW)
	regCORBSTS  = 0x4d // outbound ring status (RW1C)
	regCORBSIZE = 0x4e // outbound ring size select + capability (RW)
	regRIRBWP   = 0x58 // inbound ring write pointer (RW; bit 15 resets)
	regRINTCNT  = 0x5a // inbound response interrupt count (RW)
	regRIRBCTL  = 0x5c // inbound ring control (RW)
	regRIRBSTS  = 0x5d // inbound ring status (RW1C)
	regRIRBSIZE = 0x5e // inbound ring size select + capability (RW)
)

// register bits

const (
	corbctlRun    = 1 << 1 // outbound DMA engine enable
	corbrpReset   = 1 << 15
	corbstsMemErr = 1 << 0 // memory error on the outbound ring

	rirbctlIntEnable = 1 << 0 // response interrupt enable
	rirbctlRun       = 1 << 1 // inbound DMA engine enable
	rirbwpReset      = 1 << 15
	rirbstsIntFlag   = 1 << 0 // response interrupt pending
	rirbstsOverrun   = 1 << 2 // inbound ring overrun

	// ring size select values and the matching capability bits
	sizeSel2     = 0x0
	sizeSel16    = 0x1
	sizeSel256   = 0x2
	sizeCap2     = 1 << 4
	sizeCap16    = 1 << 5
	sizeCap256   = 1 << 6
	sizeSelMask  = 0x3
	sizeCapShift = 4
)

// Hardware is the register-level interface to a link controller. The PCI
// layer that maps the BAR and allocates bus-master ring memory implements it
// for real devices; package sim implements it for tests.
type Hardware interface {
	Read8(off int) uint8
	Read16(off int) uint16
	Read32(off int) uint32
	Write8(off int, v uint8)
	Write16(off int, v uint16)
	Write32(off int, v uint32)

	// MapRings returns the outbound and inbound ring memory after the ring
	// sizes have been programmed. The outbound ring holds one word per
	// entry; the inbound ring holds two (payload, then metadata).
	MapRings(corbLen, rirbLen int) (corb, rirb []uint32, err error)
}
