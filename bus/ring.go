package bus

import (
	"errors"
	"fmt"

	"github.com/c35s/hda/codec"
)

var (
	ErrMapRings   = errors.New("bus: ring memory map failed")
	ErrMemError   = errors.New("bus: outbound ring memory error")
	ErrOverrun    = errors.New("bus: inbound ring overrun")
	ErrBadRingCap = errors.New("bus: bad ring size capability")
)

// Response is one inbound ring entry: a payload word and a metadata word.
type Response struct {
	Data uint32
	Ext  uint32
}

// CodecAddr returns the responding codec's link address, from bits 0-3 of
// the metadata word.
func (r Response) CodecAddr() uint8 {
	return uint8(r.Ext & 0xf)
}

// Unsolicited reports whether the entry is an unsolicited response, from
// bit 4 of the metadata word.
func (r Response) Unsolicited() bool {
	return r.Ext&(1<<4) != 0
}

// ringCursor wraps the link's write-pointer convention: the pointer names the
// last-written slot, not the next free one, so the slot to write is always
// the one after the pointer.
type ringCursor struct {
	mask uint16
	ptr  uint16
}

func (c *ringCursor) nextSlot() uint16 {
	return (c.ptr + 1) & c.mask
}

func (c *ringCursor) advance() {
	c.ptr = c.nextSlot()
}

// Transport owns the two hardware rings. Outbound commands are staged into
// ring memory and published with a single write-pointer update per service
// cycle; inbound responses are drained into a local snapshot once per cycle.
// The inbound read pointer is not exposed by hardware: the shadow value kept
// here is authoritative and is never rederived from register state.
type Transport struct {
	hw Hardware

	corb    []uint32
	corbCap uint16
	wp      ringCursor
	avail   int
	dirty   bool

	rirb    []uint32 // two words per entry
	rirbCap uint16
	rp      uint16 // shadow read pointer, last-consumed entry
	rx      []Response

	maxInFlight int
}

// newTransport sizes and enables both rings. The largest ring size the
// hardware advertises wins.
func newTransport(hw Hardware) (*Transport, error) {
	corbCap, err := setupRingSize(hw, regCORBSIZE)
	if err != nil {
		return nil, err
	}

	rirbCap, err := setupRingSize(hw, regRIRBSIZE)
	if err != nil {
		return nil, err
	}

	corb, rirb, err := hw.MapRings(int(corbCap), int(rirbCap))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMapRings, err)
	}

	t := &Transport{
		hw:      hw,
		corb:    corb,
		corbCap: corbCap,
		wp:      ringCursor{mask: corbCap - 1},
		rirb:    rirb,
		rirbCap: rirbCap,
		rx:      make([]Response, 0, rirbCap),
	}

	// keep a margin of inbound slots in reserve so responses always have
	// room to land before commands saturate the loop
	margin := int(rirbCap) / 8
	if margin == 0 {
		margin = 1
	}

	t.maxInFlight = min(int(corbCap)-1, int(rirbCap)-margin)

	// reset both write pointers and the hardware read pointer
	hw.Write16(regCORBRP, corbrpReset)
	hw.Write16(regCORBRP, 0)
	hw.Write16(regCORBWP, 0)
	hw.Write16(regRIRBWP, rirbwpReset)

	// interrupt after every response, then start both DMA engines
	hw.Write16(regRINTCNT, 1)
	hw.Write8(regCORBCTL, corbctlRun)
	hw.Write8(regRIRBCTL, rirbctlRun|rirbctlIntEnable)

	return t, nil
}

// setupRingSize reads a ring's size-capability bits, programs the largest
// supported size, and returns the resulting entry count.
func setupRingSize(hw Hardware, reg int) (uint16, error) {
	caps := hw.Read8(reg) >> sizeCapShift

	var sel uint8
	var n uint16

	switch {
	case caps&(sizeCap256>>sizeCapShift) != 0:
		sel, n = sizeSel256, 256

	case caps&(sizeCap16>>sizeCapShift) != 0:
		sel, n = sizeSel16, 16

	case caps&(sizeCap2>>sizeCapShift) != 0:
		sel, n = sizeSel2, 2

	default:
		return 0, fmt.Errorf("%w: %#x", ErrBadRingCap, caps)
	}

	hw.Write8(reg, hw.Read8(reg)&^sizeSelMask|sel)
	return n, nil
}

// SnapshotTransmitSpace reads the hardware read pointer and establishes the
// transmit budget for the cycle. It must be called exactly once per cycle,
// before any Send.
func (t *Transport) SnapshotTransmitSpace() int {
	rp := t.hw.Read16(regCORBRP) & t.mask16()
	used := int((t.corbCap + t.wp.ptr - rp) & t.mask16())

	t.avail = t.maxInFlight - used
	if t.avail < 0 {
		t.avail = 0
	}

	return t.avail
}

func (t *Transport) mask16() uint16 {
	return t.corbCap - 1
}

// Space returns the transmit budget remaining in the current cycle.
func (t *Transport) Space() int {
	return t.avail
}

// Send stages one command in the next outbound slot and debits the cycle
// budget. Sending with no budget left is a driver bug.
func (t *Transport) Send(addr uint8, nid codec.NodeID, verb uint32) {
	if t.avail <= 0 {
		panic("bus: send with no transmit space")
	}

	t.corb[t.wp.nextSlot()] = codec.PackCommand(addr, nid, verb)
	t.wp.advance()
	t.avail--
	t.dirty = true
}

// Commit publishes everything staged this cycle with one write-pointer
// update. It is called at most once per cycle, after all sends.
func (t *Transport) Commit() {
	if !t.dirty {
		return
	}

	t.hw.Write16(regCORBWP, t.wp.ptr)
	t.dirty = false
}

// SnapshotReceive drains newly arrived responses into the local snapshot,
// using at most two contiguous copies to handle wraparound, and advances the
// shadow read pointer by the amount copied.
func (t *Transport) SnapshotReceive() []Response {
	t.rx = t.rx[:0]

	// ack the response interrupt before sampling the write pointer
	t.hw.Write8(regRIRBSTS, rirbstsIntFlag)

	wp := t.hw.Read16(regRIRBWP) & (t.rirbCap - 1)
	pending := int((t.rirbCap + wp - t.rp) & (t.rirbCap - 1))
	if pending == 0 {
		return nil
	}

	var buf [2 * 256]uint32

	start := int((t.rp+1)&(t.rirbCap-1)) * 2
	words := pending * 2

	n := copy(buf[:words], t.rirb[start:])
	copy(buf[n:words], t.rirb[:words-n])

	for i := 0; i < pending; i++ {
		t.rx = append(t.rx, Response{
			Data: buf[2*i],
			Ext:  buf[2*i+1],
		})
	}

	t.rp = wp
	return t.rx
}
