// Package sim implements a register-level simulated link controller with
// scripted codecs. It stands in for the PCI device during tests and demos:
// the bus package drives it through the same Hardware interface a real
// controller would sit behind.
package sim

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/c35s/hda/bus"
	"github.com/c35s/hda/codec"
	"golang.org/x/sys/unix"
)

// Config describes a simulated controller.
type Config struct {

	// Codecs are the scripted codecs attached to the link.
	Codecs []*Codec

	// RingCaps overrides the ring size-capability bits advertised by
	// CORBSIZE and RIRBSIZE. Zero advertises all three sizes.
	RingCaps uint8

	// MaxOps caps the number of commands the DMA engine consumes per
	// step. Zero consumes everything outstanding. Small values force the
	// driver to observe a lagging read pointer.
	MaxOps int

	// Notify, if set, plays the part of the interrupt line: it is called
	// after the simulator appends responses to the inbound ring.
	Notify func()

	// Logger, if set, replaces slog.Default.
	Logger *slog.Logger
}

// Sim is a simulated link controller. It implements bus.Hardware.
type Sim struct {
	mu  sync.Mutex
	cfg Config
	log *slog.Logger

	codecs map[uint8]*Codec

	gctl     uint32
	statests uint16
	wakeen   uint16

	corbwp   uint16
	corbrp   uint16
	corbctl  uint8
	corbsts  uint8
	corbsize uint8

	rirbwp   uint16
	rintcnt  uint16
	rirbctl  uint8
	rirbsts  uint8
	rirbsize uint8

	corb []uint32
	rirb []uint32
}

// New builds a simulated controller. Codec addresses must be unique and
// below 15.
func New(cfg Config) (*Sim, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.RingCaps == 0 {
		cfg.RingCaps = 0x7 // 2, 16, and 256 entries
	}

	s := &Sim{
		cfg:    cfg,
		log:    cfg.Logger,
		codecs: make(map[uint8]*Codec),
	}

	for _, cd := range cfg.Codecs {
		if cd.Addr > codec.MaxAddr {
			return nil, fmt.Errorf("sim: bad codec address %d", cd.Addr)
		}

		if s.codecs[cd.Addr] != nil {
			return nil, fmt.Errorf("sim: duplicate codec address %d", cd.Addr)
		}

		if err := cd.build(); err != nil {
			return nil, err
		}

		s.codecs[cd.Addr] = cd
		s.statests |= 1 << cd.Addr
	}

	s.corbsize = cfg.RingCaps << 4
	s.rirbsize = cfg.RingCaps << 4

	return s, nil
}

func (s *Sim) Read8(off int) uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch off {
	case 0x4c:
		return s.corbctl

	case 0x4d:
		return s.corbsts

	case 0x4e:
		return s.corbsize

	case 0x5c:
		return s.rirbctl

	case 0x5d:
		return s.rirbsts

	case 0x5e:
		return s.rirbsize

	default:
		panic(off)
	}
}

func (s *Sim) Read16(off int) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch off {
	case 0x0c:
		return s.wakeen

	case 0x0e:
		return s.statests

	case 0x48:
		return s.corbwp

	case 0x4a:
		// reading the read pointer is when a real DMA engine would be
		// observed mid-stream; step the engine here so a throttled
		// simulator still makes progress
		s.step()
		return s.corbrp

	case 0x58:
		return s.rirbwp

	case 0x5a:
		return s.rintcnt

	default:
		panic(off)
	}
}

func (s *Sim) Read32(off int) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch off {
	case 0x08:
		return s.gctl

	default:
		panic(off)
	}
}

func (s *Sim) Write8(off int, v uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch off {
	case 0x4c:
		s.corbctl = v

	case 0x4d:
		s.corbsts &^= v // RW1C

	case 0x4e:
		s.corbsize = s.corbsize&^0x3 | v&0x3

	case 0x5c:
		s.rirbctl = v

	case 0x5d:
		s.rirbsts &^= v // RW1C

	case 0x5e:
		s.rirbsize = s.rirbsize&^0x3 | v&0x3

	default:
		panic(off)
	}
}

func (s *Sim) Write16(off int, v uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch off {
	case 0x0c:
		s.wakeen = v

	case 0x0e:
		s.statests &^= v // RW1C

	case 0x48:
		s.corbwp = v
		s.step() // doorbell

	case 0x4a:
		if v&0x8000 != 0 {
			s.corbrp = 0
		}

	case 0x58:
		if v&0x8000 != 0 {
			s.rirbwp = 0
		} else {
			s.rirbwp = v
		}

	case 0x5a:
		s.rintcnt = v

	default:
		panic(off)
	}
}

func (s *Sim) Write32(off int, v uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch off {
	case 0x08:
		s.gctl = v

	default:
		panic(off)
	}
}

// MapRings allocates the ring memory. The requested lengths must match the
// programmed ring sizes.
func (s *Sim) MapRings(corbLen, rirbLen int) (corb, rirb []uint32, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if corbLen != ringEntries(s.corbsize) || rirbLen != ringEntries(s.rirbsize) {
		return nil, nil, unix.EINVAL
	}

	s.corb = make([]uint32, corbLen)
	s.rirb = make([]uint32, 2*rirbLen)

	return s.corb, s.rirb, nil
}

// Inject appends an arbitrary entry to the inbound ring, bypassing the
// scripted codecs. Tests use it for unsolicited responses and for entries
// destined for absent codec addresses.
func (s *Sim) Inject(data, ext uint32) {
	s.mu.Lock()
	s.push(data, ext)
	s.mu.Unlock()

	s.notify()
}

// SetOverrun raises the inbound ring overrun status flag.
func (s *Sim) SetOverrun() {
	s.mu.Lock()
	s.rirbsts |= 1 << 2
	s.mu.Unlock()

	s.notify()
}

// SetMemError raises the outbound ring memory error status flag.
func (s *Sim) SetMemError() {
	s.mu.Lock()
	s.corbsts |= 1 << 0
	s.mu.Unlock()

	s.notify()
}

// step runs the DMA engines: consume outstanding commands (up to MaxOps),
// respond through the scripted codecs, and raise the response interrupt.
// The caller holds s.mu.
func (s *Sim) step() {
	if s.corbctl&0x2 == 0 || s.corb == nil {
		return
	}

	mask := uint16(len(s.corb) - 1)

	n := 0
	responded := false

	for s.corbrp != s.corbwp&mask {
		if s.cfg.MaxOps > 0 && n >= s.cfg.MaxOps {
			break
		}

		s.corbrp = (s.corbrp + 1) & mask
		n++

		addr, nid, verb := codec.UnpackCommand(s.corb[s.corbrp])

		cd := s.codecs[addr]
		if cd == nil {
			s.log.Warn("command for absent codec", "codec", addr, "verb", fmt.Sprintf("%#x", verb))
			continue
		}

		s.push(cd.respond(nid, verb), uint32(addr))
		responded = true
	}

	if responded {
		s.rirbsts |= 1 << 0

		// drop the lock around the interrupt callback: it typically
		// just queues work, but it may call back into a register read
		s.mu.Unlock()
		s.notify()
		s.mu.Lock()
	}
}

// push appends one entry to the inbound ring. The caller holds s.mu.
func (s *Sim) push(data, ext uint32) {
	if s.rirb == nil {
		return
	}

	mask := uint16(len(s.rirb)/2 - 1)
	s.rirbwp = (s.rirbwp + 1) & mask
	s.rirb[2*s.rirbwp] = data
	s.rirb[2*s.rirbwp+1] = ext
}

func (s *Sim) notify() {
	if s.cfg.Notify != nil {
		s.cfg.Notify()
	}
}

func ringEntries(size uint8) int {
	switch size & 0x3 {
	case 0x0:
		return 2

	case 0x1:
		return 16

	default:
		return 256
	}
}

var _ bus.Hardware = (*Sim)(nil)
