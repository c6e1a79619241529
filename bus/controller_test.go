package bus_test

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/c35s/hda/bus"
	"github.com/c35s/hda/codec"
	"github.com/c35s/hda/sim"
	"github.com/google/go-cmp/cmp"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// simCodec is a small scripted codec: an audio group with an output
// converter and a mixer fed by it.
func simCodec(addr uint8) *sim.Codec {
	return &sim.Codec{
		Addr:     addr,
		Vendor:   0x10ec,
		Device:   0x0262,
		Revision: 0x00100101,
		Groups: []*sim.Group{{
			Type:        "audio",
			PCMRates:    0x560,
			Formats:     0x1,
			PowerStates: 0xf,
			Widgets: []*sim.Widget{
				{Type: "output", Channels: 2, OutAmp: true},
				{Type: "mixer", InAmp: true, Conns: []uint16{2}},
			},
		}},
	}
}

// harness is a controller on a simulated link, serviced from the test
// goroutine so cycle boundaries are explicit.
type harness struct {
	hw *sim.Sim
	c  *bus.Controller

	enumerated []uint8
}

func newHarness(t *testing.T, cfg sim.Config) *harness {
	t.Helper()

	cfg.Logger = quiet()

	hw, err := sim.New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	h := &harness{hw: hw}

	h.c, err = bus.New(bus.Config{
		HW:      hw,
		Logger:  quiet(),
		OnCodec: func(cd *codec.Codec) { h.enumerated = append(h.enumerated, cd.Addr) },
	})

	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() { h.c.Close() })
	return h
}

// service runs cycles until the given number of codecs have enumerated.
func (h *harness) service(t *testing.T, want int) {
	t.Helper()

	for i := 0; i < 1000; i++ {
		if err := h.c.Service(); err != nil {
			t.Fatal(err)
		}

		if len(h.enumerated) >= want {
			return
		}
	}

	t.Fatal("enumeration did not complete")
}

func TestController(t *testing.T) {
	t.Run("discovery", func(t *testing.T) {
		h := newHarness(t, sim.Config{Codecs: []*sim.Codec{simCodec(0), simCodec(2)}})

		if got := len(h.c.Codecs()); got != 2 {
			t.Fatalf("%d codecs != 2", got)
		}

		h.service(t, 2)

		if diff := cmp.Diff([]uint8{0, 2}, h.enumerated); diff != "" {
			t.Error(diff)
		}

		for _, cd := range h.c.Codecs() {
			if cd.Vendor != 0x10ec || cd.Device != 0x0262 {
				t.Errorf("codec %d: vendor %04x:%04x", cd.Addr, cd.Vendor, cd.Device)
			}

			fg := cd.FuncGroups[0]
			if len(fg.Widgets) != 2 {
				t.Fatalf("codec %d: %d widgets != 2", cd.Addr, len(fg.Widgets))
			}

			if diff := cmp.Diff([]uint16{2}, fg.Widgets[1].Conns); diff != "" {
				t.Errorf("codec %d mixer conns: %s", cd.Addr, diff)
			}
		}
	})

	t.Run("throttled dma", func(t *testing.T) {
		// a lagging read pointer shrinks the per-cycle budget; the
		// enumeration must still finish, just in more cycles
		h := newHarness(t, sim.Config{
			Codecs:   []*sim.Codec{simCodec(0), simCodec(1), simCodec(5)},
			RingCaps: 0x2, // 16 entries
			MaxOps:   1,
		})

		h.service(t, 3)
	})

	t.Run("absent codec response dropped", func(t *testing.T) {
		h := newHarness(t, sim.Config{Codecs: []*sim.Codec{simCodec(0)}})
		h.service(t, 1)

		// address 9 has no codec; address 15 has no slot at all
		h.hw.Inject(0x1234, 9)
		h.hw.Inject(0x5678, 15)

		if err := h.c.Service(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("no handler response dropped", func(t *testing.T) {
		h := newHarness(t, sim.Config{Codecs: []*sim.Codec{simCodec(0)}})
		h.service(t, 1)

		// enumeration is done: no solicited handler is installed
		h.hw.Inject(0xdead, 0)

		if err := h.c.Service(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("unsolicited", func(t *testing.T) {
		h := newHarness(t, sim.Config{Codecs: []*sim.Codec{simCodec(0)}})
		h.service(t, 1)

		h.hw.Inject(0xbeef, 0|1<<4)

		if err := h.c.Service(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("overrun is fatal and sticky", func(t *testing.T) {
		h := newHarness(t, sim.Config{Codecs: []*sim.Codec{simCodec(0)}})

		h.hw.SetOverrun()

		if err := h.c.Service(); !errors.Is(err, bus.ErrOverrun) {
			t.Fatalf("err %v != ErrOverrun", err)
		}

		// the flag was acked, but the error latches
		if err := h.c.Service(); !errors.Is(err, bus.ErrOverrun) {
			t.Fatalf("second cycle err %v != ErrOverrun", err)
		}
	})

	t.Run("memory error is fatal", func(t *testing.T) {
		h := newHarness(t, sim.Config{Codecs: []*sim.Codec{simCodec(0)}})

		h.hw.SetMemError()

		if err := h.c.Service(); !errors.Is(err, bus.ErrMemError) {
			t.Fatalf("err %v != ErrMemError", err)
		}
	})

	t.Run("config", func(t *testing.T) {
		if _, err := bus.New(bus.Config{}); !errors.Is(err, bus.ErrConfig) {
			t.Errorf("err %v != ErrConfig", err)
		}
	})
}
