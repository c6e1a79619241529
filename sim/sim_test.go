package sim_test

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/c35s/hda/bus"
	"github.com/c35s/hda/codec"
	"github.com/c35s/hda/sim"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

// TestEnumerate drives a real controller over the simulated link and checks
// the fully decoded tree against the fixture topology, including the
// fallbacks: the output converter carries no overrides, so its PCM fields
// and output amp must come from the group defaults.
func TestEnumerate(t *testing.T) {
	f, err := os.Open("testdata/codec.yaml")
	require.NoError(t, err)
	defer f.Close()

	scripted, err := sim.LoadCodec(f)
	require.NoError(t, err)

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	hw, err := sim.New(sim.Config{Codecs: []*sim.Codec{scripted}, Logger: quiet})
	require.NoError(t, err)

	done := false

	c, err := bus.New(bus.Config{
		HW:      hw,
		Logger:  quiet,
		OnCodec: func(*codec.Codec) { done = true },
	})

	require.NoError(t, err)
	defer c.Close()

	for i := 0; !done && i < 1000; i++ {
		require.NoError(t, c.Service())
	}

	require.True(t, done, "enumeration did not complete")
	require.Len(t, c.Codecs(), 1)

	inAmp := codec.AmpCaps{CanMute: true, StepSize: 1, NumSteps: 0x11, Offset: 5}
	outAmp := codec.AmpCaps{CanMute: true, StepSize: 1, NumSteps: 0x28, Offset: 6}

	want := &codec.Codec{
		Addr:     0,
		Vendor:   0x10ec,
		Device:   0x0880,
		Revision: 0x00100003,
		FuncGroups: []*codec.FunctionGroup{{
			NodeID:      1,
			Type:        codec.GroupAudio,
			PCMRates:    0x560,
			Formats:     0x1,
			InAmp:       inAmp,
			OutAmp:      outAmp,
			PowerStates: 0xf,
			GPIO:        codec.GPIOCounts{GPIOs: 2},
			WidgetStart: 2,
			Widgets: []*codec.Widget{
				{
					NodeID:   2,
					Caps:     1<<2 | 1,
					Type:     codec.WidgetOutput,
					Channels: 2,
					PCMRates: 0x560,
					Formats:  0x1,
					OutAmp:   outAmp,
				},
				{
					NodeID:   3,
					Caps:     uint32(codec.WidgetMixer)<<20 | 1<<8 | 1<<1,
					Type:     codec.WidgetMixer,
					Channels: 1,
					InAmp:    inAmp,
					ConnLen:  1,
					Conns:    []uint16{2},
				},
			},
		}},
	}

	diff := cmp.Diff(want, c.Codecs()[0], cmpopts.IgnoreUnexported(codec.Codec{}))
	require.Empty(t, diff)
}

// TestMapRings rejects lengths that don't match the programmed ring sizes.
func TestMapRings(t *testing.T) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	hw, err := sim.New(sim.Config{RingCaps: 0x2, Logger: quiet}) // 16 entries only
	require.NoError(t, err)

	_, _, err = hw.MapRings(256, 256)
	require.Error(t, err)
}
