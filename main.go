// Command hda enumerates the codecs on a simulated HD Audio link and prints
// the discovered widget trees.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/c35s/hda/bus"
	"github.com/c35s/hda/codec"
	"github.com/c35s/hda/sim"
	"golang.org/x/term"
)

func main() {
	var (
		topoPath = flag.String("topology", "", "load simulated codec topology from a YAML file")
		maxOps   = flag.Int("max-ops", 0, "limit simulated DMA to N commands per step")
	)

	flag.Parse()

	var h slog.Handler = slog.NewJSONHandler(os.Stderr, nil)
	if term.IsTerminal(int(os.Stderr.Fd())) {
		h = slog.NewTextHandler(os.Stderr, nil)
	}

	slog.SetDefault(slog.New(h))

	codecs := []*sim.Codec{demoCodec()}
	if *topoPath != "" {
		f, err := os.Open(*topoPath)
		if err != nil {
			panic(err)
		}

		c, err := sim.LoadCodec(f)
		f.Close()

		if err != nil {
			panic(err)
		}

		codecs = []*sim.Codec{c}
	}

	reg := bus.NewRegistry(nil)
	defer reg.Close()

	var ctrl *bus.Controller

	hw, err := sim.New(sim.Config{
		Codecs: codecs,
		MaxOps: *maxOps,
		Notify: func() { reg.Interrupt(ctrl) },
	})

	if err != nil {
		panic(err)
	}

	done := make(chan *codec.Codec, codec.MaxAddr+1)

	ctrl, err = bus.New(bus.Config{
		HW:      hw,
		OnCodec: func(cd *codec.Codec) { done <- cd },
	})

	if err != nil {
		panic(err)
	}

	defer ctrl.Close()
	reg.Interrupt(ctrl)

	for range codecs {
		select {
		case cd := <-done:
			printCodec(cd)

		case <-time.After(time.Second):
			fmt.Fprintln(os.Stderr, "timed out waiting for enumeration")
			os.Exit(1)
		}
	}
}

func printCodec(cd *codec.Codec) {
	fmt.Printf("codec %d: vendor %04x:%04x rev %#x\n", cd.Addr, cd.Vendor, cd.Device, cd.Revision)

	for _, fg := range cd.FuncGroups {
		if fg == nil {
			continue
		}

		fmt.Printf("  %s group, node %d: %d widgets\n", fg.Type, fg.NodeID, len(fg.Widgets))

		for _, w := range fg.Widgets {
			if w == nil {
				continue
			}

			fmt.Printf("    node %d: %s, %d ch", w.NodeID, w.Type, w.Channels)
			if len(w.Conns) > 0 {
				fmt.Printf(", conns %v", w.Conns)
			}

			fmt.Println()
		}
	}
}

// demoCodec is a small two-group codec used when no topology file is given.
func demoCodec() *sim.Codec {
	return &sim.Codec{
		Addr:     0,
		Vendor:   0x10ec,
		Device:   0x0880,
		Revision: 0x00100101,
		Groups: []*sim.Group{
			{
				Type:        "audio",
				PCMRates:    0x000e05e0,
				Formats:     0x1,
				InAmpCaps:   0x80032e11,
				OutAmpCaps:  0x80032e11,
				PowerStates: 0x0f,
				GPIOCount:   0x02,
				Widgets: []*sim.Widget{
					{Type: "output", Channels: 2, FormatOverride: true, PCMRates: 0x00040560, Formats: 0x1, OutAmp: true},
					{Type: "input", Channels: 2, InAmp: true},
					{Type: "mixer", InAmp: true, OutAmp: true, Conns: []uint16{3, 4}},
					{Type: "pin", PinCaps: 0x173f, InAmp: true, OutAmp: true, Conns: []uint16{5}},
					{Type: "pin", Digital: true, PinCaps: 0x0010, OutAmp: true, Conns: []uint16{3}},
					{Type: "beep"},
				},
			},
			{Type: "modem"},
		},
	}
}
