package codec

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// fakeNodes scripts responses per node and verb. Missing entries respond
// zero, like real silicon answering a verb it doesn't implement.
type fakeNodes map[NodeID]map[uint32]uint32

func (f fakeNodes) respond(cmd uint32) uint32 {
	_, nid, verb := UnpackCommand(cmd)
	return f[nid][verb]
}

// drive runs enumeration to completion: each iteration is one service
// cycle with the given transmit budget, and every command sent in a cycle
// is answered, in order, before the next cycle. It returns every command
// sent, in transmit order.
func drive(t *testing.T, cd *Codec, conn *fakeConn, budget int, nodes fakeNodes) []uint32 {
	t.Helper()

	var log []uint32

	for i := 0; i < 1000; i++ {
		conn.space = budget
		if cd.NeedsWork() {
			cd.Work()
		}

		if len(conn.sent) == 0 {
			return log
		}

		q := conn.sent
		conn.sent = nil
		log = append(log, q...)

		for _, cmd := range q {
			cd.HandleResponse(nodes.respond(cmd), false)
		}
	}

	t.Fatal("enumeration did not settle")
	return nil
}

// root returns the scripted root node for a codec with one function group
// at node 1.
func root() map[uint32]uint32 {
	return map[uint32]uint32{
		GetParam(ParamVendorID):     0x83847680,
		GetParam(ParamRevisionID):   0x00100302,
		GetParam(ParamSubNodeCount): 1<<16 | 1,
	}
}

// audioGroup returns a scripted audio function group at node 1 with the
// given number of widgets starting at node 2.
func audioGroup(widgets int) map[uint32]uint32 {
	return map[uint32]uint32{
		GetParam(ParamGroupType):     uint32(GroupAudio),
		GetParam(ParamAFGCaps):       0x00000001,
		GetParam(ParamPCMSizeRate):   0x00040560,
		GetParam(ParamStreamFormats): 0x00000001,
		GetParam(ParamInAmpCaps):     0x80001005,
		GetParam(ParamOutAmpCaps):    0x80002706,
		GetParam(ParamPowerStates):   0x0000000f,
		GetParam(ParamGPIOCount):     0x00000002,
		GetParam(ParamSubNodeCount):  2<<16 | uint32(widgets),
	}
}

func TestEnumerate(t *testing.T) {
	t.Run("tree", func(t *testing.T) {
		nodes := fakeNodes{
			0: root(),
			1: audioGroup(2),
			2: { // output converter, format override, no connection list
				GetParam(ParamWidgetCaps):    uint32(WidgetOutput)<<20 | capOutAmpPresent | capAmpOverride | capFormatOverride | capChanLSB,
				GetParam(ParamPCMSizeRate):   0x00000560,
				GetParam(ParamStreamFormats): 0x00000001,
				GetParam(ParamOutAmpCaps):    0x80001203,
				GetParam(ParamPowerStates):   0x0000000f,
				GetParam(ParamProcCaps):      0x00000100,
			},
			3: { // mixer with a short-form connection list of 2
				GetParam(ParamWidgetCaps):  uint32(WidgetMixer)<<20 | capInAmpPresent | capAmpOverride | capConnList | capChanLSB,
				GetParam(ParamInAmpCaps):   0x80001005,
				GetParam(ParamConnListLen): 2,
				GetParam(ParamPowerStates): 0x0000000f,
				GetConnListEntry(0):        0x00000402,
			},
		}

		conn := &fakeConn{}
		cd := New(0, conn)

		enumDone := false
		cd.Enumerate(func() { enumDone = true })
		drive(t, cd, conn, 2, nodes)

		if !enumDone {
			t.Fatal("enumeration did not complete")
		}

		want := &Codec{
			Addr:     0,
			Vendor:   0x8384,
			Device:   0x7680,
			Revision: 0x00100302,
			FuncGroups: []*FunctionGroup{{
				NodeID:      1,
				Type:        GroupAudio,
				Caps:        0x00000001,
				PCMRates:    0x00040560,
				Formats:     0x00000001,
				InAmp:       AmpCaps{CanMute: true, StepSize: 1, NumSteps: 0x11, Offset: 5},
				OutAmp:      AmpCaps{CanMute: true, StepSize: 1, NumSteps: 0x28, Offset: 6},
				PowerStates: 0x0000000f,
				GPIO:        GPIOCounts{GPIOs: 2},
				WidgetStart: 2,
				Widgets: []*Widget{
					{
						NodeID:      2,
						Caps:        uint32(WidgetOutput)<<20 | capOutAmpPresent | capAmpOverride | capFormatOverride | capChanLSB,
						Type:        WidgetOutput,
						Channels:    2,
						PCMRates:    0x00000560,
						Formats:     0x00000001,
						OutAmp:      AmpCaps{CanMute: true, StepSize: 1, NumSteps: 0x13, Offset: 3},
						PowerStates: 0x0000000f,
						Proc:        ProcessingCaps{NumCoef: 1},
					},
					{
						NodeID:      3,
						Caps:        uint32(WidgetMixer)<<20 | capInAmpPresent | capAmpOverride | capConnList | capChanLSB,
						Type:        WidgetMixer,
						Channels:    2,
						InAmp:       AmpCaps{CanMute: true, StepSize: 1, NumSteps: 0x11, Offset: 5},
						PowerStates: 0x0000000f,
						ConnLen:     2,
						Conns:       []uint16{0x02, 0x04},
					},
				},
			}},
		}

		if diff := cmp.Diff(want, cd, cmpopts.IgnoreUnexported(Codec{})); diff != "" {
			t.Error(diff)
		}
	})

	t.Run("pin dispatch", func(t *testing.T) {
		pin := func(digital bool) fakeNodes {
			caps := uint32(WidgetPin)<<20 | capInAmpPresent | capOutAmpPresent
			if digital {
				caps |= capDigital
			}

			return fakeNodes{
				0: root(),
				1: audioGroup(1),
				2: {GetParam(ParamWidgetCaps): caps},
			}
		}

		walk := func(nodes fakeNodes) []uint32 {
			conn := &fakeConn{}
			cd := New(0, conn)
			cd.Enumerate(func() {})

			var toPin []uint32
			for _, cmd := range drive(t, cd, conn, 4, nodes) {
				if _, nid, verb := UnpackCommand(cmd); nid == 2 {
					toPin = append(toPin, verb)
				}
			}

			return toPin
		}

		t.Run("digital", func(t *testing.T) {
			want := []uint32{
				GetParam(ParamWidgetCaps),
				GetParam(ParamPinCaps),
				GetParam(ParamOutAmpCaps),
				GetParam(ParamConnListLen),
				GetParam(ParamPowerStates),
				GetParam(ParamProcCaps),
			}

			if diff := cmp.Diff(want, walk(pin(true))); diff != "" {
				t.Error(diff)
			}
		})

		t.Run("non-digital", func(t *testing.T) {
			want := []uint32{
				GetParam(ParamWidgetCaps),
				GetParam(ParamPinCaps),
				GetParam(ParamInAmpCaps),
				GetParam(ParamOutAmpCaps),
				GetParam(ParamConnListLen),
				GetParam(ParamPowerStates),
				GetParam(ParamProcCaps),
			}

			if diff := cmp.Diff(want, walk(pin(false))); diff != "" {
				t.Error(diff)
			}
		})
	})

	t.Run("format fallback", func(t *testing.T) {
		// no format-override flag: the widget must report the group's
		// default size/rate and formats even though the (ignored)
		// responses carry different values
		nodes := fakeNodes{
			0: root(),
			1: audioGroup(1),
			2: {
				GetParam(ParamWidgetCaps):    uint32(WidgetOutput) << 20,
				GetParam(ParamPCMSizeRate):   0xdeadbeef,
				GetParam(ParamStreamFormats): 0xdeadbeef,
			},
		}

		conn := &fakeConn{}
		cd := New(0, conn)
		cd.Enumerate(func() {})
		drive(t, cd, conn, 4, nodes)

		w := cd.FuncGroups[0].Widgets[0]
		fg := cd.FuncGroups[0]

		if w.PCMRates != fg.PCMRates {
			t.Errorf("PCM rates %#x != group default %#x", w.PCMRates, fg.PCMRates)
		}

		if w.Formats != fg.Formats {
			t.Errorf("formats %#x != group default %#x", w.Formats, fg.Formats)
		}
	})

	t.Run("amp fallback", func(t *testing.T) {
		// amp present without the override flag inherits the group
		// default; amp absent decodes to zero even with the override
		// flag set
		nodes := fakeNodes{
			0: root(),
			1: audioGroup(1),
			2: {
				GetParam(ParamWidgetCaps): uint32(WidgetMixer)<<20 | capInAmpPresent,
				GetParam(ParamInAmpCaps):  0xdeadbeef,
				GetParam(ParamOutAmpCaps): 0xdeadbeef,
			},
		}

		conn := &fakeConn{}
		cd := New(0, conn)
		cd.Enumerate(func() {})
		drive(t, cd, conn, 4, nodes)

		w := cd.FuncGroups[0].Widgets[0]

		if w.InAmp != cd.FuncGroups[0].InAmp {
			t.Errorf("input amp %+v != group default", w.InAmp)
		}

		if (w.OutAmp != AmpCaps{}) {
			t.Errorf("output amp %+v != zero", w.OutAmp)
		}
	})

	t.Run("power fallback", func(t *testing.T) {
		nodes := fakeNodes{
			0: root(),
			1: audioGroup(1),
			2: {
				GetParam(ParamWidgetCaps): uint32(WidgetPower)<<20 | capPowerControl,
				// power states respond zero
			},
		}

		conn := &fakeConn{}
		cd := New(0, conn)
		cd.Enumerate(func() {})
		drive(t, cd, conn, 4, nodes)

		w := cd.FuncGroups[0].Widgets[0]
		if w.PowerStates != cd.FuncGroups[0].PowerStates {
			t.Errorf("power states %#x != group default", w.PowerStates)
		}
	})

	t.Run("long-form connection list", func(t *testing.T) {
		nodes := fakeNodes{
			0: root(),
			1: audioGroup(1),
			2: {
				GetParam(ParamWidgetCaps):  uint32(WidgetSelector)<<20 | capConnList,
				GetParam(ParamConnListLen): 1<<7 | 2,
				GetConnListEntry(0):        0x00110022,
			},
		}

		conn := &fakeConn{}
		cd := New(0, conn)
		cd.Enumerate(func() {})
		drive(t, cd, conn, 4, nodes)

		w := cd.FuncGroups[0].Widgets[0]
		if diff := cmp.Diff([]uint16{0x0022, 0x0011}, w.Conns); diff != "" {
			t.Error(diff)
		}
	})

	t.Run("short-form connection list", func(t *testing.T) {
		nodes := fakeNodes{
			0: root(),
			1: audioGroup(1),
			2: {
				GetParam(ParamWidgetCaps):  uint32(WidgetSelector)<<20 | capConnList,
				GetParam(ParamConnListLen): 4,
				GetConnListEntry(0):        0x04030201,
			},
		}

		conn := &fakeConn{}
		cd := New(0, conn)
		cd.Enumerate(func() {})
		drive(t, cd, conn, 4, nodes)

		w := cd.FuncGroups[0].Widgets[0]
		if diff := cmp.Diff([]uint16{0x01, 0x02, 0x03, 0x04}, w.Conns); diff != "" {
			t.Error(diff)
		}
	})

	t.Run("non-audio group skipped", func(t *testing.T) {
		nodes := fakeNodes{
			0: {
				GetParam(ParamVendorID):     0x10ec0262,
				GetParam(ParamRevisionID):   0x00100101,
				GetParam(ParamSubNodeCount): 1<<16 | 2,
			},
			1: {GetParam(ParamGroupType): uint32(GroupModem)},
			2: {
				GetParam(ParamGroupType):    uint32(GroupAudio),
				GetParam(ParamSubNodeCount): 3 << 16,
			},
		}

		conn := &fakeConn{}
		cd := New(0, conn)

		enumDone := false
		cd.Enumerate(func() { enumDone = true })
		drive(t, cd, conn, 4, nodes)

		if !enumDone {
			t.Fatal("enumeration did not complete")
		}

		if cd.FuncGroups[0] != nil {
			t.Error("modem group was not skipped")
		}

		if cd.FuncGroups[1] == nil || cd.FuncGroups[1].Type != GroupAudio {
			t.Error("audio group missing")
		}
	})

	t.Run("unknown widget type skipped", func(t *testing.T) {
		nodes := fakeNodes{
			0: root(),
			1: audioGroup(2),
			2: {GetParam(ParamWidgetCaps): 0xa << 20},
			3: {GetParam(ParamWidgetCaps): uint32(WidgetBeep) << 20},
		}

		conn := &fakeConn{}
		cd := New(0, conn)

		enumDone := false
		cd.Enumerate(func() { enumDone = true })
		drive(t, cd, conn, 4, nodes)

		if !enumDone {
			t.Fatal("enumeration did not complete")
		}

		w := cd.FuncGroups[0].Widgets[0]
		if w == nil || w.Type != WidgetType(0xa) {
			t.Fatalf("unrecognized widget not recorded: %+v", w)
		}

		if cd.FuncGroups[0].Widgets[1].Type != WidgetBeep {
			t.Error("beep widget missing")
		}
	})
}
