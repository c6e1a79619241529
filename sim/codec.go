package sim

import (
	"fmt"
	"io"

	"github.com/c35s/hda/codec"
	"gopkg.in/yaml.v3"
)

// Codec is a scripted codec. Its topology compiles into a per-node parameter
// table; the simulator answers get-parameter and get-connection-list-entry
// verbs from that table and responds zero to everything else, like real
// silicon does for verbs it doesn't implement.
type Codec struct {
	Addr     uint8    `yaml:"addr"`
	Vendor   uint16   `yaml:"vendor"`
	Device   uint16   `yaml:"device"`
	Revision uint32   `yaml:"revision"`
	Groups   []*Group `yaml:"groups"`

	nodes map[codec.NodeID]*node
}

// Group describes one function group.
type Group struct {
	Type string `yaml:"type"` // "audio" walks; anything else is skipped

	Caps        uint32 `yaml:"caps"`
	PCMRates    uint32 `yaml:"pcm_rates"`
	Formats     uint32 `yaml:"formats"`
	InAmpCaps   uint32 `yaml:"in_amp_caps"`
	OutAmpCaps  uint32 `yaml:"out_amp_caps"`
	PowerStates uint32 `yaml:"power_states"`
	GPIOCount   uint32 `yaml:"gpio_count"`

	Widgets []*Widget `yaml:"widgets"`
}

// Widget describes one widget. The capability word is synthesized from the
// named fields; ExtraCaps bits are ORed in afterward for anything the fields
// don't cover.
type Widget struct {
	Type     string `yaml:"type"`
	Digital  bool   `yaml:"digital"`
	Channels uint8  `yaml:"channels"` // 0 means 1
	Delay    uint8  `yaml:"delay"`

	InAmp          bool `yaml:"in_amp"`  // input amp present
	OutAmp         bool `yaml:"out_amp"` // output amp present
	AmpOverride    bool `yaml:"amp_override"`
	FormatOverride bool `yaml:"format_override"`
	PowerControl   bool `yaml:"power_control"`

	PCMRates    uint32 `yaml:"pcm_rates"`
	Formats     uint32 `yaml:"formats"`
	PinCaps     uint32 `yaml:"pin_caps"`
	InAmpCaps   uint32 `yaml:"in_amp_caps"`
	OutAmpCaps  uint32 `yaml:"out_amp_caps"`
	PowerStates uint32 `yaml:"power_states"`
	ProcCaps    uint32 `yaml:"proc_caps"`
	KnobCaps    uint32 `yaml:"knob_caps"`

	Conns    []uint16 `yaml:"conns"`
	LongForm bool     `yaml:"long_form"`

	ExtraCaps uint32 `yaml:"extra_caps"`
}

// node is a compiled codec node: a parameter table plus the connection list.
type node struct {
	params   map[uint8]uint32
	conns    []uint16
	longForm bool
}

// LoadCodec reads a YAML topology description.
func LoadCodec(r io.Reader) (*Codec, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var c Codec
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("sim: load codec: %w", err)
	}

	return &c, nil
}

var widgetTypes = map[string]codec.WidgetType{
	"output":      codec.WidgetOutput,
	"input":       codec.WidgetInput,
	"mixer":       codec.WidgetMixer,
	"selector":    codec.WidgetSelector,
	"pin":         codec.WidgetPin,
	"power":       codec.WidgetPower,
	"volume-knob": codec.WidgetVolumeKnob,
	"beep":        codec.WidgetBeep,
	"vendor":      codec.WidgetVendor,
}

// build compiles the topology into per-node parameter tables. Function
// groups are numbered from node 1; widgets follow, consecutive across
// groups, matching each group's subordinate-node-count response.
func (c *Codec) build() error {
	c.nodes = make(map[codec.NodeID]*node)

	fgStart := codec.NodeID(1)
	next := fgStart + codec.NodeID(len(c.Groups))

	c.nodes[0] = &node{params: map[uint8]uint32{
		codec.ParamVendorID:     uint32(c.Vendor)<<16 | uint32(c.Device),
		codec.ParamRevisionID:   c.Revision,
		codec.ParamSubNodeCount: subNodeCount(len(c.Groups), fgStart),
	}}

	for i, g := range c.Groups {
		gn := &node{params: map[uint8]uint32{
			codec.ParamGroupType:     groupType(g.Type),
			codec.ParamAFGCaps:       g.Caps,
			codec.ParamPCMSizeRate:   g.PCMRates,
			codec.ParamStreamFormats: g.Formats,
			codec.ParamInAmpCaps:     g.InAmpCaps,
			codec.ParamOutAmpCaps:    g.OutAmpCaps,
			codec.ParamPowerStates:   g.PowerStates,
			codec.ParamGPIOCount:     g.GPIOCount,
			codec.ParamSubNodeCount:  subNodeCount(len(g.Widgets), next),
		}}

		c.nodes[fgStart+codec.NodeID(i)] = gn

		for _, w := range g.Widgets {
			n, err := w.compile()
			if err != nil {
				return fmt.Errorf("sim: codec %d: %w", c.Addr, err)
			}

			c.nodes[next] = n
			next++
		}
	}

	return nil
}

func (w *Widget) compile() (*node, error) {
	wt, ok := widgetTypes[w.Type]
	if !ok {
		return nil, fmt.Errorf("unknown widget type %q", w.Type)
	}

	ch := w.Channels
	if ch == 0 {
		ch = 1
	}

	caps := uint32(wt)<<20 | uint32(w.Delay&0xf)<<16 | w.ExtraCaps
	caps |= uint32(ch-1) >> 1 << 12 // channel count, high bits
	caps |= uint32(ch-1) & 1        // channel count, low bit

	if w.InAmp {
		caps |= 1 << 1
	}

	if w.OutAmp {
		caps |= 1 << 2
	}

	if w.AmpOverride {
		caps |= 1 << 3
	}

	if w.FormatOverride {
		caps |= 1 << 4
	}

	if w.Digital {
		caps |= 1 << 9
	}

	if w.PowerControl {
		caps |= 1 << 10
	}

	if len(w.Conns) > 0 {
		caps |= 1 << 8
	}

	connLen := uint32(len(w.Conns)) & 0x7f
	if w.LongForm {
		connLen |= 1 << 7
	}

	return &node{
		params: map[uint8]uint32{
			codec.ParamWidgetCaps:    caps,
			codec.ParamPCMSizeRate:   w.PCMRates,
			codec.ParamStreamFormats: w.Formats,
			codec.ParamPinCaps:       w.PinCaps,
			codec.ParamInAmpCaps:     w.InAmpCaps,
			codec.ParamOutAmpCaps:    w.OutAmpCaps,
			codec.ParamConnListLen:   connLen,
			codec.ParamPowerStates:   w.PowerStates,
			codec.ParamProcCaps:      w.ProcCaps,
			codec.ParamVolKnobCaps:   w.KnobCaps,
		},
		conns:    w.Conns,
		longForm: w.LongForm,
	}, nil
}

// respond answers one command word. Unknown nodes, parameters, and verbs
// all respond zero.
func (c *Codec) respond(nid codec.NodeID, verb uint32) uint32 {
	n := c.nodes[nid]
	if n == nil {
		return 0
	}

	id := verb >> 8 & 0xfff
	payload := uint8(verb)

	switch id {
	case codec.VerbGetParam:
		return n.params[payload]

	case codec.VerbGetConnListEntry:
		return n.connEntry(int(payload))

	default:
		return 0
	}
}

// connEntry packs the response for a get-connection-list-entry verb: two
// 16-bit entries per word in long form, four 8-bit entries in short form.
func (n *node) connEntry(off int) uint32 {
	var w uint32

	if n.longForm {
		for i := 0; i < 2 && off+i < len(n.conns); i++ {
			w |= uint32(n.conns[off+i]) << (16 * i)
		}

		return w
	}

	for i := 0; i < 4 && off+i < len(n.conns); i++ {
		w |= uint32(n.conns[off+i]&0xff) << (8 * i)
	}

	return w
}

func groupType(s string) uint32 {
	if s == "audio" {
		return uint32(codec.GroupAudio)
	}

	if s == "modem" {
		return uint32(codec.GroupModem)
	}

	return 0
}

func subNodeCount(count int, start codec.NodeID) uint32 {
	return uint32(start)<<16 | uint32(count)&0xff
}
