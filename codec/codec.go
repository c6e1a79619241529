// Package codec models HD Audio codecs: the widget tree discovered during
// enumeration, the parameter decoders that populate it, and the command-list
// machinery that walks the link's ordered request/response protocol.
package codec

import "fmt"

// NodeID addresses a sub-object (function group or widget) within a codec.
// On the wire it is 7 bits wide.
type NodeID uint8

// MaxAddr is the highest valid codec link address. Address 15 is reserved.
const MaxAddr = 14

// GroupType identifies a function group. Only audio groups are enumerated
// further; everything else is recorded by type and skipped.
type GroupType uint8

const (
	GroupAudio GroupType = 0x01
	GroupModem GroupType = 0x02
)

// WidgetType identifies an audio widget, from bits 20-23 of its capability word.
type WidgetType uint8

const (
	WidgetOutput     = WidgetType(0x0)
	WidgetInput      = WidgetType(0x1)
	WidgetMixer      = WidgetType(0x2)
	WidgetSelector   = WidgetType(0x3)
	WidgetPin        = WidgetType(0x4)
	WidgetPower      = WidgetType(0x5)
	WidgetVolumeKnob = WidgetType(0x6)
	WidgetBeep       = WidgetType(0x7)
	WidgetVendor     = WidgetType(0xf)
)

// Conn queues commands for transmission on the link. It is implemented by the
// bus transport. Space is the transmit budget remaining in the current service
// cycle, shared by every codec serviced that cycle. Send's precondition is
// Space() > 0: the caller throttles, not the transport.
type Conn interface {
	Space() int
	Send(addr uint8, nid NodeID, verb uint32)
}

// Codec is one codec chip on the link. It is created when the bus reports a
// codec at its address and lives until device teardown.
type Codec struct {
	Addr     uint8
	Vendor   uint16
	Device   uint16
	Revision uint32

	// FuncGroups is indexed by subordinate node order. Slots for
	// non-audio groups are nil.
	FuncGroups []*FunctionGroup

	conn Conn

	// resp is the active solicited-response handler. Responses carry no
	// tag: they are matched to requests purely by arrival order, so at
	// most one command list may be listening at a time.
	resp    func(data uint32)
	unsol   func(data uint32)
	pending func()
}

// New returns a codec at the given link address, sending on conn.
func New(addr uint8, conn Conn) *Codec {
	if addr > MaxAddr {
		panic(fmt.Sprintf("codec: bad address %d", addr))
	}

	return &Codec{Addr: addr, conn: conn}
}

// SetUnsolHandler installs the handler for unsolicited responses.
func (c *Codec) SetUnsolHandler(fn func(data uint32)) {
	c.unsol = fn
}

// HandleResponse delivers one inbound response payload to the codec's active
// handler. It reports false if no matching handler is installed, in which
// case the caller logs and drops the entry.
func (c *Codec) HandleResponse(data uint32, unsolicited bool) bool {
	fn := c.resp
	if unsolicited {
		fn = c.unsol
	}

	if fn == nil {
		return false
	}

	fn(data)
	return true
}

// NeedsWork reports whether the codec has commands left to transmit.
func (c *Codec) NeedsWork() bool {
	return c.pending != nil
}

// Work lets the codec enqueue commands against the cycle's remaining
// transmit budget. The scheduler calls it at most once per cycle.
func (c *Codec) Work() {
	if fn := c.pending; fn != nil {
		fn()
	}
}

// Abandon discards any in-flight command list without sending further
// commands. Used at device teardown.
func (c *Codec) Abandon() {
	c.resp = nil
	c.pending = nil
}

// FunctionGroup is a top-level grouping of widgets inside a codec.
type FunctionGroup struct {
	NodeID NodeID
	Type   GroupType

	Caps        uint32
	PCMRates    uint32 // default PCM size/rate
	Formats     uint32 // default PCM formats
	InAmp       AmpCaps
	OutAmp      AmpCaps
	PowerStates uint32
	GPIO        GPIOCounts

	WidgetStart NodeID
	Widgets     []*Widget
}

// Widget is one processing/pin/mixer element inside a function group.
type Widget struct {
	NodeID NodeID
	Caps   uint32 // raw capability word
	Type   WidgetType

	Delay    uint8
	Channels uint8

	PCMRates    uint32
	Formats     uint32
	PinCaps     uint32
	InAmp       AmpCaps
	OutAmp      AmpCaps
	PowerStates uint32
	Proc        ProcessingCaps
	KnobCaps    uint32

	// ConnLen and ConnLongForm are decoded from the connection-list-length
	// parameter. Conns is filled on demand, sized to ConnLen.
	ConnLen      int
	ConnLongForm bool
	Conns        []uint16
}

// AmpCaps describes an input or output amplifier, decoded once per widget or
// inherited from the function group's default.
type AmpCaps struct {
	CanMute  bool
	StepSize uint8
	NumSteps uint8
	Offset   uint8
}

// GPIOCounts is the decoded GPIO-count parameter of a function group.
type GPIOCounts struct {
	CanWake  bool
	CanUnsol bool
	GPIs     uint8
	GPOs     uint8
	GPIOs    uint8
}

// ProcessingCaps is the decoded processing-capability parameter.
type ProcessingCaps struct {
	CanBypass bool
	NumCoef   uint8
}

func (t WidgetType) String() string {
	switch t {
	case WidgetOutput:
		return "output"

	case WidgetInput:
		return "input"

	case WidgetMixer:
		return "mixer"

	case WidgetSelector:
		return "selector"

	case WidgetPin:
		return "pin"

	case WidgetPower:
		return "power"

	case WidgetVolumeKnob:
		return "volume-knob"

	case WidgetBeep:
		return "beep"

	case WidgetVendor:
		return "vendor"

	default:
		return fmt.Sprintf("WidgetType(%#x)", uint8(t))
	}
}

func (t GroupType) String() string {
	switch t {
	case GroupAudio:
		return "audio"

	case GroupModem:
		return "modem"

	default:
		return fmt.Sprintf("GroupType(%#x)", uint8(t))
	}
}
