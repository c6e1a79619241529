package codec

import "fmt"

// Verb ids. Short-payload verbs have a 12-bit id and an 8-bit payload; their
// encoding is id<<8 | payload. Long-payload verbs have a 4-bit id and a
// 16-bit payload: the set form is id<<16 | payload, the matching get form is
// (0x8|id)<<16. These encodings are fixed by the link protocol.

const (
	VerbGetParam         = 0xf00
	VerbGetConnSelect    = 0xf01
	VerbGetConnListEntry = 0xf02
	VerbGetPowerState    = 0xf05
	VerbGetPinWidgetCtrl = 0xf07

	VerbSetConverterFormat = 0x2
	VerbSetAmpGainMute     = 0x3
)

// parameter ids for the get-parameter verb

const (
	ParamVendorID      = 0x00
	ParamRevisionID    = 0x02
	ParamSubNodeCount  = 0x04
	ParamGroupType     = 0x05
	ParamAFGCaps       = 0x08
	ParamWidgetCaps    = 0x09
	ParamPCMSizeRate   = 0x0a
	ParamStreamFormats = 0x0b
	ParamPinCaps       = 0x0c
	ParamInAmpCaps     = 0x0d
	ParamConnListLen   = 0x0e
	ParamPowerStates   = 0x0f
	ParamProcCaps      = 0x10
	ParamGPIOCount     = 0x11
	ParamOutAmpCaps    = 0x12
	ParamVolKnobCaps   = 0x13
)

// VerbShort encodes a short-payload verb: a 12-bit id with an 8-bit payload.
func VerbShort(id uint32, payload uint8) uint32 {
	if id&^0xfff != 0 {
		panic(fmt.Sprintf("codec: bad short verb id %#x", id))
	}

	return id<<8 | uint32(payload)
}

// VerbLongSet encodes the set form of a long-payload verb: a 4-bit id with a
// 16-bit payload.
func VerbLongSet(id uint32, payload uint16) uint32 {
	if id&^0x7 != 0 {
		panic(fmt.Sprintf("codec: bad long verb id %#x", id))
	}

	return id<<16 | uint32(payload)
}

// VerbLongGet encodes the get form of a long-payload verb.
func VerbLongGet(id uint32) uint32 {
	if id&^0x7 != 0 {
		panic(fmt.Sprintf("codec: bad long verb id %#x", id))
	}

	return (0x8 | id) << 16
}

// GetParam encodes a get-parameter verb for the given parameter id.
func GetParam(param uint8) uint32 {
	return VerbShort(VerbGetParam, param)
}

// GetConnListEntry encodes a get-connection-list-entry verb for the given
// list offset.
func GetConnListEntry(offset uint8) uint32 {
	return VerbShort(VerbGetConnListEntry, offset)
}

// PackCommand packs one outbound ring word: codec address in bits 28-31, node
// id in bits 20-26, verb in bits 0-19. The verb must be nonzero and the codec
// address below 15; violations are driver bugs.
func PackCommand(addr uint8, nid NodeID, verb uint32) uint32 {
	if addr > MaxAddr {
		panic(fmt.Sprintf("codec: bad address %d", addr))
	}

	if nid&^0x7f != 0 {
		panic(fmt.Sprintf("codec: bad node id %#x", nid))
	}

	if verb == 0 || verb&^0xfffff != 0 {
		panic(fmt.Sprintf("codec: bad verb %#x", verb))
	}

	return uint32(addr)<<28 | uint32(nid)<<20 | verb
}

// UnpackCommand splits an outbound ring word into its address, node id, and
// verb fields.
func UnpackCommand(w uint32) (addr uint8, nid NodeID, verb uint32) {
	return uint8(w >> 28 & 0xf), NodeID(w >> 20 & 0x7f), w & 0xfffff
}
