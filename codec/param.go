package codec

// Decoders for the fixed parameter bit layouts. They are pure functions of a
// raw 32-bit response word (plus function-group defaults where the layout
// allows a widget to defer to them) and never touch transport state.

// widget capability word bits

const (
	capChanLSB        = 1 << 0 // low bit of the channel count
	capInAmpPresent   = 1 << 1
	capOutAmpPresent  = 1 << 2
	capAmpOverride    = 1 << 3 // widget has its own amp caps
	capFormatOverride = 1 << 4 // widget has its own PCM size/rate and formats
	capStripe         = 1 << 5
	capProcWidget     = 1 << 6
	capUnsolCapable   = 1 << 7
	capConnList       = 1 << 8
	capDigital        = 1 << 9
	capPowerControl   = 1 << 10
)

// DecodeAmpCaps decodes an amplifier-capability word: can-mute at bit 31,
// step size in bits 16-22 plus one, step count in bits 8-14 plus one, 0 dB
// offset in bits 0-6.
func DecodeAmpCaps(raw uint32) AmpCaps {
	return AmpCaps{
		CanMute:  raw&(1<<31) != 0,
		StepSize: uint8(raw>>16&0x7f) + 1,
		NumSteps: uint8(raw>>8&0x7f) + 1,
		Offset:   uint8(raw & 0x7f),
	}
}

// DecodeSubNodeCount decodes a subordinate-node-count word into the number of
// subordinate nodes (bits 0-7) and the first subordinate node id (bits 16-23).
func DecodeSubNodeCount(raw uint32) (count int, start NodeID) {
	return int(raw & 0xff), NodeID(raw >> 16 & 0xff)
}

// DecodeConnListLen decodes a connection-list-length word: entry count in
// bits 0-6, long-form flag at bit 7. Long-form responses carry two 16-bit
// entries per word; short-form responses carry four 8-bit entries.
func DecodeConnListLen(raw uint32) (length int, longForm bool) {
	return int(raw & 0x7f), raw&(1<<7) != 0
}

// DecodeGPIOCounts decodes a function group's GPIO-count word.
func DecodeGPIOCounts(raw uint32) GPIOCounts {
	return GPIOCounts{
		CanWake:  raw&(1<<31) != 0,
		CanUnsol: raw&(1<<30) != 0,
		GPIs:     uint8(raw >> 16 & 0xff),
		GPOs:     uint8(raw >> 8 & 0xff),
		GPIOs:    uint8(raw & 0xff),
	}
}

// DecodeProcCaps decodes a processing-capability word: benign-bypass flag at
// bit 0, coefficient count in bits 8-15.
func DecodeProcCaps(raw uint32) ProcessingCaps {
	return ProcessingCaps{
		CanBypass: raw&1 != 0,
		NumCoef:   uint8(raw >> 8 & 0xff),
	}
}

// widgetType extracts the widget type from bits 20-23 of a capability word.
func widgetType(caps uint32) WidgetType {
	return WidgetType(caps >> 20 & 0xf)
}

// widgetDelay extracts the sample delay from bits 16-19 of a capability word.
func widgetDelay(caps uint32) uint8 {
	return uint8(caps >> 16 & 0xf)
}

// widgetChannels computes the channel count: bits 12-14 are the high bits,
// bit 0 the low bit, and the encoded value is one less than the count.
func widgetChannels(caps uint32) uint8 {
	return (uint8(caps>>12&0x7)<<1 | uint8(caps&capChanLSB)) + 1
}

// formatDefault applies the format-override rule: a widget without the
// override flag reports the function group's default (PCM size/rate or
// formats), no matter what was read.
func formatDefault(w *Widget, def, raw uint32) uint32 {
	if w.Caps&capFormatOverride == 0 {
		return def
	}

	return raw
}

// ampDefaults applies the amp-caps rules for one amplifier: no present flag
// means all-zero caps regardless of the override flag; present without the
// override flag means the function group's default.
func ampDefaults(w *Widget, present uint32, def AmpCaps, raw uint32) AmpCaps {
	if w.Caps&present == 0 {
		return AmpCaps{}
	}

	if w.Caps&capAmpOverride == 0 {
		return def
	}

	return DecodeAmpCaps(raw)
}

// powerDefault applies the power-states rule: a widget claiming power control
// with an all-zero supported-states word inherits the function group's value.
func powerDefault(w *Widget, fg *FunctionGroup, raw uint32) uint32 {
	if w.Caps&capPowerControl != 0 && raw == 0 {
		return fg.PowerStates
	}

	return raw
}
