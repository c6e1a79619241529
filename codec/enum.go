package codec

// Enumeration walks the codec's object tree: root node, then function
// groups, then each audio group's widgets, then each widget's connection
// list. Every stage is one command list (or, for connection lists, one
// length-driven fetch) and the next stage is chosen from what the previous
// one discovered. The whole walk is asynchronous: it only makes progress
// while the scheduler feeds responses and transmit budget to the codec.

type enumerator struct {
	c    *Codec
	done func()

	fgCount int
	fgStart NodeID
	fgIdx   int

	// scratch for the group-type and widget-type probes
	gtype uint32
	wcaps uint32

	fg *FunctionGroup

	wCount int
	wStart NodeID
	wIdx   int

	w *Widget
}

// Enumerate discovers the codec's full widget tree. The done callback runs
// after the last function group has been walked. Progress is driven by the
// device scheduler; Enumerate itself only queues the first command list.
func (c *Codec) Enumerate(done func()) {
	e := &enumerator{c: c, done: done}
	e.start()
}

// start issues the RootInfo list: identity and the function-group range.
func (e *enumerator) start() {
	steps := []Step{
		{GetParam(ParamVendorID), func(d uint32) {
			e.c.Vendor = uint16(d >> 16)
			e.c.Device = uint16(d)
		}},
		{GetParam(ParamRevisionID), func(d uint32) {
			e.c.Revision = d
		}},
		{GetParam(ParamSubNodeCount), func(d uint32) {
			e.fgCount, e.fgStart = DecodeSubNodeCount(d)
		}},
	}

	e.c.RunList(steps, node(0), e.rootDone)
}

func (e *enumerator) rootDone() {
	e.c.FuncGroups = make([]*FunctionGroup, e.fgCount)
	e.fgIdx = -1
	e.nextGroup()
}

// nextGroup advances the function-group iterator, probing the next group's
// type or finishing enumeration when the groups are exhausted.
func (e *enumerator) nextGroup() {
	e.fgIdx++
	if e.fgIdx >= e.fgCount {
		e.done()
		return
	}

	steps := []Step{
		{GetParam(ParamGroupType), func(d uint32) { e.gtype = d }},
	}

	e.c.RunList(steps, node(e.fgStart+NodeID(e.fgIdx)), e.groupTyped)
}

func (e *enumerator) groupTyped() {
	// non-audio groups are recorded as absent and not walked
	if GroupType(e.gtype&0xff) != GroupAudio {
		e.nextGroup()
		return
	}

	e.fg = &FunctionGroup{
		NodeID: e.fgStart + NodeID(e.fgIdx),
		Type:   GroupAudio,
	}

	e.c.FuncGroups[e.fgIdx] = e.fg
	e.afgProperties()
}

// afgProperties fetches the audio group's capability summary and its
// widget range.
func (e *enumerator) afgProperties() {
	fg := e.fg

	steps := []Step{
		{GetParam(ParamAFGCaps), func(d uint32) { fg.Caps = d }},
		{GetParam(ParamPCMSizeRate), func(d uint32) { fg.PCMRates = d }},
		{GetParam(ParamStreamFormats), func(d uint32) { fg.Formats = d }},
		{GetParam(ParamInAmpCaps), func(d uint32) { fg.InAmp = DecodeAmpCaps(d) }},
		{GetParam(ParamOutAmpCaps), func(d uint32) { fg.OutAmp = DecodeAmpCaps(d) }},
		{GetParam(ParamPowerStates), func(d uint32) { fg.PowerStates = d }},
		{GetParam(ParamGPIOCount), func(d uint32) { fg.GPIO = DecodeGPIOCounts(d) }},
		{GetParam(ParamSubNodeCount), func(d uint32) {
			e.wCount, e.wStart = DecodeSubNodeCount(d)
		}},
	}

	e.c.RunList(steps, node(fg.NodeID), e.afgDone)
}

func (e *enumerator) afgDone() {
	e.fg.WidgetStart = e.wStart
	e.fg.Widgets = make([]*Widget, e.wCount)
	e.wIdx = -1
	e.nextWidget()
}

// nextWidget advances the widget iterator, probing the next widget's
// capability word or returning to the group iterator when done.
func (e *enumerator) nextWidget() {
	e.wIdx++
	if e.wIdx >= e.wCount {
		e.nextGroup()
		return
	}

	steps := []Step{
		{GetParam(ParamWidgetCaps), func(d uint32) { e.wcaps = d }},
	}

	e.c.RunList(steps, node(e.wStart+NodeID(e.wIdx)), e.widgetTyped)
}

func (e *enumerator) widgetTyped() {
	w := &Widget{
		NodeID:   e.wStart + NodeID(e.wIdx),
		Caps:     e.wcaps,
		Type:     widgetType(e.wcaps),
		Delay:    widgetDelay(e.wcaps),
		Channels: widgetChannels(e.wcaps),
	}

	e.fg.Widgets[e.wIdx] = w
	e.w = w

	steps := e.capSteps(w)
	if steps == nil {
		// no capability fetch for this type
		e.fetchConnList()
		return
	}

	e.c.RunList(steps, node(w.NodeID), e.fetchConnList)
}

// capSteps selects the type-specific capability command table. A nil return
// means the type fetches nothing further: beep generators and vendor-defined
// widgets have no standard capabilities, and an unrecognized type is skipped
// rather than treated as fatal.
func (e *enumerator) capSteps(w *Widget) []Step {
	var (
		fg = e.fg

		pcmRates = Step{GetParam(ParamPCMSizeRate), func(d uint32) {
			w.PCMRates = formatDefault(w, fg.PCMRates, d)
		}}

		formats = Step{GetParam(ParamStreamFormats), func(d uint32) {
			w.Formats = formatDefault(w, fg.Formats, d)
		}}

		pinCaps = Step{GetParam(ParamPinCaps), func(d uint32) {
			w.PinCaps = d
		}}

		inAmp = Step{GetParam(ParamInAmpCaps), func(d uint32) {
			w.InAmp = ampDefaults(w, capInAmpPresent, fg.InAmp, d)
		}}

		outAmp = Step{GetParam(ParamOutAmpCaps), func(d uint32) {
			w.OutAmp = ampDefaults(w, capOutAmpPresent, fg.OutAmp, d)
		}}

		connLen = Step{GetParam(ParamConnListLen), func(d uint32) {
			w.ConnLen, w.ConnLongForm = DecodeConnListLen(d)
		}}

		power = Step{GetParam(ParamPowerStates), func(d uint32) {
			w.PowerStates = powerDefault(w, fg, d)
		}}

		proc = Step{GetParam(ParamProcCaps), func(d uint32) {
			w.Proc = DecodeProcCaps(d)
		}}

		knob = Step{GetParam(ParamVolKnobCaps), func(d uint32) {
			w.KnobCaps = d
		}}
	)

	switch w.Type {
	case WidgetOutput:
		return []Step{pcmRates, formats, outAmp, power, proc}

	case WidgetInput:
		return []Step{pcmRates, formats, inAmp, power, proc}

	case WidgetMixer:
		return []Step{inAmp, outAmp, connLen, power}

	case WidgetSelector:
		return []Step{inAmp, outAmp, connLen, power, proc}

	case WidgetPin:
		if w.Caps&capDigital != 0 {
			return []Step{pinCaps, outAmp, connLen, power, proc}
		}

		return []Step{pinCaps, inAmp, outAmp, connLen, power, proc}

	case WidgetPower:
		return []Step{connLen, power}

	case WidgetVolumeKnob:
		return []Step{connLen, power, knob}

	default:
		return nil
	}
}

// fetchConnList fills the current widget's connection list. Unlike the fixed
// command tables, the cursors here are driven by the list length, and the
// receive side consumes faster than the transmit side sends: a long-form
// response carries two 16-bit entries, a short-form response four 8-bit ones.
func (e *enumerator) fetchConnList() {
	w := e.w
	if w == nil || w.ConnLen == 0 {
		e.nextWidget()
		return
	}

	w.Conns = make([]uint16, w.ConnLen)

	f := &connFetch{
		c:      e.c,
		w:      w,
		stride: 4,
		done:   e.nextWidget,
	}

	if w.ConnLongForm {
		f.stride = 2
	}

	f.begin()
}

// connFetch drives a connection-list read. It installs itself as the codec's
// handler pair the same way a listRunner does, but paces its cursors by list
// offset instead of table index.
type connFetch struct {
	c      *Codec
	w      *Widget
	stride int
	done   func()

	txOff int
	rxOff int
}

func (f *connFetch) begin() {
	if f.c.resp != nil || f.c.pending != nil {
		panic("codec: command list already active")
	}

	f.c.resp = f.onResponse
	f.c.pending = f.onPendingWork
}

func (f *connFetch) onPendingWork() {
	for f.c.conn.Space() > 0 && f.txOff < f.w.ConnLen {
		f.c.conn.Send(f.c.Addr, f.w.NodeID, GetConnListEntry(uint8(f.txOff)))
		f.txOff += f.stride
	}

	if f.txOff >= f.w.ConnLen {
		f.c.pending = nil
	}
}

func (f *connFetch) onResponse(data uint32) {
	for i := 0; i < f.stride && f.rxOff < f.w.ConnLen; i++ {
		if f.stride == 2 {
			f.w.Conns[f.rxOff] = uint16(data >> (16 * i))
		} else {
			f.w.Conns[f.rxOff] = uint16(data >> (8 * i) & 0xff)
		}

		f.rxOff++
	}

	if f.rxOff >= f.w.ConnLen {
		f.c.resp = nil
		f.done()
	}
}

// node resolves a command list's target to a fixed node id.
func node(id NodeID) func() NodeID {
	return func() NodeID { return id }
}
