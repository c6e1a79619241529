package codec

// Step pairs a verb with a parser for its response. A nil Parse discards the
// response after consuming its ring slot.
type Step struct {
	Verb  uint32
	Parse func(data uint32)
}

// listRunner sends an ordered batch of verbs to one node and feeds the
// responses to the matching parsers, in index order. Sends are throttled
// against the cycle's shared transmit budget, so transmission may span
// several service cycles; responses are matched by position only, because
// the link protocol has no per-message tag.
type listRunner struct {
	c     *Codec
	steps []Step
	nid   func() NodeID
	done  func()

	txi int // next step to transmit
	rxi int // next step awaiting its response
}

// RunList starts a command list against the codec. The nid function resolves
// the target node for the step about to be sent, and done runs once the final
// response has been parsed. At most one list may be active per codec: a
// second concurrent list would make positional response matching ambiguous,
// so starting one is a driver bug.
func (c *Codec) RunList(steps []Step, nid func() NodeID, done func()) {
	if c.resp != nil || c.pending != nil {
		panic("codec: command list already active")
	}

	r := &listRunner{
		c:     c,
		steps: steps,
		nid:   nid,
		done:  done,
	}

	c.resp = r.onResponse
	c.pending = r.onPendingWork
}

func (r *listRunner) onPendingWork() {
	for r.c.conn.Space() > 0 && r.txi < len(r.steps) {
		r.c.conn.Send(r.c.Addr, r.nid(), r.steps[r.txi].Verb)
		r.txi++
	}

	if r.txi == len(r.steps) {
		// nothing left to send
		r.c.pending = nil
	}
}

func (r *listRunner) onResponse(data uint32) {
	if fn := r.steps[r.rxi].Parse; fn != nil {
		fn(data)
	}

	r.rxi++

	if r.rxi == len(r.steps) {
		r.c.resp = nil
		r.done()
	}
}
