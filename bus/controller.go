package bus

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/c35s/hda/codec"
)

var (
	ErrConfig = errors.New("bus: invalid config")
	ErrSetup  = errors.New("bus: controller setup failed")
)

// Config describes a new controller.
type Config struct {

	// HW is the register-level interface to the device.
	HW Hardware

	// Logger, if set, replaces slog.Default.
	Logger *slog.Logger

	// OnCodec, if set, is called from the service cycle when a codec
	// finishes enumeration.
	OnCodec func(c *codec.Codec)
}

// Controller drives one link controller. It owns the ring transport and the
// codecs discovered on the link, and services them one cycle at a time: all
// methods must be called from a single goroutine (the registry worker).
type Controller struct {
	hw  Hardware
	tp  *Transport
	log *slog.Logger
	cfg Config

	codecs [codec.MaxAddr + 1]*codec.Codec

	// err latches the first fatal ring error. There is no reset or
	// recovery path; the controller just stops.
	err error
}

// New brings the link out of reset, sets up the ring transport, and starts
// enumeration for every codec the link reports. Enumeration proceeds as the
// controller is serviced; it queues no commands until the first cycle.
func New(cfg Config) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	cfg = cfg.withDefaults()

	c := &Controller{
		hw:  cfg.HW,
		log: cfg.Logger,
		cfg: cfg,
	}

	// exit link reset; codecs request state-change status as they wake
	c.hw.Write32(regGCTL, 1)

	tp, err := newTransport(c.hw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}

	c.tp = tp
	c.discover()

	return c, nil
}

// discover reads the codec wake bits and creates a codec for each set bit.
// Codecs live until teardown; there is no hot-unplug.
func (c *Controller) discover() {
	sts := c.hw.Read16(regSTATESTS)
	c.hw.Write16(regSTATESTS, sts) // RW1C

	for addr := uint8(0); addr <= codec.MaxAddr; addr++ {
		if sts&(1<<addr) == 0 {
			continue
		}

		cd := codec.New(addr, c.tp)
		c.codecs[addr] = cd

		cd.SetUnsolHandler(func(data uint32) {
			c.log.Debug("unsolicited response", "codec", cd.Addr, "data", fmt.Sprintf("%#08x", data))
		})

		cd.Enumerate(func() {
			c.log.Info("codec enumerated",
				"codec", cd.Addr,
				"vendor", fmt.Sprintf("%04x:%04x", cd.Vendor, cd.Device))

			if c.cfg.OnCodec != nil {
				c.cfg.OnCodec(cd)
			}
		})

		c.log.Info("codec found", "codec", addr)
	}
}

// Service runs one full cycle. The order is an invariant, not an
// optimization: drain the inbound ring first to minimize overrun risk, then
// snapshot the cycle's shared transmit budget, then dispatch responses
// (which may complete command lists and register new pending work), then let
// the codecs spend the budget in address order, then publish everything with
// one doorbell write.
func (c *Controller) Service() error {
	if c.err != nil {
		return c.err
	}

	if err := c.checkRingStatus(); err != nil {
		c.err = err
		return err
	}

	rx := c.tp.SnapshotReceive()
	c.tp.SnapshotTransmitSpace()

	for _, r := range rx {
		c.dispatch(r)
	}

	for _, cd := range c.codecs {
		if cd != nil && cd.NeedsWork() {
			cd.Work()
		}
	}

	c.tp.Commit()
	return nil
}

// dispatch routes one snapshotted response to its codec's active handler.
// An entry for an absent codec or with no handler installed is logged and
// dropped: there is no retry, and it is not fatal.
func (c *Controller) dispatch(r Response) {
	addr := r.CodecAddr()

	var cd *codec.Codec
	if addr <= codec.MaxAddr {
		cd = c.codecs[addr]
	}

	if cd == nil {
		c.log.Warn("dropping response for absent codec", "codec", addr,
			"data", fmt.Sprintf("%#08x", r.Data))
		return
	}

	if !cd.HandleResponse(r.Data, r.Unsolicited()) {
		c.log.Warn("dropping response with no handler", "codec", addr,
			"unsolicited", r.Unsolicited(), "data", fmt.Sprintf("%#08x", r.Data))
	}
}

// checkRingStatus latches ring-level hardware errors. Recovery (a controller
// reset and re-enumeration) is not implemented: the error is surfaced as
// fatal and the controller stops servicing.
func (c *Controller) checkRingStatus() error {
	if sts := c.hw.Read8(regCORBSTS); sts&corbstsMemErr != 0 {
		c.hw.Write8(regCORBSTS, corbstsMemErr)
		c.log.Error("outbound ring memory error; controller halted")
		return ErrMemError
	}

	if sts := c.hw.Read8(regRIRBSTS); sts&rirbstsOverrun != 0 {
		c.hw.Write8(regRIRBSTS, rirbstsOverrun)
		c.log.Error("inbound ring overrun; controller halted")
		return ErrOverrun
	}

	return nil
}

// Codecs returns the codecs discovered on the link, in address order.
func (c *Controller) Codecs() []*codec.Codec {
	var out []*codec.Codec
	for _, cd := range c.codecs {
		if cd != nil {
			out = append(out, cd)
		}
	}

	return out
}

// Close abandons any in-flight command lists without sending further
// commands and stops both DMA engines.
func (c *Controller) Close() error {
	for _, cd := range c.codecs {
		if cd != nil {
			cd.Abandon()
		}
	}

	c.hw.Write8(regCORBCTL, 0)
	c.hw.Write8(regRIRBCTL, 0)

	return nil
}

func (cfg Config) validate() error {
	if cfg.HW == nil {
		return errors.New("hardware is not set")
	}

	return nil
}

func (cfg Config) withDefaults() Config {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return cfg
}
