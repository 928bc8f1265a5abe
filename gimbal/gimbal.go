// Package gimbal drives a two-axis azimuth/elevation gimbal through a Galil
// controller.
//
// Targets are clipped to the configured limits and converted to counts
// before anything is sent. Absolute moves by sky elevation and relative moves
// always use profiled motion, leaving streaming mode around the run command
// when needed. Absolute steering in the gimbal frame uses position tracking
// when streaming is active.
//
// A Gimbal is not safe for concurrent use.
package gimbal

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/w1xm/galil_gimbal/galil"
	"github.com/w1xm/galil_gimbal/rotator"
)

// Options supplies the capabilities of a Gimbal.
type Options struct {
	// Opener opens the controller session. Nil selects pure simulation,
	// where moves update the state without any I/O.
	Opener galil.Opener
	// Store persists the position. Nil discards it.
	Store Store
}

// State is a snapshot of the gimbal. Angles are in the gimbal frame.
type State struct {
	Azimuth      float64 `json:"azimuth"`
	Elevation    float64 `json:"elevation"`
	SkyElevation float64 `json:"sky_elevation"`
	Mode         Mode    `json:"mode"`
	Simulated    bool    `json:"simulated"`
	Degraded     bool    `json:"degraded"`
}

func (s State) AzimuthPosition() float64 {
	return s.Azimuth
}

func (s State) ElevationPosition() float64 {
	return s.SkyElevation
}

func (s State) Clone() rotator.Status {
	return s
}

type Gimbal struct {
	cfg   Config
	store Store

	h    galil.Handle
	ch   *galil.Channel
	mode *ModeController
	poll *Poller

	// Current target in gimbal-frame degrees.
	az, el float64
	closed bool
}

var _ rotator.Rotator = (*Gimbal)(nil)

// New loads the saved position, connects to the controller and brings it up.
// It fails only on invalid configuration or when no connection candidate
// could be opened.
func New(ctx context.Context, cfg Config, opts Options) (*Gimbal, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &Gimbal{cfg: cfg, store: opts.Store}
	if g.store == nil {
		g.store = discardStore{}
	}
	pos := g.store.Load()
	g.az, g.el = pos.Azimuth, pos.Elevation

	if opts.Opener == nil {
		logrus.Info("no controller; running in pure simulation")
		return g, nil
	}
	e := &Establisher{
		Opener:         opts.Opener,
		RetryDelay:     cfg.Connect.RetryDelay,
		CommandTimeout: cfg.Connect.CommandTimeout,
	}
	h, err := e.Establish(ctx, cfg.Connection)
	if err != nil {
		return nil, err
	}
	g.h = h
	g.ch = galil.NewChannel(h)
	g.mode = NewModeController(g.ch)
	g.poll = NewPoller(g.ch, cfg.Wait)
	g.bringUp()
	return g, nil
}

func (g *Gimbal) simulated() bool {
	return g.ch == nil
}

func (g *Gimbal) counts(az, el float64) (int, int) {
	return rotator.ToCounts(az, g.cfg.CountsPerDegree.Azimuth), rotator.ToCounts(el, g.cfg.CountsPerDegree.Elevation)
}

// MoveAbsolute moves to azimuth az and sky elevation elSky with a profiled
// move. With wait, it polls the in-position flags up to the wait timeout.
func (g *Gimbal) MoveAbsolute(ctx context.Context, az, elSky float64, wait bool) error {
	az = g.cfg.Limits.Azimuth.Clip(az)
	el := g.cfg.Limits.Elevation.Clip(rotator.SkyToGimbalElevation(elSky))
	if g.simulated() {
		g.az, g.el = az, el
		return nil
	}
	x, y := g.counts(az, el)
	if cx, cy := g.counts(g.az, g.el); x == cx && y == cy {
		return nil
	}
	if err := g.mode.Classic(func() error { return g.profiled(ctx, "PA", x, y, wait) }); err != nil {
		return err
	}
	g.az, g.el = az, el
	return nil
}

// MoveRelative moves by dAz and dEl degrees from the current target. An axis
// whose move is below the relative deadband is not moved.
func (g *Gimbal) MoveRelative(ctx context.Context, dAz, dEl float64, wait bool) error {
	az := g.cfg.Limits.Azimuth.Clip(g.az + dAz)
	el := g.cfg.Limits.Elevation.Clip(g.el + dEl)
	if g.simulated() {
		g.az, g.el = az, el
		return nil
	}
	x, y := g.counts(az, el)
	cx, cy := g.counts(g.az, g.el)
	dx, dy := x-cx, y-cy
	moveX, moveY := abs(dx) >= g.cfg.Deadband.Relative, abs(dy) >= g.cfg.Deadband.Relative
	if !moveX && !moveY {
		return nil
	}
	if !moveX {
		dx, az = 0, g.az
	}
	if !moveY {
		dy, el = 0, g.el
	}
	if err := g.mode.Classic(func() error { return g.profiled(ctx, "PR", dx, dy, wait) }); err != nil {
		return err
	}
	g.az, g.el = az, el
	return nil
}

// Steer points in the gimbal frame. Absolute targets use position tracking
// when streaming; relative ones behave like MoveRelative.
func (g *Gimbal) Steer(ctx context.Context, az, el float64, absolute, wait bool) error {
	if !absolute {
		return g.MoveRelative(ctx, az, el, wait)
	}
	az = g.cfg.Limits.Azimuth.Clip(az)
	el = g.cfg.Limits.Elevation.Clip(el)
	if g.simulated() {
		g.az, g.el = az, el
		return nil
	}
	x, y := g.counts(az, el)
	if cx, cy := g.counts(g.az, g.el); x == cx && y == cy {
		return nil
	}
	var err error
	if g.mode.Mode() == Streaming {
		err = g.track(ctx, x, y, wait)
	} else {
		err = g.profiled(ctx, "PA", x, y, wait)
	}
	if err != nil {
		return err
	}
	g.az, g.el = az, el
	return nil
}

// GoHome points at the zenith.
func (g *Gimbal) GoHome(ctx context.Context, wait bool) error {
	return g.MoveAbsolute(ctx, 0, rotator.SkyOffset, wait)
}

// Stop halts motion. Failures are logged only.
func (g *Gimbal) Stop() {
	if g.simulated() {
		return
	}
	g.ch.Send("ST", false)
}

// profiled issues a target command followed by a run command.
func (g *Gimbal) profiled(ctx context.Context, target string, x, y int, wait bool) error {
	if _, err := g.ch.Send(fmt.Sprintf("%s %d,%d", target, x, y), false); err != nil {
		return err
	}
	if _, err := g.ch.Send("BG XY", false); err != nil {
		return err
	}
	if wait && !g.poll.InPosition(ctx) {
		logrus.Warnf("%s %d,%d not confirmed in position within %v", target, x, y, g.poll.Timeout)
	}
	return nil
}

// track updates the tracking target. Updates within the stream deadband of
// the measured position are dropped.
func (g *Gimbal) track(ctx context.Context, x, y int, wait bool) error {
	cx, errX := g.ch.Counts("X")
	cy, errY := g.ch.Counts("Y")
	if errX == nil && errY == nil && abs(x-cx) < g.cfg.Deadband.Stream && abs(y-cy) < g.cfg.Deadband.Stream {
		logrus.Tracef("PA %d,%d within deadband of %d,%d", x, y, cx, cy)
		return nil
	}
	if _, err := g.ch.Send(fmt.Sprintf("PA %d,%d", x, y), true); err != nil {
		return err
	}
	if wait && !g.poll.Settle(ctx, x, y) {
		logrus.Warnf("PA %d,%d not settled within %v", x, y, g.poll.Timeout)
	}
	return nil
}

func (g *Gimbal) State() State {
	s := State{
		Azimuth:      g.az,
		Elevation:    g.el,
		SkyElevation: rotator.GimbalToSkyElevation(g.el),
		Simulated:    g.simulated(),
	}
	if g.mode != nil {
		s.Mode = g.mode.Mode()
		s.Degraded = g.mode.Degraded()
	}
	return s
}

func (g *Gimbal) Status() rotator.Status {
	return g.State()
}

// Degraded reports whether streaming was requested but could not be enabled.
func (g *Gimbal) Degraded() bool {
	return g.mode != nil && g.mode.Degraded()
}

func (g *Gimbal) AzimuthLimits() rotator.Limits {
	return g.cfg.Limits.Azimuth
}

func (g *Gimbal) ElevationLimits() rotator.Limits {
	return g.cfg.Limits.Elevation
}

// Close stops the gimbal, leaves streaming mode, closes the session and
// saves the position. Each step runs even if an earlier one failed. Calls
// after the first do nothing.
func (g *Gimbal) Close() {
	if g.closed {
		return
	}
	g.closed = true
	if !g.simulated() {
		g.Stop()
		g.mode.ExitStreaming()
		if err := g.h.Close(); err != nil {
			logrus.Warnf("closing controller session: %v", err)
		}
	}
	g.store.Save(Position{Azimuth: g.az, Elevation: g.el})
	logrus.Info("[CLOSED] gimbal disconnected")
}
