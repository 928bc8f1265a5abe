package gimbal

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/w1xm/galil_gimbal/galil"
	"github.com/w1xm/galil_gimbal/rotator"
)

// A setupStep is one bring-up action expressed as alternative command forms.
// Each rung is tried in order until one is accepted in full.
type setupStep struct {
	name  string
	rungs [][]string
}

// fellThrough is the rung index reported when no rung succeeded.
const fellThrough = -1

// setupSteps lists the bring-up actions. With AssumeZero the controller's
// position is defined as x,y, the counts of the position loaded from the
// store.
func setupSteps(cfg Config, x, y int) []setupStep {
	m := cfg.Motion
	steps := []setupStep{
		{"abort", [][]string{{"AB"}}},
		{"stop", [][]string{{"ST"}}},
		{"settle", [][]string{{fmt.Sprintf("WT %d", m.SettleMS)}}},
		{"motors off", [][]string{{"MO XY"}, {"MO X", "MO Y"}}},
	}
	if cfg.AssumeZero {
		steps = append(steps, setupStep{"define position", [][]string{
			{fmt.Sprintf("DP %d,%d", x, y)},
			{fmt.Sprintf("DP X=%d", x), fmt.Sprintf("DP Y=%d", y)},
		}})
	}
	return append(steps,
		setupStep{"servo on", [][]string{{"SH XY"}, {"SH X", "SH Y"}}},
		setupStep{"acceleration", [][]string{{fmt.Sprintf("AC %d,%d", m.Acceleration, m.Acceleration)}}},
		setupStep{"deceleration", [][]string{{fmt.Sprintf("DC %d,%d", m.Deceleration, m.Deceleration)}}},
		setupStep{"speed", [][]string{{fmt.Sprintf("SP %d,%d", m.Speed, m.Speed)}}},
	)
}

// climb tries the rungs of step and returns the index of the one that was
// accepted, or fellThrough with the last failure. Every command of a rung is
// sent even when an earlier one fails.
func climb(ch *galil.Channel, step setupStep) (int, error) {
	var lastErr error
	for i, rung := range step.rungs {
		ok := true
		for _, cmd := range rung {
			if _, err := ch.Send(cmd, false); err != nil {
				ok = false
				lastErr = err
			}
		}
		if ok {
			return i, nil
		}
	}
	return fellThrough, lastErr
}

// bringUp puts the controller in a known state. No step is fatal.
func (g *Gimbal) bringUp() {
	x, y := g.counts(g.az, g.el)
	for _, step := range setupSteps(g.cfg, x, y) {
		rung, err := climb(g.ch, step)
		switch {
		case rung == fellThrough:
			logrus.Warnf("setup %s failed, continuing: %v", step.name, err)
		case rung > 0:
			logrus.Infof("setup %s: used fallback form %v", step.name, step.rungs[rung])
		}
	}
	if g.cfg.Streaming {
		// Failure leaves the session degraded and is logged.
		g.mode.EnterStreaming()
	}
	g.sync()
}

// sync reads the controller's counts into the state. An axis that cannot be
// read keeps its loaded value.
func (g *Gimbal) sync() {
	if x, err := g.ch.Counts("X"); err == nil {
		g.az = rotator.ToDegrees(float64(x), g.cfg.CountsPerDegree.Azimuth)
	}
	if y, err := g.ch.Counts("Y"); err == nil {
		g.el = rotator.ToDegrees(float64(y), g.cfg.CountsPerDegree.Elevation)
	}
	logrus.Infof("[SYNC] az=%.3f el_gimbal=%.3f", g.az, g.el)
}
