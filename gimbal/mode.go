package gimbal

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/w1xm/galil_gimbal/galil"
)

// Mode is the motion mode of the controller.
type Mode int

const (
	// Classic moves are started with a run command and cannot be updated
	// while in progress.
	Classic Mode = iota
	// Streaming tracks an absolute target that may change at any time.
	Streaming
)

func (m Mode) String() string {
	switch m {
	case Classic:
		return "classic"
	case Streaming:
		return "streaming"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "classic":
		*m = Classic
	case "streaming":
		*m = Streaming
	default:
		return fmt.Errorf("unknown mode %q", text)
	}
	return nil
}

// ModeController owns the Classic/Streaming state of one session. The mode
// only changes through EnterStreaming and ExitStreaming.
type ModeController struct {
	ch       *galil.Channel
	mode     Mode
	degraded *DegradedModeWarning
}

func NewModeController(ch *galil.Channel) *ModeController {
	return &ModeController{ch: ch}
}

func (mc *ModeController) Mode() Mode {
	return mc.mode
}

// Degraded reports whether streaming failed earlier in the session.
func (mc *ModeController) Degraded() bool {
	return mc.degraded != nil
}

// EnterStreaming stops the profiler and enables position tracking. After a
// failure the session stays in classic mode and later calls return the same
// warning without touching the controller.
func (mc *ModeController) EnterStreaming() error {
	if mc.degraded != nil {
		return mc.degraded
	}
	if mc.mode == Streaming {
		return nil
	}
	for _, cmd := range []string{"ST", "PT 1,1"} {
		if _, err := mc.ch.Send(cmd, false); err != nil {
			mc.mode = Classic
			mc.degraded = &DegradedModeWarning{Err: err}
			logrus.Warn(mc.degraded)
			return mc.degraded
		}
	}
	mc.mode = Streaming
	logrus.Info("streaming mode enabled")
	return nil
}

// ExitStreaming stops the profiler and disables position tracking. Failures
// are logged; the mode is Classic afterwards regardless.
func (mc *ModeController) ExitStreaming() {
	if mc.mode != Streaming {
		return
	}
	for _, cmd := range []string{"ST", "PT 0,0"} {
		if _, err := mc.ch.Send(cmd, false); err != nil {
			logrus.Warnf("leaving streaming mode: %v", err)
		}
	}
	mc.mode = Classic
}

// Classic runs fn with the controller in classic mode, restoring streaming
// afterwards if it was active.
func (mc *ModeController) Classic(fn func() error) error {
	wasStreaming := mc.mode == Streaming
	if wasStreaming {
		mc.ExitStreaming()
	}
	err := fn()
	if wasStreaming {
		// A failure here is already logged and leaves the session degraded.
		mc.EnterStreaming()
	}
	return err
}
