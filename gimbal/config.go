package gimbal

import (
	"errors"
	"fmt"
	"time"

	"github.com/w1xm/galil_gimbal/rotator"
)

// AxisLimits is the allowed travel of both axes, in gimbal-frame degrees.
type AxisLimits struct {
	Azimuth   rotator.Limits `json:"azimuth" koanf:"azimuth"`
	Elevation rotator.Limits `json:"elevation" koanf:"elevation"`
}

// Scale is the calibration of both axes, in counts per degree.
type Scale struct {
	Azimuth   float64 `json:"azimuth" koanf:"azimuth"`
	Elevation float64 `json:"elevation" koanf:"elevation"`
}

// Motion holds the profiler parameters applied at bring-up.
type Motion struct {
	Acceleration int `koanf:"acceleration"`
	Deceleration int `koanf:"deceleration"`
	Speed        int `koanf:"speed"`
	// SettleMS is the controller-side WT issued after stopping.
	SettleMS int `koanf:"settle_ms"`
}

// Deadband holds the thresholds, in counts, below which updates are dropped.
type Deadband struct {
	Relative int `koanf:"relative"`
	Stream   int `koanf:"stream"`
}

type Wait struct {
	Timeout   time.Duration `koanf:"timeout"`
	Interval  time.Duration `koanf:"interval"`
	Tolerance int           `koanf:"tolerance"`
}

type Connect struct {
	RetryDelay     time.Duration `koanf:"retry_delay"`
	CommandTimeout time.Duration `koanf:"command_timeout"`
}

// Config describes one gimbal.
type Config struct {
	// Connection is the controller descriptor, "<address> [flags]".
	Connection      string     `koanf:"connection"`
	Limits          AxisLimits `koanf:"limits"`
	CountsPerDegree Scale      `koanf:"counts_per_degree"`
	// Streaming requests position tracking after bring-up.
	Streaming bool `koanf:"streaming"`
	// AssumeZero defines the controller position during bring-up as the
	// position loaded from the store, zero when nothing was saved.
	AssumeZero bool     `koanf:"assume_zero"`
	Motion     Motion   `koanf:"motion"`
	Deadband   Deadband `koanf:"deadband"`
	Wait       Wait     `koanf:"wait"`
	Connect    Connect  `koanf:"connect"`
}

func DefaultConfig() Config {
	return Config{
		Limits: AxisLimits{
			Azimuth:   rotator.Limits{Min: -90, Max: 90},
			Elevation: rotator.Limits{Min: -90, Max: 90},
		},
		CountsPerDegree: Scale{Azimuth: 10000, Elevation: 10000},
		Streaming:       true,
		AssumeZero:      true,
		Motion: Motion{
			Acceleration: 200000,
			Deceleration: 200000,
			Speed:        60000,
			SettleMS:     20,
		},
		Deadband: Deadband{Relative: 10, Stream: 6},
		Wait: Wait{
			Timeout:   2 * time.Second,
			Interval:  20 * time.Millisecond,
			Tolerance: 30,
		},
		Connect: Connect{
			RetryDelay:     200 * time.Millisecond,
			CommandTimeout: 120 * time.Second,
		},
	}
}

var errInvalidConfig = errors.New("invalid gimbal configuration")

// Validate checks the invariants the controller relies on.
func (c Config) Validate() error {
	switch {
	case !c.Limits.Azimuth.Valid():
		return fmt.Errorf("%w: azimuth limits %+v", errInvalidConfig, c.Limits.Azimuth)
	case !c.Limits.Elevation.Valid():
		return fmt.Errorf("%w: elevation limits %+v", errInvalidConfig, c.Limits.Elevation)
	case c.CountsPerDegree.Azimuth <= 0, c.CountsPerDegree.Elevation <= 0:
		return fmt.Errorf("%w: counts per degree must be positive", errInvalidConfig)
	case c.Motion.Acceleration <= 0, c.Motion.Deceleration <= 0, c.Motion.Speed <= 0:
		return fmt.Errorf("%w: motion parameters must be positive", errInvalidConfig)
	case c.Motion.SettleMS < 0, c.Deadband.Relative < 0, c.Deadband.Stream < 0, c.Wait.Tolerance < 0:
		return fmt.Errorf("%w: negative threshold", errInvalidConfig)
	case c.Wait.Timeout < 0, c.Wait.Interval <= 0:
		return fmt.Errorf("%w: wait timing %+v", errInvalidConfig, c.Wait)
	case c.Connect.RetryDelay < 0:
		return fmt.Errorf("%w: negative retry delay", errInvalidConfig)
	}
	return nil
}
