package rotator

import "context"

// Rotator is a two-axis azimuth/elevation positioner.
type Rotator interface {
	// MoveAbsolute moves to an azimuth and a sky elevation.
	MoveAbsolute(ctx context.Context, az, elSky float64, wait bool) error
	MoveRelative(ctx context.Context, dAz, dEl float64, wait bool) error
	// Steer moves in the positioner's own frame.
	Steer(ctx context.Context, az, el float64, absolute, wait bool) error
	GoHome(ctx context.Context, wait bool) error
	Stop()
	Status() Status
}

type StatusCallback func(status Status)

type Status interface {
	AzimuthPosition() float64
	// ElevationPosition is the sky elevation.
	ElevationPosition() float64

	Clone() Status
}

// Limiter reports the travel limits in degrees, for capability dumps.
type Limiter interface {
	AzimuthLimits() Limits
	ElevationLimits() Limits
}
