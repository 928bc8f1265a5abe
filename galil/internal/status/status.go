package status

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// Axis is the simulated state of one controller axis. Positions are in
// counts, rates in counts/s and counts/s^2.
type Axis struct {
	Pos    float64
	Vel    float64
	Target float64

	// Pending is the PA target or PR distance waiting for BG.
	Pending    float64
	PendingRel bool
	HasPending bool
	Profiling  bool
	MotorOn    bool
	Tracking   bool
	Accel      float64
	Decel      float64
	Speed      float64
}

// InPosition reports whether the axis has finished its move.
func (a Axis) InPosition() bool {
	return !a.Profiling && math.Abs(a.Pos-a.Target) < 1
}

// Halt stops the profiler where the axis stands.
func (a *Axis) Halt() {
	a.Profiling = false
	a.Vel = 0
	a.Target = a.Pos
	a.HasPending = false
}

func ParseFloat(dest *float64, input string) error {
	f, err := strconv.ParseFloat(strings.TrimSpace(input), 64)
	if err != nil {
		return err
	}
	*dest = f
	return nil
}

// ParseAxisArgs parses the argument forms "a,b", "a" and "X=a" / "Y=b"
// into per-axis values. Axes that were not given are reported as unset.
func ParseAxisArgs(input string, axes string) ([]float64, []bool, error) {
	values := make([]float64, len(axes))
	set := make([]bool, len(axes))
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil, errors.New("missing arguments")
	}
	for i, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		idx := i
		if eq := strings.IndexByte(part, '='); eq >= 0 {
			idx = strings.Index(axes, strings.ToUpper(strings.TrimSpace(part[:eq])))
			if idx < 0 {
				return nil, nil, errors.New("unknown axis")
			}
			part = part[eq+1:]
		}
		if part == "" {
			continue
		}
		if idx >= len(axes) {
			return nil, nil, errors.New("too many arguments")
		}
		if err := ParseFloat(&values[idx], part); err != nil {
			return nil, nil, err
		}
		set[idx] = true
	}
	return values, set, nil
}

// ParseAxisMask parses an axis list such as "XY", "X" or "" (all axes).
func ParseAxisMask(input string, axes string) ([]bool, error) {
	mask := make([]bool, len(axes))
	input = strings.ToUpper(strings.TrimSpace(input))
	if input == "" {
		for i := range mask {
			mask[i] = true
		}
		return mask, nil
	}
	for _, r := range input {
		idx := strings.IndexRune(axes, r)
		if idx < 0 {
			return nil, errors.New("unknown axis")
		}
		mask[idx] = true
	}
	return mask, nil
}
