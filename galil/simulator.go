package galil

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/w1xm/galil_gimbal/galil/internal/status"
)

// Error codes reported by TC.
const (
	CodeNone              = 0
	CodeUnrecognized      = 1
	CodeOutOfRange        = 6
	CodeNotWhileRunning   = 7
	CodeMissingArgument   = 18
	CodeBeginWithMotorOff = 20
)

var codeText = map[int]string{
	CodeNone:              "No error",
	CodeUnrecognized:      "Unrecognized command",
	CodeOutOfRange:        "Number out of range",
	CodeNotWhileRunning:   "Command not valid while running",
	CodeMissingArgument:   "Argument missing",
	CodeBeginWithMotorOff: "Begin not valid with motor off",
}

const (
	// Axes lists the simulated axes in argument order.
	Axes = "XY"

	// Profiler defaults, in counts/s^2 and counts/s.
	defaultAccel = 256000
	defaultSpeed = 25000
	// Discrete simulation step size
	stepSize = 10 * time.Millisecond
	// Longest WT honoured, so a bad argument cannot stall the session.
	maxWait = time.Second
)

// Simulator is an in-process two-axis controller. Sessions opened on it speak
// the same wire protocol as the hardware.
type Simulator struct {
	mu       sync.Mutex
	axes     [len(Axes)]status.Axis
	lastCode int
	rev      string
	history  []string
	reject   map[string]int
	conns    map[net.Conn]struct{}
}

func NewSimulator() *Simulator {
	s := &Simulator{
		rev:    "DMC2182 Rev 1.0-sim",
		reject: make(map[string]int),
		conns:  make(map[net.Conn]struct{}),
	}
	for i := range s.axes {
		s.axes[i].Accel = defaultAccel
		s.axes[i].Decel = defaultAccel
		s.axes[i].Speed = defaultSpeed
	}
	return s
}

// Open attaches a new session. The descriptor is only logged.
func (s *Simulator) Open(descriptor string) (Handle, error) {
	a, b := net.Pipe()
	s.mu.Lock()
	s.conns[a] = struct{}{}
	s.mu.Unlock()
	go s.serve(a)
	logrus.Debugf("simulator session opened for %q", descriptor)
	return NewConn(b), nil
}

// Run advances the simulated motion until ctx is done, then closes every
// open session.
func (s *Simulator) Run(ctx context.Context) error {
	t := time.NewTicker(stepSize)
	defer t.Stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
			s.Advance(stepSize)
		}
	})
	g.Go(func() error {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		for conn := range s.conns {
			conn.Close()
		}
		return ctx.Err()
	})
	return g.Wait()
}

// Reject makes the simulator answer '?' with the given TC code whenever it
// receives exactly cmd. A code of CodeNone removes the rule.
func (s *Simulator) Reject(cmd string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code == CodeNone {
		delete(s.reject, cmd)
		return
	}
	s.reject[cmd] = code
}

// History returns every command received so far.
func (s *Simulator) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.history...)
}

func (s *Simulator) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// Position returns the current counts of both axes.
func (s *Simulator) Position() (x, y int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(math.Round(s.axes[0].Pos)), int(math.Round(s.axes[1].Pos))
}

// Tracking reports whether position tracking is enabled on both axes.
func (s *Simulator) Tracking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.axes[0].Tracking && s.axes[1].Tracking
}

func (s *Simulator) serve(conn net.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\r')
		if err != nil {
			return
		}
		cmd := strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if cmd == "" {
			continue
		}
		logrus.Tracef("srv->sim: %q", cmd)
		resp, ok := s.exec(cmd)
		var out string
		switch {
		case !ok:
			out = "?"
		case resp == "":
			out = ":"
		default:
			out = resp + "\r\n:"
		}
		if _, err := conn.Write([]byte(out)); err != nil {
			return
		}
	}
}

func (s *Simulator) exec(cmd string) (string, bool) {
	if strings.HasPrefix(cmd, "WT") {
		s.record(cmd)
		return s.wait(cmd[2:])
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, cmd)
	if code, ok := s.reject[cmd]; ok {
		s.lastCode = code
		return "", false
	}
	if cmd == identify {
		return s.rev, true
	}
	if len(cmd) < 2 {
		s.lastCode = CodeUnrecognized
		return "", false
	}
	name, args := strings.ToUpper(cmd[:2]), strings.TrimSpace(cmd[2:])
	resp, code := s.dispatch(name, args)
	if code != CodeNone {
		s.lastCode = code
		return "", false
	}
	return resp, true
}

func (s *Simulator) record(cmd string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, cmd)
}

func (s *Simulator) wait(arg string) (string, bool) {
	ms, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || ms < 0 {
		s.mu.Lock()
		s.lastCode = CodeOutOfRange
		s.mu.Unlock()
		return "", false
	}
	d := time.Duration(ms) * time.Millisecond
	if d > maxWait {
		d = maxWait
	}
	time.Sleep(d)
	return "", true
}

// dispatch runs one command with s.mu held.
func (s *Simulator) dispatch(name, args string) (string, int) {
	switch name {
	case "AB", "ST":
		for i := range s.axes {
			s.axes[i].Halt()
		}
	case "MO", "SH":
		mask, err := status.ParseAxisMask(args, Axes)
		if err != nil {
			return "", CodeUnrecognized
		}
		for i, on := range mask {
			if !on {
				continue
			}
			s.axes[i].Halt()
			s.axes[i].MotorOn = name == "SH"
		}
	case "DP":
		values, set, err := status.ParseAxisArgs(args, Axes)
		if err != nil {
			return "", CodeMissingArgument
		}
		for i := range s.axes {
			if set[i] {
				s.axes[i].Halt()
				s.axes[i].Pos = values[i]
				s.axes[i].Target = values[i]
			}
		}
	case "AC", "DC", "SP":
		values, set, err := status.ParseAxisArgs(args, Axes)
		if err != nil {
			return "", CodeMissingArgument
		}
		for i := range s.axes {
			if !set[i] {
				continue
			}
			if values[i] <= 0 {
				return "", CodeOutOfRange
			}
			switch name {
			case "AC":
				s.axes[i].Accel = values[i]
			case "DC":
				s.axes[i].Decel = values[i]
			case "SP":
				s.axes[i].Speed = values[i]
			}
		}
	case "PA", "PR":
		values, set, err := status.ParseAxisArgs(args, Axes)
		if err != nil {
			return "", CodeMissingArgument
		}
		for i := range s.axes {
			if !set[i] {
				continue
			}
			a := &s.axes[i]
			switch {
			case a.Tracking && name == "PR":
				return "", CodeNotWhileRunning
			case a.Tracking:
				// Position tracking follows PA immediately, without BG.
				a.Target = values[i]
			default:
				a.Pending, a.PendingRel, a.HasPending = values[i], name == "PR", true
			}
		}
	case "BG":
		mask, err := status.ParseAxisMask(args, Axes)
		if err != nil {
			return "", CodeUnrecognized
		}
		for i, on := range mask {
			if !on {
				continue
			}
			if s.axes[i].Tracking || s.axes[i].Profiling {
				return "", CodeNotWhileRunning
			}
			if !s.axes[i].MotorOn {
				return "", CodeBeginWithMotorOff
			}
		}
		for i, on := range mask {
			a := &s.axes[i]
			if !on || !a.HasPending {
				continue
			}
			if a.PendingRel {
				a.Target = a.Pos + a.Pending
			} else {
				a.Target = a.Pending
			}
			a.HasPending = false
			a.Profiling = true
		}
	case "PT":
		values, set, err := status.ParseAxisArgs(args, Axes)
		if err != nil {
			return "", CodeMissingArgument
		}
		for i := range s.axes {
			if set[i] && values[i] != 0 && s.axes[i].Profiling {
				return "", CodeNotWhileRunning
			}
		}
		for i := range s.axes {
			if !set[i] {
				continue
			}
			s.axes[i].Tracking = values[i] != 0
			s.axes[i].Target = s.axes[i].Pos
		}
	case "TP":
		mask, err := status.ParseAxisMask(args, Axes)
		if err != nil {
			return "", CodeUnrecognized
		}
		var out []string
		for i, on := range mask {
			if on {
				out = append(out, fmt.Sprintf("%d", int(math.Round(s.axes[i].Pos))))
			}
		}
		return strings.Join(out, ", "), CodeNone
	case "MG":
		return s.message(args)
	case "TC":
		if args == "1" {
			return fmt.Sprintf("%d %s", s.lastCode, codeText[s.lastCode]), CodeNone
		}
		return strconv.Itoa(s.lastCode), CodeNone
	default:
		return "", CodeUnrecognized
	}
	return "", CodeNone
}

// message answers MG for the operands _TNa (in position) and _TPa (counts).
func (s *Simulator) message(args string) (string, int) {
	var out []string
	for _, operand := range strings.Split(args, ",") {
		operand = strings.ToUpper(strings.TrimSpace(operand))
		if len(operand) != 4 || operand[0] != '_' {
			return "", CodeUnrecognized
		}
		idx := strings.IndexByte(Axes, operand[3])
		if idx < 0 {
			return "", CodeUnrecognized
		}
		a := s.axes[idx]
		var v float64
		switch operand[1:3] {
		case "TN":
			if a.InPosition() {
				v = 1
			}
		case "TP":
			v = math.Round(a.Pos)
		default:
			return "", CodeUnrecognized
		}
		out = append(out, fmt.Sprintf("%.4f", v))
	}
	return strings.Join(out, " "), CodeNone
}

// Advance moves the simulated axes forward by dt.
func (s *Simulator) Advance(dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.axes {
		step(&s.axes[i], dt.Seconds())
	}
}

// step moves one axis toward its target on a trapezoidal profile.
func step(a *status.Axis, dt float64) {
	if !a.MotorOn || !(a.Profiling || a.Tracking) {
		a.Vel = 0
		return
	}
	remaining := a.Target - a.Pos
	dist := math.Abs(remaining)
	if dist < 0.5 {
		a.Pos, a.Vel, a.Profiling = a.Target, 0, false
		return
	}
	// Fastest speed from which the axis can still stop at the target.
	limit := math.Min(a.Speed, math.Sqrt(2*a.Decel*dist))
	speed := math.Abs(a.Vel)
	if speed < limit {
		speed = math.Min(limit, speed+a.Accel*dt)
	} else {
		speed = limit
	}
	move := speed * dt
	if move >= dist {
		a.Pos, a.Vel, a.Profiling = a.Target, 0, false
		return
	}
	dir := 1.0
	if remaining < 0 {
		dir = -1
	}
	a.Pos += dir * move
	a.Vel = dir * speed
}
