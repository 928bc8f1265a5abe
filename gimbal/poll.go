package gimbal

import (
	"context"
	"time"

	"github.com/w1xm/galil_gimbal/galil"
)

// Poller waits for motion to complete by polling the controller. Query
// failures count as not done; neither wait returns an error.
type Poller struct {
	ch        *galil.Channel
	Timeout   time.Duration
	Interval  time.Duration
	Tolerance int
}

func NewPoller(ch *galil.Channel, w Wait) *Poller {
	return &Poller{
		ch:        ch,
		Timeout:   w.Timeout,
		Interval:  w.Interval,
		Tolerance: w.Tolerance,
	}
}

// InPosition waits for both in-position flags. It returns false on timeout.
func (p *Poller) InPosition(ctx context.Context) bool {
	return p.poll(ctx, func() bool {
		ok, err := p.ch.InPosition()
		return err == nil && ok
	})
}

// Settle waits for both axes to come within Tolerance counts of x,y. It
// returns false on timeout.
func (p *Poller) Settle(ctx context.Context, x, y int) bool {
	return p.poll(ctx, func() bool {
		cx, err := p.ch.Counts("X")
		if err != nil {
			return false
		}
		cy, err := p.ch.Counts("Y")
		if err != nil {
			return false
		}
		return abs(cx-x) <= p.Tolerance && abs(cy-y) <= p.Tolerance
	})
}

func (p *Poller) poll(ctx context.Context, done func() bool) bool {
	deadline := time.Now().Add(p.Timeout)
	t := time.NewTicker(p.Interval)
	defer t.Stop()
	for {
		if done() {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
