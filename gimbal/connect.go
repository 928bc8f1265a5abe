package gimbal

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"

	"github.com/w1xm/galil_gimbal/galil"
)

// Candidates derives the descriptors to try from one user-supplied
// descriptor: the descriptor as given, its address alone, and the address
// with the direct flag. Duplicates are dropped, order is preserved.
func Candidates(descriptor string) []string {
	descriptor = strings.TrimSpace(descriptor)
	fields := strings.Fields(descriptor)
	if len(fields) == 0 {
		return nil
	}
	addr := fields[0]
	var out []string
	for _, c := range []string{descriptor, addr, addr + " " + galil.DirectFlag} {
		dup := false
		for _, seen := range out {
			if seen == c {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}

// Establisher opens a controller session, trying each candidate in turn.
type Establisher struct {
	Opener galil.Opener
	// RetryDelay separates consecutive attempts.
	RetryDelay time.Duration
	// CommandTimeout is applied to the session once it is open.
	CommandTimeout time.Duration
}

func (e *Establisher) Establish(ctx context.Context, descriptor string) (galil.Handle, error) {
	candidates := Candidates(descriptor)
	if len(candidates) == 0 {
		return nil, &ConnectionError{Err: errors.New("empty connection descriptor")}
	}

	var (
		h       galil.Handle
		lastErr error
		next    int
	)
	op := func() error {
		cand := candidates[next]
		next++
		opened, err := e.Opener.Open(cand)
		if err != nil {
			if opened != nil {
				opened.Close()
			}
			logrus.Debugf("connecting with %q failed: %v", cand, err)
			lastErr = err
			return err
		}
		logrus.Infof("connected with %q", cand)
		h = opened
		return nil
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(e.RetryDelay), uint64(len(candidates)-1)),
		ctx)
	if err := backoff.Retry(op, b); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return nil, &ConnectionError{Candidates: candidates, Err: lastErr}
	}

	if e.CommandTimeout > 0 {
		if err := h.SetTimeout(e.CommandTimeout); err != nil {
			logrus.Warnf("setting command timeout: %v", err)
		}
	}
	return h, nil
}
