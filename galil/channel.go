package galil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// DiagnosticUnavailable stands in for the TC code when it cannot be read.
const DiagnosticUnavailable = "<TC read failed>"

// CommandError is a failed command exchange.
type CommandError struct {
	Command string
	Err     error
	// Diagnostic is the controller's TC answer after the failure.
	Diagnostic string
}

func (e *CommandError) Error() string {
	if e.Diagnostic == "" {
		return fmt.Sprintf("galil %q: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("galil %q: %v (TC: %s)", e.Command, e.Err, e.Diagnostic)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Channel issues commands over a Handle, collecting a diagnostic when one
// fails.
type Channel struct {
	h Handle
}

func NewChannel(h Handle) *Channel {
	return &Channel{h: h}
}

// Send issues cmd and returns the trimmed answer. Unless quiet, the
// exchange is echoed to the log.
func (c *Channel) Send(cmd string, quiet bool) (string, error) {
	if strings.ContainsAny(cmd, "\r\n;") {
		return "", &CommandError{Command: cmd, Err: ErrMultiCommand}
	}
	resp, err := c.h.Command(cmd)
	if err != nil {
		cerr := &CommandError{Command: cmd, Err: err, Diagnostic: c.diagnose()}
		logrus.Warnf("[GALIL ERROR] %s: %v (TC: %s)", cmd, err, cerr.Diagnostic)
		return "", cerr
	}
	resp = strings.TrimSpace(resp)
	if !quiet {
		if resp == "" {
			logrus.Infof("[GALIL] %s", cmd)
		} else {
			logrus.Infof("[GALIL] %s -> %s", cmd, strings.Join(strings.Fields(resp), " "))
		}
	}
	return resp, nil
}

func (c *Channel) diagnose() string {
	tc, err := c.h.Command("TC")
	if err != nil {
		return DiagnosticUnavailable
	}
	return strings.TrimSpace(tc)
}

// Counts reads the current position of one axis.
func (c *Channel) Counts(axis string) (int, error) {
	resp, err := c.Send("TP "+axis, true)
	if err != nil {
		return 0, err
	}
	n, err := ParseCounts(resp)
	if err != nil {
		return 0, fmt.Errorf("parsing TP %s answer %q: %w", axis, resp, err)
	}
	return n, nil
}

// InPosition reads the in-position flags of both axes.
func (c *Channel) InPosition() (bool, error) {
	resp, err := c.Send("MG _TNX,_TNY", true)
	if err != nil {
		return false, err
	}
	values, err := ParseValues(resp)
	if err != nil {
		return false, fmt.Errorf("parsing in-position answer %q: %w", resp, err)
	}
	if len(values) < 2 {
		return false, errors.New("truncated in-position answer")
	}
	return values[0] >= 1 && values[1] >= 1, nil
}
