package gimbal

import (
	"fmt"
	"strings"
)

// ConnectionError is returned when no connection candidate could be opened.
type ConnectionError struct {
	Candidates []string
	// Err is the failure of the last candidate tried.
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect using [%s]: %v", strings.Join(e.Candidates, ", "), e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// DegradedModeWarning reports that streaming could not be enabled. The
// session continues in classic mode.
type DegradedModeWarning struct {
	Err error
}

func (w *DegradedModeWarning) Error() string {
	return fmt.Sprintf("streaming unavailable, continuing in classic mode: %v", w.Err)
}

func (w *DegradedModeWarning) Unwrap() error {
	return w.Err
}
