// Package session opens a gimbal as described by the process configuration.
package session

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/w1xm/galil_gimbal/config"
	"github.com/w1xm/galil_gimbal/galil"
	"github.com/w1xm/galil_gimbal/gimbal"
)

// SimulatorConnection is the descriptor used when none is configured for a
// simulated controller.
const SimulatorConnection = "simulator"

// Session is an open gimbal together with the simulated controller behind
// it, if any.
type Session struct {
	*gimbal.Gimbal
	Simulator *galil.Simulator

	cancel context.CancelFunc
	eg     *errgroup.Group
}

// Open connects the gimbal. With cfg.Simulate an in-process controller is
// started; with neither that nor a connection the gimbal runs in pure
// simulation. ctx bounds connecting only; the simulator runs until Close.
func Open(ctx context.Context, cfg config.Config) (*Session, error) {
	s := &Session{}
	simCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.eg, simCtx = errgroup.WithContext(simCtx)

	var opts gimbal.Options
	if cfg.StateFile != "" {
		opts.Store = gimbal.FileStore{Path: cfg.StateFile}
	}
	gc := cfg.Gimbal()
	switch {
	case cfg.Simulate:
		s.Simulator = galil.NewSimulator()
		s.eg.Go(func() error { return s.Simulator.Run(simCtx) })
		opts.Opener = s.Simulator
		if gc.Connection == "" {
			gc.Connection = SimulatorConnection
		}
	case gc.Connection != "":
		opts.Opener = galil.DefaultOpener
	}

	g, err := gimbal.New(ctx, gc, opts)
	if err != nil {
		s.cancel()
		s.eg.Wait()
		return nil, err
	}
	s.Gimbal = g
	return s, nil
}

// Close closes the gimbal, saving its position, and then stops the
// simulator.
func (s *Session) Close() {
	s.Gimbal.Close()
	s.cancel()
	s.eg.Wait()
}
