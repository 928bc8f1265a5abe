// Command gimbalctl issues one-shot commands to a gimbal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/w1xm/galil_gimbal/config"
	"github.com/w1xm/galil_gimbal/internal/session"
)

var (
	configPath = config.DefaultFile
	connection = ""
	simulate   = false
	logLevel   = ""
)

func main() {
	if err := NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gimbalctl",
		Short: "Drive a Galil two-axis gimbal",
		Long: `Drive a Galil two-axis gimbal.

Each invocation connects, runs one command, prints the resulting state and
disconnects, saving the position for the next run. Without a connection the
gimbal runs in pure simulation.

Negative arguments must follow "--", for example: gimbalctl rel -- -5 0`,
		SilenceUsage: true,
	}
	f := cmd.PersistentFlags()
	f.StringVarP(&configPath, "config", "c", configPath, "configuration file")
	f.StringVar(&connection, "connection", connection, "controller descriptor, overriding the configuration")
	f.BoolVar(&simulate, "simulate", simulate, "attach to a simulated controller")
	f.StringVarP(&logLevel, "log-level", "l", logLevel, "log level (trace, debug, info, warn, error), overriding the configuration")

	cmd.AddCommand(
		NewMoveCommand(),
		NewRelativeCommand(),
		NewSteerCommand(),
		NewHomeCommand(),
		NewStopCommand(),
		NewStateCommand(),
		NewConfigCommand(),
	)
	return cmd
}

func loadConfig() (*config.Loader, config.Config, error) {
	l, err := config.NewLoader(configPath)
	if err != nil {
		return nil, config.Config{}, err
	}
	cfg, err := l.Config()
	if err != nil {
		return nil, config.Config{}, err
	}
	if connection != "" {
		cfg.Connection = connection
	}
	if simulate {
		cfg.Simulate = true
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.SetupLogging(); err != nil {
		return nil, config.Config{}, err
	}
	return l, cfg, nil
}

// withGimbal opens the gimbal, runs fn and prints the final state.
func withGimbal(cmd *cobra.Command, fn func(ctx context.Context, s *session.Session) error) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := session.Open(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "failed to open gimbal")
	}
	defer s.Close()
	if err := fn(ctx, s); err != nil {
		return err
	}
	if s.Degraded() {
		logrus.Warn("streaming mode unavailable; running in classic mode")
	}
	data, err := json.MarshalIndent(s.State(), "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func parseFloatArgs(args []string, names ...string) ([]float64, error) {
	if len(args) != len(names) {
		return nil, errors.Errorf("expected %d arguments, got %d", len(names), len(args))
	}
	out := make([]float64, len(args))
	for i, arg := range args {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s", names[i])
		}
		out[i] = v
	}
	return out, nil
}
