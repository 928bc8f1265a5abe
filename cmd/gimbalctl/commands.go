package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/w1xm/galil_gimbal/internal/session"
)

var wait = true

func addWaitFlag(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&wait, "wait", "w", true, "wait for the move to complete")
}

func NewMoveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move [azimuth] [sky-elevation]",
		Short: "Move to an absolute azimuth and sky elevation",
		Long: `Move to an absolute azimuth and sky elevation, in degrees.

A sky elevation of 90 points the gimbal at its elevation zero. Targets outside
the travel limits are clipped.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseFloatArgs(args, "azimuth", "elevation")
			if err != nil {
				return err
			}
			return withGimbal(cmd, func(ctx context.Context, s *session.Session) error {
				return s.MoveAbsolute(ctx, v[0], v[1], wait)
			})
		},
	}
	addWaitFlag(cmd)
	return cmd
}

func NewRelativeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rel [d-azimuth] [d-elevation]",
		Aliases: []string{"relative"},
		Short:   "Move by an offset in degrees",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseFloatArgs(args, "azimuth offset", "elevation offset")
			if err != nil {
				return err
			}
			return withGimbal(cmd, func(ctx context.Context, s *session.Session) error {
				return s.MoveRelative(ctx, v[0], v[1], wait)
			})
		},
	}
	addWaitFlag(cmd)
	return cmd
}

func NewSteerCommand() *cobra.Command {
	var relative bool
	cmd := &cobra.Command{
		Use:   "steer [azimuth] [elevation]",
		Short: "Steer in the gimbal frame",
		Long: `Steer to an azimuth and elevation in the gimbal frame, in degrees.

In streaming mode absolute targets are tracked without starting a new profiled
move.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseFloatArgs(args, "azimuth", "elevation")
			if err != nil {
				return err
			}
			return withGimbal(cmd, func(ctx context.Context, s *session.Session) error {
				return s.Steer(ctx, v[0], v[1], !relative, wait)
			})
		},
	}
	cmd.Flags().BoolVarP(&relative, "relative", "r", false, "treat the arguments as offsets")
	addWaitFlag(cmd)
	return cmd
}

func NewHomeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "home",
		Short: "Return to azimuth 0, sky elevation 90",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withGimbal(cmd, func(ctx context.Context, s *session.Session) error {
				return s.GoHome(ctx, wait)
			})
		},
	}
	addWaitFlag(cmd)
	return cmd
}

func NewStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop motion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withGimbal(cmd, func(_ context.Context, s *session.Session) error {
				s.Stop()
				return nil
			})
		},
	}
}

func NewStateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the current state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withGimbal(cmd, func(context.Context, *session.Session) error {
				return nil
			})
		},
	}
}

func NewConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, _, err := loadConfig()
			if err != nil {
				return err
			}
			out, err := l.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
