package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/w1xm/galil_gimbal/gimbal"
	"github.com/w1xm/galil_gimbal/rotator"
)

// Hamlib error codes, as negated errno values.
const (
	rprtOK     = 0
	rprtEINVAL = -22
	rprtEIO    = -5
)

func (s *Server) ListenRotctld(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		logrus.Print("shutdown; closing rotctld socket")
		ln.Close()
	}()
	go func() {
		for ctx.Err() == nil {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() == nil {
					logrus.Printf("failed to accept: %v", err)
				}
				continue
			}
			go func() {
				defer conn.Close()
				logrus.Printf("accepted connection from %v", conn.RemoteAddr())
				s.handleRotctld(ctx, conn, conn.RemoteAddr())
			}()
		}
	}()
	return nil
}

func (s *Server) handleRotctld(ctx context.Context, conn io.ReadWriter, remote net.Addr) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		// Two forms of command: single character, or "+\" followed by command name.
		cmd := scanner.Text()
		var args []string
		var extended bool
		if len(cmd) == 0 {
			continue
		} else if len(cmd) > 2 && cmd[0:2] == `+\` {
			extended = true
			parts := strings.Fields(cmd[2:])
			if len(parts) == 0 {
				continue
			}
			cmd = parts[0]
			args = parts[1:]
			fmt.Fprintf(conn, "%s:\n", cmd)
		} else if cmd[0] == '\\' {
			parts := strings.Fields(cmd[1:])
			if len(parts) == 0 {
				continue
			}
			cmd = parts[0]
			args = parts[1:]
		} else {
			// Space after command is optional.
			if len(cmd) > 1 {
				args = strings.Fields(cmd[1:])
			}
			cmd = string(cmd[0])
		}
		logrus.Debugf("%v command: %q args: %#v", remote, cmd, args)
		rprt := rprtEINVAL
		switch cmd {
		case "q", "Q", "quit":
			return
		case "1", "dump_caps":
			az, el := s.g.AzimuthLimits(), s.g.ElevationLimits()
			fmt.Fprintf(conn, `Model name: Galil gimbal
Mfg name: W1XM
Rot type: Az-El
Min Azimuth: %.2f
Max Azimuth: %.2f
Min Elevation: %.2f
Max Elevation: %.2f
Can set Position: Y
Can get Position: Y
Can Stop: Y
Can Park: Y
Can Reset: N
Can Move: Y
Can get Info: N
`, az.Min, az.Max, rotator.GimbalToSkyElevation(el.Min), rotator.GimbalToSkyElevation(el.Max))
			rprt = rprtOK
		case "S", "stop":
			extended = true // always print RPRT
			s.do(func(g *gimbal.Gimbal) error {
				g.Stop()
				return nil
			})
			rprt = rprtOK
		case "K", "park":
			extended = true // always print RPRT
			rprt = s.report(s.do(func(g *gimbal.Gimbal) error {
				return g.GoHome(ctx, false)
			}))
		case "P", "set_pos":
			extended = true // always print RPRT
			if len(args) != 2 {
				break
			}
			az, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				break
			}
			el, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				break
			}
			rprt = s.report(s.do(func(g *gimbal.Gimbal) error {
				return g.MoveAbsolute(ctx, az, el, false)
			}))
		case "M", "move":
			extended = true // always print RPRT
			if len(args) != 2 {
				break
			}
			dir, err := strconv.Atoi(args[0])
			if err != nil {
				break
			}
			// Speed is 0-100. Each move nudges by speed/10 degrees.
			speed, err := strconv.Atoi(args[1])
			if err != nil || speed < 0 || speed > 100 {
				break
			}
			step := float64(speed) / 10
			var dAz, dEl float64
			switch dir {
			case 2: // Up
				dEl = step
			case 4: // Down
				dEl = -step
			case 8: // Left
				dAz = -step
			case 16: // Right
				dAz = step
			default:
				dir = 0
			}
			if dir == 0 {
				break
			}
			rprt = s.report(s.do(func(g *gimbal.Gimbal) error {
				return g.MoveRelative(ctx, dAz, dEl, false)
			}))
		case "p", "get_pos":
			status, _ := s.Status()
			if extended {
				fmt.Fprintf(conn, "Azimuth: %.6f\nElevation: %.6f\n", status.AzimuthPosition(), status.ElevationPosition())
			} else {
				fmt.Fprintf(conn, "%.6f\n%.6f\n", status.AzimuthPosition(), status.ElevationPosition())
			}
			rprt = rprtOK
		}
		if extended || rprt != rprtOK {
			fmt.Fprintf(conn, "RPRT %d\n", rprt)
		}
	}
	if err := scanner.Err(); err != nil {
		logrus.Printf("reading from %v: %v", remote, err)
	}
}

func (s *Server) report(err error) int {
	if err != nil {
		logrus.Warnf("rotctld: %v", err)
		return rprtEIO
	}
	return rprtOK
}
