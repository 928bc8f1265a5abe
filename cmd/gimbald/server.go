package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/w1xm/galil_gimbal/gimbal"
)

const (
	// Status pushes to one websocket client are limited to this rate.
	statusRate  = rate.Limit(20)
	writeWait   = 10 * time.Second
	maxBodySize = 1 << 12
)

// Server serializes access to one gimbal and fans its state out to clients.
type Server struct {
	mu sync.Mutex
	g  *gimbal.Gimbal

	statusMu sync.RWMutex
	status   gimbal.State
	// changed is closed and replaced on every status update.
	changed chan struct{}
}

func NewServer(g *gimbal.Gimbal) *Server {
	return &Server{
		g:       g,
		status:  g.State(),
		changed: make(chan struct{}),
	}
}

// do runs fn with exclusive use of the gimbal, then publishes the new state.
func (s *Server) do(fn func(g *gimbal.Gimbal) error) error {
	s.mu.Lock()
	err := fn(s.g)
	status := s.g.State()
	s.mu.Unlock()
	s.publish(status)
	return err
}

func (s *Server) publish(status gimbal.State) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status = status
	close(s.changed)
	s.changed = make(chan struct{})
}

// Status returns the latest state and a channel closed on the next update.
func (s *Server) Status() (gimbal.State, <-chan struct{}) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status, s.changed
}

type Command struct {
	Command string `json:"command"`
	// Azimuth and Elevation are targets or offsets in degrees, depending on
	// the command. move_absolute takes a sky elevation.
	Azimuth   float64 `json:"azimuth"`
	Elevation float64 `json:"elevation"`
	Absolute  bool    `json:"absolute"`
	Wait      bool    `json:"wait"`
}

func (s *Server) Execute(ctx context.Context, msg Command) error {
	return s.do(func(g *gimbal.Gimbal) error {
		switch msg.Command {
		case "move_absolute":
			return g.MoveAbsolute(ctx, msg.Azimuth, msg.Elevation, msg.Wait)
		case "move_relative":
			return g.MoveRelative(ctx, msg.Azimuth, msg.Elevation, msg.Wait)
		case "steer":
			return g.Steer(ctx, msg.Azimuth, msg.Elevation, msg.Absolute, msg.Wait)
		case "home":
			return g.GoHome(ctx, msg.Wait)
		case "stop":
			g.Stop()
			return nil
		}
		return fmt.Errorf("unknown command %q", msg.Command)
	})
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	status, _ := s.Status()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		logrus.Print(err)
	}
}

func (s *Server) CommandHandler(w http.ResponseWriter, r *http.Request) {
	var msg Command
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&msg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Execute(r.Context(), msg); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	s.StatusHandler(w, r)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Println(err)
		return
	}
	defer conn.Close()

	// Read and process incoming messages
	go func() {
		defer cancel()
		for {
			var msg Command
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if err := s.Execute(ctx, msg); err != nil {
				logrus.Warnf("%v: %s: %v", r.RemoteAddr, msg.Command, err)
			}
		}
	}()

	limiter := rate.NewLimiter(statusRate, 1)
	for {
		status, changed := s.Status()
		data, err := json.Marshal(status)
		if err != nil {
			logrus.Print(err)
			return
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logrus.Debugf("%v: %v", r.RemoteAddr, err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-changed:
		}
		if err := limiter.Wait(ctx); err != nil {
			return
		}
	}
}
