// Command gimbald serves a gimbal over HTTP, a websocket and the Hamlib
// rotctld protocol.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/w1xm/galil_gimbal/config"
	"github.com/w1xm/galil_gimbal/internal/session"
)

var (
	configFile = flag.String("config", config.DefaultFile, "configuration file")
	staticDir  = flag.String("static_dir", "static", "directory containing static files")
	connection = flag.String("connection", "", "controller descriptor, overriding the configuration")
	simulate   = flag.Bool("simulate", false, "attach to a simulated controller")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		logrus.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	if *connection != "" {
		cfg.Connection = *connection
	}
	if *simulate {
		cfg.Simulate = true
	}
	if err := cfg.SetupLogging(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := session.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer sess.Close()
	s := NewServer(sess.Gimbal)

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.StatusHandler).Methods(http.MethodGet)
	api.HandleFunc("/command", s.CommandHandler).Methods(http.MethodPost)
	api.HandleFunc("/ws", s.StatusSocketHandler)
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(*staticDir)))
	srv := &http.Server{
		Handler:      r,
		Addr:         cfg.Listen.HTTP,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	if cfg.Listen.Rotctld != "" {
		if err := s.ListenRotctld(ctx, cfg.Listen.Rotctld); err != nil {
			return err
		}
	}
	g.Go(func() error {
		logrus.Infof("listening on %s", cfg.Listen.HTTP)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logrus.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
