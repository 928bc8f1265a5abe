// Command gimbal_logger records gimbald status updates in InfluxDB.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/sirupsen/logrus"

	"github.com/w1xm/galil_gimbal/config"
)

var (
	configFile = flag.String("config", config.DefaultFile, "configuration file")
	address    = flag.String("address", "ws://localhost:8502/api/ws", "gimbald status websocket")
)

const reconnectDelay = 1 * time.Second

func main() {
	flag.Parse()
	cfg, err := config.Load(*configFile)
	if err != nil {
		logrus.Fatal(err)
	}
	if err := cfg.SetupLogging(); err != nil {
		logrus.Fatal(err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create client
	client := influxdb2.NewClient(cfg.Influx.Server, cfg.Influx.Token)
	defer client.Close()
	// Get non-blocking write client
	writeApi := client.WriteApi(cfg.Influx.Org, cfg.Influx.Bucket)
	defer writeApi.Close()
	// Get errors channel
	errorsCh := writeApi.Errors()
	// Create go proc for reading and logging errors
	go func() {
		for err := range errorsCh {
			logrus.Warnf("write error: %v", err)
		}
	}()

	b := backoff.WithContext(backoff.NewConstantBackOff(reconnectDelay), ctx)
	backoff.RetryNotify(func() error {
		return logData(ctx, writeApi)
	}, b, func(err error, next time.Duration) {
		logrus.Warnf("%v; reconnecting in %v", err, next)
	})
}

func flattenStatus(fields map[string]interface{}, status interface{}, prefix string) {
	switch status := status.(type) {
	case map[string]interface{}:
		for k, v := range status {
			flattenStatus(fields, v, prefix+"."+k)
		}
	case []interface{}:
		for k, v := range status {
			flattenStatus(fields, v, fmt.Sprintf("%s.%d", prefix, k))
		}
	default:
		fields[prefix[1:]] = status
	}
}

// logData copies status messages into InfluxDB until the socket fails or
// ctx is done.
func logData(ctx context.Context, writeApi api.WriteApi) error {
	defer writeApi.Flush()
	var dialer websocket.Dialer
	conn, _, err := dialer.DialContext(ctx, *address, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	logrus.Infof("logging %s", *address)
	for {
		var status interface{}
		if err := conn.ReadJSON(&status); err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		fields := make(map[string]interface{})
		flattenStatus(fields, status, "")

		p := influxdb2.NewPoint("gimbal.status",
			nil,
			fields,
			time.Now(),
		)
		// write asynchronously
		writeApi.WritePoint(p)
	}
}
