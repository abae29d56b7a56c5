// Package telemetry mirrors committed traffic measurements into InfluxDB
// for dashboards and offline analytics. Writes are asynchronous and
// best-effort; the simulation never waits on, or fails because of, the
// time-series sink.
package telemetry

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sirupsen/logrus"

	"github.com/terminal-bench/urbanflow/internal/config"
	"github.com/terminal-bench/urbanflow/internal/trafficgen"
)

var log = logrus.WithField("module", "telemetry")

// Influx writes measurement batches to an InfluxDB bucket.
type Influx struct {
	client influxdb2.Client
	writer api.WriteAPI
}

// NewInflux connects the mirror. Returns nil when no URL is configured,
// which disables mirroring.
func NewInflux(cfg config.InfluxConfig) *Influx {
	if cfg.URL == "" {
		return nil
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	writer := client.WriteAPI(cfg.Org, cfg.Bucket)

	go func() {
		for err := range writer.Errors() {
			log.WithError(err).Warn("influx write failed")
		}
	}()

	return &Influx{client: client, writer: writer}
}

// Record queues one point per measurement. Non-blocking; the write API
// batches and retries internally.
func (i *Influx) Record(ctx context.Context, batch []trafficgen.Measurement, ts time.Time) {
	for _, m := range batch {
		point := influxdb2.NewPoint("traffic",
			map[string]string{
				"signal": m.SignalCode,
				"zone":   m.ZoneID.String(),
			},
			map[string]interface{}{
				"vehicle_count":    m.VehicleCount,
				"pedestrian_count": m.PedestrianCount,
				"queue_length":     m.QueueLength,
				"speed":            m.SpeedKmh,
				"density":          m.Density,
			},
			ts)
		i.writer.WritePoint(point)
	}
}

// Close flushes pending points and shuts the client down.
func (i *Influx) Close() {
	i.writer.Flush()
	i.client.Close()
}
