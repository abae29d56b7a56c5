// Command urbanflow runs the traffic-signal coordination engine: the
// periodic simulation loops, the live event hub, and the HTTP/websocket
// control surface, in one process.
package main

import (
	"context"
	"flag"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/terminal-bench/urbanflow/internal/auth"
	"github.com/terminal-bench/urbanflow/internal/config"
	"github.com/terminal-bench/urbanflow/internal/corridor"
	"github.com/terminal-bench/urbanflow/internal/gateway"
	"github.com/terminal-bench/urbanflow/internal/hub"
	"github.com/terminal-bench/urbanflow/internal/realtime"
	"github.com/terminal-bench/urbanflow/internal/scheduler"
	"github.com/terminal-bench/urbanflow/internal/signalctl"
	"github.com/terminal-bench/urbanflow/internal/store"
	"github.com/terminal-bench/urbanflow/internal/telemetry"
	"github.com/terminal-bench/urbanflow/internal/trafficgen"
	"github.com/terminal-bench/urbanflow/pkg/messaging"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	log := logrus.WithField("module", "main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("open store")
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		log.WithError(err).Fatal("migrate store")
	}

	// Optional side pipes. The engine runs without any of them.
	var bridge *messaging.Client
	if cfg.NATSURL != "" {
		bridge, err = messaging.NewClient(messaging.Config{
			URL:            cfg.NATSURL,
			Name:           "urbanflow",
			ReconnectWait:  time.Second,
			MaxReconnects:  60,
			ConnectTimeout: 10 * time.Second,
		})
		if err != nil {
			log.WithError(err).Warn("nats unavailable, event bridge disabled")
			bridge = nil
		} else {
			defer bridge.Close()
		}
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var weather realtime.WeatherProvider = realtime.NewSimulatedWeather(rng)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		weather = realtime.NewCachedWeather(weather, rdb, time.Minute)
	}

	var sink trafficgen.MeasurementSink
	if influx := telemetry.NewInflux(cfg.Influx); influx != nil {
		defer influx.Close()
		sink = influx
	}

	h := hub.New(bridge)
	rt := realtime.NewService(weather, time.Now)
	ctl := signalctl.NewController(st, h, cfg.PhaseAdvanceChance, rng)
	gen := trafficgen.NewGenerator(st, rt, h, sink, rng)
	corridors := corridor.NewManager(st, ctl, h, time.Now)
	authSvc := auth.NewService(st, cfg.JWTSecret, cfg.TokenExpiry.Std())
	gw := gateway.New(st, authSvc, corridors, rt, h)

	sup := scheduler.New()
	sup.Add("traffic_cycle", cfg.TrafficInterval.Std(), gen.RunCycle)
	sup.Add("phase_check", cfg.PhaseInterval.Std(), ctl.RunPhaseCheck)
	sup.Add("congestion_broadcast", cfg.CongestionInterval.Std(), func(ctx context.Context) error {
		h.Publish(hub.EventRoadCongestion, rt.Congestion(ctx))
		return nil
	})

	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("gateway listening")
		if err := gw.Start(cfg.ListenAddr); err != nil {
			log.WithError(err).Error("gateway failed")
			stop()
		}
	}()

	if err := sup.Run(ctx); err != nil {
		log.WithError(err).Error("supervisor exited")
	}

	// Shutdown order: stop accepting requests, then drop subscribers.
	// The store closes last so in-flight handlers can finish.
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gw.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("gateway shutdown")
	}
	h.CloseAll()
}
