package realtime

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/terminal-bench/urbanflow/pkg/circuit"
)

var log = logrus.WithField("module", "realtime")

// WeatherCondition is a closed set of conditions affecting traffic.
type WeatherCondition string

const (
	WeatherClear  WeatherCondition = "clear"
	WeatherCloudy WeatherCondition = "cloudy"
	WeatherRainy  WeatherCondition = "rainy"
	WeatherFoggy  WeatherCondition = "foggy"
)

// trafficMultipliers maps each condition to its traffic impact.
var trafficMultipliers = map[WeatherCondition]float64{
	WeatherClear:  1.0,
	WeatherCloudy: 1.1,
	WeatherRainy:  1.4,
	WeatherFoggy:  1.3,
}

// WeatherSnapshot is the weather input the generator consumes.
type WeatherSnapshot struct {
	Condition         WeatherCondition `json:"condition"`
	TemperatureC      int              `json:"temperature"`
	Humidity          int              `json:"humidity"`
	TrafficMultiplier float64          `json:"traffic_multiplier"`
	Source            string           `json:"source"`
}

// FallbackWeather is returned whenever a provider fails.
func FallbackWeather() WeatherSnapshot {
	return WeatherSnapshot{
		Condition:         WeatherClear,
		TrafficMultiplier: 1.0,
		Source:            "fallback",
	}
}

// WeatherProvider fetches the current weather snapshot.
type WeatherProvider interface {
	Weather(ctx context.Context) (WeatherSnapshot, error)
}

// SimulatedWeather synthesizes plausible conditions. Stands in for a real
// weather API during development and demos.
type SimulatedWeather struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedWeather creates a provider seeded from rng.
func NewSimulatedWeather(rng *rand.Rand) *SimulatedWeather {
	return &SimulatedWeather{rng: rng}
}

func (w *SimulatedWeather) Weather(ctx context.Context) (WeatherSnapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	conditions := []WeatherCondition{WeatherClear, WeatherCloudy, WeatherRainy, WeatherFoggy}
	condition := conditions[w.rng.Intn(len(conditions))]

	return WeatherSnapshot{
		Condition:         condition,
		TemperatureC:      25 + w.rng.Intn(11),
		Humidity:          60 + w.rng.Intn(31),
		TrafficMultiplier: trafficMultipliers[condition],
		Source:            "simulated_weather",
	}, nil
}

const weatherCacheKey = "urbanflow:weather"

// CachedWeather decorates a provider with a shared redis cache so every
// consumer within the TTL window sees the same snapshot. Cache failures
// fall through to the inner provider; a breaker stops redis round trips
// entirely while the cache keeps failing.
type CachedWeather struct {
	inner   WeatherProvider
	rdb     *redis.Client
	ttl     time.Duration
	breaker *circuit.Breaker
}

// NewCachedWeather wraps inner with a redis cache.
func NewCachedWeather(inner WeatherProvider, rdb *redis.Client, ttl time.Duration) *CachedWeather {
	return &CachedWeather{
		inner:   inner,
		rdb:     rdb,
		ttl:     ttl,
		breaker: circuit.New(3, 30*time.Second),
	}
}

func (c *CachedWeather) Weather(ctx context.Context) (WeatherSnapshot, error) {
	var cached []byte
	err := c.breaker.Do(func() error {
		data, err := c.rdb.Get(ctx, weatherCacheKey).Bytes()
		if err == redis.Nil {
			return nil
		}
		cached = data
		return err
	})
	if err != nil && err != circuit.ErrOpen {
		log.WithError(err).Debug("weather cache read failed")
	}
	if len(cached) > 0 {
		var snap WeatherSnapshot
		if err := json.Unmarshal(cached, &snap); err == nil {
			return snap, nil
		}
	}

	snap, err := c.inner.Weather(ctx)
	if err != nil {
		return snap, err
	}

	if data, err := json.Marshal(snap); err == nil {
		err := c.breaker.Do(func() error {
			return c.rdb.Set(ctx, weatherCacheKey, data, c.ttl).Err()
		})
		if err != nil && err != circuit.ErrOpen {
			log.WithError(err).Debug("weather cache write failed")
		}
	}
	return snap, nil
}
