package realtime

import (
	"context"
	"math"
	"time"
)

// Service is the realtime-data collaborator handed to the generator and
// the gateway.
type Service struct {
	weather WeatherProvider
	now     func() time.Time
}

// NewService builds a Service around a weather provider. now may be nil,
// defaulting to time.Now.
func NewService(weather WeatherProvider, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{weather: weather, now: now}
}

// Pattern returns the current time-of-day traffic pattern.
func (s *Service) Pattern() TimePattern {
	return Pattern(s.now())
}

// Weather returns the current weather snapshot, degrading to the fixed
// fallback if the provider fails. Never returns an error.
func (s *Service) Weather(ctx context.Context) WeatherSnapshot {
	snap, err := s.weather.Weather(ctx)
	if err != nil {
		log.WithError(err).Warn("weather fetch failed, using fallback")
		return FallbackWeather()
	}
	return snap
}

// CongestionSnapshot is the derived road congestion level.
type CongestionSnapshot struct {
	Congestion  string          `json:"congestion"`
	Multiplier  float64         `json:"multiplier"`
	TimePattern TimePattern     `json:"time_pattern"`
	Weather     WeatherSnapshot `json:"weather"`
}

// Congestion combines the time pattern and weather into a congestion
// level: severe >= 1.5, high >= 1.2, medium >= 0.8, otherwise low.
func (s *Service) Congestion(ctx context.Context) CongestionSnapshot {
	pattern := s.Pattern()
	weather := s.Weather(ctx)
	return congestionFrom(pattern, weather)
}

func congestionFrom(pattern TimePattern, weather WeatherSnapshot) CongestionSnapshot {
	multiplier := pattern.Multiplier * weather.TrafficMultiplier

	var level string
	switch {
	case multiplier >= 1.5:
		level = "severe"
	case multiplier >= 1.2:
		level = "high"
	case multiplier >= 0.8:
		level = "medium"
	default:
		level = "low"
	}

	return CongestionSnapshot{
		Congestion:  level,
		Multiplier:  math.Round(multiplier*100) / 100,
		TimePattern: pattern,
		Weather:     weather,
	}
}
