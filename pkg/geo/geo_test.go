package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceKm(t *testing.T) {
	t.Run("distance to self is zero", func(t *testing.T) {
		p := Point{Latitude: 19.0760, Longitude: 72.8777}
		assert.Equal(t, 0.0, DistanceKm(p, p))
	})

	t.Run("distance is symmetric", func(t *testing.T) {
		a := Point{Latitude: 19.0760, Longitude: 72.8777}
		b := Point{Latitude: 19.0810, Longitude: 72.8827}
		assert.InDelta(t, DistanceKm(a, b), DistanceKm(b, a), 1e-12)
	})

	t.Run("known distance", func(t *testing.T) {
		// Mumbai CST to Mumbai Central, roughly 4.6 km apart.
		a := Point{Latitude: 18.9398, Longitude: 72.8355}
		b := Point{Latitude: 18.9690, Longitude: 72.8205}
		d := DistanceKm(a, b)
		assert.Greater(t, d, 3.0)
		assert.Less(t, d, 5.0)
	})

	t.Run("short hop stays under corridor radius", func(t *testing.T) {
		a := Point{Latitude: 19.0760, Longitude: 72.8777}
		b := Point{Latitude: 19.0770, Longitude: 72.8787}
		assert.Less(t, DistanceKm(a, b), 0.5)
	})
}

func TestMidpoint(t *testing.T) {
	a := Point{Latitude: 19.0, Longitude: 72.0}
	b := Point{Latitude: 20.0, Longitude: 73.0}
	m := Midpoint(a, b)
	assert.Equal(t, 19.5, m.Latitude)
	assert.Equal(t, 72.5, m.Longitude)
}
