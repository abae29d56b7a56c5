package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role is the access level of an authenticated user.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleOperator   Role = "operator"
	RoleViewer     Role = "viewer"
)

// ParseRole normalizes a wire-format role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleSuperAdmin, RoleOperator, RoleViewer:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// CanControl reports whether the role may mutate signals or corridors.
func (r Role) CanControl() bool {
	return r == RoleSuperAdmin || r == RoleOperator
}

// SignalStatus is a signal's operational status.
type SignalStatus string

const (
	StatusActive      SignalStatus = "active"
	StatusInactive    SignalStatus = "inactive"
	StatusMaintenance SignalStatus = "maintenance"
)

// ParseSignalStatus normalizes a wire-format status string.
func ParseSignalStatus(s string) (SignalStatus, error) {
	switch SignalStatus(s) {
	case StatusActive, StatusInactive, StatusMaintenance:
		return SignalStatus(s), nil
	}
	return "", fmt.Errorf("unknown signal status %q", s)
}

// SignalPhase is the currently favored traffic direction.
type SignalPhase string

const (
	PhaseNorth SignalPhase = "north"
	PhaseSouth SignalPhase = "south"
	PhaseEast  SignalPhase = "east"
	PhaseWest  SignalPhase = "west"
)

// ParseSignalPhase normalizes a wire-format phase string.
func ParseSignalPhase(s string) (SignalPhase, error) {
	switch SignalPhase(s) {
	case PhaseNorth, PhaseSouth, PhaseEast, PhaseWest:
		return SignalPhase(s), nil
	}
	return "", fmt.Errorf("unknown signal phase %q", s)
}

// Next returns the next phase in the fixed cycle, wrapping after west.
func (p SignalPhase) Next() SignalPhase {
	switch p {
	case PhaseNorth:
		return PhaseSouth
	case PhaseSouth:
		return PhaseEast
	case PhaseEast:
		return PhaseWest
	default:
		return PhaseNorth
	}
}

// ControlMode says who governs a signal's phase.
type ControlMode string

const (
	ModeAuto     ControlMode = "auto"
	ModeSemiAuto ControlMode = "semi_auto"
	ModeManual   ControlMode = "manual"
)

// ParseControlMode normalizes a wire-format mode string.
func ParseControlMode(s string) (ControlMode, error) {
	switch ControlMode(s) {
	case ModeAuto, ModeSemiAuto, ModeManual:
		return ControlMode(s), nil
	}
	return "", fmt.Errorf("unknown control mode %q", s)
}

// Default signal timings in seconds.
const (
	DefaultGreenTime  = 30
	DefaultYellowTime = 5
	DefaultRedTime    = 30
)

// Signal is a controlled intersection with a current phase and timing plan.
type Signal struct {
	ID           uuid.UUID    `json:"id"`
	Code         string       `json:"signal_id"`
	ZoneID       uuid.UUID    `json:"zone_id"`
	Latitude     float64      `json:"latitude"`
	Longitude    float64      `json:"longitude"`
	Status       SignalStatus `json:"status"`
	CurrentPhase SignalPhase  `json:"current_phase"`
	GreenTime    int          `json:"green_time"`
	YellowTime   int          `json:"yellow_time"`
	RedTime      int          `json:"red_time"`
	Mode         ControlMode  `json:"mode"`
	CreatedAt    time.Time    `json:"created_at"`
}

// TrafficLog is an immutable measurement snapshot for one signal.
type TrafficLog struct {
	ID              uuid.UUID `json:"id"`
	SignalID        uuid.UUID `json:"signal_id"`
	VehicleCount    int       `json:"vehicle_count"`
	PedestrianCount int       `json:"pedestrian_count"`
	QueueLength     int       `json:"queue_length"`
	Density         float64   `json:"density"`
	Timestamp       time.Time `json:"timestamp"`
}

// Zone is a geographic grouping of signals.
type Zone struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	City      string    `json:"city"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	CreatedAt time.Time `json:"created_at"`
}

// Corridor is a temporary emergency override spanning a set of signals.
// While Active, every signal in ClearedSignalIDs is held in manual mode
// with an extended green phase.
type Corridor struct {
	ID               uuid.UUID   `json:"id"`
	Name             string      `json:"name"`
	StartLatitude    float64     `json:"start_latitude"`
	StartLongitude   float64     `json:"start_longitude"`
	EndLatitude      float64     `json:"end_latitude"`
	EndLongitude     float64     `json:"end_longitude"`
	VehicleType      string      `json:"vehicle_type"`
	Priority         int         `json:"priority"`
	Active           bool        `json:"active"`
	CreatedAt        time.Time   `json:"created_at"`
	EstimatedArrival time.Time   `json:"estimated_arrival"`
	ClearedSignalIDs []uuid.UUID `json:"signals_cleared"`
	CreatedBy        uuid.UUID   `json:"created_by"`
}

// User is the minimum identity record the core needs from the auth layer.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Name         string     `json:"name"`
	Role         Role       `json:"role"`
	ZoneID       *uuid.UUID `json:"zone_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
