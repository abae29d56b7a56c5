package gateway

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/terminal-bench/urbanflow/internal/auth"
	"github.com/terminal-bench/urbanflow/internal/corridor"
	"github.com/terminal-bench/urbanflow/internal/hub"
	"github.com/terminal-bench/urbanflow/internal/model"
	"github.com/terminal-bench/urbanflow/internal/store"
	"github.com/terminal-bench/urbanflow/pkg/geo"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (g *Gateway) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, user, err := g.auth.Login(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err != nil {
		log.WithError(err).Error("login failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// listSignals returns signals visible to the caller. Operators bound to a
// zone only see that zone; everyone else may filter with ?zone_id=.
func (g *Gateway) listSignals(c *gin.Context) {
	claims := mustClaims(c)

	zoneID := claims.ZoneID
	if zoneID == nil {
		if raw := c.Query("zone_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid zone_id"})
				return
			}
			zoneID = &id
		}
	}

	signals, err := g.store.ListSignals(c.Request.Context(), zoneID)
	if err != nil {
		log.WithError(err).Error("list signals failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals, "count": len(signals)})
}

func (g *Gateway) getSignal(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signal id"})
		return
	}

	sig, err := g.store.GetSignal(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "signal not found"})
		return
	}
	if err != nil {
		log.WithError(err).Error("get signal failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, sig)
}

// updateSignalRequest carries a partial update. Absent fields keep their
// current value.
type updateSignalRequest struct {
	Status     *string `json:"status"`
	Phase      *string `json:"current_phase"`
	Mode       *string `json:"mode"`
	GreenTime  *int    `json:"green_time"`
	YellowTime *int    `json:"yellow_time"`
	RedTime    *int    `json:"red_time"`
}

func (g *Gateway) updateSignal(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signal id"})
		return
	}

	var req updateSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sig, err := g.store.GetSignal(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "signal not found"})
		return
	}
	if err != nil {
		log.WithError(err).Error("get signal failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if err := applySignalUpdate(&sig, req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := g.store.UpdateSignal(c.Request.Context(), sig); err != nil {
		log.WithError(err).Error("update signal failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	g.hub.Publish(hub.EventSignalUpdate, map[string]any{
		"signal_id":         sig.ID,
		"signal_id_display": sig.Code,
		"phase":             sig.CurrentPhase,
		"status":            sig.Status,
	})
	c.JSON(http.StatusOK, sig)
}

func applySignalUpdate(sig *model.Signal, req updateSignalRequest) error {
	if req.Status != nil {
		status, err := model.ParseSignalStatus(*req.Status)
		if err != nil {
			return err
		}
		sig.Status = status
	}
	if req.Phase != nil {
		phase, err := model.ParseSignalPhase(*req.Phase)
		if err != nil {
			return err
		}
		sig.CurrentPhase = phase
	}
	if req.Mode != nil {
		mode, err := model.ParseControlMode(*req.Mode)
		if err != nil {
			return err
		}
		sig.Mode = mode
	}
	for _, t := range []struct {
		value *int
		dst   *int
	}{
		{req.GreenTime, &sig.GreenTime},
		{req.YellowTime, &sig.YellowTime},
		{req.RedTime, &sig.RedTime},
	} {
		if t.value == nil {
			continue
		}
		if *t.value <= 0 {
			return errors.New("signal timings must be positive seconds")
		}
		*t.dst = *t.value
	}
	return nil
}

func (g *Gateway) listZones(c *gin.Context) {
	zones, err := g.store.ListZones(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("list zones failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"zones": zones, "count": len(zones)})
}

const (
	defaultHistoryWindow = time.Hour
	maxHistoryRows       = 500
)

// trafficHistory returns recent measurements, newest first. Optional
// ?signal_id= (repeatable) narrows to a signal set, ?hours= widens the
// window.
func (g *Gateway) trafficHistory(c *gin.Context) {
	var signalIDs []uuid.UUID
	for _, raw := range c.QueryArray("signal_id") {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signal_id"})
			return
		}
		signalIDs = append(signalIDs, id)
	}

	window := defaultHistoryWindow
	if raw := c.Query("hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hours"})
			return
		}
		window = time.Duration(hours) * time.Hour
	}

	now := time.Now().UTC()
	logs, err := g.store.ListTrafficLogs(c.Request.Context(), signalIDs, now.Add(-window), now, maxHistoryRows)
	if err != nil {
		log.WithError(err).Error("list traffic logs failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}

type clearSignalsRequest struct {
	StartLatitude  float64 `json:"start_latitude"`
	StartLongitude float64 `json:"start_longitude"`
	EndLatitude    float64 `json:"end_latitude"`
	EndLongitude   float64 `json:"end_longitude"`
}

func (g *Gateway) clearSignals(c *gin.Context) {
	var req clearSignalsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cleared, err := g.corridors.ClearSignals(c.Request.Context(),
		geo.Point{Latitude: req.StartLatitude, Longitude: req.StartLongitude},
		geo.Point{Latitude: req.EndLatitude, Longitude: req.EndLongitude},
	)
	if err != nil {
		log.WithError(err).Error("clear signals failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals_cleared": cleared, "count": len(cleared)})
}

type createCorridorRequest struct {
	Name           string  `json:"name"`
	StartLatitude  float64 `json:"start_latitude"`
	StartLongitude float64 `json:"start_longitude"`
	EndLatitude    float64 `json:"end_latitude"`
	EndLongitude   float64 `json:"end_longitude"`
	VehicleType    string  `json:"vehicle_type" binding:"required"`
	Priority       int     `json:"priority"`
	ClearSignals   *bool   `json:"clear_signals"`
}

func (g *Gateway) createCorridor(c *gin.Context) {
	var req createCorridorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Priority <= 0 {
		req.Priority = 1
	}
	clear := true
	if req.ClearSignals != nil {
		clear = *req.ClearSignals
	}

	claims := mustClaims(c)
	created, err := g.corridors.Create(c.Request.Context(), corridor.CreateRequest{
		Name:           req.Name,
		StartLatitude:  req.StartLatitude,
		StartLongitude: req.StartLongitude,
		EndLatitude:    req.EndLatitude,
		EndLongitude:   req.EndLongitude,
		VehicleType:    req.VehicleType,
		Priority:       req.Priority,
		ClearSignals:   clear,
	}, claims.UserID)
	if err != nil {
		log.WithError(err).Error("create corridor failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (g *Gateway) listActiveCorridors(c *gin.Context) {
	active, err := g.corridors.ListActive(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("list corridors failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"corridors": active, "count": len(active)})
}

func (g *Gateway) deactivateCorridor(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid corridor id"})
		return
	}

	restored, err := g.corridors.Deactivate(c.Request.Context(), id)
	if errors.Is(err, corridor.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "corridor not found"})
		return
	}
	if err != nil {
		log.WithError(err).Error("deactivate corridor failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals_restored": restored, "count": len(restored)})
}

func (g *Gateway) trafficPattern(c *gin.Context) {
	c.JSON(http.StatusOK, g.realtime.Pattern())
}

func (g *Gateway) weather(c *gin.Context) {
	c.JSON(http.StatusOK, g.realtime.Weather(c.Request.Context()))
}

func (g *Gateway) roadCongestion(c *gin.Context) {
	c.JSON(http.StatusOK, g.realtime.Congestion(c.Request.Context()))
}
