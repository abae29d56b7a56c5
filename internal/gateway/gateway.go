// Package gateway is the HTTP and websocket control surface. It
// authenticates callers, normalizes wire input, and delegates to the
// signal, corridor, and realtime services.
package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/terminal-bench/urbanflow/internal/auth"
	"github.com/terminal-bench/urbanflow/internal/corridor"
	"github.com/terminal-bench/urbanflow/internal/hub"
	"github.com/terminal-bench/urbanflow/internal/model"
	"github.com/terminal-bench/urbanflow/internal/realtime"
)

var log = logrus.WithField("module", "gateway")

const claimsKey = "claims"

// Store is the slice of the state store the gateway needs directly.
// Everything else goes through the domain services.
type Store interface {
	ListSignals(ctx context.Context, zoneID *uuid.UUID) ([]model.Signal, error)
	GetSignal(ctx context.Context, id uuid.UUID) (model.Signal, error)
	UpdateSignal(ctx context.Context, sig model.Signal) error
	ListTrafficLogs(ctx context.Context, signalIDs []uuid.UUID, from, to time.Time, limit int) ([]model.TrafficLog, error)
	ListZones(ctx context.Context) ([]model.Zone, error)
}

// Gateway serves the control API.
type Gateway struct {
	router    *gin.Engine
	store     Store
	auth      *auth.Service
	corridors *corridor.Manager
	realtime  *realtime.Service
	hub       *hub.Hub
	upgrader  websocket.Upgrader

	server *http.Server
}

// New wires the routes and returns a gateway ready to Start.
func New(store Store, authSvc *auth.Service, corridors *corridor.Manager, rt *realtime.Service, h *hub.Hub) *Gateway {
	gin.SetMode(gin.ReleaseMode)

	g := &Gateway{
		router:    gin.New(),
		store:     store,
		auth:      authSvc,
		corridors: corridors,
		realtime:  rt,
		hub:       h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	g.router.Use(gin.Recovery())
	g.setupRoutes()
	return g
}

func (g *Gateway) setupRoutes() {
	g.router.GET("/health", g.health)

	v1 := g.router.Group("/api/v1")
	{
		v1.POST("/auth/login", g.login)

		v1.GET("/signals", g.authMiddleware(), g.listSignals)
		v1.GET("/signals/:id", g.authMiddleware(), g.getSignal)
		v1.PUT("/signals/:id", g.authMiddleware(), g.requireControl(), g.updateSignal)
		v1.POST("/signals/clear", g.authMiddleware(), g.requireControl(), g.clearSignals)
		v1.GET("/traffic/history", g.authMiddleware(), g.trafficHistory)
		v1.GET("/zones", g.authMiddleware(), g.listZones)

		v1.POST("/corridors", g.authMiddleware(), g.requireControl(), g.createCorridor)
		v1.GET("/corridors/active", g.authMiddleware(), g.listActiveCorridors)
		v1.POST("/corridors/:id/deactivate", g.authMiddleware(), g.requireControl(), g.deactivateCorridor)

		v1.GET("/realtime/traffic-pattern", g.authMiddleware(), g.trafficPattern)
		v1.GET("/realtime/weather", g.authMiddleware(), g.weather)
		v1.GET("/realtime/road-congestion", g.authMiddleware(), g.roadCongestion)

		v1.GET("/ws", g.handleWebSocket)
	}
}

// Start serves until the listener fails or Shutdown is called.
func (g *Gateway) Start(addr string) error {
	g.server = &http.Server{
		Addr:         addr,
		Handler:      g.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	err := g.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	return g.server.Shutdown(ctx)
}

// Handler exposes the router, used by tests.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

func (g *Gateway) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := g.auth.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// requireControl gates mutating routes to roles that may control signals.
func (g *Gateway) requireControl() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := mustClaims(c)
		if !claims.Role.CanControl() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			return
		}
		c.Next()
	}
}

func mustClaims(c *gin.Context) auth.Claims {
	return c.MustGet(claimsKey).(auth.Claims)
}

func (g *Gateway) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"subscribers": g.hub.Len(),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleWebSocket upgrades the connection and registers it with the hub.
// Websocket clients cannot set headers, so the token rides in the query.
func (g *Gateway) handleWebSocket(c *gin.Context) {
	claims, err := g.auth.Verify(c.Query("token"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	id := g.hub.Subscribe(hub.NewWSSink(conn))
	g.hub.SendTo(id, hub.EventConnected, map[string]any{
		"message":       "connected to live traffic stream",
		"subscriber_id": id,
		"user_id":       claims.UserID,
	})

	// Read loop only watches for the peer going away. Inbound frames
	// are discarded.
	go func() {
		defer g.hub.Unsubscribe(id)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
