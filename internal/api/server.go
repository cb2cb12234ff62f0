// Package api exposes the engine's external HTTP surface: a health check,
// a stimulus injection endpoint, a JSON metrics snapshot, and a websocket
// broadcast of the typed event stream. The gin.Default + cors.DefaultConfig
// setup (routes registered from one function, CORS wide open) and the
// websocket.Upgrader + per-connection read/write loop pattern follow the
// same shape as other dashboard-facing Go services: the core only ever
// emits its typed event stream outward; this package is purely a thin
// transport over it.
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/EchoCog/echocore/internal/engine"
	"github.com/EchoCog/echocore/internal/events"
)

// Server owns the gin router, the websocket broadcast hub, and a registry
// of every agent Engine reachable from this process.
type Server struct {
	router   *gin.Engine
	upgrader websocket.Upgrader
	hub      *hub
	log      *zap.SugaredLogger

	mu      sync.RWMutex
	engines map[string]*engine.Engine
}

// New builds a Server with CORS wide open, suited to a dashboard client
// served from a different origin than the API itself.
func New(log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowHeaders = []string{"*"}
	corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	r.Use(cors.New(corsCfg))

	s := &Server{
		router: r,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		hub:     newHub(),
		log:     log,
		engines: map[string]*engine.Engine{},
	}
	s.routes()
	return s
}

// RegisterEngine makes an agent's Engine reachable via /stimulus and /metrics.
func (s *Server) RegisterEngine(e *engine.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engines[e.AgentID()] = e
}

// Subscribe wires an emitter's event stream into the websocket broadcast hub.
func (s *Server) Subscribe(emitter *events.Emitter) {
	emitter.Subscribe(s.hub)
}

func (s *Server) routes() {
	s.router.GET("/healthz", s.handleHealthz)
	s.router.POST("/stimulus", s.handleStimulus)
	s.router.GET("/metrics", s.handleMetrics)
	s.router.GET("/events", s.handleEvents)
}

// Run starts the HTTP server, blocking until it exits.
func (s *Server) Run(addr string) error {
	s.log.Infow("starting api server", "addr", addr)
	return s.router.Run(addr)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now()})
}

type stimulusRequest struct {
	AgentID string  `json:"agent_id" binding:"required"`
	NodeID  string  `json:"node_id" binding:"required"`
	Amount  float64 `json:"amount" binding:"required"`
}

func (s *Server) handleStimulus(c *gin.Context) {
	var req stimulusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.RLock()
	e, ok := s.engines[req.AgentID]
	s.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown agent_id"})
		return
	}

	e.Stimulus(req.NodeID, req.Amount)
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

type agentMetrics struct {
	AgentID     string  `json:"agent_id"`
	FrameID     uint64  `json:"frame_id"`
	Rho         float64 `json:"rho"`
	SafetyState string  `json:"safety_state"`
	NodesActive int     `json:"nodes_active"`
	NodesTotal  int     `json:"nodes_total"`
}

func (s *Server) handleMetrics(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]agentMetrics, 0, len(s.engines))
	for id, e := range s.engines {
		active, total := e.ActivationCounts()
		out = append(out, agentMetrics{
			AgentID: id, FrameID: e.FrameID(), Rho: e.Rho(),
			SafetyState: e.SafetyState(), NodesActive: active, NodesTotal: total,
		})
	}
	c.JSON(http.StatusOK, gin.H{"agents": out, "timestamp": time.Now()})
}

func (s *Server) handleEvents(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade failed", "error", err)
		return
	}
	s.hub.serve(conn, s.log)
}
