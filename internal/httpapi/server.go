// Package httpapi implements the HTTP facade described in spec §6: a
// thin gin layer over the Orchestrator and Job Bus, run by cmd/helixd.
// The core itself never depends on this package; helix (the CLI) can
// run the same Orchestrator in-process or talk to a running helixd over
// this API.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/helix-run/helix/internal/jobbus"
	"github.com/helix-run/helix/internal/orchestrator"
	"github.com/helix-run/helix/pkg/logging"
)

// Server wires the gin engine to an Orchestrator + Bus pair (spec §9:
// "factory returns a configured Orchestrator + Bus pair; tests
// instantiate their own").
type Server struct {
	engine       *gin.Engine
	orchestrator *orchestrator.Orchestrator
	bus          *jobbus.Bus
	log          *logging.Logger
}

// New builds a Server. orch and bus must share the same Bus instance
// the Orchestrator was constructed with, so events emitted during a run
// reach /stream subscribers.
func New(orch *orchestrator.Orchestrator, bus *jobbus.Bus, log *logging.Logger) *Server {
	if log == nil {
		log = logging.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware("helixd"))

	s := &Server{engine: engine, orchestrator: orch, bus: bus, log: log}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.engine.POST("/execute", s.handleExecute)
	s.engine.GET("/jobs", s.handleListJobs)
	s.engine.GET("/jobs/:id", s.handleGetJob)
	s.engine.DELETE("/jobs/:id", s.handleCancelJob)
	s.engine.GET("/stream/:id", s.handleStream)
}

// Handler returns the underlying http.Handler for use with http.Server
// or httptest.
func (s *Server) Handler() http.Handler { return s.engine }
