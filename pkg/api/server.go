// Package api provides the minimal admin HTTP surface (A6): health,
// metrics, a debug/vars snapshot, the Stream Manager's websocket endpoint,
// and manual job submission for operators. Every other consumer-facing
// concern named in spec.md's out-of-scope list stays out of this package.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campusgraph/coursesync/pkg/db"
	"github.com/campusgraph/coursesync/pkg/metrics"
	"github.com/campusgraph/coursesync/pkg/model"
	"github.com/campusgraph/coursesync/pkg/queue"
	"github.com/campusgraph/coursesync/pkg/scheduler"
	"github.com/campusgraph/coursesync/pkg/stream"
	"github.com/campusgraph/coursesync/pkg/version"
	"github.com/campusgraph/coursesync/pkg/worker"
)

// Server is the admin HTTP server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server

	pool      *pgxpool.Pool
	queue     *queue.Queue
	workers   *worker.Pool
	scheduler *scheduler.Scheduler
	streamMgr *stream.Manager
}

// New constructs an admin server with all routes registered.
func New(pool *pgxpool.Pool, q *queue.Queue, workers *worker.Pool, sched *scheduler.Scheduler, streamMgr *stream.Manager) *Server {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery())

	s := &Server{
		engine:    e,
		pool:      pool,
		queue:     q,
		workers:   workers,
		scheduler: sched,
		streamMgr: streamMgr,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.healthHandler)
	s.engine.GET("/debug/vars", s.debugVarsHandler)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	admin := s.engine.Group("/admin")
	admin.GET("/stream", s.streamHandler)
	admin.POST("/jobs", s.submitJobHandler)
}

// Start serves on addr; blocks until Shutdown is called or the listener
// fails.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// healthHandler reports DB connectivity, worker pool size, and the
// scheduler's last completed cycle.
func (s *Server) healthHandler(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := db.Health(reqCtx, s.pool)
	status := http.StatusOK
	statusText := "healthy"
	if err != nil {
		status = http.StatusServiceUnavailable
		statusText = "unhealthy"
	}

	resp := HealthResponse{
		Status:   statusText,
		Version:  version.Full(),
		Database: dbHealth,
	}
	if s.workers != nil {
		resp.WorkerPoolSize = s.workers.Size()
	}
	if s.scheduler != nil {
		if last := s.scheduler.LastCycleAt(); !last.IsZero() {
			resp.SchedulerLastCycle = &last
		}
	}
	c.JSON(status, resp)
}

// debugVarsHandler reports a small snapshot of live process state, in the
// spirit of net/http/pprof's /debug/vars.
func (s *Server) debugVarsHandler(c *gin.Context) {
	resp := DebugVarsResponse{Version: version.Full()}
	if s.pool != nil {
		stat := s.pool.Stat()
		resp.DBTotalConns = stat.TotalConns()
		resp.DBAcquiredConns = stat.AcquiredConns()
	}
	if s.streamMgr != nil {
		resp.StreamConnections = s.streamMgr.ActiveConnections()
	}
	c.JSON(http.StatusOK, resp)
}

// streamHandler upgrades to a websocket and hands it to the Stream
// Manager, parsing {since,fields,subjects,term,limit} from the query
// string.
func (s *Server) streamHandler(c *gin.Context) {
	filter := parseStreamFilter(c)

	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "websocket upgrade failed"})
		return
	}
	s.streamMgr.HandleConnection(c.Request.Context(), conn, filter)
}

// submitJobHandler validates and enqueues a single manual subject scrape
// job, for operator-triggered re-runs.
func (s *Server) submitJobHandler(c *gin.Context) {
	var req SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	payload, err := queue.EncodeSubjectPayload(model.SubjectJobPayload{Subject: req.Subject, Term: req.Term})
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "encoding job payload failed"})
		return
	}

	priority := model.PriorityHigh
	if err := s.queue.BatchInsert(c.Request.Context(), model.TargetTypeSubject, [][]byte{payload}, priority, 5); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "enqueue failed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "subject": req.Subject, "term": req.Term})
}
