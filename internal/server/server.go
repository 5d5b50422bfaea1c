package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fixtrack/fixtrack/internal/audit"
	auditdomain "github.com/fixtrack/fixtrack/internal/audit/domain"
	"github.com/fixtrack/fixtrack/internal/authorization"
	"github.com/fixtrack/fixtrack/internal/config"
	"github.com/fixtrack/fixtrack/internal/identity"
	"github.com/fixtrack/fixtrack/internal/observability"
	obsmiddleware "github.com/fixtrack/fixtrack/internal/observability/logger"
	obstracing "github.com/fixtrack/fixtrack/internal/observability/tracing"
	"github.com/fixtrack/fixtrack/internal/ticket"
	ticketdomain "github.com/fixtrack/fixtrack/internal/ticket/domain"
	"github.com/fixtrack/fixtrack/internal/timeentry"
	timeentrydomain "github.com/fixtrack/fixtrack/internal/timeentry/domain"
	"github.com/fixtrack/fixtrack/internal/timer"
	timerdomain "github.com/fixtrack/fixtrack/internal/timer/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	ticket.Module,
	timer.Module,
	timeentry.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug: obsCfg.Debug(),
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	genID        *snowflake.Node
	authzSvc     authorization.Service
	auditSvc     auditdomain.Service
	timerSvc     timerdomain.Service
	timeEntrySvc timeentrydomain.Service
	ticketRepo   ticketdomain.Repository
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	GenID        *snowflake.Node
	AuthzSvc     authorization.Service
	AuditSvc     auditdomain.Service
	TimerSvc     timerdomain.Service
	TimeEntrySvc timeentrydomain.Service
	TicketRepo   ticketdomain.Repository
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		genID:        p.GenID,
		authzSvc:     p.AuthzSvc,
		auditSvc:     p.AuditSvc,
		timerSvc:     p.TimerSvc,
		timeEntrySvc: p.TimeEntrySvc,
		ticketRepo:   p.TicketRepo,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(identity.Middleware(s.cfg))

	// -------- Timers --------
	api.POST("/tickets/:id/timer/start", s.StartTimer)
	api.POST("/tickets/:id/timer/pause", s.PauseTimer)
	api.POST("/tickets/:id/timer/resume", s.ResumeTimer)
	api.POST("/tickets/:id/timer/stop", s.StopTimer)
	api.POST("/tickets/:id/timer/clear", s.ClearTimer)
	api.GET("/tickets/:id/timer", s.GetTicketTimer)
	api.GET("/timers/me", s.GetMyTimer)
	api.GET("/timers", s.ListActiveTimers)

	// -------- Admin overrides --------
	admin := api.Group("/admin")
	admin.POST("/tickets/:id/timer/start", s.AdminStartTimer)
	admin.POST("/tickets/:id/timer/pause", s.AdminPauseTimer)
	admin.POST("/tickets/:id/timer/resume", s.AdminResumeTimer)
	admin.POST("/tickets/:id/timer/stop", s.AdminStopTimer)
	admin.POST("/tickets/:id/timer/reset", s.ResetTimer)

	// -------- Time entries --------
	api.GET("/tickets/:id/time-entries", s.ListTicketTimeEntries)
	api.GET("/time-entries", s.ListTimeEntries)
	api.GET("/time-entries/:id", s.GetTimeEntry)
	api.DELETE("/time-entries/:id", s.DeleteTimeEntry)

	// -------- Audit trail --------
	api.GET("/audit-logs", s.ListAuditLogs)
}
