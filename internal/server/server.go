package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/plinio-cardoso/financeiro/internal/config"
	"github.com/plinio-cardoso/financeiro/internal/observability"
	obsmiddleware "github.com/plinio-cardoso/financeiro/internal/observability/logger"
	obsmetrics "github.com/plinio-cardoso/financeiro/internal/observability/metrics"
	obstracing "github.com/plinio-cardoso/financeiro/internal/observability/tracing"
	recurrencedomain "github.com/plinio-cardoso/financeiro/internal/recurrence/domain"
	transactiondomain "github.com/plinio-cardoso/financeiro/internal/transaction/domain"
	userdomain "github.com/plinio-cardoso/financeiro/internal/user/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	log            *zap.Logger
	db             *gorm.DB
	genID          *snowflake.Node
	transactionSvc transactiondomain.Service
	recurrenceSvc  recurrencedomain.Service
	userRepo       userdomain.Repository
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Log            *zap.Logger
	DB             *gorm.DB
	GenID          *snowflake.Node
	TransactionSvc transactiondomain.Service
	RecurrenceSvc  recurrencedomain.Service
	UserRepo       userdomain.Repository
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		log:            p.Log.Named("http.server"),
		db:             p.DB,
		genID:          p.GenID,
		transactionSvc: p.TransactionSvc,
		recurrenceSvc:  p.RecurrenceSvc,
		userRepo:       p.UserRepo,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api", s.ResolveUser())

	transactions := api.Group("/transactions")
	transactions.POST("", s.CreateTransaction)
	transactions.GET("", s.ListTransactions)
	transactions.GET("/:id", s.GetTransaction)
	transactions.PATCH("/:id", s.UpdateTransaction)
	transactions.DELETE("/:id", s.DeleteTransaction)
	transactions.POST("/:id/pay", s.PayTransaction)
	transactions.POST("/:id/unpay", s.UnpayTransaction)

	recurrences := api.Group("/recurrences")
	recurrences.POST("", s.CreateRecurrence)
	recurrences.POST("/generate", s.GenerateAllRecurrences)
	recurrences.GET("", s.ListRecurrences)
	recurrences.GET("/:id", s.GetRecurrence)
	recurrences.PATCH("/:id", s.UpdateRecurrence)
	recurrences.DELETE("/:id", s.DeleteRecurrence)
	recurrences.POST("/:id/activate", s.ActivateRecurrence)
	recurrences.POST("/:id/deactivate", s.DeactivateRecurrence)
	recurrences.POST("/:id/generate", s.GenerateRecurrence)
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
