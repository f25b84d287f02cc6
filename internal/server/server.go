package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/subscription-coprocessor/internal/config"
	"github.com/smallbiznis/subscription-coprocessor/internal/observability"
	obslogger "github.com/smallbiznis/subscription-coprocessor/internal/observability/logger"
	obstracing "github.com/smallbiznis/subscription-coprocessor/internal/observability/tracing"
	subscriptiondomain "github.com/smallbiznis/subscription-coprocessor/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(run),
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

type healthResponse struct {
	Status          string `json:"status"`
	Subscribers     int    `json:"subscribers"`
	TotalOperations uint64 `json:"total_operations"`
}

type EngineParams struct {
	fx.In

	ObsConfig observability.Config
	Log       *zap.Logger
	Service   subscriptiondomain.Service
}

// NewEngine builds the admin router: liveness with ledger counters and the
// prometheus scrape endpoint.
func NewEngine(p EngineParams) *gin.Engine {
	if !p.ObsConfig.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(p.Log))
	r.Use(obstracing.GinMiddleware())

	r.GET("/health", healthHandler(p.Service))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func healthHandler(svc subscriptiondomain.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		subscribers, err := svc.Count(ctx)
		if err != nil {
			unavailable(c, err)
			return
		}
		total, err := svc.TotalOperations(ctx)
		if err != nil {
			unavailable(c, err)
			return
		}

		c.JSON(http.StatusOK, healthResponse{
			Status:          "ok",
			Subscribers:     subscribers,
			TotalOperations: total,
		})
	}
}

func unavailable(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorResponse{
		Error: errorPayload{Type: "service_unavailable", Message: "ledger unavailable"},
	})
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, shutdowner fx.Shutdowner, r *gin.Engine) {
	if cfg.AdminAddr == "" {
		log.Info("admin server disabled")
		return
	}

	srv := &http.Server{
		Addr:              cfg.AdminAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("admin server listening", zap.String("addr", ln.Addr().String()))

			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("admin server failed", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
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
