// Package runner drives the finish/handle cycle against the rollup server.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/smallbiznis/subscription-coprocessor/internal/handler"
	obscontext "github.com/smallbiznis/subscription-coprocessor/internal/observability/context"
	"github.com/smallbiznis/subscription-coprocessor/internal/observability/logger"
	"github.com/smallbiznis/subscription-coprocessor/internal/observability/metrics"
	"github.com/smallbiznis/subscription-coprocessor/internal/rollup"
	"github.com/smallbiznis/subscription-coprocessor/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_config")

// Handler turns one rollup request into the status for the next finish call.
type Handler interface {
	Handle(ctx context.Context, req *rollup.Request) (rollup.Status, error)
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Client  rollup.Client
	Router  *handler.Router
	Config  Config                 `optional:"true"`
	Metrics *metrics.RunnerMetrics `optional:"true"`
}

type Runner struct {
	log     *zap.Logger
	cfg     Config
	client  rollup.Client
	handler Handler
	metrics *metrics.RunnerMetrics
}

func New(p Params) (*Runner, error) {
	if p.Router == nil {
		return nil, ErrInvalidConfig
	}
	return NewRunner(p.Log, p.Client, p.Router, p.Config, p.Metrics)
}

func NewRunner(log *zap.Logger, client rollup.Client, h Handler, cfg Config, m *metrics.RunnerMetrics) (*Runner, error) {
	if log == nil || client == nil || h == nil {
		return nil, ErrInvalidConfig
	}
	return &Runner{
		log:     log.Named("runner").With(zap.String("component", "runner")),
		cfg:     cfg.withDefaults(),
		client:  client,
		handler: h,
		metrics: m,
	}, nil
}

// RunForever asks the rollup server for work until ctx is cancelled. Requests
// are handled strictly one at a time and the outcome of each one is reported
// on the following finish call. Transport failures end the loop with an error;
// cancellation ends it with nil.
func (r *Runner) RunForever(ctx context.Context) error {
	status := rollup.StatusAccept
	idle := r.newIdleBackoff()

	r.log.Info("poll loop started",
		zap.Duration("idle_backoff", r.cfg.IdleBackoff),
		zap.Duration("idle_backoff_max", r.cfg.IdleBackoffMax),
	)

	for {
		if ctx.Err() != nil {
			r.log.Info("poll loop stopped")
			return nil
		}

		req, err := r.client.Finish(ctx, status)
		if err != nil {
			if ctx.Err() != nil {
				r.log.Info("poll loop stopped")
				return nil
			}
			return fmt.Errorf("finish: %w", err)
		}

		if req == nil {
			if err := r.waitIdle(ctx, idle); err != nil {
				r.log.Info("poll loop stopped")
				return nil
			}
			continue
		}
		if idle != nil {
			idle.Reset()
		}

		status, err = r.RunOnce(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				r.log.Info("poll loop stopped")
				return nil
			}
			return fmt.Errorf("handle %s: %w", req.RequestType, err)
		}
	}
}

// RunOnce handles a single request under its own correlation id.
func (r *Runner) RunOnce(parent context.Context, req *rollup.Request) (rollup.Status, error) {
	ctx, _ := correlation.EnsureCorrelationID(parent)
	ctx = obscontext.WithRequestType(ctx, req.RequestType)
	log := logger.WithContext(ctx, r.log)

	start := time.Now()
	status, err := r.handler.Handle(ctx, req)
	if err != nil {
		log.Error("request handling failed", zap.Error(err))
		return status, err
	}

	log.Debug("request handled",
		zap.String("status", string(status)),
		zap.Duration("duration", time.Since(start)),
	)
	return status, nil
}

func (r *Runner) newIdleBackoff() *backoff.ExponentialBackOff {
	if r.cfg.IdleBackoff <= 0 {
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.IdleBackoff
	b.MaxInterval = r.cfg.IdleBackoffMax
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

func (r *Runner) waitIdle(ctx context.Context, idle *backoff.ExponentialBackOff) error {
	if idle == nil || ctx.Err() != nil {
		return ctx.Err()
	}

	wait := idle.NextBackOff()
	if wait <= 0 {
		return ctx.Err()
	}
	r.metrics.ObserveIdleWait(wait)

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
