package runner

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("runner",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(StartRunner),
)

// StartRunner runs the poll loop for the lifetime of the app. A loop that
// ends with an error shuts the app down with a non-zero exit code.
func StartRunner(lc fx.Lifecycle, shutdowner fx.Shutdowner, log *zap.Logger, r *Runner) {
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			done = make(chan struct{})

			go func() {
				defer close(done)
				if err := r.RunForever(ctx); err != nil {
					log.Error("poll loop failed", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
