package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Tyrowin/officechat/internal/app"
)

const stopTimeout = 30 * time.Second

func newServeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the OfficeChat server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.serve(cmd.Context())
		},
	}
}

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := e.openStore(cmd.Context())
			if err != nil {
				return err
			}
			e.logger.Info("database is up to date", zap.String("driver", e.cfg.Database.Driver))
			return st.Close()
		},
	}
}

// serve runs the service until SIGINT or SIGTERM.
func (e *env) serve(ctx context.Context) error {
	e.logger.Info("starting OfficeChat server",
		zap.String("port", e.cfg.Port),
		zap.Strings("allowed_origins", e.cfg.AllowedOrigins),
		zap.String("database", e.cfg.Database.Driver),
	)

	a := fx.New(app.Module(e.cfg, e.logger))
	startCtx, cancel := context.WithTimeout(ctx, fx.DefaultTimeout)
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	sig := <-a.Wait()
	e.logger.Info("stopping", zap.Any("signal", sig.Signal), zap.Int("exit_code", sig.ExitCode))

	stopCtx, cancelStop := context.WithTimeout(context.Background(), stopTimeout)
	defer cancelStop()
	if err := a.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	if sig.ExitCode != 0 {
		return fmt.Errorf("server exited with code %d", sig.ExitCode)
	}
	return nil
}
