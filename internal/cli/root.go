// Package cli contains the command line interface of the OfficeChat server.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Tyrowin/officechat/internal/config"
	"github.com/Tyrowin/officechat/internal/logging"
	"github.com/Tyrowin/officechat/internal/store"
)

// env is the state shared by every command once the root has loaded the
// configuration.
type env struct {
	configFile string
	cfg        config.Config
	logger     *zap.Logger
}

// NewRootCmd builds the command tree. Running it without a subcommand starts
// the server.
func NewRootCmd() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:           "officechat",
		Short:         "Real-time chat and collaborative file editing for office networks",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if e.logger != nil {
				_ = e.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.serve(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&e.configFile, "config", config.DefaultConfigFile(), "config file")

	root.AddCommand(
		newServeCmd(e),
		newMigrateCmd(e),
		newCreateAdminCmd(e),
		newApproveCmd(e),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "officechat:", err)
		os.Exit(1)
	}
}

func (e *env) load() error {
	cfg, err := config.Load(viper.New(), e.configFile)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	e.cfg = cfg
	e.logger = logger
	logger.Debug("configuration loaded", zap.String("file", e.configFile))
	return nil
}

func (e *env) openStore(ctx context.Context) (*store.SQLStore, error) {
	st, err := store.Open(ctx, e.cfg.Database.Driver, e.cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx, e.logger); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}
