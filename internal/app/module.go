// Package app assembles the OfficeChat service with fx.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/Tyrowin/officechat/internal/auth"
	"github.com/Tyrowin/officechat/internal/collab"
	"github.com/Tyrowin/officechat/internal/config"
	"github.com/Tyrowin/officechat/internal/metrics"
	"github.com/Tyrowin/officechat/internal/presence"
	"github.com/Tyrowin/officechat/internal/server"
	"github.com/Tyrowin/officechat/internal/store"
)

// Module provides every component of the service and starts it with the fx
// lifecycle.
func Module(cfg config.Config, logger *zap.Logger) fx.Option {
	return fx.Options(
		fx.Supply(cfg, logger),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			fl := &fxevent.ZapLogger{Logger: l.Named("fx")}
			fl.UseLogLevel(zap.DebugLevel)
			return fl
		}),
		fx.Provide(
			newRegistry,
			newMetrics,
			newStore,
			newIdentity,
			newIssuer,
			newAuthenticator,
			presence.NewRegistry,
			newHub,
			newCoordinator,
			newGateway,
			newHTTPServer,
			newService,
		),
		fx.Invoke(func(lc fx.Lifecycle, s *Service) {
			lc.Append(fx.Hook{OnStart: s.start, OnStop: s.stop})
		}),
	)
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

// newStore opens the database and applies pending migrations. The Service
// closes it on stop.
func newStore(cfg config.Config, logger *zap.Logger) (*store.SQLStore, error) {
	ctx := context.Background()
	st, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx, logger); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func newIdentity(st *store.SQLStore, cfg config.Config) *store.CachedIdentity {
	return store.NewCachedIdentity(st, cfg.IdentityCache.Size, cfg.IdentityCache.TTL)
}

func newIssuer(cfg config.Config, logger *zap.Logger) (*auth.Issuer, error) {
	generated, err := cfg.EnsureSecret()
	if err != nil {
		return nil, fmt.Errorf("auth secret: %w", err)
	}
	if generated {
		logger.Warn("no auth secret configured; tokens will not survive a restart")
	}
	return auth.NewIssuer([]byte(cfg.Auth.Secret), cfg.Auth.TokenTTL), nil
}

func newAuthenticator(ident *store.CachedIdentity, tokens *auth.Issuer, logger *zap.Logger) *auth.Authenticator {
	return auth.NewAuthenticator(ident, tokens, logger)
}

func newHub(logger *zap.Logger, m *metrics.Metrics) *server.Hub {
	return server.NewHub(logger, m)
}

func newCoordinator(st *store.SQLStore, hub *server.Hub, cfg config.Config, logger *zap.Logger, m *metrics.Metrics) *collab.Coordinator {
	return collab.NewCoordinator(st, hub, collab.Options{
		Capacity:          cfg.Collab.EditorCapacity,
		ReconcileInterval: cfg.Collab.ReconcileInterval,
		Logger:            logger,
		Metrics:           m,
	})
}

type gatewayParams struct {
	fx.In

	Hub         *server.Hub
	Presence    *presence.Registry
	Coordinator *collab.Coordinator
	Store       *store.SQLStore
	Identity    *store.CachedIdentity
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
}

func newGateway(p gatewayParams) *server.Gateway {
	return server.NewGateway(server.GatewayDeps{
		Hub:         p.Hub,
		Presence:    p.Presence,
		Coordinator: p.Coordinator,
		Documents:   p.Store,
		Users:       p.Identity,
		Logger:      p.Logger,
		Metrics:     p.Metrics,
	})
}

type httpParams struct {
	fx.In

	Config   config.Config
	Gateway  *server.Gateway
	Hub      *server.Hub
	Auth     *auth.Authenticator
	Registry *prometheus.Registry
	Logger   *zap.Logger
}

func newHTTPServer(p httpParams) *http.Server {
	h := server.NewHandler(p.Gateway, p.Hub, p.Auth, p.Config, p.Registry, p.Logger)
	return server.CreateServer(p.Config.Port, server.SetupRoutes(h))
}
