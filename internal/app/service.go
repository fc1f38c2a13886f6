package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/officechat/internal/auth"
	"github.com/Tyrowin/officechat/internal/collab"
	"github.com/Tyrowin/officechat/internal/config"
	"github.com/Tyrowin/officechat/internal/server"
	"github.com/Tyrowin/officechat/internal/store"
)

const shutdownTimeout = 10 * time.Second

// Service owns the running components and their start and stop order.
type Service struct {
	cfg        config.Config
	store      *store.SQLStore
	hub        *server.Hub
	coord      *collab.Coordinator
	http       *http.Server
	shutdowner fx.Shutdowner
	logger     *zap.Logger

	mu     sync.Mutex
	addr   net.Addr
	cancel context.CancelFunc
	group  *errgroup.Group
}

type serviceParams struct {
	fx.In

	Config      config.Config
	Store       *store.SQLStore
	Hub         *server.Hub
	Coordinator *collab.Coordinator
	HTTP        *http.Server
	Shutdowner  fx.Shutdowner
	Logger      *zap.Logger
}

func newService(p serviceParams) *Service {
	return &Service{
		cfg:        p.Config,
		store:      p.Store,
		hub:        p.Hub,
		coord:      p.Coordinator,
		http:       p.HTTP,
		shutdowner: p.Shutdowner,
		logger:     p.Logger,
	}
}

// Addr is the address the HTTP listener is bound to, or nil before start.
func (s *Service) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Service) start(ctx context.Context) error {
	if s.cfg.Admin.Email != "" && s.cfg.Admin.Password != "" {
		created, err := EnsureAdmin(ctx, s.store, s.cfg.Admin.Email, s.cfg.Admin.Password)
		if err != nil {
			return err
		}
		if created {
			s.logger.Info("admin account created", zap.String("email", s.cfg.Admin.Email))
		}
	}

	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.http.Addr, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		s.hub.Run()
		return nil
	})
	g.Go(func() error {
		return s.coord.Run(gctx)
	})
	g.Go(func() error {
		if err := server.Serve(s.http, ln, s.logger); err != nil {
			s.logger.Error("HTTP server failed", zap.Error(err))
			_ = s.shutdowner.Shutdown(fx.ExitCode(1))
			return err
		}
		return nil
	})

	s.mu.Lock()
	s.addr = ln.Addr()
	s.cancel = cancel
	s.group = g
	s.mu.Unlock()
	return nil
}

// stop drains HTTP first so no new sessions arrive, then closes sessions,
// stops the sweeper and finally the database.
func (s *Service) stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, g := s.cancel, s.group
	s.mu.Unlock()

	var err error
	if g != nil {
		err = multierr.Append(err, server.ShutdownServer(s.http, shutdownTimeout, s.logger))
		err = multierr.Append(err, s.hub.Shutdown(shutdownTimeout))
		cancel()
		if werr := g.Wait(); werr != nil && !errors.Is(werr, context.Canceled) {
			err = multierr.Append(err, werr)
		}
	}
	err = multierr.Append(err, s.store.Close())
	if err != nil {
		s.logger.Warn("shutdown finished with errors", zap.Error(err))
		return err
	}
	s.logger.Info("shutdown complete")
	return nil
}

// EnsureAdmin hashes password and creates an approved administrator unless
// the email is already registered.
func EnsureAdmin(ctx context.Context, st *store.SQLStore, email, password string) (bool, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return false, err
	}
	return st.EnsureAdmin(ctx, email, hash)
}
