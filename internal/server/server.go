package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/louieee/chatclone/internal/api"
	"github.com/louieee/chatclone/internal/auth"
	"github.com/louieee/chatclone/internal/bridge"
	"github.com/louieee/chatclone/internal/chat"
	"github.com/louieee/chatclone/internal/gateway"
	"github.com/louieee/chatclone/internal/server/middleware"
	"github.com/louieee/chatclone/internal/store"
	"github.com/louieee/chatclone/pkg/config"
	"github.com/louieee/chatclone/pkg/group"
	"github.com/louieee/chatclone/pkg/transport"
)

// App owns the process-wide services: the store, the group broker, the
// gateway, the bridge and the REST tier, all served from one HTTP listener.
type App struct {
	logger  *slog.Logger
	store   *store.Store
	broker  *group.Broker
	gateway *gateway.Gateway
	bridge  *bridge.Bridge
	http    *http.Server
	config  *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, st *store.Store) *App {
	broker := group.NewBroker(logger)
	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	resolver := auth.NewResolver(st, cfg.Auth.JWTSecret)

	gw := gateway.New(logger, rootCtx, broker, resolver, gateway.Config{
		Transport: transport.ConnectionConfig{
			ReadTimeout: cfg.Transport.ReadTimeout,
			SendBuffer:  cfg.Transport.SendBuffer,
		},
		HandshakeTimeout: cfg.Transport.HandshakeTimeout,
	})
	br := bridge.New(logger, issuer, cfg.Bridge)
	service := chat.NewService(logger, st, br, issuer)
	restAPI := api.New(logger, service)

	app := &App{
		logger:  logger,
		store:   st,
		broker:  broker,
		gateway: gw,
		bridge:  br,
		config:  cfg,
		ctx:     rootCtx,
	}

	wsMux := http.NewServeMux()
	gw.Routes(wsMux)

	apiMux := http.NewServeMux()
	authMW := middleware.NewAuthMiddleware(logger, resolver.ResolveToken)
	restAPI.Routes(apiMux, authMW)

	root := http.NewServeMux()
	root.Handle("/ws/",
		middleware.Chain(wsMux,
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(logger),
			middleware.NewConnectionLimiter(
				logger,
				gw.ConnectionCounter(),
				gw.ConnectionCycler(),
				cfg.Server.ConnectionLimit,
			),
		),
	)
	root.Handle("/api/",
		middleware.Chain(apiMux,
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(logger),
		),
	)

	app.http = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: root,
		BaseContext: func(l net.Listener) context.Context {
			return rootCtx
		},
	}

	return app
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

// Shutdown runs the graceful teardown sequence: stop accepting, drain the
// bridge, close every live gateway connection, release the store.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	a.bridge.Close()

	a.logger.Info("Closing all active connections...")
	a.gateway.Shutdown()

	if err := a.store.Close(); err != nil {
		a.logger.Error("Failed to close store", slog.Any("error", err))
	}
	a.logger.Info("Server shut down gracefully.")
	return nil
}
