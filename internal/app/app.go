package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/vovakirdan/wirearena-server/internal/auth"
	"github.com/vovakirdan/wirearena-server/internal/config"
	"github.com/vovakirdan/wirearena-server/internal/core"
	"github.com/vovakirdan/wirearena-server/internal/lobby"
	"github.com/vovakirdan/wirearena-server/internal/store"
	"github.com/vovakirdan/wirearena-server/internal/store/sqlite"
	"github.com/vovakirdan/wirearena-server/internal/transport/http"
	"github.com/vovakirdan/wirearena-server/internal/transport/tcp"
	"github.com/vovakirdan/wirearena-server/internal/utils"
)

// App wires together core and transport layers.
type App struct {
	serverID        string
	hub             *core.Hub
	acceptor        *tcp.Acceptor
	admin           *stdhttp.Server
	shutdownTimeout time.Duration

	lobbyClient *lobby.Client
	journal     store.Journal
	recorder    *store.AsyncRecorder
	log         *zerolog.Logger
}

// New constructs the application and binds the game listener.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	a := &App{
		serverID:        utils.ServerIDOr(cfg.ServerID),
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             logger,
	}

	var reporter lobby.Reporter = lobby.Nop{}
	var validator lobby.Validator
	switch {
	case cfg.LobbyURL != "":
		c, err := lobby.NewClient(cfg.LobbyURL, cfg.LobbyToken, a.serverID, cfg.LobbyTimeout, logger)
		if err != nil {
			return nil, fmt.Errorf("init lobby client: %w", err)
		}
		a.lobbyClient = c
		reporter, validator = c, c
		logger.Info().Str("lobby_url", cfg.LobbyURL).Msg("lobby reporting enabled")
	case cfg.JWTSecret != "":
		validator = auth.NewJWTValidator(&auth.JWTConfig{
			Secret:   []byte(cfg.JWTSecret),
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		})
		logger.Info().Msg("validating session tokens locally")
	default:
		logger.Warn().Msg("no lobby or jwt secret configured; joins are anonymous")
	}

	var recorder store.Recorder = store.NopRecorder{}
	if cfg.DatabasePath != "" {
		st, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("init store: %w", err)
		}
		a.journal = st
		a.recorder = store.NewAsyncRecorder(st, 0, logger)
		recorder = a.recorder
		logger.Info().Str("db_path", cfg.DatabasePath).Msg("connection journal enabled")
	}

	opts := tcp.Options{
		LivenessInterval: cfg.LivenessInterval,
		LivenessTimeout:  cfg.LivenessTimeout,
		WriteTimeout:     cfg.WriteTimeout,
		OutboundQueue:    cfg.OutboundQueue,
		MaxFrameSize:     cfg.MaxFrameSize,
		InboundRate:      cfg.InboundRate,
		InboundBurst:     cfg.InboundBurst,
	}
	a.hub = core.NewHub(core.Rules{
		RoomName:         cfg.RoomName,
		MaxPlayers:       cfg.MaxPlayers,
		MinPlayers:       cfg.MinPlayers,
		MaxRounds:        cfg.MaxRounds,
		MaxQueuedIntents: cfg.MaxQueuedIntents,
		ValidateTimeout:  cfg.LobbyTimeout,
	}, core.Deps{
		ServerID:  a.serverID,
		Sessions:  tcp.NewSessionFactory(opts, logger),
		Lobby:     reporter,
		Validator: validator,
		Journal:   recorder,
		Logger:    logger,
		Seed:      cfg.Seed,
	})

	if cfg.AdminAddr != "" {
		a.admin = http.NewServer(a.hub, a.journal, http.Options{
			Addr:              cfg.AdminAddr,
			AdminTokenHash:    cfg.AdminTokenHash,
			AllowedOrigins:    cfg.AdminAllowedOrigins,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			MaxFrameSize:      cfg.MaxFrameSize,
		}, logger)
	}

	a.acceptor = tcp.NewAcceptor(cfg.ListenAddr(), a.hub, reporter, a.serverID, cfg.RoomName, logger)
	if err := a.acceptor.Listen(); err != nil {
		a.cleanup()
		return nil, err
	}

	return a, nil
}

// ServerID is the id this instance reports to the lobby.
func (a *App) ServerID() string { return a.serverID }

// GameAddr is the bound game listener address.
func (a *App) GameAddr() net.Addr { return a.acceptor.Addr() }

// Run serves until ctx is cancelled or the admin server fails, then shuts
// everything down in order: listeners, hub, journal, lobby client.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.log.Info().
		Str("server_id", a.serverID).
		Str("game_addr", a.acceptor.Addr().String()).
		Msg("server started")

	var wg conc.WaitGroup
	wg.Go(func() { a.hub.Run(ctx) })
	wg.Go(func() {
		if err := a.acceptor.Serve(ctx); err != nil {
			a.log.Error().Err(err).Msg("game listener stopped")
		}
	})

	serverErr := make(chan error, 1)
	if a.admin != nil {
		go func() {
			a.log.Info().Str("addr", a.admin.Addr).Msg("admin server listening")
			if err := a.admin.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				serverErr <- err
				return
			}
			serverErr <- nil
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("admin server: %w", err)
		}
		a.admin = nil
	}
	cancel()

	if a.admin != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), a.shutdownTimeout)
		a.log.Info().Msg("shutting down admin server")
		if err := a.admin.Shutdown(shutdownCtx); err != nil {
			a.log.Warn().Err(err).Msg("admin server shutdown")
		}
		stop()
	}

	wg.Wait()
	a.cleanup()
	return runErr
}

// cleanup flushes the journal and waits for in-flight lobby calls.
func (a *App) cleanup() {
	if a.recorder != nil {
		a.recorder.Close()
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
	if a.lobbyClient != nil {
		a.lobbyClient.Close()
	}
}
