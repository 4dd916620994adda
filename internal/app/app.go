package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chanserv/internal/antispam"
	"github.com/vovakirdan/chanserv/internal/auth"
	"github.com/vovakirdan/chanserv/internal/config"
	"github.com/vovakirdan/chanserv/internal/core"
	"github.com/vovakirdan/chanserv/internal/lobby"
	"github.com/vovakirdan/chanserv/internal/store"
	"github.com/vovakirdan/chanserv/internal/store/files"
	"github.com/vovakirdan/chanserv/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/chanserv/internal/transport/http"
	"github.com/vovakirdan/chanserv/internal/transport/remote"
)

// Process exit codes.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitDenied    = 2
	ExitAgreement = 3
)

// App wires together the lobby engine and its listeners.
type App struct {
	engine          *lobby.Engine
	gateway         *remote.Server
	server          *stdhttp.Server
	shared          *core.Shared
	store           store.Store
	shutdownTimeout time.Duration
	log             *zerolog.Logger
}

// New constructs the application. configPath is where the registry is saved.
func New(cfg config.Config, configPath string, logger *zerolog.Logger) (*App, error) {
	st, err := openStore(cfg.Transcripts)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("backend", cfg.Transcripts.Backend).Msg("transcript store initialized")

	state := core.NewState(time.Now)
	state.SetAdmins(cfg.Admins)
	for _, cc := range cfg.Channels {
		if err := core.ValidateChannelName(cc.Name); err != nil {
			logger.Warn().Err(err).Str("channel", cc.Name).Msg("skipping channel from config")
			continue
		}
		if err := state.AddChannel(cc.Channel()); err != nil {
			logger.Warn().Err(err).Str("channel", cc.Name).Msg("skipping channel from config")
		}
	}
	shared := core.NewShared(state)

	persist := config.NewFileStorage(configPath, cfg)
	logger.Info().Str("path", persist.Path()).Msg("registry saves enabled")
	engine := lobby.New(lobby.Config{
		Address:           cfg.Lobby.Address,
		Port:              cfg.Lobby.Port,
		Username:          cfg.Lobby.Username,
		Password:          cfg.Lobby.Password,
		ReconnectDelay:    cfg.Lobby.ReconnectDelay,
		KeepAliveInterval: cfg.Lobby.KeepAliveInterval,
	}, shared, st, antispam.NewMonitor(logger), persist, logger)

	keys := auth.NewKeyVerifier(cfg.Gateway.Keys, cfg.Gateway.TokenSecret)
	gateway := remote.New(remote.Config{
		Addr:         ":" + strconv.Itoa(cfg.Gateway.Port),
		IdleTimeout:  cfg.Gateway.IdleTimeout,
		QueryTimeout: cfg.Gateway.QueryTimeout,
		MaxSessions:  cfg.Gateway.MaxSessions,
		AcceptRate:   cfg.Gateway.AcceptRate,
		AcceptBurst:  cfg.Gateway.AcceptBurst,
	}, engine, shared, keys, logger)
	engine.SetForwarder(gateway)

	var server *stdhttp.Server
	if cfg.Status.Addr != "" {
		server = transporthttp.NewServer(transporthttp.Deps{
			Shared:      shared,
			Lobby:       engine,
			Gateway:     gateway,
			Transcripts: st,
			Keys:        keys,
		}, cfg.Status, logger)
	}

	return &App{
		engine:          engine,
		gateway:         gateway,
		server:          server,
		shared:          shared,
		store:           st,
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             logger,
	}, nil
}

func openStore(cfg config.TranscriptsConfig) (store.Store, error) {
	switch cfg.Backend {
	case "files":
		fs, err := files.New(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case "sqlite", "":
		db, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown transcript backend %q", cfg.Backend)
	}
}

// Run starts the listeners and the lobby session and blocks until ctx is
// cancelled or the session ends terminally.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	if err := a.gateway.Listen(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.gateway.Serve(ctx); err != nil {
			a.log.Error().Err(err).Msg("gateway stopped")
			a.engine.Stop(err)
		}
	}()

	if a.server != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.log.Info().Str("addr", a.server.Addr).Msg("status api listening")
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				a.log.Error().Err(err).Msg("status api stopped")
				a.engine.Stop(err)
			}
		}()
	}

	err := a.engine.Run(ctx)
	cancel()

	if a.server != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), a.shutdownTimeout)
		a.log.Info().Msg("shutting down status api")
		if serr := a.server.Shutdown(shutdownCtx); serr != nil {
			a.log.Warn().Err(serr).Msg("status api shutdown")
		}
		stop()
	}
	wg.Wait()

	a.engine.Save()
	return err
}

// cleanup closes the transcript store.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}

// ExitCode maps the error returned by Run to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, lobby.ErrShutdown):
		return ExitOK
	case errors.Is(err, lobby.ErrLoginDenied):
		return ExitDenied
	case errors.Is(err, lobby.ErrAgreementRequired):
		return ExitAgreement
	default:
		return ExitFailure
	}
}
