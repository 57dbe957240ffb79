package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"showdown-pilot/audit"
	"showdown-pilot/client"
	"showdown-pilot/config"
	"showdown-pilot/data"
	"showdown-pilot/game"
	"showdown-pilot/history"
	"showdown-pilot/i18n"
	"showdown-pilot/orchestrator"
	"showdown-pilot/parser"
	"showdown-pilot/provider"
	"showdown-pilot/telemetry"
)

const (
	maxReconnects  = 3
	reconnectDelay = 2 * time.Second
	pingInterval   = 20 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("showdown-pilot stopped", "err", err)
		os.Exit(1)
	}
}

// pilot is everything one battle session needs besides the connection.
type pilot struct {
	cfg        config.Config
	logger     *slog.Logger
	translator i18n.Translator
	provider   provider.DecisionProvider
	store      *audit.Store
	hub        *watchHub
	hints      *orchestrator.SideChannel
}

func run(ctx context.Context) error {
	path := config.Path()
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)
	logger.Info("config loaded", "path", path, "provider", cfg.Decision.Provider, "format", cfg.Server.Format)

	shutdown, err := telemetry.Setup(ctx, "showdown-pilot", cfg.Telemetry.Endpoint, cfg.Telemetry.Enabled)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("telemetry shutdown", "err", err)
		}
	}()

	dex, err := data.Load(cfg.Data.Pokedex, cfg.Data.Moves)
	if err != nil {
		return fmt.Errorf("cargando datos: %w", err)
	}
	species, moves := dex.Len()
	logger.Info("data loaded", "species", species, "moves", moves)

	tr, err := i18n.New(cfg.Locale)
	if err != nil {
		return fmt.Errorf("loading locale %s: %w", cfg.Locale, err)
	}

	p := &pilot{
		cfg:        cfg,
		logger:     logger,
		translator: tr,
		hub:        newWatchHub(logger),
		hints:      orchestrator.NewSideChannel(),
	}

	if cfg.Audit.Path != "" {
		p.store, err = audit.Open(cfg.Audit.Path)
		if err != nil {
			return err
		}
		defer p.store.Close()
	}

	p.provider, err = provider.New(cfg.Decision.Provider, provider.Deps{
		Dex: dex,
		LLM: provider.LLMConfig{
			URL:         cfg.LLM.URL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.Timeout,
			Referer:     cfg.LLM.Referer,
			Title:       cfg.LLM.Title,
		},
		LuaScript: cfg.Lua.Script,
		Seed:      cfg.RandomSeed,
		In:        os.Stdin,
		Out:       os.Stdout,
		Hints:     p.hub,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("building provider: %w", err)
	}
	if c, ok := p.provider.(interface{ Close() }); ok {
		defer c.Close()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Watch.Addr != "" {
		srv := newWatchServer(cfg.Watch.Addr, p.hub.handler(p.hints))
		g.Go(func() error {
			logger.Info("watch server listening", "addr", cfg.Watch.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("watch server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}
	g.Go(func() error {
		defer cancel()
		return p.play(gctx)
	})
	return g.Wait()
}

// play runs one battle, reconnecting when the connection drops.
func (p *pilot) play(ctx context.Context) error {
	started := false
	for attempt := 1; ; attempt++ {
		err := p.session(ctx, &started)
		if err == nil || ctx.Err() != nil {
			return err
		}
		if !errors.Is(err, client.ErrClosed) || attempt >= maxReconnects {
			return fmt.Errorf("error persistente al conectar con Showdown: %w", err)
		}
		p.logger.Warn("reconectando con Showdown", "attempt", attempt+1, "max", maxReconnects, "err", err)
		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *pilot) session(ctx context.Context, started *bool) error {
	cfg := p.cfg
	sc, err := client.Dial(ctx, cfg.Server.URL, p.logger)
	if err != nil {
		return fmt.Errorf("%w: %v", client.ErrClosed, err)
	}
	defer sc.Close()

	kctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := sc.KeepAlive(kctx, pingInterval); err != nil && kctx.Err() == nil {
			p.logger.Warn("keepalive stopped", "err", err)
		}
	}()

	if err := sc.Login(ctx, cfg.Server.LoginURL, cfg.Server.Username, cfg.Server.Password); err != nil {
		return err
	}

	// After a reconnect the server re-sends the running battle on its own.
	if !*started {
		switch {
		case cfg.Server.Challenge != "":
			err = sc.Challenge(cfg.Server.Challenge, cfg.Server.Format)
		case cfg.Server.Ladder:
			err = sc.Search(cfg.Server.Format)
		default:
			p.logger.Info("waiting for a challenge", "accept", cfg.Server.Accept)
		}
		if err != nil {
			return err
		}
	}

	first, err := sc.AwaitBattle(ctx, cfg.Server.Accept, cfg.Server.Format)
	if err != nil {
		return err
	}
	*started = true
	room := first.Room
	logger := p.logger.With("room", room)

	var recorder orchestrator.Recorder
	if p.store != nil {
		m, err := p.store.BeginMatch(ctx, room, cfg.Server.Format, provider.Name(p.provider))
		if err != nil {
			logger.Warn("audit disabled for this match", "err", err)
		} else {
			recorder = m
		}
	}

	var hints *orchestrator.SideChannel
	if cfg.Watch.Addr != "" && cfg.Decision.HintTimeout > 0 {
		hints = p.hints
	}
	decisionTimeout := cfg.Decision.Timeout
	if cfg.Decision.Provider == "human" {
		decisionTimeout = 0
	}

	state := game.NewBattleState(1)
	orch, err := orchestrator.New(orchestrator.Deps{
		Interpreter: parser.NewInterpreter(state, p.translator),
		Ledger:      history.NewLedger(cfg.History.Window),
		Provider:    p.provider,
		Submitter:   client.RoomSubmitter{Client: sc, Room: room},
		Recorder:    recorder,
		Hints:       hints,
		Logger:      logger,
		OnEvent: func(ev parser.Event) {
			p.hub.onEvent(ev, state)
		},
	}, orchestrator.Config{
		DecisionTimeout:    decisionTimeout,
		MaxProviderRetries: cfg.Decision.MaxProviderRetries,
		MaxInvalidChoices:  cfg.Decision.MaxInvalidChoices,
		HintTimeout:        cfg.Decision.HintTimeout,
	})
	if err != nil {
		return err
	}

	if err := orch.Run(ctx, client.NewRoomLines(sc, first)); err != nil {
		return err
	}
	if err := sc.Leave(room); err != nil {
		logger.Warn("leaving room", "err", err)
	}
	return nil
}
