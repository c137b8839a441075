package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/adwski/watchparty/config"
	"github.com/adwski/watchparty/persist"
	"github.com/adwski/watchparty/registry"
	httpServer "github.com/adwski/watchparty/server/http"
	websocketServer "github.com/adwski/watchparty/server/websocket"
	"github.com/adwski/watchparty/service"
	postgresStore "github.com/adwski/watchparty/storage/postgres"
	sw "github.com/adwski/watchparty/switch"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)

	var (
		configPath    = fs.StringP("config", "c", "", "config file path")
		apiListenAddr = fs.StringP("api-listen-addr", "a", "", "api listen address")
		wsListenAddr  = fs.StringP("ws-listen-addr", "w", "", "websocket listen address")
		logLevel      = fs.StringP("log-level", "l", "", "log level")
		postgresDSN   = fs.StringP("postgres-dsn", "d", "", "postgres dsn for the durable store (empty disables persistence)")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if *apiListenAddr != "" {
		cfg.APIListenAddr = *apiListenAddr
	}
	if *wsListenAddr != "" {
		cfg.WSListenAddr = *wsListenAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *postgresDSN != "" {
		cfg.PostgresDSN = *postgresDSN
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	var (
		recorder persist.Recorder = persist.NopRecorder{}
		history  httpServer.ChatHistory
	)
	if cfg.PostgresDSN != "" {
		store, errStore := postgresStore.New(cfg.PostgresDSN)
		if errStore != nil {
			logger.Fatal().Err(errStore).Msg("failed to open durable store")
		}
		defer func() {
			_ = store.Close()
		}()
		recorder = store
		history = store
	} else {
		logger.Warn().Msg("no postgres dsn configured, persistence is disabled")
	}

	bridge := persist.NewBridge(persist.Config{
		Recorder:  recorder,
		Logger:    &logger,
		QueueSize: cfg.PersistQueue,
	})
	fanout := sw.NewSwitch(&logger)
	reg := registry.New(registry.Config{
		Fanout:   fanout,
		Logger:   &logger,
		ChatTail: cfg.ChatTail,
	})
	svc := service.New(service.Config{
		Registry: reg,
		Relay:    fanout,
		Bridge:   bridge,
		Logger:   &logger,
	})
	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:      &logger,
		RoomService: reg,
		ChatHistory: history,
		ListenAddr:  cfg.APIListenAddr,
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:      &logger,
		Coordinator: svc,
		ListenAddr:  cfg.WSListenAddr,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(3)
	go bridge.Run(ctx, wg)
	go httpSrv.Run(ctx, wg, errc)
	go wsSrv.Run(ctx, wg, errc)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}
