package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/adwski/roomchat/backend/config"
	httpServer "github.com/adwski/roomchat/backend/server/http"
	websocketServer "github.com/adwski/roomchat/backend/server/websocket"
	"github.com/adwski/roomchat/backend/service"
	store "github.com/adwski/roomchat/backend/storage/memory"
	sw "github.com/adwski/roomchat/backend/switch"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	svc := service.NewService(service.Config{
		Registry:            store.NewMemStore(),
		Switch:              sw.NewSwitch(&logger),
		Logger:              &logger,
		Rooms:               cfg.Rooms,
		Announce:            cfg.Announce,
		NotifyUnknownTarget: cfg.NotifyUnknownTarget,
	})
	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:      &logger,
		RoomService: svc,
		ListenAddr:  cfg.APIListenAddr,
		StaticDir:   cfg.StaticDir,
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:         &logger,
		ChatService:    svc,
		ListenAddr:     cfg.WSListenAddr,
		AllowedOrigins: cfg.AllowedOrigins,
		OutboxSize:     cfg.OutboxSize,
		MaxMessageSize: int64(cfg.MaxMessageSize),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(2)
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
