package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dkeye/Resonance/internal/adapters/auth"
	"github.com/dkeye/Resonance/internal/adapters/friends"
	router "github.com/dkeye/Resonance/internal/adapters/http"
	"github.com/dkeye/Resonance/internal/adapters/rtc"
	wssignal "github.com/dkeye/Resonance/internal/adapters/signal"
	"github.com/dkeye/Resonance/internal/adapters/store"
	"github.com/dkeye/Resonance/internal/app"
	"github.com/dkeye/Resonance/internal/app/orch"
	"github.com/dkeye/Resonance/internal/app/voice"
	"github.com/dkeye/Resonance/internal/config"
	"github.com/dkeye/Resonance/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg)

	roomStore, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open room store")
	}
	defer closeStore()

	var directory core.FriendsDirectory
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, presence goes to everyone")
		} else {
			directory = friends.NewRedisDirectory(rdb)
		}
	}

	o := orch.New(orch.Deps{
		Store:   roomStore,
		Friends: directory,
		Policy:  app.SimplePolicy{},
		Voice: voice.Options{
			DefaultCapacity: cfg.Voice.DefaultCapacity,
			MaxCapacity:     cfg.Voice.MaxCapacity,
			StoreTimeout:    cfg.Mongo.Timeout,
		},
	})
	if _, err := o.Voice.Reconcile(ctx); err != nil {
		log.Error().Err(err).Msg("restart reconciliation failed")
	}

	limiter := wssignal.NewRoomRateLimiter(cfg.RateLimit.Events, cfg.RateLimit.Interval)
	go sweep(ctx, limiter, cfg.RateLimit.Interval)

	ws := wssignal.NewSignalWSController(o, limiter, rtc.ICEServers(cfg.ICEServers), wssignal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		PongWait:   cfg.PongWait,
		WriteWait:  cfg.WriteWait,
		SendBuffer: cfg.SendBuffer,
	})

	r := router.SetupRouter(ctx, cfg, &router.Server{
		Orch: o,
		Auth: app.NewAuthenticator(auth.NewVerifier(cfg.JWT.Secret, cfg.JWT.Issuer)),
		WS:   ws,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Resonance server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	o.Shutdown()
	log.Info().Msg("Server exited gracefully")
}

func setupLogging(cfg *config.Config) {
	if cfg.Mode != "debug" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// openStore returns the Mongo store when configured, otherwise the in-memory one.
func openStore(ctx context.Context, cfg *config.Config) (core.VoiceRoomStore, func(), error) {
	if cfg.Mongo.URI == "" {
		log.Warn().Str("module", "main").Msg("mongo.uri not set, voice rooms are kept in memory")
		return store.NewMemory(), func() {}, nil
	}
	cctx, cancel := context.WithTimeout(ctx, cfg.Mongo.Timeout)
	defer cancel()
	client, err := mongo.Connect(cctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}
	s := store.NewMongo(client.Database(cfg.Mongo.Database))
	if err := s.EnsureIndexes(cctx); err != nil {
		return nil, nil, fmt.Errorf("mongo indexes: %w", err)
	}
	log.Info().Str("module", "main").Str("db", cfg.Mongo.Database).Msg("mongo connected")
	return s, func() {
		dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dcancel()
		_ = client.Disconnect(dctx)
	}, nil
}

func sweep(ctx context.Context, limiter *wssignal.RoomRateLimiter, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			limiter.Sweep()
		}
	}
}
