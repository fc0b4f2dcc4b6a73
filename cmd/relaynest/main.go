package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/relaynest/relaynest/internal/api"
	"github.com/relaynest/relaynest/internal/config"
	"github.com/relaynest/relaynest/internal/nostr"
	"github.com/relaynest/relaynest/internal/registry"
	"github.com/relaynest/relaynest/internal/relay"
	"github.com/relaynest/relaynest/internal/store"
)

const banner = `
           __                      __
  ________/ /___ ___  __ ___  ___ / __/
 / __/ -_) / _ \/ _ \/ // / _ \(_-</ _/
/_/  \__/_/ .__/_//_/\_, /_//_/___/\__/
         /_/        /___/

    Multi-tenant Nostr relay hosting
`

func main() {
	setupLogging()
	fmt.Print(banner)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Msg("Starting relaynest")

	switch {
	case config.IsFirstRun():
		npub, nsec, err := nostr.GenerateIdentity()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to generate relay identity")
		}
		if err := config.SaveIdentity(npub, nsec); err != nil {
			log.Warn().Err(err).Msg("Could not persist generated relay identity")
		}
		log.Info().Str("npub", npub).Msg("Generated relay identity")
	case cfg.Identity.Npub == "":
		// Operator configured only nsec; derive the matching npub rather than
		// minting an unrelated keypair and discarding their key.
		npub, err := nostr.NsecToNpub(cfg.Identity.Nsec)
		if err != nil {
			log.Fatal().Err(err).Msg("Configured nsec is malformed")
		}
		if err := config.SaveIdentity(npub, cfg.Identity.Nsec); err != nil {
			log.Warn().Err(err).Msg("Could not persist derived relay npub")
		}
	case !nostr.ValidateNpub(cfg.Identity.Npub) || !nostr.ValidateNsec(cfg.Identity.Nsec):
		log.Fatal().Msg("Configured relay identity is malformed, expected bech32 npub/nsec")
	}

	s, err := store.Init(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize store")
	}
	defer s.Close()

	cache, err := store.OpenStorageCache(cfg.Database.CachePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage cache")
	}
	defer cache.Close()

	reg := registry.New(s)
	if err := reg.Hydrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to hydrate relay registry")
	}

	mgr := relay.NewWithCache(reg, s, cache)
	router := api.NewRouter(mgr, reg)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("address", addr).Msg("HTTP/WS server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	mgr.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("relaynest stopped")
}

func setupLogging() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05",
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()

	level := os.Getenv("LOG_LEVEL")
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
