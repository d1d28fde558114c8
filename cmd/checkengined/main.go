// Command checkengined runs the half-message/op-message reconciliation
// check engine as a standalone daemon: it loads configuration, wires an
// in-memory store and a demo back-check dispatcher, then drives
// CheckEngine.Check on a ticker while serving a read-only status API.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kumarlokesh/halfcheck/internal/checkengine"
	"github.com/kumarlokesh/halfcheck/internal/config"
	"github.com/kumarlokesh/halfcheck/internal/dispatch"
	"github.com/kumarlokesh/halfcheck/internal/httpapi"
	"github.com/kumarlokesh/halfcheck/internal/metrics"
	"github.com/kumarlokesh/halfcheck/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to a YAML/JSON/TOML config file (optional)")
	addr       = flag.String("addr", "", "Override the status server listen address")
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			os.Exit(1)
		}
	}()

	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	collectors := metrics.New(reg)
	bridge := store.NewMemory(cfg.Engine.FileReservedHours)
	dispatcher := dispatch.NewDemo()
	engine := checkengine.New(bridge, dispatcher, collectors, cfg.Engine)

	apiServer := httpapi.NewServer(cfg.Server.Addr, engine, reg)
	go func() {
		if err := apiServer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("status server exited with error")
		}
	}()

	log.Info().
		Str("addr", cfg.Server.Addr).
		Dur("scan_interval", cfg.Engine.ScanInterval).
		Msg("check engine daemon started")

	ticker := time.NewTicker(cfg.Engine.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return
		case <-ticker.C:
			if err := engine.Check(ctx); err != nil {
				log.Error().Err(err).Msg("check tick failed")
			}
		}
	}
}
