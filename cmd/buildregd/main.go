package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/mkrell/buildreg/internal/logging"
	"github.com/mkrell/buildreg/internal/observability"
	"github.com/mkrell/buildreg/internal/pcsc"
	"github.com/mkrell/buildreg/internal/registry"
	"github.com/mkrell/buildreg/internal/scanner"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config file")
	deleteMode := flag.Bool("delete", false, "start in delete mode")
	flag.Parse()

	if err := run(*configPath, *deleteMode); err != nil {
		fmt.Fprintf(os.Stderr, "buildregd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, deleteFlag bool) error {
	cfg := DefaultConfig()
	if configPath != "" {
		loaded, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if deleteFlag {
		cfg.DeleteMode = true
	}

	logging.ConfigureRuntime()
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		zerolog.SetGlobalLevel(lvl)
	}
	logger := logging.New("buildregd")

	observability.RegisterMetrics()
	if cfg.MetricsAddr != "" {
		observability.Serve(cfg.MetricsAddr, logger)
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
	}

	src, err := pcsc.Open(pcsc.Config{Reader: cfg.Reader, PollInterval: cfg.PollInterval}, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	reg := registry.New()
	reg.SetOnAdded(func(buildingType uint8, uid string) {
		logger.Info().Str("uid", uid).Uint8("type", buildingType).Msg("new building registered")
	})
	reg.SetOnRemoved(func(buildingType uint8, uid string) {
		logger.Info().Str("uid", uid).Uint8("type", buildingType).Msg("building deregistered")
	})

	sc := scanner.New(reg, logger)
	sc.SetDeleteMode(cfg.DeleteMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Msg("waiting for cards")
	if err := sc.Run(ctx, src); err != nil {
		return err
	}

	dumpRegistry(os.Stdout, reg)
	return nil
}

// dumpRegistry prints the final registry table on shutdown.
func dumpRegistry(w io.Writer, reg *registry.Registry) {
	cards := reg.Snapshot()
	fmt.Fprintf(w, "=== Building Registry (%d cards) ===\n", len(cards))
	for _, c := range cards {
		fmt.Fprintf(w, "UID: %s | Type: %d | First: %s | Last: %s\n",
			c.UID, c.BuildingType,
			c.FirstSeen.Format("15:04:05"), c.LastSeen.Format("15:04:05"))
	}
}
