package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mariamtelly/kvserver/cmd/kvserver/app"
	"github.com/mariamtelly/kvserver/internal/config"
	applog "github.com/mariamtelly/kvserver/pkg/util/log"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed parsing config: %v\n", err)
		os.Exit(1)
	}

	logger := applog.InitLogger(cfg.LogLevel)

	reg := prometheus.NewRegistry()
	a, err := app.New(*cfg, logger, reg)
	if err != nil {
		level.Error(logger).Log("msg", "failed to initialize kvserver", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := services.StartAndAwaitRunning(ctx, a); err != nil {
		level.Error(logger).Log("msg", "failed to start kvserver", "err", err)
		os.Exit(1)
	}

	level.Info(logger).Log("msg", "kvserver running")
	<-ctx.Done()

	if err := services.StopAndAwaitTerminated(context.Background(), a); err != nil {
		level.Error(logger).Log("msg", "error during shutdown", "err", err)
		os.Exit(1)
	}
}

// loadConfig registers flags and defaults first, then overlays a
// -config-file if one was given, env-var expanded before being parsed as
// YAML.
func loadConfig() (*config.Config, error) {
	const configFileOption = "config-file"

	var configFile string

	args := os.Args[1:]
	fs := flag.NewFlagSet("", flag.ContinueOnError)
	cfg := &config.Config{}
	cfg.RegisterFlagsAndApplyDefaults("", fs)
	fs.StringVar(&configFile, configFileOption, "", "YAML configuration file, env-var expanded before parsing.")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if configFile != "" {
		if err := config.Load(configFile, cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
