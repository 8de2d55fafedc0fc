package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/agentstatus/internal/app"
	"github.com/ternarybob/agentstatus/internal/common"
	"github.com/ternarybob/agentstatus/internal/interfaces"
	"github.com/ternarybob/agentstatus/internal/server"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	serverPort   = flag.Int("port", 0, "Server port (overrides config)")
	serverPortP  = flag.Int("p", 0, "Server port (shorthand, overrides config)")
	serverHost   = flag.String("host", "", "Server host (overrides config)")
	once         = flag.Bool("once", false, "Run a single refresh, print the snapshot as JSON and exit")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	version := common.LoadVersionFromFile()
	if *showVersion || *showVersionV {
		fmt.Printf("AgentStatus version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	finalPort := *serverPort
	if *serverPortP != 0 {
		finalPort = *serverPortP
	}

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("agentstatus.toml"); err == nil {
			configFiles = append(configFiles, "agentstatus.toml")
		} else if _, err := os.Stat("deployments/agentstatus.toml"); err == nil {
			configFiles = append(configFiles, "deployments/agentstatus.toml")
		}
	}

	// Startup sequence: config (defaults -> files -> env), CLI overrides,
	// validation, logger, banner
	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration files")
		os.Exit(1)
	}

	common.ApplyFlagOverrides(config, finalPort, *serverHost)

	if err := config.Validate(); err != nil {
		tempLogger := arbor.NewLogger()
		if errors.Is(err, interfaces.ErrNoAgentsDeclared) {
			tempLogger.Fatal().Err(err).Msg("Declare [[agents]] or enable sources.discover")
		} else {
			tempLogger.Fatal().Err(err).Msg("Invalid configuration")
		}
		os.Exit(1)
	}

	logger := common.InitLogger(config)

	if *once {
		os.Exit(runOnce(config, logger))
	}

	common.PrintBanner(version)

	logger.Info().
		Strs("config_files", configFiles).
		Str("environment", config.Environment).
		Int("port", config.Server.Port).
		Str("host", config.Server.Host).
		Int("agents", len(config.Agents)).
		Bool("discover", config.Sources.Discover).
		Msg("Application configuration loaded")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	if err := application.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start status refresh")
	}

	srv := server.New(application)

	common.SafeGo(logger, "http-server", func() {
		if err := srv.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	})

	logger.Info().
		Str("url", fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)).
		Msg("Server ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info().Msg("Interrupt signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}

	logger.Info().Msg("Server stopped")
}

// runOnce builds one snapshot and writes it to stdout
func runOnce(config *common.Config, logger arbor.ILogger) int {
	application, err := app.New(config, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		return 1
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snap, err := application.Aggregator.Refresh(ctx, "once")
	if err != nil {
		logger.Error().Err(err).Msg("Refresh failed")
		return 1
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(map[string]interface{}{
		"generated_at": snap.GeneratedAt,
		"cycle_id":     snap.CycleID,
		"agents":       snap.Agents(),
		"jobs":         snap.Jobs(),
	}); err != nil {
		logger.Error().Err(err).Msg("Failed to write snapshot")
		return 1
	}
	return 0
}
