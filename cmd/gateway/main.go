package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/your-org/authz-gateway/internal/app"
	"github.com/your-org/authz-gateway/internal/config"
	"github.com/your-org/authz-gateway/internal/help"
	"github.com/your-org/authz-gateway/internal/schema"
	"github.com/your-org/authz-gateway/pkg/errors"
	"github.com/your-org/authz-gateway/pkg/logger"
)

var (
	// Version is set during build
	Version = "dev"
	// BuildTime is set during build
	BuildTime = "unknown"
	// GitCommit is set during build
	GitCommit = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	schemaType := flag.String("schema", "", "Print a JSON schema (config|policies) and exit")
	printConfig := flag.Bool("print-config", false, "Print the effective configuration as YAML and exit")
	envHelp := flag.Bool("help-env", false, "List environment variable overrides and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("authz-gateway %s\n", Version)
		fmt.Printf("Build time: %s\n", BuildTime)
		fmt.Printf("Git commit: %s\n", GitCommit)
		os.Exit(0)
	}

	if *schemaType != "" {
		os.Exit(printSchema(*schemaType))
	}

	if *envHelp {
		fmt.Print(help.Format(help.Extract(config.EnvPrefix, config.Config{})))
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, errors.ErrConfigInvalid) {
			fmt.Fprint(os.Stderr, err.Error())
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *printConfig {
		data, err := cfg.YAML()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to render configuration: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(string(data))
		os.Exit(0)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting authz-gateway",
		logger.String("version", Version),
		logger.String("commit", GitCommit),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(cfg, app.WithBuildInfo(app.BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}))
	if err != nil {
		logger.Fatal("failed to create application", logger.Err(err))
	}

	if err := application.Initialize(ctx); err != nil {
		logger.Fatal("failed to initialize application", logger.Err(err))
	}

	if err := application.Start(); err != nil {
		logger.Fatal("failed to start application", logger.Err(err))
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", logger.String("signal", sig.String()))

	timeout := cfg.Server.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during shutdown", logger.Err(err))
	}

	logger.Info("authz-gateway stopped")
}

func printSchema(name string) int {
	st, ok := schema.ParseSchemaType(name)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown schema type %q, available: %v\n", name, schema.GetAvailableSchemas())
		return 1
	}

	data, err := schema.NewGenerator().Generate(st)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate schema: %v\n", err)
		return 1
	}

	fmt.Println(string(data))
	return 0
}
