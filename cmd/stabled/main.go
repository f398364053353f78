package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"stablecore/config"
	"stablecore/crypto"
	"stablecore/native/common"
	"stablecore/native/stable"
	"stablecore/native/token"
	"stablecore/observability/logging"
	"stablecore/observability/otel"
	"stablecore/rpc"
	"stablecore/storage"
)

const serviceName = "stabled"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	env := strings.TrimSpace(os.Getenv("STABLE_ENV"))
	if env == "" {
		env = cfg.Environment
	}
	logger := logging.SetupWithRotation(serviceName, env, logging.RotationConfig{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Metrics || cfg.Telemetry.Traces {
		shutdownTelemetry, err := otel.Init(ctx, otel.Config{
			ServiceName: serviceName,
			Environment: env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			logger.Error("failed to initialise telemetry", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", "error", err)
			}
		}()
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ledger, err := stable.NewLedger(cfg.Assets(), stable.NewKVState(db))
	if err != nil {
		logger.Error("failed to build collateral registry", "error", err)
		os.Exit(1)
	}
	oracle := stable.NewPostedOracle(time.Duration(cfg.Oracle.MaxAgeSeconds) * time.Second)

	custody := crypto.ModuleAddress("stable")
	collateral := token.NewLedger()
	debt := token.NewDebtToken(custody)

	engine, err := stable.NewEngine(ledger, oracle, collateral, debt, custody, cfg.RiskParameters())
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		os.Exit(1)
	}
	pauses := common.NewPauseSwitch()
	engine.SetPauses(pauses)

	authToken := ""
	if name := strings.TrimSpace(cfg.AuthTokenEnv); name != "" {
		authToken = strings.TrimSpace(os.Getenv(name))
		if authToken == "" {
			logger.Warn("auth token environment variable is empty; mutating RPC methods are open", "variable", name)
		}
	}

	server := rpc.NewServer(engine, oracle, pauses, authToken, logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           otelhttp.NewHandler(server.Router(), "rpc"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("rpc server listening", "address", cfg.ListenAddress, "custody", custody.String())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("rpc server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	logger.Info("stabled stopped")
}
