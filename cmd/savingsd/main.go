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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"spendsave/config"
	"spendsave/core/events"
	"spendsave/core/types"
	"spendsave/native/savings"
	"spendsave/observability/logging"
	"spendsave/rpc"
	"spendsave/state"
	"spendsave/storage"
)

// logEmitter forwards engine events to the structured log.
type logEmitter struct {
	log *slog.Logger
}

func (l logEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	attrs := []any{"event", evt.EventType()}
	if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
		if inner := carrier.Event(); inner != nil {
			for key, value := range inner.Attributes {
				attrs = append(attrs, key, value)
			}
		}
	}
	l.log.Info("engine event", attrs...)
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("SPENDSAVE_ENV"))
	logger := logging.Setup("savingsd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	treasury := cfg.Address(cfg.TreasuryAddress)
	module := cfg.Address(cfg.ModuleAddress)
	hook := cfg.Address(cfg.HookAddress)

	manager := state.NewManager(db, treasury, module, hook)
	assets := state.NewAssetLedger(db, module)

	engine := savings.NewEngine()
	engine.SetState(manager)
	engine.SetAccountingToken(manager)
	engine.SetAssetLedger(assets)
	engine.SetYieldRouter(state.NewYieldJournal(db))
	engine.SetEmitter(logEmitter{log: logger})

	rpcServer := rpc.NewServer(engine, logger, cfg.CallBudget)

	ops := chi.NewRouter()
	ops.Use(middleware.Recoverer)
	ops.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	ops.Handle("/metrics", promhttp.Handler())

	rpcHTTP := &http.Server{Addr: cfg.RPCAddress, Handler: rpcServer, ReadHeaderTimeout: 5 * time.Second}
	opsHTTP := &http.Server{Addr: cfg.OpsAddress, Handler: ops, ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		logger.Info("rpc listening", "address", cfg.RPCAddress)
		errCh <- rpcHTTP.ListenAndServe()
	}()
	go func() {
		logger.Info("ops listening", "address", cfg.OpsAddress)
		errCh <- opsHTTP.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listener failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = rpcHTTP.Shutdown(shutdownCtx)
	_ = opsHTTP.Shutdown(shutdownCtx)
}
