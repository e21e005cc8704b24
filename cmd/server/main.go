package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/adamchain/heyway-core/internal/api"
	"github.com/adamchain/heyway-core/internal/automations"
	"github.com/adamchain/heyway-core/internal/config"
	"github.com/adamchain/heyway-core/internal/dnc"
	"github.com/adamchain/heyway-core/internal/importer"
	"github.com/adamchain/heyway-core/internal/pkg/logger"
	"github.com/adamchain/heyway-core/internal/poller"
)

// checkPortAvailable verifies that the target port is not already in
// use, so a stale process does not silently shadow this one.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	switch cfg.Logging.Level {
	case "debug":
		logger.SetLevel(logger.DEBUG)
	case "warn":
		logger.SetLevel(logger.WARN)
	case "error":
		logger.SetLevel(logger.ERROR)
	default:
		logger.SetLevel(logger.INFO)
	}
	if cfg.Logging.RedactPII != nil {
		logger.SetRedactPII(*cfg.Logging.RedactPII)
	}

	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		logger.Error("startup aborted", "error", err.Error())
		os.Exit(1)
	}

	// Postgres
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Error("failed to open database", "error", err.Error())
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	defer db.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		logger.Warn("database not reachable at startup", "error", err.Error())
	}
	cancelPing()

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	// DNC lists
	var dncEngine *dnc.Engine
	var dncChecker importer.DNCChecker
	if cfg.DNC.Enabled {
		dncEngine = dnc.NewEngine()
		for _, path := range cfg.DNC.Lists {
			f, err := os.Open(path)
			if err != nil {
				logger.Error("cannot open DNC list", "path", path, "error", err.Error())
				os.Exit(1)
			}
			list, err := dncEngine.LoadListFromReader(path, path, "file", f)
			f.Close()
			if err != nil {
				logger.Error("cannot load DNC list", "path", path, "error", err.Error())
				os.Exit(1)
			}
			logger.Info("DNC list loaded", "path", path, "records", fmt.Sprintf("%d", list.Count()))
		}
		// Assign only when an engine exists so the interface stays a
		// true nil when DNC is disabled.
		dncChecker = dncEngine
	}

	// Automation synchronizer: poll the upstream backend when
	// configured, otherwise our own store.
	store := automations.NewStore(db)
	fetch := func(ctx context.Context) ([]poller.Snapshot, error) {
		list, err := store.List(ctx)
		if err != nil {
			return nil, err
		}
		return automations.Snapshots(list), nil
	}
	if cfg.Upstream.Enabled {
		client := automations.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.APIKey)
		fetch = func(ctx context.Context) ([]poller.Snapshot, error) {
			list, err := client.List(ctx)
			if err != nil {
				return nil, err
			}
			return automations.Snapshots(list), nil
		}
	}

	syncCfg := poller.DefaultConfig()
	syncCfg.Enabled = cfg.Polling.Enabled
	syncCfg.Interval = cfg.Polling.Interval()
	syncCfg.MaxBackoffMultiple = cfg.Polling.MaxBackoffMultiple
	syncCfg.OnUpdate = func(snaps []poller.Snapshot) {
		logger.Info("automations updated", "count", fmt.Sprintf("%d", len(snaps)))
	}
	synchronizer := poller.New(fetch, syncCfg)
	synchronizer.Start()
	defer synchronizer.Stop()

	// HTTP server
	importSvc := importer.NewService(db, rdb, dncChecker)
	importOpts := importer.Options{
		RequireReferenceDate: cfg.Import.RequireReferenceDate,
		ReferenceDateField:   cfg.Import.ReferenceDateField,
	}
	handlers := api.NewHandlers(importSvc, synchronizer, dncEngine, importOpts, cfg.Queue)
	server := api.NewServer(cfg.Server, handlers)

	addr := fmt.Sprintf("%s:%d", host, cfg.Server.Port)
	go func() {
		logger.Info("server listening", "addr", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err.Error())
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err.Error())
	}
}
