package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ireadorg/readsync/internal/api"
	"github.com/ireadorg/readsync/internal/cache"
	"github.com/ireadorg/readsync/internal/config"
	"github.com/ireadorg/readsync/internal/logger"
	"github.com/ireadorg/readsync/internal/remote"
	"github.com/ireadorg/readsync/internal/retry"
	"github.com/ireadorg/readsync/internal/store"
	"github.com/ireadorg/readsync/internal/sync"
	"github.com/ireadorg/readsync/internal/transport"
)

const appVersion = "1.0.0"

func main() {
	// Load Config
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Init Logger
	if err := logger.InitLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Log.Info("Starting readsync", zap.String("version", appVersion))

	// Init State Store
	stateStore, err := store.NewSQLiteStore(cfg.Storage)
	if err != nil {
		logger.Log.Fatal("Failed to init state store", zap.Error(err))
	}
	defer stateStore.Close()

	// Remote backend client
	var client remote.Client
	if cfg.Remote.Offline || cfg.Remote.BaseURL == "" {
		logger.Log.Info("Remote backend disabled, running offline")
		client = remote.NewOfflineClient()
	} else {
		client = remote.NewHTTPClient(cfg.Remote.BaseURL, cfg.Remote.GetTimeout())
	}

	// Gateway with retry, caches and the offline queue
	retryCfg := retry.DefaultConfig()
	if cfg.Sync.MaxRetries > 0 {
		retryCfg.MaxRetries = cfg.Sync.MaxRetries
	}
	if cfg.Sync.BackoffMultiplier > 0 {
		retryCfg.BackoffMultiplier = cfg.Sync.BackoffMultiplier
	}
	retryCfg.InitialDelay = cfg.Sync.GetInitialDelay()
	retryCfg.MaxDelay = cfg.Sync.GetMaxDelay()

	profileCache := cache.New(cfg.Sync.GetProfileCacheTTL())
	progressCache := cache.New(cfg.Sync.GetProgressCacheTTL())
	gateway := remote.NewGateway(client, retryCfg, profileCache, progressCache)
	debouncer := remote.NewDebouncer(gateway, cfg.Sync.GetDebounceQuiet())

	// Flush the offline queue whenever connectivity comes back
	var gate *remote.ConnectivityGate
	if !cfg.Remote.Offline && cfg.Remote.BaseURL != "" {
		monitor := remote.NewProbeMonitor(cfg.Remote.BaseURL, 30*time.Second)
		gate = remote.NewConnectivityGate(monitor, gateway)
		if err := gate.Start(); err != nil {
			logger.Log.Warn("Failed to start connectivity gate", zap.Error(err))
		}
	}

	// Peer sync: discovery, transfer server, session manager
	discovery := transport.NewUDPDiscovery(cfg.Device.DiscoveryPort)
	dialer := transport.NewDialer()
	syncManager := sync.NewManager(cfg, stateStore, dialer, discovery, appVersion)
	defer syncManager.Close()

	peerServer := transport.NewServer(cfg.Device.Port, syncManager)
	peerServer.Start()

	if err := syncManager.StartDiscovery(); err != nil {
		logger.Log.Warn("Failed to start discovery", zap.Error(err))
	}

	// Scheduler flushes deferred remote work
	scheduler := sync.NewScheduler(cfg.Scheduler, syncManager, debouncer, gateway)
	scheduler.Start()
	defer scheduler.Stop()

	// Init API
	handler := api.NewHandler(cfg, syncManager, gateway, debouncer)
	router := handler.Routes()

	// Start Server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
	}

	go func() {
		logger.Log.Info("Server listening", zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warn("Server shutdown failed", zap.Error(err))
	}
	if err := peerServer.Stop(shutdownCtx); err != nil {
		logger.Log.Warn("Peer server shutdown failed", zap.Error(err))
	}
	if gate != nil {
		gate.Stop()
	}

	// Last chance to push anything still pending
	if err := debouncer.FlushPending(shutdownCtx); err != nil {
		logger.Log.Warn("Final debounce flush failed", zap.Error(err))
	}
	gateway.ProcessPendingQueue(shutdownCtx)
}
