package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gatewaycred/internal/backup"
	"gatewaycred/internal/clock"
	"gatewaycred/internal/config"
	"gatewaycred/internal/constants"
	"gatewaycred/internal/credential"
	"gatewaycred/internal/ipadmission"
	"gatewaycred/internal/logging"
	"gatewaycred/internal/oauth"
	"gatewaycred/internal/proxy"
	srv "gatewaycred/internal/server"

	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	debug := flag.Bool("debug", false, "enable debug mode")
	flag.Parse()

	watcher, err := config.NewWatcher(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	defer watcher.Close()

	cfg := watcher.Get()
	if *debug {
		cfg.Security.Debug = true
	}

	if err := logging.Setup(cfg); err != nil {
		log.WithError(err).Fatal("failed to configure logging")
	}

	log.Infof("starting gatewaycred (config: %s)", *configPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	oauthMgr := oauth.NewManager(os.Getenv("GATEWAY_OAUTH_CLIENT_ID"), os.Getenv("GATEWAY_OAUTH_CLIENT_SECRET"), os.Getenv("GATEWAY_OAUTH_REDIRECT_URI"))

	pool, err := credential.Open(cfg.CredentialsDir, oauthMgr)
	if err != nil {
		log.WithError(err).Fatal("failed to open credential pool")
	}
	defer pool.Close()

	ipStatsPath := filepath.Join(cfg.CredentialsDir, "ip_stats.toml")
	banOpsPath := filepath.Join(cfg.CredentialsDir, "ban_operations.toml")

	ipManager, err := ipadmission.New(ipadmission.Options{
		StatsPath:  ipStatsPath,
		BanOpsPath: banOpsPath,
		Resolver:   clock.NewLocationResolver(),
	})
	if err != nil {
		log.WithError(err).Fatal("failed to open ip admission manager")
	}
	defer ipManager.Close()

	engine := proxy.NewEngine(cfg, pool)

	if cfg.BackupEnabled {
		sched := backup.New(backup.Options{
			RepoDir:        cfg.BackupRepoDir,
			CredentialsDir: cfg.CredentialsDir,
			IPStatsPath:    ipStatsPath,
			BanOpsPath:     banOpsPath,
		})
		sched.Start(ctx)
		defer sched.Stop()
	}

	httpEngine := srv.BuildEngine(cfg, srv.Dependencies{
		Pool:      pool,
		IPManager: ipManager,
		Engine:    engine,
	})

	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: httpEngine}

	go func() {
		log.Infof("listening on %s", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutdown signal received")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), constants.ServerShutdownTimeout)
	defer cancelShutdown()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown error")
	}
	time.Sleep(constants.ServerGracefulWait)
	log.Info("server stopped")
}
