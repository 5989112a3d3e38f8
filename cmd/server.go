package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"CapIot.ixonsync/internal/config"
	"CapIot.ixonsync/internal/controller"
	"CapIot.ixonsync/internal/ixon"
	"CapIot.ixonsync/internal/logger"
	"CapIot.ixonsync/internal/middleware"
	"CapIot.ixonsync/internal/models"
	"CapIot.ixonsync/internal/observability"
	"CapIot.ixonsync/internal/repository"
	"CapIot.ixonsync/internal/routes"
	"CapIot.ixonsync/internal/service"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup happens before exit.
func run() int {
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	configFile := pflag.String("config", "", "optional YAML config file")
	once := pflag.String("once", "", "run one pipeline (csv or influx) and exit instead of serving")
	pflag.Parse()

	cfg, err := config.LoadConfig(*envFile, *configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return 1
	}
	log := logger.Get(cfg.Server.LogLevel)
	defer log.Sync()

	if err := cfg.ValidateIxon(); err != nil {
		log.Errorw("invalid IXON configuration", "err", err)
		return 1
	}

	ctx := context.Background()
	runner, cleanup := buildRunner(ctx, cfg, log)
	defer cleanup()

	if *once != "" {
		return runOnce(ctx, runner, *once, log)
	}

	if err := serve(cfg, runner, log); err != nil {
		log.Errorw("server stopped", "err", err)
		return 1
	}
	return 0
}

// runOnce runs a single pipeline. Only an unknown pipeline is an error; a
// failed run is reported but still exits 0.
func runOnce(ctx context.Context, runner *service.Runner, name string, log *logger.Logger) int {
	report, err := runner.Run(ctx, name)
	if err != nil {
		log.Errorw("cannot run pipeline", "pipeline", name, "err", err)
		return 1
	}
	log.Infow("run report", "report", report)
	return 0
}

// buildRunner wires every pipeline whose sink is configured.
func buildRunner(ctx context.Context, cfg config.Config, log *logger.Logger) (*service.Runner, func()) {
	var closers []func()
	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}

	client := ixon.NewClient(ixon.Config{
		APIURL:    cfg.Ixon.APIURL,
		LSIURL:    cfg.Ixon.LSIURL,
		APIKey:    cfg.Ixon.APIKey,
		CompanyID: cfg.Ixon.CompanyID,
		AgentID:   cfg.Ixon.AgentID,
		DeviceID:  cfg.Ixon.DeviceID,
		BasicAuth: cfg.Ixon.BasicAuth(),
		Timezone:  cfg.Ixon.Timezone,
		Timeout:   cfg.Ixon.HTTPTimeout,
	})
	sessions := service.IxonSessions(client)
	pipelines := map[string]service.Pipeline{}

	if err := cfg.ValidateStorage(); err != nil {
		log.Warnw("csv pipeline disabled", "err", err)
	} else if store, err := repository.NewGCSObjectStore(ctx, cfg.Storage.Bucket, cfg.Storage.Object); err != nil {
		log.Warnw("csv pipeline disabled", "err", err)
	} else {
		closers = append(closers, func() { store.Close() })
		pipelines[models.PipelineCSV] = service.NewCSVSyncService(sessions, store, log)
	}

	if err := cfg.ValidateInflux(); err != nil {
		log.Warnw("influx pipeline disabled", "err", err)
	} else {
		repo := repository.NewInfluxDBRepository(repository.InfluxDBOptions{
			URL:         cfg.Influx.URL(),
			Token:       cfg.Influx.AuthToken(),
			Org:         cfg.Influx.Org,
			Database:    cfg.Influx.Database,
			Measurement: cfg.Influx.Measurement,
			BatchSize:   cfg.Influx.BatchSize,
		})
		if err := repo.Health(ctx); err != nil {
			log.Warnw("InfluxDB is not healthy yet", "err", err)
		}
		closers = append(closers, repo.Close)
		pipelines[models.PipelineInflux] = service.NewInfluxSyncService(sessions, repo, cfg.Influx.Measurement, cfg.Influx.CreateDatabase, log)
	}

	var reports repository.ReportStore
	if cfg.Redis.Addr != "" {
		rdb, err := repository.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warnw("run reports will not be kept", "err", err)
		} else {
			closers = append(closers, func() { rdb.Close() })
			reports = repository.NewRedisReportStore(rdb, cfg.Redis.ReportTTL)
		}
	}

	metrics := observability.NewMetrics()
	return service.NewRunner(pipelines, reports, metrics, log), cleanup
}

func serve(cfg config.Config, runner *service.Runner, log *logger.Logger) error {
	auth, err := middleware.NewTriggerAuth(cfg.Trigger.Secret, cfg.Trigger.Issuer, cfg.Trigger.Audience)
	if err != nil {
		return fmt.Errorf("invalid trigger auth configuration: %w", err)
	}
	if auth == nil {
		log.Warnw("TRIGGER_JWT_SECRET not set, sync endpoints are open")
	}

	ctrl := controller.NewSyncController(runner, log)
	router := routes.NewRouter(ctrl, auth, runner.MetricsHandler())
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           routes.WithCORS(router, cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infow("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("error starting server: %w", err)
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return err
	case <-quit:
	}
	log.Infow("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
