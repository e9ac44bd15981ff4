package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dbehnke/fecsim/pkg/ber"
	"github.com/dbehnke/fecsim/pkg/config"
	"github.com/dbehnke/fecsim/pkg/database"
	"github.com/dbehnke/fecsim/pkg/export"
	"github.com/dbehnke/fecsim/pkg/logger"
	"github.com/dbehnke/fecsim/pkg/metrics"
	"github.com/dbehnke/fecsim/pkg/mqtt"
	"github.com/dbehnke/fecsim/pkg/sweep"
	"github.com/dbehnke/fecsim/pkg/trellis"
	"github.com/dbehnke/fecsim/pkg/web"
	"github.com/spf13/pflag"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Parse command line flags
	configFile := pflag.StringP("config", "c", "config.yaml", "Path to configuration file")
	showVersion := pflag.BoolP("version", "v", false, "Show version information")
	validate := pflag.Bool("validate", false, "Validate configuration and exit")
	selfTest := pflag.Bool("selftest", false, "Run the built-in self test and exit")
	amc := pflag.Bool("amc", false, "Derive adaptive modulation thresholds instead of sweeping")
	serve := pflag.Bool("serve", false, "Keep the web dashboard running after the work is done")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("fecsim %s (%s, built %s)\n", version, commit, buildTime)
		return 0
	}

	// Basic console logger until the configuration is known
	log := logger.New(logger.Config{
		Level:  "info",
		Format: "text",
	})

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Error("Failed to load configuration", logger.Error(err))
		return 1
	}

	// Validate only mode
	if *validate {
		log.Info("Configuration is valid")
		return 0
	}

	appLog, logCloser, err := newLogger(cfg.Logging)
	if err != nil {
		log.Error("Failed to set up logging", logger.Error(err))
		return 1
	}
	log = appLog
	if logCloser != nil {
		defer func() { _ = logCloser.Close() }()
	}

	log.Info("Starting fecsim",
		logger.String("version", version),
		logger.String("build_time", buildTime),
		logger.String("config_file", *configFile))

	sim := ber.NewSimulator(trellis.New(), log)

	if *selfTest {
		return runSelfTest(sim, log)
	}

	sweepCfg, err := sweepConfig(cfg.Sweep)
	if err != nil {
		log.Error("Invalid sweep configuration", logger.Error(err))
		return 1
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			log.Info("Received shutdown signal", logger.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	var wg sync.WaitGroup
	var opts []sweep.Option

	// Metrics collector sees every trial even when nothing scrapes it
	if cfg.Metrics.Enabled {
		collector := metrics.NewCollector()
		opts = append(opts, sweep.WithSink(collector))

		promCfg := prometheusConfig(cfg.Metrics)
		if promCfg.Enabled {
			metricsServer := metrics.NewPrometheusServer(promCfg, collector, log)
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := metricsServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("Prometheus metrics server error", logger.Error(err))
				}
			}()
		}
	}

	// Result database
	var db *database.DB
	if cfg.Database.Enabled {
		db, err = database.NewDB(database.Config{Path: cfg.Database.Path}, log)
		if err != nil {
			log.Error("Failed to open result database", logger.Error(err))
			return 1
		}
		defer func() { _ = db.Close() }()
		opts = append(opts, sweep.WithSink(database.NewSink(db, retention(cfg.Database.RetentionDays), log)))
	}

	// MQTT publisher; a broker outage only loses the event feed
	var mqttPublisher *mqtt.Publisher
	if cfg.MQTT.Enabled {
		mqttPublisher = mqtt.New(mqttConfig(cfg.MQTT), log)
		if err := mqttPublisher.Start(ctx); err != nil {
			log.Error("MQTT publisher error", logger.Error(err))
		} else {
			opts = append(opts, sweep.WithSink(mqttPublisher))
		}
		defer mqttPublisher.Stop()
	}

	// Web dashboard; the runner must exist before the server takes requests
	var runner *sweep.Runner
	var server *web.Server
	if cfg.Web.Enabled {
		web.SetVersionInfo(version, commit, buildTime)
		server = web.NewServer(cfg.Web, log,
			web.WithDatabase(db),
			web.WithActiveRuns(func() []sweep.Result { return runner.Active() }),
		)
		opts = append(opts, sweep.WithSink(server.GetHub()))
	}

	runner = sweep.NewRunner(sim, log, opts...)

	if server != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Web server error", logger.Error(err))
			}
		}()
	}

	var workErr error
	if *amc {
		workErr = runAMC(ctx, runner, cfg, log)
	} else {
		workErr = runSweep(ctx, runner, sweepCfg, cfg.Export, log)
	}

	if *serve && cfg.Web.Enabled && ctx.Err() == nil {
		log.Info("Work finished; serving dashboard until interrupted")
		<-ctx.Done()
	}

	// Cancel context to trigger graceful shutdown
	cancel()
	wg.Wait()

	if workErr != nil && !errors.Is(workErr, context.Canceled) {
		log.Error("fecsim failed", logger.Error(workErr))
		return 1
	}
	log.Info("fecsim stopped")
	return 0
}

func runSelfTest(sim *ber.Simulator, log *logger.Logger) int {
	checks, err := sim.SelfTest()
	for _, c := range checks {
		if c.Passed {
			log.Info("Self test passed", logger.String("check", c.Name), logger.String("detail", c.Detail))
		} else {
			log.Error("Self test failed", logger.String("check", c.Name), logger.String("detail", c.Detail))
		}
	}
	if err != nil {
		log.Error("Self test failed", logger.Error(err))
		return 1
	}
	log.Info("All self tests passed", logger.Int("checks", len(checks)))
	return 0
}

func runSweep(ctx context.Context, runner *sweep.Runner, cfg sweep.Config, out config.ExportConfig, log *logger.Logger) error {
	res, runErr := runner.Run(ctx, cfg)
	if res == nil {
		return runErr
	}

	// Partial results of a cancelled sweep are still written
	if out.CSV != "" {
		if err := export.WriteCSV(out.CSV, res.Points); err != nil {
			return err
		}
		log.Info("Wrote BER table", logger.String("path", out.CSV), logger.Int("points", len(res.Points)))
	}
	if out.Summary != "" {
		if err := export.WriteSummary(out.Summary, res); err != nil {
			return err
		}
		log.Info("Wrote run summary", logger.String("path", out.Summary))
	}
	return runErr
}

func runAMC(ctx context.Context, runner *sweep.Runner, cfg *config.Config, log *logger.Logger) error {
	report, err := runner.RunAMC(ctx, amcConfig(cfg.AMC, cfg.Sweep.Seed))
	if err != nil {
		return err
	}
	if cfg.Export.Summary != "" {
		if err := export.WriteYAML(cfg.Export.Summary, report); err != nil {
			return err
		}
		log.Info("Wrote AMC report", logger.String("path", cfg.Export.Summary))
	}
	return nil
}
