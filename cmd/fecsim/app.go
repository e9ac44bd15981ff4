package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dbehnke/fecsim/pkg/config"
	"github.com/dbehnke/fecsim/pkg/logger"
	"github.com/dbehnke/fecsim/pkg/metrics"
	"github.com/dbehnke/fecsim/pkg/modem"
	"github.com/dbehnke/fecsim/pkg/mqtt"
	"github.com/dbehnke/fecsim/pkg/sweep"
)

// newLogger builds the application logger. A configured file receives a copy
// of everything written to stdout.
func newLogger(cfg config.LoggingConfig) (*logger.Logger, io.Closer, error) {
	var out io.Writer = os.Stdout
	var closer io.Closer

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, f)
		closer = f
	}

	return logger.New(logger.Config{
		Level:  cfg.Level,
		Format: cfg.Format,
		Output: out,
	}), closer, nil
}

// sweepConfig converts the sweep section into a runner configuration
func sweepConfig(cfg config.SweepConfig) (sweep.Config, error) {
	mods := make([]modem.Modulation, 0, len(cfg.Modulations))
	for _, order := range cfg.Modulations {
		m, err := modem.Parse(order)
		if err != nil {
			return sweep.Config{}, err
		}
		mods = append(mods, m)
	}

	return sweep.Config{
		Modulations: mods,
		EbN0Start:   cfg.SNRStart,
		EbN0Stop:    cfg.SNRStop,
		EbN0Step:    cfg.SNRStep,
		InfoBits:    cfg.Bits,
		Trials:      cfg.Runs,
		Coded:       cfg.Coded,
		Uncoded:     cfg.Uncoded,
		Seed:        cfg.Seed,
		Workers:     cfg.Workers,
	}, nil
}

// amcConfig converts the amc section; the search reuses the sweep seed
func amcConfig(cfg config.AMCConfig, seed uint64) sweep.AMCConfig {
	return sweep.AMCConfig{
		Search: sweep.ThresholdSearch{
			TargetBER: cfg.TargetBER,
			Bits:      cfg.Bits,
			Runs:      cfg.Runs,
			Low:       cfg.Low,
			High:      cfg.High,
			Tolerance: cfg.Tolerance,
			Seed:      seed,
		},
		Pilots:     cfg.Pilots,
		SampleSNRs: cfg.SampleSNRs,
	}
}

func mqttConfig(cfg config.MQTTConfig) mqtt.Config {
	return mqtt.Config{
		Enabled:     cfg.Enabled,
		Broker:      cfg.Broker,
		TopicPrefix: cfg.TopicPrefix,
		ClientID:    cfg.ClientID,
		Username:    cfg.Username,
		Password:    cfg.Password,
		QoS:         cfg.QoS,
		Retained:    cfg.Retained,
	}
}

func prometheusConfig(cfg config.MetricsConfig) metrics.PrometheusConfig {
	return metrics.PrometheusConfig{
		Enabled: cfg.Enabled && cfg.Prometheus.Enabled,
		Port:    cfg.Prometheus.Port,
		Path:    cfg.Prometheus.Path,
	}
}

// retention turns the configured days into a prune horizon
func retention(days int) time.Duration {
	if days <= 0 {
		return 0
	}
	return time.Duration(days) * 24 * time.Hour
}
