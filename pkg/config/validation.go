package config

import (
	"fmt"
	"strings"
)

// validate validates the configuration
func validate(cfg *Config) error {
	// Validate sweep config
	if len(cfg.Sweep.Modulations) == 0 {
		return fmt.Errorf("sweep.modulations must list at least one order")
	}
	for _, m := range cfg.Sweep.Modulations {
		if m != 2 && m != 4 && m != 16 {
			return fmt.Errorf("sweep.modulations: unsupported order %d (must be 2, 4 or 16)", m)
		}
	}
	if cfg.Sweep.SNRStep <= 0 {
		return fmt.Errorf("sweep.snr_step must be positive")
	}
	if cfg.Sweep.SNRStop < cfg.Sweep.SNRStart {
		return fmt.Errorf("sweep.snr_stop must be >= sweep.snr_start")
	}
	if cfg.Sweep.SNRStart < -50 || cfg.Sweep.SNRStop > 50 {
		return fmt.Errorf("sweep SNR range must lie within [-50, 50] dB")
	}
	if cfg.Sweep.Bits <= 0 || cfg.Sweep.Bits > 100_000_000 {
		return fmt.Errorf("sweep.bits must be between 1 and 100000000")
	}
	if cfg.Sweep.Runs <= 0 {
		return fmt.Errorf("sweep.runs must be positive")
	}
	if !cfg.Sweep.Coded && !cfg.Sweep.Uncoded {
		return fmt.Errorf("at least one of sweep.coded and sweep.uncoded must be enabled")
	}
	if cfg.Sweep.Workers < 0 {
		return fmt.Errorf("sweep.workers must not be negative")
	}

	// Validate AMC config
	if cfg.AMC.TargetBER <= 0 || cfg.AMC.TargetBER >= 1 {
		return fmt.Errorf("amc.target_ber must be between 0 and 1")
	}
	if cfg.AMC.High <= cfg.AMC.Low {
		return fmt.Errorf("amc.high must be greater than amc.low")
	}
	if cfg.AMC.Tolerance <= 0 {
		return fmt.Errorf("amc.tolerance must be positive")
	}
	if cfg.AMC.Pilots <= 0 || cfg.AMC.Pilots > 1_000_000 {
		return fmt.Errorf("amc.pilots must be between 1 and 1000000")
	}

	// Validate database config
	if cfg.Database.Enabled && cfg.Database.Path == "" {
		return fmt.Errorf("database.path is required when the database is enabled")
	}

	// Validate web config
	if cfg.Web.Enabled {
		if cfg.Web.Port <= 0 || cfg.Web.Port > 65535 {
			return fmt.Errorf("web.port must be between 1 and 65535")
		}
	}

	// Validate MQTT config
	if cfg.MQTT.Enabled {
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
		}
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
	}

	// Validate metrics config
	if cfg.Metrics.Enabled && cfg.Metrics.Prometheus.Enabled {
		if cfg.Metrics.Prometheus.Port <= 0 || cfg.Metrics.Prometheus.Port > 65535 {
			return fmt.Errorf("metrics.prometheus.port must be between 1 and 65535")
		}
	}

	// Validate logging config
	switch strings.ToLower(cfg.Logging.Format) {
	case "", "text", "json", "logfmt":
	default:
		return fmt.Errorf("logging.format must be text, json or logfmt")
	}

	// Validate export config
	if cfg.Export.CSV != "" {
		lower := strings.ToLower(cfg.Export.CSV)
		if !strings.HasSuffix(lower, ".csv") && !strings.HasSuffix(lower, ".csv.gz") {
			return fmt.Errorf("export.csv must end in .csv or .csv.gz")
		}
	}

	return nil
}
