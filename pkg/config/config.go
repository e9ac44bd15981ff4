package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Sweep    SweepConfig    `mapstructure:"sweep"`
	AMC      AMCConfig      `mapstructure:"amc"`
	Database DatabaseConfig `mapstructure:"database"`
	Web      WebConfig      `mapstructure:"web"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Export   ExportConfig   `mapstructure:"export"`
}

// SweepConfig describes the Eb/N0 sweep
type SweepConfig struct {
	Modulations []int   `mapstructure:"modulations"` // orders: 2, 4, 16
	SNRStart    float64 `mapstructure:"snr_start"`   // dB
	SNRStop     float64 `mapstructure:"snr_stop"`    // dB
	SNRStep     float64 `mapstructure:"snr_step"`    // dB
	Bits        int     `mapstructure:"bits"`        // information bits per trial
	Runs        int     `mapstructure:"runs"`        // trials per point
	Coded       bool    `mapstructure:"coded"`
	Uncoded     bool    `mapstructure:"uncoded"`
	Seed        uint64  `mapstructure:"seed"`
	Workers     int     `mapstructure:"workers"` // 0 = GOMAXPROCS
}

// AMCConfig holds the adaptive modulation threshold search
type AMCConfig struct {
	TargetBER  float64   `mapstructure:"target_ber"`
	Bits       int       `mapstructure:"bits"`
	Runs       int       `mapstructure:"runs"`
	Low        float64   `mapstructure:"low"`
	High       float64   `mapstructure:"high"`
	Tolerance  float64   `mapstructure:"tolerance"`
	Pilots     int       `mapstructure:"pilots"`
	SampleSNRs []float64 `mapstructure:"sample_snrs"`
}

// DatabaseConfig holds the result store location
type DatabaseConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"` // 0 keeps everything
}

// WebConfig holds web dashboard configuration
type WebConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// MQTTConfig holds MQTT client configuration
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	QoS         byte   `mapstructure:"qos"`
	Retained    bool   `mapstructure:"retained"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text, json or logfmt
	File   string `mapstructure:"file"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled    bool             `mapstructure:"enabled"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig holds Prometheus metrics configuration
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// ExportConfig controls the files written after a sweep
type ExportConfig struct {
	CSV     string `mapstructure:"csv"`     // .csv, .csv.gz or .csv.zst
	Summary string `mapstructure:"summary"` // YAML run summary
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	// Set defaults
	setDefaults()

	// Set config file
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/fecsim")
	}

	// Environment variables
	viper.SetEnvPrefix("FECSIM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is OK, use defaults
		} else if os.IsNotExist(err) {
			// File explicitly specified but doesn't exist - that's also OK
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal to struct
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Sweep defaults
	viper.SetDefault("sweep.modulations", []int{2, 4, 16})
	viper.SetDefault("sweep.snr_start", 0.0)
	viper.SetDefault("sweep.snr_stop", 20.0)
	viper.SetDefault("sweep.snr_step", 1.0)
	viper.SetDefault("sweep.bits", 500000)
	viper.SetDefault("sweep.runs", 2)
	viper.SetDefault("sweep.coded", true)
	viper.SetDefault("sweep.uncoded", true)
	viper.SetDefault("sweep.seed", 1)
	viper.SetDefault("sweep.workers", 0)

	// AMC defaults
	viper.SetDefault("amc.target_ber", 1e-5)
	viper.SetDefault("amc.bits", 1000000)
	viper.SetDefault("amc.runs", 2)
	viper.SetDefault("amc.low", 0.0)
	viper.SetDefault("amc.high", 30.0)
	viper.SetDefault("amc.tolerance", 0.1)
	viper.SetDefault("amc.pilots", 200)
	viper.SetDefault("amc.sample_snrs", []float64{5, 10, 15, 20})

	// Database defaults
	viper.SetDefault("database.enabled", true)
	viper.SetDefault("database.path", "fecsim.db")
	viper.SetDefault("database.retention_days", 30)

	// Web defaults
	viper.SetDefault("web.enabled", false)
	viper.SetDefault("web.host", "0.0.0.0")
	viper.SetDefault("web.port", 8080)

	// MQTT defaults
	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.topic_prefix", "fecsim")
	viper.SetDefault("mqtt.client_id", "fecsim")
	viper.SetDefault("mqtt.qos", 1)
	viper.SetDefault("mqtt.retained", false)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.prometheus.enabled", false)
	viper.SetDefault("metrics.prometheus.port", 9090)
	viper.SetDefault("metrics.prometheus.path", "/metrics")

	// Export defaults
	viper.SetDefault("export.csv", "")
	viper.SetDefault("export.summary", "")
}
