package testhelpers

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/dbehnke/fecsim/pkg/config"
	"github.com/dbehnke/fecsim/pkg/database"
	"github.com/dbehnke/fecsim/pkg/logger"
)

// IntegrationSuite provides infrastructure for integration tests
type IntegrationSuite struct {
	T      *testing.T
	Config *config.Config
	Logger *logger.Logger
	Ctx    context.Context
	Cancel context.CancelFunc
	DB     *database.DB
	Sinks  []*RecordingSink
}

// NewIntegrationSuite creates a new integration test suite
func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)

	log := logger.New(logger.Config{
		Level:  "warn",
		Format: "text",
	})

	return &IntegrationSuite{
		T:      t,
		Config: CreateDefaultConfig(),
		Logger: log,
		Ctx:    ctx,
		Cancel: cancel,
	}
}

// OpenDB opens a result database in a temp directory, once per suite
func (s *IntegrationSuite) OpenDB() *database.DB {
	if s.DB != nil {
		return s.DB
	}
	db, err := database.NewDB(database.Config{Path: filepath.Join(s.T.TempDir(), "fecsim.db")}, s.Logger)
	if err != nil {
		s.T.Fatalf("Failed to create database: %v", err)
	}
	s.DB = db
	return db
}

// CreateRecordingSink creates a sink and adds it to the suite
func (s *IntegrationSuite) CreateRecordingSink() *RecordingSink {
	sink := NewRecordingSink()
	s.Sinks = append(s.Sinks, sink)
	return sink
}

// GetFreePort gets a free port for testing
func (s *IntegrationSuite) GetFreePort() int {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		s.T.Fatal(err)
	}

	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		s.T.Fatal(err)
	}
	defer func() { _ = listener.Close() }()

	return listener.Addr().(*net.TCPAddr).Port
}

// Cleanup cleans up resources
func (s *IntegrationSuite) Cleanup() {
	if s.DB != nil {
		_ = s.DB.Close()
		s.DB = nil
	}
	s.Cancel()
}

// WaitFor waits for a condition to be true
func (s *IntegrationSuite) WaitFor(condition func() bool, timeout time.Duration, message string) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	s.T.Logf("WaitFor timeout: %s", message)
	return false
}

// AssertEventually asserts that a condition becomes true within timeout
func (s *IntegrationSuite) AssertEventually(condition func() bool, timeout time.Duration, message string) {
	if !s.WaitFor(condition, timeout, message) {
		s.T.Errorf("Assertion failed: %s", message)
	}
}

// CreateDefaultConfig creates a small, fast test configuration
func CreateDefaultConfig() *config.Config {
	return &config.Config{
		Sweep: config.SweepConfig{
			Modulations: []int{2, 4, 16},
			SNRStart:    0,
			SNRStop:     4,
			SNRStep:     2,
			Bits:        2000,
			Runs:        2,
			Coded:       true,
			Uncoded:     true,
			Seed:        1,
			Workers:     2,
		},
		AMC: config.AMCConfig{
			TargetBER:  1e-2,
			Bits:       20000,
			Runs:       1,
			Low:        0,
			High:       30,
			Tolerance:  0.5,
			Pilots:     100,
			SampleSNRs: []float64{0, 25},
		},
		Database: config.DatabaseConfig{Enabled: false},
		Web:      config.WebConfig{Enabled: false, Host: "127.0.0.1"},
		MQTT:     config.MQTTConfig{Enabled: false},
		Logging:  config.LoggingConfig{Level: "warn", Format: "text"},
		Metrics:  config.MetricsConfig{Enabled: false},
	}
}
