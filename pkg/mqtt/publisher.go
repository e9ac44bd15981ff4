package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dbehnke/fecsim/pkg/logger"
	"github.com/dbehnke/fecsim/pkg/sweep"
	paho "github.com/eclipse/paho.mqtt.golang"
)

// Config holds MQTT publisher configuration
type Config struct {
	Enabled     bool
	Broker      string
	TopicPrefix string
	ClientID    string
	Username    string
	Password    string
	QoS         byte
	Retained    bool
}

// ErrNotConnected is returned when publishing before Start succeeded
var ErrNotConnected = errors.New("mqtt: not connected")

const publishTimeout = 5 * time.Second

// client is the subset of the paho client the publisher uses
type client interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Publisher publishes sweep progress to an MQTT broker
type Publisher struct {
	config Config
	log    *logger.Logger

	mu        sync.Mutex
	client    client
	newClient func(*paho.ClientOptions) client
}

// Event types for MQTT publishing

// RunEvent describes a sweep starting or finishing
type RunEvent struct {
	RunID       string    `json:"run_id"`
	Status      string    `json:"status"`
	Modulations []string  `json:"modulations"`
	EbN0Start   float64   `json:"ebn0_start"`
	EbN0Stop    float64   `json:"ebn0_stop"`
	EbN0Step    float64   `json:"ebn0_step"`
	InfoBits    int       `json:"info_bits"`
	Trials      int       `json:"trials"`
	Points      int       `json:"points"`
	Timestamp   time.Time `json:"timestamp"`
}

// PointEvent carries one aggregated BER point
type PointEvent struct {
	RunID      string    `json:"run_id"`
	Modulation string    `json:"modulation"`
	EbN0dB     float64   `json:"ebn0_db"`
	Coded      bool      `json:"coded"`
	Trials     int       `json:"trials"`
	Bits       int       `json:"bits"`
	Errors     int       `json:"errors"`
	BER        float64   `json:"ber"`
	TheoryBER  float64   `json:"theory_ber"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// New creates a new MQTT publisher
func New(config Config, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.New(logger.Config{Level: "info", Format: "text"})
	}

	return &Publisher{
		config: config,
		log:    log.WithComponent("mqtt"),
		newClient: func(opts *paho.ClientOptions) client {
			return paho.NewClient(opts)
		},
	}
}

// Start connects to the broker
func (p *Publisher) Start(ctx context.Context) error {
	if !p.config.Enabled {
		p.log.Info("MQTT publisher disabled")
		return nil
	}

	p.log.Info("Starting MQTT publisher",
		logger.String("broker", p.config.Broker),
		logger.String("client_id", p.config.ClientID))

	opts := paho.NewClientOptions()
	opts.AddBroker(p.config.Broker)
	opts.SetClientID(p.config.ClientID)
	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
	}
	if p.config.Password != "" {
		opts.SetPassword(p.config.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(paho.Client) {
		p.log.Info("Connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		p.log.Warn("MQTT connection lost", logger.Error(err))
	})

	c := p.newClient(opts)
	token := c.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	p.mu.Lock()
	p.client = c
	p.mu.Unlock()
	return nil
}

// Stop disconnects from the broker
func (p *Publisher) Stop() {
	if !p.config.Enabled {
		return
	}

	p.mu.Lock()
	c := p.client
	p.client = nil
	p.mu.Unlock()

	if c != nil {
		p.log.Info("Stopping MQTT publisher")
		c.Disconnect(250)
	}
}

// PublishRunStarted publishes a run start event
func (p *Publisher) PublishRunStarted(res *sweep.Result) error {
	if !p.config.Enabled {
		return nil
	}
	return p.publish(p.formatTopic("runs/started"), newRunEvent(res, res.StartedAt))
}

// PublishPoint publishes a finished point
func (p *Publisher) PublishPoint(pt sweep.Point) error {
	if !p.config.Enabled {
		return nil
	}

	event := PointEvent{
		RunID:      pt.RunID,
		Modulation: pt.Modulation.String(),
		EbN0dB:     pt.EbN0dB,
		Coded:      pt.Coded,
		Trials:     pt.Trials,
		Bits:       pt.Bits,
		Errors:     pt.Errors,
		BER:        pt.BER,
		TheoryBER:  pt.TheoryBER,
		DurationMS: pt.Duration.Milliseconds(),
		Timestamp:  time.Now(),
	}
	return p.publish(p.formatTopic(pointTopic(pt)), event)
}

// PublishRunFinished publishes a run end event
func (p *Publisher) PublishRunFinished(res *sweep.Result) error {
	if !p.config.Enabled {
		return nil
	}
	return p.publish(p.formatTopic("runs/finished"), newRunEvent(res, res.FinishedAt))
}

// RunStarted implements sweep.Sink
func (p *Publisher) RunStarted(_ context.Context, res *sweep.Result) error {
	return p.PublishRunStarted(res)
}

// PointCompleted implements sweep.Sink
func (p *Publisher) PointCompleted(_ context.Context, pt sweep.Point) error {
	return p.PublishPoint(pt)
}

// RunFinished implements sweep.Sink
func (p *Publisher) RunFinished(_ context.Context, res *sweep.Result) error {
	return p.PublishRunFinished(res)
}

func newRunEvent(res *sweep.Result, ts time.Time) RunEvent {
	names := make([]string, len(res.Config.Modulations))
	for i, m := range res.Config.Modulations {
		names[i] = m.String()
	}
	return RunEvent{
		RunID:       res.RunID,
		Status:      res.Status,
		Modulations: names,
		EbN0Start:   res.Config.EbN0Start,
		EbN0Stop:    res.Config.EbN0Stop,
		EbN0Step:    res.Config.EbN0Step,
		InfoBits:    res.Config.InfoBits,
		Trials:      res.Config.Trials,
		Points:      len(res.Points),
		Timestamp:   ts,
	}
}

func pointTopic(pt sweep.Point) string {
	kind := "uncoded"
	if pt.Coded {
		kind = "coded"
	}
	return fmt.Sprintf("points/%s/%s", strings.ToLower(pt.Modulation.String()), kind)
}

// publish publishes an event to a topic
func (p *Publisher) publish(topic string, event interface{}) error {
	payload, err := p.serializeEvent(event)
	if err != nil {
		p.log.Error("Failed to serialize event",
			logger.String("topic", topic),
			logger.Error(err))
		return err
	}

	p.mu.Lock()
	c := p.client
	p.mu.Unlock()
	if c == nil {
		return ErrNotConnected
	}

	token := c.Publish(topic, p.config.QoS, p.config.Retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %s: %w", topic, err)
	}

	p.log.Debug("Published MQTT event",
		logger.String("topic", topic),
		logger.Int("payload_size", len(payload)))
	return nil
}

// serializeEvent serializes an event to JSON
func (p *Publisher) serializeEvent(event interface{}) ([]byte, error) {
	return json.Marshal(event)
}

// formatTopic formats a topic with the configured prefix
func (p *Publisher) formatTopic(suffix string) string {
	prefix := strings.TrimSuffix(p.config.TopicPrefix, "/")
	if prefix == "" {
		return suffix
	}
	return fmt.Sprintf("%s/%s", prefix, suffix)
}
