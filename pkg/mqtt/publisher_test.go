package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dbehnke/fecsim/pkg/modem"
	"github.com/dbehnke/fecsim/pkg/sweep"
	paho "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	connectErr   error
	publishErr   error
	messages     []published
	disconnected bool
}

func (c *fakeClient) Connect() paho.Token { return &fakeToken{err: c.connectErr} }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic, qos, retained, payload.([]byte)})
	return &fakeToken{err: c.publishErr}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func newTestPublisher(t *testing.T, fc *fakeClient) *Publisher {
	t.Helper()
	pub := New(Config{
		Enabled:     true,
		Broker:      "tcp://localhost:1883",
		TopicPrefix: "fecsim/test/",
		ClientID:    "test-client",
		QoS:         1,
		Retained:    true,
	}, nil)
	pub.newClient = func(*paho.ClientOptions) client { return fc }
	if err := pub.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return pub
}

// TestNewPublisher tests creating a new MQTT publisher
func TestNewPublisher(t *testing.T) {
	config := Config{
		Enabled:     true,
		Broker:      "tcp://localhost:1883",
		TopicPrefix: "fecsim",
		ClientID:    "test-client",
		QoS:         1,
	}

	pub := New(config, nil)
	if pub == nil {
		t.Fatal("Expected non-nil publisher")
	}

	if pub.config.Broker != config.Broker {
		t.Errorf("Expected broker %s, got %s", config.Broker, pub.config.Broker)
	}
}

// TestPublisher_DisabledIsNoop tests that a disabled publisher never connects
func TestPublisher_DisabledIsNoop(t *testing.T) {
	pub := New(Config{Enabled: false}, nil)
	pub.newClient = func(*paho.ClientOptions) client {
		t.Fatal("client should not be created when disabled")
		return nil
	}
	ctx := context.Background()

	if err := pub.Start(ctx); err != nil {
		t.Errorf("Expected no error when disabled, got %v", err)
	}
	if err := pub.RunStarted(ctx, &sweep.Result{RunID: "x"}); err != nil {
		t.Errorf("Expected no error when disabled, got %v", err)
	}
	if err := pub.PointCompleted(ctx, sweep.Point{Modulation: modem.BPSK}); err != nil {
		t.Errorf("Expected no error when disabled, got %v", err)
	}
	if err := pub.RunFinished(ctx, &sweep.Result{RunID: "x"}); err != nil {
		t.Errorf("Expected no error when disabled, got %v", err)
	}

	// Should not panic when stopping without starting
	pub.Stop()
}

// TestPublisher_NotConnected tests publishing before Start
func TestPublisher_NotConnected(t *testing.T) {
	pub := New(Config{Enabled: true, TopicPrefix: "fecsim"}, nil)

	err := pub.RunStarted(context.Background(), &sweep.Result{RunID: "x"})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
}

// TestPublisher_ConnectError tests broker connection failure
func TestPublisher_ConnectError(t *testing.T) {
	pub := New(Config{Enabled: true, Broker: "tcp://localhost:1"}, nil)
	pub.newClient = func(*paho.ClientOptions) client {
		return &fakeClient{connectErr: errors.New("refused")}
	}

	if err := pub.Start(context.Background()); err == nil {
		t.Error("Expected connection error")
	}
}

// TestPublisher_SweepEvents tests the topics and payloads of a sweep
func TestPublisher_SweepEvents(t *testing.T) {
	fc := &fakeClient{}
	pub := newTestPublisher(t, fc)
	ctx := context.Background()

	res := &sweep.Result{
		RunID:  "run-1",
		Status: sweep.StatusRunning,
		Config: sweep.Config{
			Modulations: []modem.Modulation{modem.QPSK, modem.QAM16},
			EbN0Start:   0, EbN0Stop: 10, EbN0Step: 5,
			InfoBits: 1000, Trials: 2,
		},
		StartedAt: time.Now(),
	}
	pt := sweep.Point{RunID: "run-1", Modulation: modem.QAM16, EbN0dB: 5, Coded: true, Trials: 2, Bits: 2000, Errors: 10, BER: 0.005, Duration: 250 * time.Millisecond}

	if err := pub.RunStarted(ctx, res); err != nil {
		t.Fatalf("RunStarted failed: %v", err)
	}
	if err := pub.PointCompleted(ctx, pt); err != nil {
		t.Fatalf("PointCompleted failed: %v", err)
	}
	res.Status = sweep.StatusCompleted
	res.Points = []sweep.Point{pt}
	if err := pub.RunFinished(ctx, res); err != nil {
		t.Fatalf("RunFinished failed: %v", err)
	}

	wantTopics := []string{
		"fecsim/test/runs/started",
		"fecsim/test/points/16qam/coded",
		"fecsim/test/runs/finished",
	}
	if len(fc.messages) != len(wantTopics) {
		t.Fatalf("Expected %d messages, got %d", len(wantTopics), len(fc.messages))
	}
	for i, want := range wantTopics {
		if fc.messages[i].topic != want {
			t.Errorf("message %d topic = %s, want %s", i, fc.messages[i].topic, want)
		}
		if fc.messages[i].qos != 1 || !fc.messages[i].retained {
			t.Errorf("message %d qos/retained not taken from config", i)
		}
	}

	var pe PointEvent
	if err := json.Unmarshal(fc.messages[1].payload, &pe); err != nil {
		t.Fatalf("Failed to decode point payload: %v", err)
	}
	if pe.Modulation != "16QAM" || pe.Errors != 10 || pe.BER != 0.005 || pe.DurationMS != 250 {
		t.Errorf("unexpected point payload: %+v", pe)
	}

	var re RunEvent
	if err := json.Unmarshal(fc.messages[2].payload, &re); err != nil {
		t.Fatalf("Failed to decode run payload: %v", err)
	}
	if re.Status != sweep.StatusCompleted || re.Points != 1 || len(re.Modulations) != 2 {
		t.Errorf("unexpected run payload: %+v", re)
	}

	pub.Stop()
	if !fc.disconnected {
		t.Error("Expected client to disconnect on Stop")
	}
}

// TestPublisher_PublishError tests broker side publish failures
func TestPublisher_PublishError(t *testing.T) {
	fc := &fakeClient{publishErr: errors.New("broker full")}
	pub := newTestPublisher(t, fc)

	err := pub.PointCompleted(context.Background(), sweep.Point{Modulation: modem.BPSK})
	if err == nil {
		t.Error("Expected publish error")
	}
}

// TestFormatTopic tests topic formatting
func TestFormatTopic(t *testing.T) {
	tests := []struct {
		prefix string
		suffix string
		want   string
	}{
		{"fecsim", "runs/started", "fecsim/runs/started"},
		{"fecsim/", "runs/started", "fecsim/runs/started"},
		{"", "runs/started", "runs/started"},
		{"lab/sim", "points/bpsk/uncoded", "lab/sim/points/bpsk/uncoded"},
	}

	for _, tt := range tests {
		pub := New(Config{TopicPrefix: tt.prefix}, nil)
		if got := pub.formatTopic(tt.suffix); got != tt.want {
			t.Errorf("formatTopic(%q, %q) = %q, want %q", tt.prefix, tt.suffix, got, tt.want)
		}
	}
}
