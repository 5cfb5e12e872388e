package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/skyrookie/opentrack/internal/monitoring"
	"github.com/skyrookie/opentrack/internal/pose"
)

// MQTTConfig configures the MQTT publisher sink.
type MQTTConfig struct {
	// Broker is the broker URL, e.g. "tcp://localhost:1883".
	Broker string
	// Topic defaults to "headtrack/pose".
	Topic string
	// ClientID defaults to "headtrack".
	ClientID string
	// Interval throttles publishes; the 250 Hz cycle rate would swamp
	// most brokers. Defaults to 50ms (20 Hz).
	Interval time.Duration
}

// posePayload is the published JSON document.
type posePayload struct {
	TX    float64 `json:"tx"`
	TY    float64 `json:"ty"`
	TZ    float64 `json:"tz"`
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// MQTTSink publishes throttled pose updates as JSON. Only the pipeline
// goroutine calls Pose, so the throttle state needs no lock.
type MQTTSink struct {
	client   mqtt.Client
	topic    string
	interval time.Duration
	lastPub  time.Time
}

// NewMQTTSink connects to the broker.
func NewMQTTSink(cfg MQTTConfig) (*MQTTSink, error) {
	if cfg.Topic == "" {
		cfg.Topic = "headtrack/pose"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "headtrack"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 50 * time.Millisecond
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, token.Error())
	}

	return &MQTTSink{client: client, topic: cfg.Topic, interval: cfg.Interval}, nil
}

// Pose publishes the pose if the throttle interval has elapsed. The
// publish token is not waited on; delivery failures surface through the
// client's reconnect machinery.
func (s *MQTTSink) Pose(p pose.Pose) {
	now := time.Now()
	if now.Sub(s.lastPub) < s.interval {
		return
	}
	s.lastPub = now

	payload, err := json.Marshal(posePayload{
		TX: p[pose.TX], TY: p[pose.TY], TZ: p[pose.TZ],
		Yaw: p[pose.Yaw], Pitch: p[pose.Pitch], Roll: p[pose.Roll],
	})
	if err != nil {
		monitoring.Logf("protocol: MQTT encode failed: %v", err)
		return
	}
	s.client.Publish(s.topic, 0, false, payload)
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	return nil
}
