// Package mqttx subscribes to beacon publishes and feeds them to the
// presence engine as detections.
package mqttx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"beacon-presence-api/internal/config"
	"beacon-presence-api/internal/logx"
	"beacon-presence-api/internal/presence"
)

// Recorder is the ingestion entry point detections are handed to.
type Recorder interface {
	Record(ctx context.Context, d presence.Detection) (presence.Result, error)
}

// payload is what beacons publish on beacons/<beaconId>/detections.
type payload struct {
	BeaconID   string `json:"beacon_id"`
	UserID     string `json:"user_id"`
	DeviceID   string `json:"device_id"`
	Kind       string `json:"kind"`
	ObservedAt string `json:"observed_at"`
}

// Decode turns one publish into a detection. The beacon id falls back to the
// second topic segment; a missing kind means visit and a missing timestamp is
// left zero for the engine's clock to fill.
func Decode(topic string, body []byte) (presence.Detection, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return presence.Detection{}, fmt.Errorf("decode payload: %w", err)
	}
	if p.BeaconID == "" {
		if parts := strings.Split(topic, "/"); len(parts) >= 2 {
			p.BeaconID = parts[1]
		}
	}
	d := presence.Detection{
		UserID:   strings.TrimSpace(p.UserID),
		DeviceID: strings.TrimSpace(p.DeviceID),
		BeaconID: strings.TrimSpace(p.BeaconID),
		Kind:     presence.Kind(strings.ToLower(strings.TrimSpace(p.Kind))),
	}
	if d.Kind == "" {
		d.Kind = presence.KindVisit
	}
	if p.ObservedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, p.ObservedAt)
		if err != nil {
			return presence.Detection{}, fmt.Errorf("observed_at: %w", err)
		}
		d.ObservedAt = t
	}
	return d, nil
}

// Subscriber owns the MQTT connection.
type Subscriber struct {
	client   mqtt.Client
	topic    string
	recorder Recorder
	log      *logx.Logger
}

// Start connects and subscribes. It returns nil, nil when MQTT_BROKER is unset.
func Start(cfg *config.Config, rec Recorder) (*Subscriber, error) {
	if cfg.MQTT.Broker == "" {
		return nil, nil
	}
	s := &Subscriber{topic: cfg.MQTT.Topic, recorder: rec, log: logx.GetScope("mqtt")}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(cfg.MQTT.ClientID).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(c mqtt.Client) {
			// subscriptions do not survive a reconnect with a clean session
			if t := c.Subscribe(s.topic, 1, s.handle); t.Wait() && t.Error() != nil {
				s.log.Error("subscribe failed", zap.String("topic", s.topic), zap.Error(t.Error()))
				return
			}
			s.log.Info("subscribed", zap.String("topic", s.topic))
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			s.log.Warn("connection lost", zap.Error(err))
		})

	s.client = mqtt.NewClient(opts)
	if t := s.client.Connect(); t.Wait() && t.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.MQTT.Broker, t.Error())
	}
	return s, nil
}

func (s *Subscriber) handle(_ mqtt.Client, msg mqtt.Message) {
	s.Handle(msg.Topic(), msg.Payload())
}

// Handle processes one publish. Failures are logged; there is no one to
// return them to.
func (s *Subscriber) Handle(topic string, body []byte) {
	d, err := Decode(topic, body)
	if err != nil {
		s.log.Warn("mqtt payload rejected", zap.String("topic", topic), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := s.recorder.Record(ctx, d)
	switch {
	case errors.Is(err, presence.ErrInvalidDetection):
		s.log.Warn("mqtt detection invalid", zap.String("topic", topic), zap.Error(err))
	case err != nil:
		s.log.Error("mqtt detection failed", zap.String("beacon", d.BeaconID), zap.Error(err))
	default:
		s.log.Debug("mqtt detection", zap.String("beacon", d.BeaconID), zap.String("decision", res.Decision.String()))
	}
}

func (s *Subscriber) Close() {
	if s == nil || s.client == nil {
		return
	}
	s.client.Unsubscribe(s.topic).WaitTimeout(time.Second)
	s.client.Disconnect(250)
}
