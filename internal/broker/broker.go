// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package broker publishes readings, discovery events and fusion reports
// as JSON over MQTT.
package broker

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	qos             = 0
	disconnectQuiet = 250 // ms
	publishTimeout  = 5 * time.Second
)

// Publisher sends a value, JSON encoded, to a topic.
type Publisher interface {
	Publish(topic string, v any) error
	Close()
}

// Handler receives raw messages from a subscription.
type Handler func(topic string, payload []byte)

// MQTT is a Publisher backed by a paho client.
type MQTT struct {
	client mqtt.Client
	logger *zap.Logger
}

// Dial connects to broker. A random suffix keeps several processes from
// kicking each other off with the same client ID.
func Dial(broker, clientID string, logger *zap.Logger) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID + "-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", broker, token.Error())
	}
	logger.Info("connected to MQTT broker", zap.String("broker", broker))

	return NewMQTT(client, logger), nil
}

// NewMQTT wraps an already connected client.
func NewMQTT(client mqtt.Client, logger *zap.Logger) *MQTT {
	return &MQTT{client: client, logger: logger}
}

// Publish marshals v and publishes it, waiting for the broker to accept it.
func (m *MQTT) Publish(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}

	token := m.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	m.logger.Debug("published", zap.String("topic", topic), zap.Int("bytes", len(payload)))
	return nil
}

// Subscribe registers handler for topic.
func (m *MQTT) Subscribe(topic string, handler Handler) error {
	token := m.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}
	m.logger.Info("subscribed", zap.String("topic", topic))
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() {
	m.client.Disconnect(disconnectQuiet)
}

// Nop discards everything. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(string, any) error { return nil }
func (Nop) Close()                    {}
