package mq

import (
	"context"
	"encoding/json"
	"fmt"
)

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Close() error
}

// MQ wraps a backend and publishes account events to one channel.
type MQ struct {
	backend Backend
	channel string
}

// New constructs an MQ wrapper that publishes to channel.
func New(backend Backend, channel string) *MQ {
	if channel == "" {
		channel = DefaultChannel
	}
	return &MQ{backend: backend, channel: channel}
}

// Publish sends a message to the named channel.
func (m *MQ) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return m.backend.Publish(ctx, channel, data, attrs)
}

// PublishAccountEvent encodes ev as JSON and sends it to the account channel.
func (m *MQ) PublishAccountEvent(ctx context.Context, ev AccountEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := m.backend.Publish(ctx, m.channel, data, map[string]string{"type": string(ev.Type)}); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// Close closes the underlying backend.
func (m *MQ) Close() error {
	return m.backend.Close()
}
