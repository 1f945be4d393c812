package messaging

import (
	"context"
)

// Channels shared between the scheduler and the device-facing layer.
const (
	ChannelBoot          = "device.boot"
	ChannelAlarmCommands = "alarms.commands"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
