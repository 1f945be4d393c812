package messaging

import (
	"context"
	"fmt"
)

// SignalChannel turns a broker channel carrying payload-less notifications
// into handler invocations. One message is one signal; the body is ignored.
type SignalChannel struct {
	broker  Broker
	channel string
	onError func(error)
}

func NewSignalChannel(broker Broker, channel string, onError func(error)) *SignalChannel {
	if onError == nil {
		onError = func(error) {}
	}
	return &SignalChannel{
		broker:  broker,
		channel: channel,
		onError: onError,
	}
}

// NewBootSignals listens on the device reboot channel.
func NewBootSignals(broker Broker, onError func(error)) *SignalChannel {
	return NewSignalChannel(broker, ChannelBoot, onError)
}

// OnBootSignal subscribes and runs handler once per delivered signal, in
// delivery order, until ctx is done. Handler errors go to onError and do not
// stop the subscription.
func (s *SignalChannel) OnBootSignal(ctx context.Context, handler func(context.Context) error) error {
	msgs, err := s.broker.Subscribe(ctx, s.channel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}

	go func() {
		for range msgs {
			if err := handler(ctx); err != nil {
				s.onError(err)
			}
		}
	}()

	return nil
}

// Signal publishes one notification on the channel.
func (s *SignalChannel) Signal(ctx context.Context) error {
	return s.broker.Publish(ctx, s.channel, Message{Type: s.channel})
}
