package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MultiChannel fans a message out to several channels.
// Every channel is attempted; failures are joined.
type MultiChannel struct {
	channels []Channel
}

// NewMultiChannel constructs a MultiChannel, skipping nil channels.
func NewMultiChannel(channels ...Channel) *MultiChannel {
	m := &MultiChannel{}
	for _, channel := range channels {
		if channel != nil {
			m.channels = append(m.channels, channel)
		}
	}
	return m
}

// Len returns the number of channels.
func (m *MultiChannel) Len() int {
	if m == nil {
		return 0
	}
	return len(m.channels)
}

// Name lists the member channels.
func (m *MultiChannel) Name() string {
	if m == nil {
		return ""
	}
	names := make([]string, 0, len(m.channels))
	for _, channel := range m.channels {
		names = append(names, channel.Name())
	}
	return strings.Join(names, "+")
}

// Send implements Channel.
func (m *MultiChannel) Send(ctx context.Context, msg Message) error {
	if m == nil || len(m.channels) == 0 {
		return errors.New("multi channel: no channels")
	}
	var errs []error
	for _, channel := range m.channels {
		if err := channel.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", channel.Name(), err))
		}
	}
	return errors.Join(errs...)
}
