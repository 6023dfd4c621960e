// Package events delivers cache invalidation events over an in-process
// watermill pub/sub. Events travel as sonic-encoded JSON so a broker
// backed transport can replace the channel without changing listeners.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/bytedance/sonic"

	"vfs-go/internal/vfs"
)

// Topic is the pub/sub topic every event is published on.
const Topic = "vfs.events"

const envelopeVersion = "v1"

var _ vfs.EventBus = (*Bus)(nil)

// envelope is the wire form of an event.
type envelope struct {
	Version    string    `json:"version"`
	OccurredAt time.Time `json:"occurred_at"`
	Event      vfs.Event `json:"event"`
}

// Bus implements vfs.EventBus on a watermill gochannel.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger vfs.Logger
	clock  vfs.Clock
}

// NewBus creates a bus. Events fired while nobody is subscribed are dropped.
func NewBus(logger vfs.Logger, clock vfs.Clock) *Bus {
	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, &loggerAdapter{l: logger})
	return &Bus{pubsub: pubsub, logger: logger, clock: clock}
}

// Fire publishes event. Encoding and delivery failures are logged, never
// returned.
func (b *Bus) Fire(ctx context.Context, event vfs.Event) {
	if event.Time.IsZero() {
		event.Time = b.clock.Now()
	}
	msg, err := encode(event, b.clock.Now())
	if err != nil {
		b.logger.Error("encoding event failed", "type", event.Type, "error", err)
		return
	}
	msg.SetContext(ctx)
	if err := b.pubsub.Publish(Topic, msg); err != nil {
		b.logger.Error("publishing event failed", "type", event.Type, "error", err)
	}
}

// Subscribe returns a channel of decoded events. It is closed when ctx is
// done or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context) (<-chan vfs.Event, error) {
	messages, err := b.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", Topic, err)
	}

	out := make(chan vfs.Event)
	go func() {
		defer close(out)
		for msg := range messages {
			event, err := decode(msg)
			msg.Ack()
			if err != nil {
				b.logger.Warn("dropping undecodable event", "message_id", msg.UUID, "error", err)
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (b *Bus) Close() error {
	return b.pubsub.Close()
}

func encode(event vfs.Event, now time.Time) (*message.Message, error) {
	data, err := sonic.Marshal(envelope{Version: envelopeVersion, OccurredAt: now.UTC(), Event: event})
	if err != nil {
		return nil, err
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set("type", string(event.Type))
	msg.Metadata.Set("version", envelopeVersion)
	return msg, nil
}

func decode(msg *message.Message) (vfs.Event, error) {
	var env envelope
	if err := sonic.Unmarshal(msg.Payload, &env); err != nil {
		return vfs.Event{}, err
	}
	return env.Event, nil
}

// loggerAdapter routes watermill's own logging into vfs.Logger.
type loggerAdapter struct {
	l      vfs.Logger
	fields watermill.LogFields
}

func (a *loggerAdapter) args(fields watermill.LogFields) []any {
	merged := a.fields.Add(fields)
	args := make([]any, 0, 2*len(merged))
	for k, v := range merged {
		args = append(args, k, v)
	}
	return args
}

func (a *loggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.l.Error(msg, append(a.args(fields), "error", err)...)
}

func (a *loggerAdapter) Info(msg string, fields watermill.LogFields) {
	a.l.Info(msg, a.args(fields)...)
}

func (a *loggerAdapter) Debug(msg string, fields watermill.LogFields) {
	a.l.Debug(msg, a.args(fields)...)
}

func (a *loggerAdapter) Trace(msg string, fields watermill.LogFields) {
	a.l.Debug(msg, a.args(fields)...)
}

func (a *loggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &loggerAdapter{l: a.l, fields: a.fields.Add(fields)}
}
