package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"
	"github.com/twmb/franz-go/pkg/kgo"

	"statusable/internal/status/statusful"
)

// BroadcastMessage is a real-time notification about an entity entering a
// broadcast-mapped status.
type BroadcastMessage struct {
	ID      string         `json:"id"`
	Channel string         `json:"channel"`
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload"`
	SentAt  time.Time      `json:"sent_at"`
}

// Broadcaster delivers broadcast messages.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg BroadcastMessage) error
}

// Status is the status an entity entered, as subscribers see it.
type Status struct {
	ID         int64
	Identifier string
	Name       string
}

// NewBroadcast builds the message for entity under event name. The payload
// holds the entity's JSON fields plus status_id, status_identifier and
// status. The channel defaults to "private-" plus the plural of the broadcast
// key, and the key defaults to the lower-cased entity type.
func NewBroadcast(entity statusful.Statusful, event string, status Status, now time.Time) (BroadcastMessage, error) {
	key := strings.ToLower(entity.EntityType())
	if k, ok := entity.(statusful.BroadcastKeyer); ok && k.BroadcastKey() != "" {
		key = k.BroadcastKey()
	}
	channel := "private-" + inflection.Plural(key)
	if c, ok := entity.(statusful.BroadcastChanneler); ok && c.BroadcastChannel() != "" {
		channel = "private-" + c.BroadcastChannel()
	}
	fields, err := entityFields(entity)
	if err != nil {
		return BroadcastMessage{}, err
	}
	fields["status_id"] = status.ID
	fields["status_identifier"] = status.Identifier
	fields["status"] = status.Name

	return BroadcastMessage{
		ID:      uuid.NewString(),
		Channel: channel,
		Event:   event,
		Payload: map[string]any{key: fields},
		SentAt:  now,
	}, nil
}

func entityFields(entity statusful.Statusful) (map[string]any, error) {
	raw, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("encode %s for broadcast: %w", entity.EntityType(), err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	fields := map[string]any{}
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("%s does not encode to a JSON object: %w", entity.EntityType(), err)
	}
	return fields, nil
}

// Producer is the part of *kgo.Client the Kafka broadcaster needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaBroadcaster publishes messages to one topic keyed by channel, so a
// channel's messages stay ordered within its partition.
type KafkaBroadcaster struct {
	producer Producer
	topic    string
}

func NewKafkaBroadcaster(producer Producer, topic string) *KafkaBroadcaster {
	return &KafkaBroadcaster{producer: producer, topic: topic}
}

func (b *KafkaBroadcaster) Broadcast(ctx context.Context, msg BroadcastMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode broadcast: %w", err)
	}
	record := &kgo.Record{
		Topic: b.topic,
		Key:   []byte(msg.Channel),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event", Value: []byte(msg.Event)},
			{Key: "message_id", Value: []byte(msg.ID)},
		},
		Timestamp: msg.SentAt,
	}
	if err := b.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce broadcast to %s: %w", b.topic, err)
	}
	return nil
}

// LogBroadcaster only logs messages. It is used when no brokers are configured.
type LogBroadcaster struct {
	logger *slog.Logger
}

func NewLogBroadcaster(logger *slog.Logger) *LogBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogBroadcaster{logger: logger}
}

func (b *LogBroadcaster) Broadcast(ctx context.Context, msg BroadcastMessage) error {
	b.logger.InfoContext(ctx, "status broadcast",
		"message_id", msg.ID,
		"channel", msg.Channel,
		"event", msg.Event,
	)
	return nil
}
