package mq

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"RAGBot/pkg/util"
)

type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

type PublishResult struct {
	Partition int32
	Offset    int64
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) (PublishResult, error)
	Close() error
}

// 领域事件类型
const (
	EventDocumentIngested  = "document.ingested"
	EventTenantPurged      = "tenant.purged"
	EventCollectionDropped = "collection.dropped"
)

// Event 领域事件信封
type Event struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	UserID     string    `json:"user_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload,omitempty"`
}

// EventEmitter 把领域事件序列化后发布到固定 topic；nil 时所有调用为空操作
type EventEmitter struct {
	pub   Publisher
	topic string
	now   func() time.Time
}

func NewEventEmitter(pub Publisher, topic string) (*EventEmitter, error) {
	topic = strings.TrimSpace(topic)
	if pub == nil {
		return nil, errors.New("publisher is nil")
	}
	if topic == "" {
		return nil, errors.New("event topic is empty")
	}
	return &EventEmitter{pub: pub, topic: topic, now: time.Now}, nil
}

// Emit 以 user_id 为 key 发布，保证同一租户事件有序
func (e *EventEmitter) Emit(ctx context.Context, eventType, userID string, payload any) error {
	if e == nil {
		return nil
	}
	ev := Event{
		EventID:    util.GenerateID("EV"),
		EventType:  eventType,
		UserID:     userID,
		OccurredAt: e.now().UTC(),
		Payload:    payload,
	}
	bs, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	key := userID
	if key == "" {
		key = eventType
	}
	_, err = e.pub.Publish(ctx, Message{
		Topic: e.topic,
		Key:   []byte(key),
		Value: bs,
		Headers: map[string]string{
			"event_type": eventType,
			"event_id":   ev.EventID,
		},
	})
	return err
}

func (e *EventEmitter) Close() error {
	if e == nil {
		return nil
	}
	return e.pub.Close()
}
