// Package notifier publishes match lifecycle events to Kafka. Event delivery
// is best-effort relative to origination: a broker outage never blocks or
// rolls back a match.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Topics carrying match events.
const (
	TopicOfferMatched       = "lending.offer.matched"
	TopicApplicationMatched = "lending.application.matched"
)

// OfferMatchedEvent is published on TopicOfferMatched, keyed by offer ID.
type OfferMatchedEvent struct {
	OfferID       uuid.UUID `json:"offer_id"`
	ApplicationID uuid.UUID `json:"application_id"`
	MatchedAt     time.Time `json:"matched_at"`
}

// ApplicationMatchedEvent is published on TopicApplicationMatched, keyed by
// application ID.
type ApplicationMatchedEvent struct {
	ApplicationID uuid.UUID `json:"application_id"`
	OfferID       uuid.UUID `json:"offer_id"`
	MatchedAt     time.Time `json:"matched_at"`
}

// KafkaNotifier publishes match events through per-topic writers.
type KafkaNotifier struct {
	brokers []string
	logger  *zap.Logger

	mu      sync.RWMutex
	writers map[string]*kafka.Writer
}

// NewKafkaNotifier creates a notifier for the given brokers. Writers are
// created lazily per topic.
func NewKafkaNotifier(brokers []string, logger *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		brokers: brokers,
		logger:  logger,
		writers: make(map[string]*kafka.Writer),
	}
}

func (n *KafkaNotifier) OfferMatched(ctx context.Context, offerID, applicationID uuid.UUID) error {
	return n.publish(ctx, TopicOfferMatched, offerID.String(), OfferMatchedEvent{
		OfferID:       offerID,
		ApplicationID: applicationID,
		MatchedAt:     time.Now().UTC(),
	})
}

func (n *KafkaNotifier) ApplicationMatched(ctx context.Context, applicationID, offerID uuid.UUID) error {
	return n.publish(ctx, TopicApplicationMatched, applicationID.String(), ApplicationMatchedEvent{
		ApplicationID: applicationID,
		OfferID:       offerID,
		MatchedAt:     time.Now().UTC(),
	})
}

func (n *KafkaNotifier) publish(ctx context.Context, topic, key string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", topic, err)
	}

	writer := n.getWriter(topic)
	if err := writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}); err != nil {
		n.logger.Error("publishing match event failed",
			zap.String("topic", topic),
			zap.String("key", key),
			zap.Error(err))
		return err
	}
	return nil
}

func (n *KafkaNotifier) getWriter(topic string) *kafka.Writer {
	n.mu.RLock()
	writer, ok := n.writers[topic]
	n.mu.RUnlock()
	if ok {
		return writer
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if writer, ok := n.writers[topic]; ok {
		return writer
	}

	writer = &kafka.Writer{
		Addr:         kafka.TCP(n.brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: time.Second,
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
	}
	n.writers[topic] = writer
	return writer
}

// Close closes all topic writers.
func (n *KafkaNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	var lastErr error
	for topic, writer := range n.writers {
		if err := writer.Close(); err != nil {
			lastErr = err
			n.logger.Error("closing writer failed", zap.String("topic", topic), zap.Error(err))
		}
	}
	return lastErr
}
