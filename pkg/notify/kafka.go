package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/praxlaw/crm-alert-engine/pkg/models"
)

// ErrPublisherClosed is returned when publishing after Close
var ErrPublisherClosed = errors.New("alert publisher is closed")

// AlertPublisher mirrors every alert state change to a Kafka topic so
// downstream consumers (dashboards, audit sinks) can follow the engine
// without polling its HTTP surface. It implements the subscriber contract:
// register OnAlertsChanged with the engine's Subscribe.
type AlertPublisher struct {
	writer *kafka.Writer
	closed atomic.Bool
}

type alertSnapshot struct {
	PublishedAt time.Time      `json:"publishedAt"`
	Alerts      []models.Alert `json:"alerts"`
}

// NewAlertPublisher creates a publisher writing to topic on the given brokers
func NewAlertPublisher(brokers []string, topic string) (*AlertPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 100 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}

	return &AlertPublisher{writer: writer}, nil
}

// OnAlertsChanged publishes the full alert snapshot. Delivery is best
// effort: failures are logged and never surfaced to the dispatcher.
func (p *AlertPublisher) OnAlertsChanged(alerts []models.Alert) {
	if p.closed.Load() {
		return
	}

	snapshot := alertSnapshot{
		PublishedAt: time.Now().UTC(),
		Alerts:      alerts,
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		logrus.Errorf("Failed to serialize alert snapshot: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg := kafka.Message{
		Value: payload,
		Headers: []kafka.Header{
			{Key: "alert_count", Value: []byte(strconv.Itoa(len(alerts)))},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		logrus.Warnf("Failed to publish alert snapshot to Kafka: %v", err)
	}
}

// Close flushes and closes the underlying writer
func (p *AlertPublisher) Close() error {
	if p.closed.Swap(true) {
		return ErrPublisherClosed
	}
	return p.writer.Close()
}
