package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"listing_watcher/internal/domain"
)

// Linker resolves the public URL of an announcement.
type Linker interface {
	Link(a domain.Announcement) string
}

type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	source     string
	linker     Linker
	logger     *slog.Logger
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string // optional; declared and bound when set
	SourceID   string
}

func NewRabbitMQ(cfg Config, linker Linker, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declare(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger = logger.With("component", "publisher")
	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		source:     cfg.SourceID,
		linker:     linker,
		logger:     logger,
	}, nil
}

func declare(ch *amqp.Channel, cfg Config) error {
	err := ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	if cfg.QueueName == "" {
		return nil
	}

	q, err := ch.QueueDeclare(
		cfg.QueueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// AnnouncementMessage is the JSON body published for every new announcement.
type AnnouncementMessage struct {
	Action       string              `json:"action"` // always "new"
	SourceID     string              `json:"source_id"`
	CycleID      string              `json:"cycle_id"`
	Announcement domain.Announcement `json:"announcement"`
	Link         string              `json:"link,omitempty"`
	ReleasedAt   time.Time           `json:"released_at"`
	Timestamp    time.Time           `json:"timestamp"`
}

func (r *RabbitMQ) message(a *domain.Announcement, cycleID string, now time.Time) AnnouncementMessage {
	msg := AnnouncementMessage{
		Action:       "new",
		SourceID:     r.source,
		CycleID:      cycleID,
		Announcement: *a,
		ReleasedAt:   a.ReleasedAt(time.UTC),
		Timestamp:    now.UTC(),
	}
	if r.linker != nil {
		msg.Link = r.linker.Link(*a)
	}
	return msg
}

func (r *RabbitMQ) Publish(ctx context.Context, a *domain.Announcement, cycleID string) error {
	now := time.Now()

	body, err := json.Marshal(r.message(a, cycleID, now))
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode:  amqp.Persistent,
			ContentType:   "application/json",
			MessageId:     uuid.NewString(),
			CorrelationId: cycleID,
			Body:          body,
			Timestamp:     now,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("published announcement",
		"id", a.ID,
		"cycle_id", cycleID,
	)

	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
