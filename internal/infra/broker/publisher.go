package broker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"license-exam-service/internal/domain"
)

// Routing keys used on the results exchange.
const (
	RoutingPassed = "exam.attempt.passed"
	RoutingFailed = "exam.attempt.failed"
)

type publishChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Envelope is the JSON body of every completion event.
type Envelope struct {
	Type       string               `json:"type"`
	OccurredAt time.Time            `json:"occurredAt"`
	Record     domain.AttemptRecord `json:"record"`
	Guidance   domain.Guidance      `json:"guidance"`
}

// ResultPublisher sends completed attempts to a topic exchange.
type ResultPublisher struct {
	conn     *amqp.Connection
	exchange string
	log      zerolog.Logger

	mu      sync.Mutex
	channel publishChannel
}

// NewResultPublisher dials url and declares a durable topic exchange.
func NewResultPublisher(url, exchange string, log zerolog.Logger) (*ResultPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p := newResultPublisher(ch, exchange, log)
	p.conn = conn
	return p, nil
}

func newResultPublisher(ch publishChannel, exchange string, log zerolog.Logger) *ResultPublisher {
	return &ResultPublisher{
		channel:  ch,
		exchange: exchange,
		log:      log.With().Str("component", "result_publisher").Logger(),
	}
}

// PublishResult routes the attempt by outcome. Channels are not safe for
// concurrent use, so publishes are serialised.
func (p *ResultPublisher) PublishResult(ctx context.Context, record domain.AttemptRecord, guidance domain.Guidance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, body, err := encode(record, guidance, time.Now().UTC())
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.Publish(p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return err
	}
	p.log.Debug().Str("routing_key", key).Str("attempt_id", record.AttemptID).Msg("result published")
	return nil
}

func (p *ResultPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

func encode(record domain.AttemptRecord, guidance domain.Guidance, now time.Time) (string, []byte, error) {
	key := RoutingFailed
	if record.Result.Passed {
		key = RoutingPassed
	}
	body, err := json.Marshal(Envelope{Type: key, OccurredAt: now, Record: record, Guidance: guidance})
	return key, body, err
}
