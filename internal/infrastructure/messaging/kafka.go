package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rms-hub/residency-hub/internal/domain/shared"
	"github.com/rms-hub/residency-hub/pkg/circuitbreaker"
	"github.com/rms-hub/residency-hub/pkg/logger"
	"github.com/rms-hub/residency-hub/pkg/retry"
)

// KafkaConfig configures both directions of the bridge.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	// WriteTimeout bounds one publish including retries.
	WriteTimeout time.Duration
}

// ══════════════════════════════════════════════════════════════════════════════
// PUBLISHER
// ══════════════════════════════════════════════════════════════════════════════

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher forwards bus events to a topic as JSON envelopes keyed by
// resident id, so one resident's events stay ordered within a partition.
type KafkaPublisher struct {
	writer  messageWriter
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
	timeout time.Duration
	log     *logger.Logger
}

func NewKafkaPublisher(cfg KafkaConfig, log *logger.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisher(w, cfg.WriteTimeout, log)
}

func newKafkaPublisher(w messageWriter, timeout time.Duration, log *logger.Logger) *KafkaPublisher {
	if log == nil {
		log = logger.Nop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	log = log.With(logger.Component("kafka-publisher"))
	return &KafkaPublisher{
		writer:  w,
		retrier: retry.BrokerRetrier(),
		breaker: circuitbreaker.BrokerBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("broker breaker state changed",
				logger.String("breaker", name), logger.String("from", from.String()), logger.String("to", to.String()))
		}),
		timeout: timeout,
		log:     log,
	}
}

// Handle has the shared.EventHandler signature so the publisher can be
// attached with bus.SubscribeAll(publisher.Handle).
func (p *KafkaPublisher) Handle(event shared.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return p.Publish(ctx, event)
}

// Publish writes one envelope.
func (p *KafkaPublisher) Publish(ctx context.Context, event shared.Event) error {
	env, err := shared.NewEnvelope(event)
	if err != nil {
		return err
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(env.ResidentID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(env.Type)},
		},
	}

	err = p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.retrier.Do(ctx, func(ctx context.Context) error {
			return retry.Retryable(p.writer.WriteMessages(ctx, msg))
		})
	})
	if err != nil {
		p.log.Warn("event not forwarded",
			logger.String("event_type", string(env.Type)), logger.AssessmentID(env.AggregateID), logger.Err(err))
		return fmt.Errorf("publish %s: %w", env.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }

// ══════════════════════════════════════════════════════════════════════════════
// CONSUMER
// ══════════════════════════════════════════════════════════════════════════════

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer reads envelopes and dispatches them to handlers.
type KafkaConsumer struct {
	reader   messageReader
	handlers []shared.EventHandler
	log      *logger.Logger
}

func NewKafkaConsumer(cfg KafkaConfig, log *logger.Logger, handlers ...shared.EventHandler) *KafkaConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newKafkaConsumer(r, log, handlers...)
}

func newKafkaConsumer(r messageReader, log *logger.Logger, handlers ...shared.EventHandler) *KafkaConsumer {
	if log == nil {
		log = logger.Nop()
	}
	return &KafkaConsumer{reader: r, handlers: handlers, log: log.With(logger.Component("kafka-consumer"))}
}

// Run consumes until ctx is done. Messages are committed after every handler
// ran; malformed messages are committed and skipped.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		event, err := DecodeEnvelope(msg.Value)
		if err != nil {
			c.log.Warn("skipping malformed message", logger.Int64("offset", msg.Offset), logger.Err(err))
		} else {
			for _, h := range c.handlers {
				if err := h(event); err != nil {
					c.log.Error("handler failed",
						logger.String("event_type", string(event.EventType())), logger.AssessmentID(event.AggregateID()), logger.Err(err))
				}
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

func (c *KafkaConsumer) Close() error { return c.reader.Close() }

// ReceivedEvent is an event rebuilt from a transported envelope.
type ReceivedEvent struct {
	Envelope shared.EventEnvelope
}

func (e ReceivedEvent) EventType() shared.EventType    { return e.Envelope.Type }
func (e ReceivedEvent) OccurredAt() time.Time          { return e.Envelope.Timestamp }
func (e ReceivedEvent) AggregateID() string            { return e.Envelope.AggregateID }
func (e ReceivedEvent) ResidentKey() shared.ResidentID { return e.Envelope.ResidentID }

func (e ReceivedEvent) Payload() map[string]interface{} {
	out := map[string]interface{}{}
	_ = json.Unmarshal(e.Envelope.Payload, &out)
	return out
}

// DecodeEnvelope parses a message value produced by KafkaPublisher.
func DecodeEnvelope(value []byte) (ReceivedEvent, error) {
	var env shared.EventEnvelope
	if err := json.Unmarshal(value, &env); err != nil {
		return ReceivedEvent{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" || env.AggregateID == "" {
		return ReceivedEvent{}, errors.New("decode envelope: missing type or aggregate id")
	}
	return ReceivedEvent{Envelope: env}, nil
}
