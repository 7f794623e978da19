// Package consumer pulls activity events from their queues and runs them through the recommendation pipeline.
package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/recommendation/internal/broker"
	"example.com/recommendation/internal/deadletter"
	"example.com/recommendation/internal/events"
)

// ErrInvalidMessage marks payloads that can never be processed.
var ErrInvalidMessage = errors.New("invalid message")

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages.
type Handler interface {
	Handle(context.Context, Message) error
}

// DeadLetterSink stores messages that exhausted their redeliveries. *deadletter.Store satisfies it.
type DeadLetterSink interface {
	Write(ctx context.Context, entry deadletter.Entry) error
}

// Message is the decoded representation of one queued activity event.
type Message struct {
	Queue       string
	Partition   int
	Offset      int64
	Timestamp   time.Time
	Key         string
	RoutingKey  string
	ReplayCount int
	Event       events.ActivityEvent
	Raw         []byte
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithDisposition sets how failed messages are redelivered.
func WithDisposition(d Disposition) Option {
	return func(p *Processor) {
		p.disposition = d
	}
}

// WithDeadLetterSink sets where ModeDeadLetter hands exhausted messages.
func WithDeadLetterSink(sink DeadLetterSink) Option {
	return func(p *Processor) {
		p.sink = sink
	}
}

// Processor pulls messages, decodes them, and dispatches to a Handler.
type Processor struct {
	reader      Reader
	handler     Handler
	logger      *slog.Logger
	disposition Disposition
	sink        DeadLetterSink
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) (*Processor, error) {
	p := &Processor{
		reader:      reader,
		handler:     handler,
		logger:      slog.Default(),
		disposition: DefaultDisposition,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "consumer")
	if err := p.disposition.Validate(); err != nil {
		return nil, err
	}
	if p.disposition.Mode == ModeDeadLetter && p.sink == nil {
		return nil, errors.New("dead_letter disposition requires a dead-letter sink")
	}
	return p, nil
}

// Run starts a blocking loop that processes messages until the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.logger.Error("fetch error", "error", err)
			continue
		}

		if err := p.process(ctx, msg); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// process handles one fetched message. A nil return means the message was committed.
func (p *Processor) process(ctx context.Context, msg kafka.Message) error {
	event, decodeErr := decodeMessage(msg)
	if decodeErr != nil {
		p.logger.Warn("decode error", "queue", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", decodeErr)
		recordDecodeError(msg.Topic)
		// Commit malformed messages to avoid poison-pill loops.
		return p.commit(ctx, msg)
	}

	handleErr := p.handle(ctx, event)
	if handleErr == nil {
		if err := p.commit(ctx, msg); err != nil {
			return err
		}
		recordProcessed(event)
		return nil
	}
	if ctx.Err() != nil {
		// Shutting down: leave the message uncommitted so it is redelivered.
		return handleErr
	}

	recordHandlerError(event)
	log := p.logger.With("queue", event.Queue, "offset", event.Offset, "activity_id", event.Event.ActivityID, "event_kind", event.Event.Kind)

	if p.disposition.Mode == ModeDeadLetter {
		entry := deadletter.Entry{
			Queue:      event.Queue,
			RoutingKey: event.RoutingKey,
			Kind:       string(event.Event.Kind),
			Key:        event.Key,
			Payload:    event.Raw,
			Reason:     handleErr.Error(),
			RetryCount: event.ReplayCount,
		}
		if err := p.sink.Write(ctx, entry); err != nil {
			log.Error("dead-letter write failed; message left uncommitted", "error", err, "cause", handleErr)
			recordOutcome(event, outcomeSinkFailed)
			return fmt.Errorf("dead-letter message: %w", err)
		}
		log.Warn("message dead-lettered", "error", handleErr)
		recordOutcome(event, outcomeDeadLettered)
	} else {
		log.Error("message dropped after handler error", "error", handleErr, "mode", p.disposition.Mode)
		recordOutcome(event, outcomeDropped)
	}
	return p.commit(ctx, msg)
}

// handle invokes the handler, redelivering transient failures as the disposition allows.
func (p *Processor) handle(ctx context.Context, msg Message) error {
	err := p.handler.Handle(ctx, msg)
	for attempt := 1; err != nil && !IsPermanent(err) && attempt <= p.disposition.redeliveries(); attempt++ {
		delay := p.disposition.Delay(attempt)
		p.logger.Warn("handler failed; redelivering", "queue", msg.Queue, "offset", msg.Offset, "attempt", attempt, "delay", delay, "error", err)
		recordRedelivery(msg)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		err = p.handler.Handle(ctx, msg)
	}
	return err
}

func (p *Processor) commit(ctx context.Context, msg kafka.Message) error {
	if err := p.reader.CommitMessages(ctx, msg); err != nil {
		p.logger.Error("commit error", "queue", msg.Topic, "offset", msg.Offset, "error", err)
		return err
	}
	return nil
}

func decodeMessage(msg kafka.Message) (Message, error) {
	value := bytes.TrimSpace(msg.Value)
	if len(value) == 0 || bytes.Equal(value, []byte("null")) {
		return Message{}, fmt.Errorf("%w: empty payload", ErrInvalidMessage)
	}

	var evt events.ActivityEvent
	if err := json.Unmarshal(value, &evt); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if evt.Kind == "" {
		if kind, ok := headerValue(msg, broker.HeaderEventKind); ok {
			evt.Kind = events.EventKind(kind)
		}
	}
	if err := evt.Validate(); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	routingKey, _ := headerValue(msg, broker.HeaderRoutingKey)
	replayCount := 0
	if raw, ok := headerValue(msg, broker.HeaderReplayCount); ok {
		replayCount, _ = strconv.Atoi(raw)
	}

	return Message{
		Queue:       msg.Topic,
		Partition:   msg.Partition,
		Offset:      msg.Offset,
		Timestamp:   msg.Time,
		Key:         string(msg.Key),
		RoutingKey:  routingKey,
		ReplayCount: replayCount,
		Event:       evt,
		Raw:         append([]byte(nil), msg.Value...),
	}, nil
}

func headerValue(msg kafka.Message, key string) (string, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return string(header.Value), true
		}
	}
	return "", false
}
