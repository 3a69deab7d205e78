package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/creatorbot/intent-kernel/internal/jsonx"
)

// Handler processes one decoded message.
type Handler interface {
	Handle(ctx context.Context, msg Message) (Outcome, error)
}

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	Stream       string
	Durable      string
	Subject      string
	ResultPrefix string
	MaxDeliver   int
	AckWait      time.Duration
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.Stream == "" {
		c.Stream = "MESSAGES"
	}
	if c.Durable == "" {
		c.Durable = "intent-kernel"
	}
	if c.Subject == "" {
		c.Subject = "messages.inbound"
	}
	if c.ResultPrefix == "" {
		c.ResultPrefix = "intents.resolved"
	}
	if c.MaxDeliver <= 0 {
		c.MaxDeliver = 3
	}
	if c.AckWait <= 0 {
		c.AckWait = 30 * time.Second
	}
	return c
}

func (c ConsumerConfig) deadLetterSubject() string {
	return c.Subject + ".dead"
}

// disposition is what happens to a delivered message after processing.
type disposition int

const (
	dispAck disposition = iota
	dispNak
	dispTerm
)

func (d disposition) String() string {
	switch d {
	case dispAck:
		return "ack"
	case dispNak:
		return "nak"
	default:
		return "term"
	}
}

const (
	retryBaseDelay = time.Second
	retryMaxDelay  = 30 * time.Second
)

// Consumer feeds inbound messages from a JetStream durable consumer into
// the pipeline and publishes each outcome on "<prefix>.<userId>".
type Consumer struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	handler Handler
	cfg     ConsumerConfig
	logger  *zap.Logger
	sub     *nats.Subscription

	publish    func(subject string, data []byte) error
	deadLetter func(msg *nats.Msg) error
}

// NewConsumer prepares a consumer and makes sure its streams exist.
func NewConsumer(nc *nats.Conn, handler Handler, cfg ConsumerConfig, logger *zap.Logger) (*Consumer, error) {
	cfg = cfg.withDefaults()

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to get jetstream context: %w", err)
	}

	c := newConsumer(handler, cfg, logger)
	c.nc = nc
	c.js = js
	c.publish = nc.Publish
	c.deadLetter = func(msg *nats.Msg) error {
		_, err := js.PublishMsg(msg)
		return err
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{cfg.Subject},
		Storage:  nats.FileStorage,
		MaxAge:   24 * time.Hour,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		c.logger.Warn("Failed to create inbound stream", zap.String("stream", cfg.Stream), zap.Error(err))
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:      cfg.Stream + "_DEAD",
		Subjects:  []string{cfg.deadLetterSubject()},
		Retention: nats.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		c.logger.Warn("Failed to create dead-letter stream", zap.Error(err))
	}

	return c, nil
}

func newConsumer(handler Handler, cfg ConsumerConfig, logger *zap.Logger) *Consumer {
	return &Consumer{
		handler: handler,
		cfg:     cfg.withDefaults(),
		logger:  logger.Named("consumer"),
	}
}

// Start subscribes. Messages are processed until Stop is called; ctx is
// passed to every turn.
func (c *Consumer) Start(ctx context.Context) error {
	sub, err := c.js.Subscribe(c.cfg.Subject, func(msg *nats.Msg) {
		c.onMessage(ctx, msg)
	},
		nats.Durable(c.cfg.Durable),
		nats.ManualAck(),
		nats.AckWait(c.cfg.AckWait),
		nats.MaxDeliver(c.cfg.MaxDeliver),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.cfg.Subject, err)
	}
	c.sub = sub
	c.logger.Info("NATS subscription active",
		zap.String("subject", c.cfg.Subject),
		zap.String("durable", c.cfg.Durable))
	return nil
}

// Stop drains the subscription.
func (c *Consumer) Stop() {
	if c.sub == nil {
		return
	}
	if err := c.sub.Drain(); err != nil {
		c.logger.Warn("Failed to drain subscription", zap.Error(err))
	}
	c.sub = nil
}

func (c *Consumer) onMessage(ctx context.Context, msg *nats.Msg) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Panic in NATS callback", zap.Any("panic", r), zap.Stack("stacktrace"))
			msg.NakWithDelay(retryMaxDelay)
		}
	}()

	delivered := uint64(1)
	if meta, err := msg.Metadata(); err == nil {
		delivered = meta.NumDelivered
	}

	disp, delay, cause := c.process(ctx, msg.Data, delivered)
	if disp == dispTerm && cause != nil && delivered >= uint64(c.cfg.MaxDeliver) {
		c.sendToDeadLetter(msg, cause, delivered)
		disp = dispAck
	}

	var err error
	switch disp {
	case dispAck:
		err = msg.Ack()
	case dispNak:
		err = msg.NakWithDelay(delay)
	case dispTerm:
		err = msg.Term()
	}
	if err != nil {
		c.logger.Warn("Failed to settle message",
			zap.String("disposition", disp.String()),
			zap.Error(err))
	}
}

// process decodes and handles one payload. It returns what to do with the
// message, the redelivery delay for a Nak and, for failures, the cause.
func (c *Consumer) process(ctx context.Context, data []byte, delivered uint64) (disposition, time.Duration, error) {
	var m Message
	if err := jsonx.Unmarshal(data, &m); err != nil {
		c.logger.Error("Dropping undecodable message", zap.Int("data_len", len(data)), zap.Error(err))
		return dispTerm, 0, nil
	}
	if m.UserID == "" {
		c.logger.Error("Dropping message without user id", zap.String("message_id", m.ID))
		return dispTerm, 0, nil
	}

	out, err := c.handler.Handle(ctx, m)
	switch {
	case errors.Is(err, ErrDuplicateMessage):
		return dispAck, 0, nil
	case err != nil:
		if delivered >= uint64(c.cfg.MaxDeliver) {
			return dispTerm, 0, err
		}
		delay := retryDelay(delivered)
		c.logger.Warn("Turn failed, retrying",
			zap.String("message_id", m.ID),
			zap.Uint64("delivered", delivered),
			zap.Duration("delay", delay),
			zap.Error(err))
		return dispNak, delay, err
	}

	payload, err := jsonx.Marshal(out)
	if err != nil {
		c.logger.Error("Failed to encode outcome", zap.String("turn_id", out.TurnID), zap.Error(err))
		return dispAck, 0, nil
	}
	subject := ResultSubject(c.cfg.ResultPrefix, m.UserID)
	if err := c.publish(subject, payload); err != nil {
		// the turn already mutated state; redelivery would be deduplicated
		c.logger.Error("Failed to publish outcome", zap.String("subject", subject), zap.Error(err))
	}
	return dispAck, 0, nil
}

func (c *Consumer) sendToDeadLetter(msg *nats.Msg, cause error, delivered uint64) {
	dead := nats.NewMsg(c.cfg.deadLetterSubject())
	dead.Header.Set("Original-Subject", msg.Subject)
	dead.Header.Set("Error", cause.Error())
	dead.Header.Set("Retry-Count", strconv.FormatUint(delivered, 10))
	dead.Header.Set("Failed-At", time.Now().Format(time.RFC3339))
	dead.Data = msg.Data

	if err := c.deadLetter(dead); err != nil {
		c.logger.Error("Failed to publish to dead-letter queue", zap.Error(err))
		return
	}
	c.logger.Error("Max deliveries exceeded, message sent to dead-letter queue",
		zap.Uint64("delivered", delivered),
		zap.Error(cause))
}

// retryDelay backs off exponentially from retryBaseDelay up to retryMaxDelay.
func retryDelay(delivered uint64) time.Duration {
	if delivered == 0 {
		delivered = 1
	}
	if delivered > 6 {
		return retryMaxDelay
	}
	delay := retryBaseDelay * time.Duration(1<<(delivered-1))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

// ResultSubject returns the subject a user's outcomes are published on.
// Subject tokens cannot contain '.', '*', '>' or whitespace, so those are
// replaced.
func ResultSubject(prefix, userID string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, userID)
	return prefix + "." + token
}
