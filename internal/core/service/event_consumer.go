package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/inventory-sync/internal/core/domain"
	"github.com/rl1809/inventory-sync/internal/logger"
	"github.com/rl1809/inventory-sync/internal/port"
)

// ConsumeState is the per-event outcome of the consumer.
type ConsumeState string

const (
	StateReceived    ConsumeState = "RECEIVED"
	StateApplied     ConsumeState = "APPLIED"
	StateSkipped     ConsumeState = "SKIPPED"
	StateFailed      ConsumeState = "FAILED"
	StateQuarantined ConsumeState = "QUARANTINED"
)

const (
	DefaultMaxAttempts = 5
	DefaultClaimTTL    = 30 * time.Second

	processedKeyPrefix = "event:processed:"
	pendingKeyPrefix   = "event:pending:"
	markTimeout        = 5 * time.Second
)

// errEventInFlight means another delivery holds the claim on the event.
var errEventInFlight = errors.New("event is being applied by another delivery")

type EventConsumerConfig struct {
	CentralStoreID string
	Group          string
	AlertGroup     string

	// MaxAttempts bounds redelivery; the event is dead-lettered on the last attempt
	MaxAttempts int

	// ClaimTTL bounds how long an interrupted apply blocks redelivery of its event
	ClaimTTL time.Duration
}

type ConsumerStats struct {
	Applied     int64
	Skipped     int64
	Failed      int64
	Quarantined int64
	Alerts      int64
}

// EventConsumer applies change events to the central ledger at most once
// per event id.
type EventConsumer struct {
	cfg     EventConsumerConfig
	mutator InventoryMutator
	idem    port.IdempotencyRepository
	bus     port.EventBus
	log     *zap.Logger
	applied atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64
	dead    atomic.Int64
	alerts  atomic.Int64
}

func NewEventConsumer(cfg EventConsumerConfig, mutator InventoryMutator, idem port.IdempotencyRepository, bus port.EventBus, log *zap.Logger) *EventConsumer {
	if cfg.CentralStoreID == "" {
		cfg.CentralStoreID = domain.CentralStoreID
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = DefaultClaimTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &EventConsumer{
		cfg:     cfg,
		mutator: mutator,
		idem:    idem,
		bus:     bus,
		log:     log,
	}
}

// Run consumes change events and low stock alerts until ctx is done.
func (c *EventConsumer) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.bus.Subscribe(gctx, domain.TopicInventoryEvents, c.cfg.Group, c.HandleBatch)
	})
	if c.cfg.AlertGroup != "" {
		g.Go(func() error {
			return c.bus.Subscribe(gctx, domain.TopicInventoryAlerts, c.cfg.AlertGroup, c.HandleAlerts)
		})
	}
	return g.Wait()
}

// HandleBatch processes messages in order and stops at the first one that
// must be redelivered. Messages already applied are skipped on redelivery.
func (c *EventConsumer) HandleBatch(ctx context.Context, batch []port.Message) error {
	for _, msg := range batch {
		if err := c.handle(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (c *EventConsumer) handle(ctx context.Context, msg port.Message) error {
	event, err := DecodeChangeEvent(msg)
	if err != nil {
		c.failed.Add(1)
		return c.quarantine(ctx, msg, err)
	}

	_, err = c.Apply(ctx, event)
	if err == nil {
		return nil
	}

	if msg.Attempt >= c.cfg.MaxAttempts && !errors.Is(err, errEventInFlight) {
		return c.quarantine(ctx, msg, err)
	}
	return fmt.Errorf("event %s attempt %d: %w", event.EventID, msg.Attempt, err)
}

// Apply replays one change event against the central ledger.
func (c *EventConsumer) Apply(ctx context.Context, event domain.ChangeEvent) (ConsumeState, error) {
	log := logger.Inventory(c.log, event.StoreID, event.ProductID).With(zap.String("event_id", event.EventID))

	// Central mutations are the ledger itself; replaying them would double count.
	if event.StoreID == c.cfg.CentralStoreID || event.EventType != domain.EventTypeUpdate {
		c.skipped.Add(1)
		return StateSkipped, nil
	}

	// A short-lived pending claim guards the apply; the processed mark is
	// written only after central commits, so an interrupted apply is retried
	// once the claim expires.
	pending := pendingKeyPrefix + event.EventID
	claimed, err := c.idem.ClaimIdempotency(ctx, pending, c.cfg.ClaimTTL)
	if err != nil {
		c.failed.Add(1)
		return StateFailed, fmt.Errorf("claim event: %w", err)
	}
	if !claimed {
		c.failed.Add(1)
		return StateFailed, fmt.Errorf("%w: %s", errEventInFlight, event.EventID)
	}

	processed := processedKeyPrefix + event.EventID
	done, err := c.idem.HasIdempotency(ctx, processed)
	if err != nil {
		c.release(ctx, log, pending)
		c.failed.Add(1)
		return StateFailed, fmt.Errorf("check event: %w", err)
	}
	if done {
		c.release(ctx, log, pending)
		log.Debug("duplicate event skipped")
		c.skipped.Add(1)
		return StateSkipped, nil
	}

	switch {
	case event.Delta > 0:
		_, err = c.mutator.Increment(ctx, c.cfg.CentralStoreID, event.ProductID, event.Delta, false)
	case event.Delta < 0:
		_, err = c.mutator.Decrement(ctx, c.cfg.CentralStoreID, event.ProductID, -event.Delta, false)
	}

	if err != nil {
		c.release(ctx, log, pending)
		log.Warn("event apply failed", zap.Int("delta", event.Delta), zap.Error(err))
		c.failed.Add(1)
		return StateFailed, err
	}

	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
	defer cancel()
	if _, err := c.idem.SetIdempotency(markCtx, processed); err != nil {
		// The claim is kept so that redelivery within its ttl does not double count.
		log.Error("failed to mark event processed", zap.Error(err))
	} else {
		c.release(ctx, log, pending)
	}

	log.Debug("event applied", zap.Int("delta", event.Delta))
	c.applied.Add(1)
	return StateApplied, nil
}

// release drops a pending claim even when ctx is already cancelled.
func (c *EventConsumer) release(ctx context.Context, log *zap.Logger, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
	defer cancel()
	if err := c.idem.ClearIdempotency(ctx, key); err != nil {
		log.Warn("failed to release event claim, it expires on its own", zap.String("key", key), zap.Error(err))
	}
}

func (c *EventConsumer) quarantine(ctx context.Context, msg port.Message, cause error) error {
	if err := c.bus.Publish(ctx, domain.TopicInventoryDeadLetter, msg); err != nil {
		return fmt.Errorf("dead-letter message %s: %w", msg.ID, err)
	}
	c.dead.Add(1)
	c.log.Error("message moved to dead letter topic",
		zap.String("message_id", msg.ID),
		zap.String("key", msg.Key),
		zap.Int("attempt", msg.Attempt),
		zap.Error(cause),
	)
	return nil
}

func (c *EventConsumer) HandleAlerts(_ context.Context, batch []port.Message) error {
	for _, msg := range batch {
		event, err := DecodeChangeEvent(msg)
		if err != nil {
			c.log.Warn("dropping malformed alert", zap.String("message_id", msg.ID), zap.Error(err))
			continue
		}
		c.alerts.Add(1)
		logger.Inventory(c.log, event.StoreID, event.ProductID).Warn("low stock",
			zap.String("event_id", event.EventID),
			zap.Int("quantity", event.Quantity),
		)
	}
	return nil
}

func (c *EventConsumer) Stats() ConsumerStats {
	return ConsumerStats{
		Applied:     c.applied.Load(),
		Skipped:     c.skipped.Load(),
		Failed:      c.failed.Load(),
		Quarantined: c.dead.Load(),
		Alerts:      c.alerts.Load(),
	}
}
