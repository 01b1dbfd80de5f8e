package app

import (
	"context"
	"polysentry/clients/notifier"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentSends bounds parallel deliveries within one broadcast.
const maxConcurrentSends = 4

// ChannelLookup resolves a destination's channel name to a transport.
// *notifier.MultiNotifier satisfies it.
type ChannelLookup interface {
	Channel(name string) (notifier.Channel, bool)
}

// BroadcastResult counts per-subscriber delivery outcomes.
type BroadcastResult struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// Broadcaster fans an alert out to every current subscriber.
// Delivery is best effort: failures are logged and never retried, and one
// subscriber's failure never blocks the others.
type Broadcaster struct {
	logger      *zap.Logger
	channels    ChannelLookup
	subscribers *SubscriberRegistry
}

func NewBroadcaster(logger *zap.Logger, channels ChannelLookup, subscribers *SubscriberRegistry) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		logger:      logger,
		channels:    channels,
		subscribers: subscribers,
	}
}

// Broadcast sends alert to a snapshot of the subscriber set.
func (b *Broadcaster) Broadcast(ctx context.Context, alert Alert) BroadcastResult {
	var delivered, failed atomic.Int64

	// one rendering per channel dialect
	rendered := make(map[string]string)

	var g errgroup.Group
	g.SetLimit(maxConcurrentSends)

	for _, dest := range b.subscribers.Snapshot() {
		ch, ok := b.channels.Channel(dest.Channel)
		if !ok {
			failed.Add(1)
			b.logger.Warn("no channel for subscriber",
				zap.String("destination", dest.String()),
			)
			continue
		}

		text, ok := rendered[dest.Channel]
		if !ok {
			text = FormatAlert(alert, ch.Markup())
			rendered[dest.Channel] = text
		}

		g.Go(func() error {
			// a panicking transport counts as a failed delivery
			defer func() {
				if r := recover(); r != nil {
					failed.Add(1)
					b.logger.Error("alert delivery panicked",
						zap.String("alertID", alert.ID),
						zap.String("destination", dest.String()),
						zap.Any("panic", r),
						zap.Stack("stack"),
					)
				}
			}()

			if err := ch.Send(ctx, dest.ChatID, text); err != nil {
				failed.Add(1)
				b.logger.Warn("failed to deliver alert",
					zap.String("alertID", alert.ID),
					zap.String("destination", dest.String()),
					zap.Error(err),
				)
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}

	_ = g.Wait()

	return BroadcastResult{
		Delivered: int(delivered.Load()),
		Failed:    int(failed.Load()),
	}
}
