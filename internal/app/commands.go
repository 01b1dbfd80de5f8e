package app

import (
	"context"
	"polysentry/clients/notifier"

	"go.uber.org/zap"
)

const (
	replyStart       = "🤖 Polymarket Bot Online\n\nUse /alerts to subscribe."
	replySubscribed  = "✅ Alerts enabled"
	replyUnsubscribe = "❌ Alerts disabled"
)

// CommandHandler answers subscriber commands arriving from chat channels.
type CommandHandler struct {
	logger      *zap.Logger
	subscribers *SubscriberRegistry
}

func NewCommandHandler(logger *zap.Logger, subscribers *SubscriberRegistry) *CommandHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandHandler{
		logger:      logger,
		subscribers: subscribers,
	}
}

// Handle applies cmd and returns the reply. Unknown commands get no reply.
// Implements notifier.CommandHandler.
func (h *CommandHandler) Handle(_ context.Context, cmd notifier.Command) string {
	switch cmd.Name {
	case "start":
		return replyStart

	case "alerts":
		added := h.subscribers.Subscribe(cmd.Source)
		h.logger.Info("subscriber enabled alerts",
			zap.String("destination", cmd.Source.String()),
			zap.String("from", cmd.From),
			zap.Bool("new", added),
			zap.Int("subscribers", h.subscribers.Len()),
		)
		return replySubscribed

	case "unsubscribe":
		removed := h.subscribers.Unsubscribe(cmd.Source)
		h.logger.Info("subscriber disabled alerts",
			zap.String("destination", cmd.Source.String()),
			zap.String("from", cmd.From),
			zap.Bool("removed", removed),
			zap.Int("subscribers", h.subscribers.Len()),
		)
		return replyUnsubscribe

	default:
		h.logger.Debug("ignoring unknown command",
			zap.String("command", cmd.Name),
			zap.String("destination", cmd.Source.String()),
		)
		return ""
	}
}
