package notification

import (
	"context"
	"log/slog"
)

const (
	// KindTransferReceived tells a card owner that money arrived on their card.
	KindTransferReceived = "transfer_received"
	// KindCardExpired tells a card owner that the sweeper expired their card.
	KindCardExpired = "card_expired"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	CardID      string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "card_id", message.CardID, "body", message.Body)
	return nil
}

// Deliver sends message through n when n is set and logs a failed delivery.
// Notification failures never fail the operation that produced them.
func Deliver(ctx context.Context, n Notifier, logger *slog.Logger, message Message) {
	if n == nil {
		return
	}
	if err := n.Send(ctx, message); err != nil && logger != nil {
		logger.Warn("notification failed", "kind", message.Kind, "destination", message.Destination, "error", err)
	}
}
