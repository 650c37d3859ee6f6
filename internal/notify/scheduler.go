package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogScheduler is the default Scheduler: it records the notification in
// the daemon log. Embedders swap in a platform scheduler that shows
// real system notifications.
type LogScheduler struct {
	logger *zap.Logger
}

func NewLogScheduler(logger *zap.Logger) *LogScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogScheduler{logger: logger}
}

func (s *LogScheduler) Schedule(_ context.Context, n Notification) error {
	s.logger.Info("notification",
		zap.String("title", n.Title),
		zap.String("conversation_id", n.Data.ConversationID),
		zap.String("message_id", n.Data.MessageID),
		zap.Bool("sound", n.Sound),
		zap.Int("badge", n.BadgeCount))
	return nil
}
