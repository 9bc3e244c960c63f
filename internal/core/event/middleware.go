package event

import (
	"time"

	"github.com/team-telnyx/demo-conference-node/pkg/logger"
	"go.uber.org/zap"
)

// LoggingMiddleware provides logging for all events
func LoggingMiddleware(next EventHandler) EventHandler {
	return func(event *ConferenceEvent) {
		start := time.Now()

		defer func() {
			if event.IsError() {
				logger.Base().Warn("Lifecycle event carries error",
					zap.String("type", string(event.Type)),
					zap.String("conference_id", event.ConferenceID),
					zap.String("leg_id", event.LegID),
					zap.Error(event.Error))
				return
			}
			logger.Base().Debug("Event handler completed",
				zap.String("type", string(event.Type)),
				zap.String("conference_id", event.ConferenceID),
				zap.String("leg_id", event.LegID),
				zap.Duration("duration", time.Since(start)))
		}()

		next(event)
	}
}

// RecoveryMiddleware provides panic recovery for event handlers
func RecoveryMiddleware(next EventHandler) EventHandler {
	return func(event *ConferenceEvent) {
		defer func() {
			if r := recover(); r != nil {
				logger.Base().Error("Panic in event handler",
					zap.String("type", string(event.Type)),
					zap.String("conference_id", event.ConferenceID),
					zap.Any("panic", r))
			}
		}()

		next(event)
	}
}
