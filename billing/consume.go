package billing

import (
	"context"

	"go.uber.org/zap"
)

// Consumer marks completed purchases as consumed so the same product can be
// bought again. Consumption runs after the caller's resolution has already
// been dispatched; its outcome is observable only through logs and never
// feeds back into the resolved request.
type Consumer struct {
	log     *zap.Logger
	backend Backend
}

func NewConsumer(log *zap.Logger, backend Backend) *Consumer {
	return &Consumer{
		log:     log,
		backend: backend,
	}
}

// Consume issues the consumption request in the background.
func (c *Consumer) Consume(token string) {
	go func() {
		code := c.backend.Consume(context.Background(), token)
		if code != CodeOK {
			c.log.Warn("failed to consume purchase",
				zap.String("token", token),
				zap.Int32("code", int32(code)),
			)
			return
		}
		c.log.Debug("purchase consumed", zap.String("token", token))
	}()
}
