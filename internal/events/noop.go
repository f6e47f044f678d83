package events

import "context"

// NoOpPublisher swallows events. Used when no broker is configured - every
// publish succeeds and nothing is sent anywhere.
type NoOpPublisher struct{}

// NewNoOp creates a new no-op publisher instance
func NewNoOp() *NoOpPublisher {
	return &NoOpPublisher{}
}

// Publish does nothing and always succeeds
func (p *NoOpPublisher) Publish(ctx context.Context, ev Event) error {
	return nil
}
