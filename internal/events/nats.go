package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// NewNATS constructs a thin NATS-based publisher. Events go to
// "healthbot.events.<type>" subjects.
func NewNATS(nc *nats.Conn) Publisher {
	return &natsPublisher{nc: nc}
}

type natsPublisher struct {
	nc *nats.Conn
}

func (p *natsPublisher) Publish(_ context.Context, ev Event) error {
	if ev.Type == "" {
		return errors.New("event type required")
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.nc.Publish("healthbot.events."+string(ev.Type), body)
}
