package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// ChangeEvent is published after an administrative mutation.
type ChangeEvent struct {
	Entity    string    `json:"entity"`
	Action    Action    `json:"action"`
	ID        string    `json:"id"`
	StationID string    `json:"stationId,omitempty"`
	At        time.Time `json:"at"`
}

// Topic is stations/{id}/changes for station and reading events and
// {entity}/changes otherwise, under prefix when set.
func Topic(prefix string, ev ChangeEvent) string {
	topic := ev.Entity + "/changes"
	if ev.StationID != "" {
		topic = "stations/" + ev.StationID + "/changes"
	}
	if prefix != "" {
		topic = prefix + "/" + topic
	}
	return topic
}

type ChangePublisher interface {
	PublishChange(ctx context.Context, ev ChangeEvent) error
}

// NopPublisher is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishChange(context.Context, ChangeEvent) error { return nil }

type Publisher struct {
	client  *Client
	prefix  string
	timeout time.Duration
}

func NewPublisher(client *Client, prefix string) *Publisher {
	return &Publisher{client: client, prefix: prefix, timeout: 5 * time.Second}
}

func (p *Publisher) PublishChange(ctx context.Context, ev ChangeEvent) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}

	topic := Topic(p.prefix, ev)
	token := p.client.client.Publish(topic, 1, false, data)

	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		p.client.logger.Error("failed to publish change", "topic", topic, "error", err)
		return fmt.Errorf("publish change: %w", err)
	}

	p.client.logger.Debug("published change", "topic", topic, "entity", ev.Entity, "action", ev.Action, "id", ev.ID)
	return nil
}
