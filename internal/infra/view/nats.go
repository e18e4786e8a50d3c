package view

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/you-humble/pdftrack/internal/domain"
	"github.com/you-humble/pdftrack/internal/widget"

	"github.com/nats-io/nats.go"
)

const (
	HeaderSession = "Pdftrack-Session"
	HeaderKind    = "Pdftrack-Kind"
)

type publisher interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// ScreenEvent is what the nats view publishes on every render.
type ScreenEvent struct {
	Session string        `json:"session"`
	State   string        `json:"state"`
	JobID   string        `json:"job_id,omitempty"`
	Screen  widget.Screen `json:"screen"`
	At      time.Time     `json:"at"`
}

type AlertEvent struct {
	Session string       `json:"session"`
	Alert   domain.Alert `json:"alert"`
	At      time.Time    `json:"at"`
}

type natsView struct {
	js      publisher
	subject string
	session string
}

// NewNATSView publishes screens to <subject>.<session>.screen and alerts to
// <subject>.<session>.alert.
func NewNATSView(js publisher, subject, session string) *natsView {
	return &natsView{js: js, subject: subject, session: session}
}

func (v *natsView) Render(ctx context.Context, m widget.Model) error {
	return v.publish(ctx, "screen", ScreenEvent{
		Session: v.session,
		State:   m.State.String(),
		JobID:   m.JobID,
		Screen:  m.Screen,
		At:      time.Now().UTC(),
	})
}

func (v *natsView) Alert(ctx context.Context, a domain.Alert) error {
	return v.publish(ctx, "alert", AlertEvent{
		Session: v.session,
		Alert:   a,
		At:      time.Now().UTC(),
	})
}

func (v *natsView) publish(ctx context.Context, kind string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", kind, err)
	}

	msg := &nats.Msg{
		Subject: v.subject + "." + v.session + "." + kind,
		Data:    data,
		Header:  nats.Header{},
	}
	msg.Header.Set(HeaderSession, v.session)
	msg.Header.Set(HeaderKind, kind)

	ack, err := v.js.PublishMsg(msg, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("publish %s event: %w", kind, err)
	}

	slog.Debug(
		"ui event published",
		slog.String("kind", kind),
		slog.String("subject", msg.Subject),
		slog.String("stream", ack.Stream),
		slog.Uint64("seq", ack.Sequence),
	)

	return nil
}
