package conference

import (
	"context"
	"fmt"

	"github.com/team-telnyx/demo-conference-node/internal/core/event"
	"github.com/team-telnyx/demo-conference-node/internal/domain"
	"github.com/team-telnyx/demo-conference-node/pkg/logger"
	"github.com/team-telnyx/demo-conference-node/pkg/phone"
	"go.uber.org/zap"
)

// AdminOptions configures the operator surface.
type AdminOptions struct {
	WaitingURL    string
	DialFrom      string
	ConnectionID  string
	DefaultRegion string
}

// AdminService exposes operator queries and commands. Commands are forwarded to the
// provider; the hold marker only follows provider webhooks, never operator actions.
type AdminService struct {
	store  *Store
	client CallControl
	bus    event.EventBus
	opts   AdminOptions
}

// NewAdminService creates a new admin service
func NewAdminService(store *Store, client CallControl, bus event.EventBus, opts AdminOptions) *AdminService {
	return &AdminService{store: store, client: client, bus: bus, opts: opts}
}

// List returns the current conference, or domain.ErrNoConference when idle.
func (a *AdminService) List() (domain.Snapshot, error) {
	snap := a.store.Snapshot()
	if !snap.Active() || len(snap.Participants) == 0 {
		return snap, domain.ErrNoConference
	}
	return snap, nil
}

func (a *AdminService) Mute(ctx context.Context, legID string) error {
	return a.conferenceCommand(ctx, "mute", legID, func(confID string) error {
		return a.client.Mute(ctx, confID, []string{legID})
	})
}

func (a *AdminService) Unmute(ctx context.Context, legID string) error {
	return a.conferenceCommand(ctx, "unmute", legID, func(confID string) error {
		return a.client.Unmute(ctx, confID, []string{legID})
	})
}

// Hold plays the waiting audio to legID.
func (a *AdminService) Hold(ctx context.Context, legID string) error {
	return a.conferenceCommand(ctx, "hold", legID, func(confID string) error {
		return a.client.Hold(ctx, confID, []string{legID}, a.opts.WaitingURL)
	})
}

func (a *AdminService) Unhold(ctx context.Context, legID string) error {
	return a.conferenceCommand(ctx, "unhold", legID, func(confID string) error {
		return a.client.Unhold(ctx, confID, []string{legID})
	})
}

// RecordStart starts recording legID.
func (a *AdminService) RecordStart(ctx context.Context, legID string) error {
	return a.conferenceCommand(ctx, "record_start", legID, func(string) error {
		return a.client.RecordStart(ctx, legID)
	})
}

func (a *AdminService) RecordStop(ctx context.Context, legID string) error {
	return a.conferenceCommand(ctx, "record_stop", legID, func(string) error {
		return a.client.RecordStop(ctx, legID)
	})
}

// DialOut calls number. The new leg joins through its own call.answered webhook.
func (a *AdminService) DialOut(ctx context.Context, number string) (string, error) {
	dst, err := phone.Parse(number, a.opts.DefaultRegion)
	if err != nil {
		return "", err
	}

	legID, err := a.client.Dial(ctx, dst.Dialable(), a.opts.DialFrom, a.opts.ConnectionID)
	if err != nil {
		a.reportFailure(ctx, "dial", dst.Dialable(), err)
		return "", err
	}

	logger.Info(ctx, "Dialed out",
		zap.String("to", dst.Dialable()),
		zap.String("call_control_id", legID))
	return legID, nil
}

func (a *AdminService) conferenceCommand(ctx context.Context, action, legID string, run func(confID string) error) error {
	if legID == "" {
		return fmt.Errorf("%s: participant is required: %w", action, domain.ErrNotMember)
	}

	snap := a.store.Snapshot()
	if !snap.Active() {
		return fmt.Errorf("%s %s: %w", action, legID, domain.ErrNoConference)
	}
	if p, ok := snap.Find(legID); !ok || !p.State.IsMember() {
		return fmt.Errorf("%s %s: %w", action, legID, domain.ErrNotMember)
	}

	if err := run(snap.ConferenceID); err != nil {
		a.reportFailure(ctx, action, legID, err)
		return err
	}

	logger.Info(ctx, "Operator command executed",
		zap.String("action", action),
		zap.String("call_control_id", legID),
		zap.String("conference_id", snap.ConferenceID))
	return nil
}

func (a *AdminService) reportFailure(ctx context.Context, action, target string, err error) {
	logger.Error(ctx, "Operator command failed",
		zap.String("action", action),
		zap.String("target", target),
		zap.Error(err))
	if a.bus == nil {
		return
	}
	_ = a.bus.PublishEvent(event.NewConferenceEvent(event.CommandFailed, a.store.ConferenceID()).
		WithLeg(target, "").
		WithData(&event.CommandEventData{Action: action, Target: target, Reason: err.Error()}).
		WithError(err))
}
