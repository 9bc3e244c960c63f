package conference

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/team-telnyx/demo-conference-node/internal/core/event"
	"github.com/team-telnyx/demo-conference-node/internal/domain"
	"github.com/team-telnyx/demo-conference-node/pkg/logger"
	"go.uber.org/zap"
)

const (
	clientStateOutgoing    = "outgoing"
	clientStateConfCreated = "conf-created"
	clientStateAgentIn     = "agent-in"

	waitPrompt = "Welcome to this conference demo. Please wait for other participants to join. "
	joinPrompt = "Welcome to this conference demo. We are now putting you on the conference room. "
)

var (
	// ErrDispatcherBusy is returned when the worker shard for a leg has no queue space.
	ErrDispatcherBusy = errors.New("dispatcher queue is full")
	// ErrDispatcherClosed is returned after Close.
	ErrDispatcherClosed = errors.New("dispatcher is closed")
)

// CallControl issues commands to the telephony provider.
type CallControl interface {
	Answer(ctx context.Context, legID, clientState string) error
	Hangup(ctx context.Context, legID string) error
	Speak(ctx context.Context, legID, text string) error
	CreateConference(ctx context.Context, legID, name, clientState string) (string, error)
	JoinConference(ctx context.Context, conferenceID, legID, clientState string) error
	Mute(ctx context.Context, conferenceID string, legIDs []string) error
	Unmute(ctx context.Context, conferenceID string, legIDs []string) error
	Hold(ctx context.Context, conferenceID string, legIDs []string, audioURL string) error
	Unhold(ctx context.Context, conferenceID string, legIDs []string) error
	Dial(ctx context.Context, to, from, connectionID string) (string, error)
	RecordStart(ctx context.Context, legID string) error
	RecordStop(ctx context.Context, legID string) error
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	ConferenceName string
	WaitingURL     string
	Shards         int
	QueueSize      int
}

type job struct {
	ctx context.Context
	evt *domain.CallEvent
}

// Dispatcher turns webhook events into store mutations and provider commands.
//
// Events are queued on worker shards keyed by leg id, so events of one leg are processed
// in arrival order while different legs proceed concurrently. Membership transitions
// (answered, joined, left) are additionally serialized so the decision to hold or unhold
// and the command that carries it out are never interleaved with another transition.
type Dispatcher struct {
	store  *Store
	client CallControl
	bus    event.EventBus
	opts   DispatcherOptions

	membership sync.Mutex

	mu     sync.RWMutex
	closed bool
	shards []chan job
	wg     sync.WaitGroup
}

// NewDispatcher starts the worker shards. bus may be nil.
func NewDispatcher(store *Store, client CallControl, bus event.EventBus, opts DispatcherOptions) *Dispatcher {
	if opts.ConferenceName == "" {
		opts.ConferenceName = "myconf"
	}
	if opts.Shards < 1 {
		opts.Shards = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}

	d := &Dispatcher{
		store:  store,
		client: client,
		bus:    bus,
		opts:   opts,
		shards: make([]chan job, opts.Shards),
	}
	for i := range d.shards {
		d.shards[i] = make(chan job, opts.QueueSize)
		d.wg.Add(1)
		go d.worker(i, d.shards[i])
	}
	return d
}

// Dispatch validates evt and queues it for processing. It never waits for commands.
func (d *Dispatcher) Dispatch(ctx context.Context, evt *domain.CallEvent) error {
	if err := d.validate(ctx, evt); err != nil {
		return err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	shard := shardFor(evt.CallControlID, len(d.shards))
	select {
	case d.shards[shard] <- job{ctx: context.WithoutCancel(ctx), evt: evt}:
		return nil
	default:
		logger.Warn(ctx, "Dispatch queue full, dropping event",
			zap.String("event_type", string(evt.Type)),
			zap.String("call_control_id", evt.CallControlID),
			zap.Int("shard", shard))
		return ErrDispatcherBusy
	}
}

// Close stops accepting events and waits until queued events are processed or ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, ch := range d.shards {
			close(ch)
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher drain interrupted: %w", ctx.Err())
	}
}

func (d *Dispatcher) worker(id int, jobs <-chan job) {
	defer d.wg.Done()
	for j := range jobs {
		d.run(id, j)
	}
}

func (d *Dispatcher) run(id int, j job) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(j.ctx, "Panic while processing event",
				zap.Int("shard", id),
				zap.String("event_type", string(j.evt.Type)),
				zap.String("call_control_id", j.evt.CallControlID),
				zap.Any("panic", r))
		}
	}()
	_ = d.Apply(j.ctx, j.evt)
}

func shardFor(legID string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(legID))
	return int(h.Sum32() % uint32(n))
}

// Apply processes one event synchronously. The returned error explains why the event
// changed nothing; it is informational since webhooks are always acknowledged.
func (d *Dispatcher) Apply(ctx context.Context, evt *domain.CallEvent) error {
	if err := d.validate(ctx, evt); err != nil {
		return err
	}

	logger.Info(ctx, "Webhook received",
		zap.String("event_type", string(evt.Type)),
		zap.String("call_control_id", evt.CallControlID))

	switch evt.Type {
	case domain.EventCallInitiated:
		return d.onCallInitiated(ctx, evt)
	case domain.EventCallAnswered:
		return d.onCallAnswered(ctx, evt)
	case domain.EventParticipantJoined:
		return d.onParticipantJoined(ctx, evt)
	case domain.EventParticipantLeft:
		return d.onParticipantLeft(ctx, evt)
	case domain.EventConferenceCreated:
		logger.Info(ctx, "Conference created",
			zap.String("conference_id", d.store.ConferenceID()),
			zap.String("event_conference_id", evt.ConferenceID))
		return nil
	}

	if evt.Type.IsKnown() {
		logger.Debug(ctx, "Event acknowledged", zap.String("event_type", string(evt.Type)))
	} else {
		logger.Debug(ctx, "Unhandled event type acknowledged", zap.String("event_type", string(evt.Type)))
	}
	return nil
}

func (d *Dispatcher) validate(ctx context.Context, evt *domain.CallEvent) error {
	var err error
	if evt == nil {
		err = domain.MalformedEventError("nil event")
	} else {
		err = evt.Validate()
	}
	if err == nil {
		return nil
	}

	d.ReportMalformed(ctx, evt, err)
	return err
}

// ReportMalformed publishes an event that was rejected before processing. evt may be
// nil or partially decoded.
func (d *Dispatcher) ReportMalformed(ctx context.Context, evt *domain.CallEvent, err error) {
	logger.Warn(ctx, "Malformed webhook event ignored", zap.Error(err))
	published := event.NewConferenceEvent(event.EventMalformed, d.store.ConferenceID()).WithError(err)
	if evt != nil {
		published.WithData(evt)
	}
	d.publish(published)
}

func (d *Dispatcher) onCallInitiated(ctx context.Context, evt *domain.CallEvent) error {
	clientState := ""
	if evt.Direction != domain.DirectionIncoming {
		clientState = clientStateOutgoing
	}
	d.report(ctx, "answer", evt.CallControlID, d.client.Answer(ctx, evt.CallControlID, clientState))
	return nil
}

func (d *Dispatcher) onCallAnswered(ctx context.Context, evt *domain.CallEvent) error {
	leg := evt.CallControlID
	addr := evt.RemoteAddress()

	d.membership.Lock()
	defer d.membership.Unlock()

	snap := d.store.Snapshot()
	if !snap.Active() {
		return d.formConference(ctx, leg, addr)
	}

	if _, known := snap.Find(leg); known {
		logger.Info(ctx, "Duplicate call answered for known participant",
			zap.String("call_control_id", leg),
			zap.String("conference_id", snap.ConferenceID))
		return nil
	}

	d.report(ctx, "speak", leg, d.client.Speak(ctx, leg, joinPrompt))
	d.report(ctx, "join", leg, d.client.JoinConference(ctx, snap.ConferenceID, leg, clientStateAgentIn))

	if err := d.store.AddParticipant(leg, addr); err != nil {
		logger.Error(ctx, "Failed to add participant", zap.String("call_control_id", leg), zap.Error(err))
		return err
	}

	logger.Info(ctx, "Participant joining conference",
		zap.String("call_control_id", leg),
		zap.String("remote_address", addr),
		zap.String("conference_id", snap.ConferenceID))
	d.publish(event.NewConferenceEvent(event.ParticipantAdded, snap.ConferenceID).WithLeg(leg, addr))
	return nil
}

// formConference creates the provider conference on leg. A failed create hangs the leg up.
func (d *Dispatcher) formConference(ctx context.Context, leg, addr string) error {
	d.report(ctx, "speak", leg, d.client.Speak(ctx, leg, waitPrompt))

	confID, err := d.client.CreateConference(ctx, leg, d.opts.ConferenceName, clientStateConfCreated)
	if err != nil {
		d.report(ctx, "create_conference", leg, err)
		d.report(ctx, "hangup", leg, d.client.Hangup(ctx, leg))
		return err
	}

	if _, err := d.store.CreateConference(confID, leg, addr); err != nil {
		logger.Error(ctx, "Failed to record new conference",
			zap.String("conference_id", confID),
			zap.String("call_control_id", leg),
			zap.Error(err))
		return err
	}

	logger.Info(ctx, "Conference formed",
		zap.String("conference_id", confID),
		zap.String("call_control_id", leg),
		zap.String("remote_address", addr))
	d.publish(event.NewConferenceEvent(event.ConferenceCreated, confID).WithLeg(leg, addr))
	return nil
}

func (d *Dispatcher) onParticipantJoined(ctx context.Context, evt *domain.CallEvent) error {
	leg := evt.CallControlID

	d.membership.Lock()
	defer d.membership.Unlock()

	var confID, hold, unhold string
	var members int
	err := d.store.Atomically(func(tx *Tx) error {
		if !tx.Active() {
			return fmt.Errorf("participant joined %s: %w", leg, domain.ErrNoConference)
		}
		if err := tx.MarkJoined(leg); err != nil {
			return err
		}
		confID = tx.ConferenceID()
		members = tx.MemberCount()

		switch members {
		case 1:
			if tx.OnHold() == leg {
				return nil
			}
			if err := tx.SetHold(leg); err != nil {
				return err
			}
			hold = leg
		case 2:
			unhold = tx.ClearHold()
		}
		return nil
	})
	if err != nil {
		logger.Warn(ctx, "Participant joined event ignored",
			zap.String("call_control_id", leg),
			zap.Error(err))
		return err
	}

	logger.Info(ctx, "Participant joined",
		zap.String("call_control_id", leg),
		zap.String("conference_id", confID),
		zap.Int("members", members))
	d.publish(event.NewConferenceEvent(event.ParticipantJoined, confID).WithLeg(leg, "").WithData(map[string]int{"members": members}))

	if hold != "" {
		d.hold(ctx, confID, hold)
	}
	if unhold != "" {
		d.report(ctx, "unhold", unhold, d.client.Unhold(ctx, confID, []string{unhold}))
		d.publish(event.NewConferenceEvent(event.ParticipantResumed, confID).WithLeg(unhold, ""))
	}
	return nil
}

func (d *Dispatcher) onParticipantLeft(ctx context.Context, evt *domain.CallEvent) error {
	leg := evt.CallControlID

	d.membership.Lock()
	defer d.membership.Unlock()

	var confID, survivor string
	var removed, ended bool
	err := d.store.Atomically(func(tx *Tx) error {
		confID = tx.ConferenceID()
		if removed = tx.RemoveParticipant(leg); !removed {
			return nil
		}
		if ended = !tx.Active(); ended {
			return nil
		}

		members := tx.Members()
		if len(members) != 1 || tx.OnHold() == members[0].LegID {
			return nil
		}
		if err := tx.SetHold(members[0].LegID); err != nil {
			return err
		}
		survivor = members[0].LegID
		return nil
	})
	if err != nil {
		logger.Error(ctx, "Failed to apply hold after participant left",
			zap.String("call_control_id", leg),
			zap.Error(err))
		return err
	}
	if !removed {
		logger.Debug(ctx, "Participant left for unknown leg", zap.String("call_control_id", leg))
		return nil
	}

	logger.Info(ctx, "Participant left",
		zap.String("call_control_id", leg),
		zap.String("conference_id", confID))
	d.publish(event.NewConferenceEvent(event.ParticipantLeft, confID).WithLeg(leg, ""))

	if ended {
		logger.Info(ctx, "Conference ended", zap.String("conference_id", confID))
		d.publish(event.NewConferenceEvent(event.ConferenceEnded, confID))
		return nil
	}
	if survivor != "" {
		d.hold(ctx, confID, survivor)
	}
	return nil
}

func (d *Dispatcher) hold(ctx context.Context, confID, leg string) {
	d.report(ctx, "hold", leg, d.client.Hold(ctx, confID, []string{leg}, d.opts.WaitingURL))
	d.publish(event.NewConferenceEvent(event.ParticipantHeld, confID).WithLeg(leg, ""))
}

// report logs a failed fire-and-forget command and publishes it. nil errors are ignored.
func (d *Dispatcher) report(ctx context.Context, action, target string, err error) {
	if err == nil {
		return
	}
	logger.Error(ctx, "Call control command failed",
		zap.String("action", action),
		zap.String("target", target),
		zap.Error(err))
	d.publish(event.NewConferenceEvent(event.CommandFailed, d.store.ConferenceID()).
		WithLeg(target, "").
		WithData(&event.CommandEventData{Action: action, Target: target, Reason: err.Error()}).
		WithError(err))
}

func (d *Dispatcher) publish(evt *event.ConferenceEvent) {
	if d.bus == nil {
		return
	}
	if err := d.bus.PublishEvent(evt); err != nil {
		logger.Base().Debug("Lifecycle event not published", zap.String("type", string(evt.Type)), zap.Error(err))
	}
}
