package conference

import (
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/team-telnyx/demo-conference-node/internal/domain"
)

// Store holds the single conference this service orchestrates.
// All access goes through one mutex; Atomically lets callers group a read-decide-mutate sequence.
type Store struct {
	mu    sync.Mutex
	state state
	now   func() time.Time
}

type state struct {
	conferenceID string
	participants map[string]*domain.Participant
	order        []string
	onHold       string
}

// NewStore returns an idle store.
func NewStore() *Store {
	s := &Store{now: time.Now}
	s.state.reset()
	return s
}

func (st *state) reset() {
	st.conferenceID = domain.NoConference
	st.participants = make(map[string]*domain.Participant)
	st.order = nil
	st.onHold = ""
}

// Tx is a view of the store valid only inside the Atomically callback that produced it.
type Tx struct {
	st  *state
	now func() time.Time
}

// Atomically runs fn with the store locked.
func (s *Store) Atomically(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&Tx{st: &s.state, now: s.now})
}

// ConferenceID returns the current conference id or domain.NoConference.
func (s *Store) ConferenceID() string {
	var id string
	_ = s.Atomically(func(tx *Tx) error {
		id = tx.ConferenceID()
		return nil
	})
	return id
}

// CreateConference records a newly created conference with its first participant.
func (s *Store) CreateConference(conferenceID, legID, remoteAddress string) (string, error) {
	var id string
	err := s.Atomically(func(tx *Tx) error {
		var err error
		id, err = tx.CreateConference(conferenceID, legID, remoteAddress)
		return err
	})
	return id, err
}

// AddParticipant records a leg that was asked to join the current conference.
func (s *Store) AddParticipant(legID, remoteAddress string) error {
	return s.Atomically(func(tx *Tx) error {
		return tx.AddParticipant(legID, remoteAddress)
	})
}

// MarkJoined records the provider's confirmation that the leg is in the conference.
func (s *Store) MarkJoined(legID string) error {
	return s.Atomically(func(tx *Tx) error {
		return tx.MarkJoined(legID)
	})
}

// RemoveParticipant removes the leg and reports whether it was present.
func (s *Store) RemoveParticipant(legID string) bool {
	var removed bool
	_ = s.Atomically(func(tx *Tx) error {
		removed = tx.RemoveParticipant(legID)
		return nil
	})
	return removed
}

// SetHold marks legID as the participant on hold.
func (s *Store) SetHold(legID string) error {
	return s.Atomically(func(tx *Tx) error {
		return tx.SetHold(legID)
	})
}

// ClearHold clears the hold marker and returns the leg it pointed at.
func (s *Store) ClearHold() string {
	var prev string
	_ = s.Atomically(func(tx *Tx) error {
		prev = tx.ClearHold()
		return nil
	})
	return prev
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() domain.Snapshot {
	var snap domain.Snapshot
	_ = s.Atomically(func(tx *Tx) error {
		snap = tx.Snapshot()
		return nil
	})
	return snap
}

func (tx *Tx) ConferenceID() string {
	return tx.st.conferenceID
}

func (tx *Tx) Active() bool {
	return tx.st.conferenceID != domain.NoConference
}

func (tx *Tx) OnHold() string {
	return tx.st.onHold
}

// CreateConference fails with domain.ErrConflict when a conference already exists.
func (tx *Tx) CreateConference(conferenceID, legID, remoteAddress string) (string, error) {
	if tx.Active() {
		return "", fmt.Errorf("create conference %s: %w", conferenceID, domain.ErrConflict)
	}
	if conferenceID == "" || conferenceID == domain.NoConference {
		return "", fmt.Errorf("invalid conference id %q", conferenceID)
	}
	tx.st.conferenceID = conferenceID
	tx.put(legID, remoteAddress, domain.StateJoined)
	return conferenceID, nil
}

// AddParticipant adds a pending leg, or refreshes the address of a known one.
func (tx *Tx) AddParticipant(legID, remoteAddress string) error {
	if !tx.Active() {
		return fmt.Errorf("add participant %s: %w", legID, domain.ErrNoConference)
	}
	state := domain.StateAnswered
	if p, ok := tx.st.participants[legID]; ok {
		state = p.State
	}
	tx.put(legID, remoteAddress, state)
	return nil
}

func (tx *Tx) put(legID, remoteAddress string, state domain.MembershipState) {
	if p, ok := tx.st.participants[legID]; ok {
		p.RemoteAddress = remoteAddress
		p.State = state
		return
	}
	tx.st.participants[legID] = &domain.Participant{
		LegID:         legID,
		RemoteAddress: remoteAddress,
		State:         state,
		AddedAt:       tx.now(),
	}
	tx.st.order = append(tx.st.order, legID)
}

// MarkJoined promotes a pending leg to a member. Members are left as they are.
func (tx *Tx) MarkJoined(legID string) error {
	p, ok := tx.st.participants[legID]
	if !ok {
		return fmt.Errorf("mark joined %s: %w", legID, domain.ErrNotMember)
	}
	if p.State == domain.StateAnswered {
		p.State = domain.StateJoined
	}
	return nil
}

// RemoveParticipant is a no-op for unknown legs. Removing the last leg resets the store.
func (tx *Tx) RemoveParticipant(legID string) bool {
	if _, ok := tx.st.participants[legID]; !ok {
		return false
	}
	delete(tx.st.participants, legID)
	tx.st.order = lo.Without(tx.st.order, legID)
	if tx.st.onHold == legID {
		tx.st.onHold = ""
	}
	if len(tx.st.participants) == 0 {
		tx.st.reset()
	}
	return true
}

// SetHold requires legID to be the only member of the conference.
func (tx *Tx) SetHold(legID string) error {
	p, ok := tx.st.participants[legID]
	if !ok || !p.State.IsMember() {
		return fmt.Errorf("set hold %s: %w", legID, domain.ErrNotMember)
	}
	if n := tx.MemberCount(); n != 1 {
		return fmt.Errorf("set hold %s: %d members in conference", legID, n)
	}
	p.State = domain.StateOnHold
	tx.st.onHold = legID
	return nil
}

func (tx *Tx) ClearHold() string {
	prev := tx.st.onHold
	if p, ok := tx.st.participants[prev]; ok && p.State == domain.StateOnHold {
		p.State = domain.StateJoined
	}
	tx.st.onHold = ""
	return prev
}

func (tx *Tx) MemberCount() int {
	return lo.CountBy(lo.Values(tx.st.participants), func(p *domain.Participant) bool {
		return p.State.IsMember()
	})
}

// Members returns the members in insertion order.
func (tx *Tx) Members() []domain.Participant {
	return tx.Snapshot().Members()
}

func (tx *Tx) Snapshot() domain.Snapshot {
	return domain.Snapshot{
		ConferenceID: tx.st.conferenceID,
		Participants: lo.Map(tx.st.order, func(legID string, _ int) domain.Participant {
			return *tx.st.participants[legID]
		}),
		OnHold: tx.st.onHold,
	}
}
