package domain

import "time"

// NoConference is the conference id held while no conference exists.
const NoConference = "no-conf"

// MembershipState tracks where a leg is in the join flow.
type MembershipState string

const (
	// StateAnswered is a leg that was answered and asked to join but not yet confirmed by the provider.
	StateAnswered MembershipState = "answered"
	StateJoined   MembershipState = "joined"
	StateOnHold   MembershipState = "on-hold"
)

// IsMember reports whether the provider has the leg inside the conference.
func (s MembershipState) IsMember() bool {
	return s == StateJoined || s == StateOnHold
}

// Participant is one call leg known to the conference.
type Participant struct {
	LegID         string          `json:"leg_id"`
	RemoteAddress string          `json:"remote_address"`
	State         MembershipState `json:"state"`
	AddedAt       time.Time       `json:"added_at"`
}

// Snapshot is a point-in-time copy of the conference state.
type Snapshot struct {
	ConferenceID string        `json:"conference_id"`
	Participants []Participant `json:"participants"`
	OnHold       string        `json:"on_hold,omitempty"`
}

// Active reports whether a conference currently exists.
func (s Snapshot) Active() bool {
	return s.ConferenceID != NoConference
}

// Members returns the participants the provider has confirmed inside the conference.
func (s Snapshot) Members() []Participant {
	members := make([]Participant, 0, len(s.Participants))
	for _, p := range s.Participants {
		if p.State.IsMember() {
			members = append(members, p)
		}
	}
	return members
}

// Find returns the participant with the given leg id.
func (s Snapshot) Find(legID string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.LegID == legID {
			return p, true
		}
	}
	return Participant{}, false
}
