package conference

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/team-telnyx/demo-conference-node/internal/domain"
)

// fakeControl records every command as a compact string and can be told to fail actions.
type fakeControl struct {
	mu       sync.Mutex
	calls    []string
	failures map[string]error
	nextConf string
	nextLeg  string
}

func newFakeControl() *fakeControl {
	return &fakeControl{failures: map[string]error{}, nextConf: "conf-1", nextLeg: "leg-dialed"}
}

func (f *fakeControl) failOn(action string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[action] = &domain.CommandFailure{Action: action, StatusCode: 422, Detail: "rejected"}
}

func (f *fakeControl) record(action string, parts ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, strings.TrimSpace(action+" "+strings.Join(parts, " ")))
	return f.failures[action]
}

func (f *fakeControl) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeControl) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *fakeControl) Answer(_ context.Context, legID, clientState string) error {
	return f.record("answer", legID, fmt.Sprintf("state=%q", clientState))
}

func (f *fakeControl) Hangup(_ context.Context, legID string) error {
	return f.record("hangup", legID)
}

func (f *fakeControl) Speak(_ context.Context, legID, text string) error {
	kind := "wait"
	if text == joinPrompt {
		kind = "join"
	}
	return f.record("speak", legID, kind)
}

func (f *fakeControl) CreateConference(_ context.Context, legID, name, clientState string) (string, error) {
	if err := f.record("create", legID, name, clientState); err != nil {
		return "", err
	}
	return f.nextConf, nil
}

func (f *fakeControl) JoinConference(_ context.Context, conferenceID, legID, clientState string) error {
	return f.record("join", conferenceID, legID, clientState)
}

func (f *fakeControl) Mute(_ context.Context, conferenceID string, legIDs []string) error {
	return f.record("mute", conferenceID, strings.Join(legIDs, ","))
}

func (f *fakeControl) Unmute(_ context.Context, conferenceID string, legIDs []string) error {
	return f.record("unmute", conferenceID, strings.Join(legIDs, ","))
}

func (f *fakeControl) Hold(_ context.Context, conferenceID string, legIDs []string, audioURL string) error {
	return f.record("hold", conferenceID, strings.Join(legIDs, ","), audioURL)
}

func (f *fakeControl) Unhold(_ context.Context, conferenceID string, legIDs []string) error {
	return f.record("unhold", conferenceID, strings.Join(legIDs, ","))
}

func (f *fakeControl) Dial(_ context.Context, to, from, connectionID string) (string, error) {
	if err := f.record("dial", to, from, connectionID); err != nil {
		return "", err
	}
	return f.nextLeg, nil
}

func (f *fakeControl) RecordStart(_ context.Context, legID string) error {
	return f.record("record_start", legID)
}

func (f *fakeControl) RecordStop(_ context.Context, legID string) error {
	return f.record("record_stop", legID)
}
