package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/team-telnyx/demo-conference-node/internal/domain"
	"github.com/team-telnyx/demo-conference-node/internal/repository"
	"github.com/team-telnyx/demo-conference-node/pkg/redis"
)

type fakeRedis struct {
	mu         sync.Mutex
	values     map[string]string
	published  map[string][]string
	publishErr error
	setDelay   time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, published: map[string][]string{}}
}

func (f *fakeRedis) GenerateKey(keyType redis.KeyType, identifier string) string {
	return fmt.Sprintf("%s:%s", keyType, identifier)
}

func (f *fakeRedis) SetValue(_ context.Context, key, value string, _ time.Duration) error {
	time.Sleep(f.setDelay)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}

func (f *fakeRedis) DelValue(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	return nil
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[channel] = append(f.published[channel], string(data))
	return nil
}

func (f *fakeRedis) Close() error { return nil }

func (f *fakeRedis) value(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

type staticSnapshot struct {
	mu   sync.Mutex
	snap domain.Snapshot
}

func (s *staticSnapshot) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *staticSnapshot) set(snap domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
}

type publishedMessage struct {
	payload interface{}
	attrs   map[string]string
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, payload interface{}, attrs map[string]string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, publishedMessage{payload: payload, attrs: attrs})
	return nil
}

func (f *fakePublisher) Close() error { return nil }

// memoryJournal is an in-memory ConferenceJournalRepository.
type memoryJournal struct {
	mu        sync.Mutex
	sessions  map[string]*domain.ConferenceSession
	events    []*domain.ConferenceEventRecord
	appendErr error
	openDelay time.Duration
}

func newMemoryJournal() *memoryJournal {
	return &memoryJournal{sessions: map[string]*domain.ConferenceSession{}}
}

func (m *memoryJournal) OpenSession(_ context.Context, session *domain.ConferenceSession) error {
	time.Sleep(m.openDelay)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.ProviderConferenceID]; !ok {
		copied := *session
		m.sessions[session.ProviderConferenceID] = &copied
	}
	return nil
}

func (m *memoryJournal) CloseSession(_ context.Context, providerConferenceID string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[providerConferenceID]; ok && s.EndedAt == nil {
		s.EndedAt = &endedAt
	}
	return nil
}

func (m *memoryJournal) GetSession(_ context.Context, providerConferenceID string) (*domain.ConferenceSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[providerConferenceID], nil
}

func (m *memoryJournal) AppendEvent(_ context.Context, record *domain.ConferenceEventRecord) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, record)
	return nil
}

func (m *memoryJournal) ListEvents(_ context.Context, providerConferenceID string) ([]*domain.ConferenceEventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ConferenceEventRecord
	for _, e := range m.events {
		if e.ProviderConferenceID == providerConferenceID {
			out = append(out, e)
		}
	}
	return out, nil
}

type memoryRepos struct {
	journal *memoryJournal
	txCount int
}

func (m *memoryRepos) ConferenceJournal() repository.ConferenceJournalRepository { return m.journal }

func (m *memoryRepos) WithTx(ctx context.Context, fn func(ctx context.Context, repos repository.RepositoryManager) error) error {
	m.txCount++
	return fn(ctx, m)
}

func (m *memoryRepos) Ping(context.Context) error { return nil }

func (m *memoryRepos) Close() error { return errors.New("not supported") }
