package repository

import (
	"context"
	"time"

	"github.com/team-telnyx/demo-conference-node/internal/domain"
	"gorm.io/gorm"
)

// ConferenceJournalRepository defines the interface for conference journal operations
type ConferenceJournalRepository interface {
	OpenSession(ctx context.Context, session *domain.ConferenceSession) error
	CloseSession(ctx context.Context, providerConferenceID string, endedAt time.Time) error
	GetSession(ctx context.Context, providerConferenceID string) (*domain.ConferenceSession, error)

	AppendEvent(ctx context.Context, record *domain.ConferenceEventRecord) error
	ListEvents(ctx context.Context, providerConferenceID string) ([]*domain.ConferenceEventRecord, error)
}

// RepositoryManager combines all repositories
type RepositoryManager interface {
	ConferenceJournal() ConferenceJournalRepository

	// Transaction support
	WithTx(ctx context.Context, fn func(ctx context.Context, repos RepositoryManager) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connection
	Close() error
}

// GormRepositoryManager implements RepositoryManager using GORM
type GormRepositoryManager struct {
	db          *gorm.DB
	journalRepo *GormConferenceJournalRepository
}

// NewGormRepositoryManager creates a new GORM repository manager
func NewGormRepositoryManager(db *gorm.DB) *GormRepositoryManager {
	return &GormRepositoryManager{
		db:          db,
		journalRepo: NewGormConferenceJournalRepository(db),
	}
}

// ConferenceJournal returns the conference journal repository
func (m *GormRepositoryManager) ConferenceJournal() ConferenceJournalRepository {
	return m.journalRepo
}

// WithTx executes a function within a database transaction
func (m *GormRepositoryManager) WithTx(ctx context.Context, fn func(ctx context.Context, repos RepositoryManager) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, NewGormRepositoryManager(tx))
	})
}

// Ping checks the database connection
func (m *GormRepositoryManager) Ping(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (m *GormRepositoryManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
