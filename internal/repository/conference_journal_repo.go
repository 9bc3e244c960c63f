package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/team-telnyx/demo-conference-node/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormConferenceJournalRepository stores conference sessions and their lifecycle events.
type GormConferenceJournalRepository struct {
	db *gorm.DB
}

// NewGormConferenceJournalRepository creates a new conference journal repository
func NewGormConferenceJournalRepository(db *gorm.DB) *GormConferenceJournalRepository {
	return &GormConferenceJournalRepository{db: db}
}

// OpenSession inserts a session; a session already recorded for the conference is left untouched.
func (r *GormConferenceJournalRepository) OpenSession(ctx context.Context, session *domain.ConferenceSession) error {
	if session.ProviderConferenceID == "" {
		return fmt.Errorf("provider conference ID cannot be empty")
	}
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	now := time.Now()
	if session.StartedAt.IsZero() {
		session.StartedAt = now
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "provider_conference_id"}}, DoNothing: true}).
		Create(session).Error
	if err != nil {
		return fmt.Errorf("failed to open conference session: %w", err)
	}
	return nil
}

// CloseSession records when the conference ended.
func (r *GormConferenceJournalRepository) CloseSession(ctx context.Context, providerConferenceID string, endedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&domain.ConferenceSession{}).
		Where("provider_conference_id = ? AND ended_at IS NULL", providerConferenceID).
		Updates(map[string]interface{}{"ended_at": endedAt, "updated_at": time.Now()})
	if result.Error != nil {
		return fmt.Errorf("failed to close conference session: %w", result.Error)
	}
	return nil
}

// GetSession returns nil, nil when no session is recorded.
func (r *GormConferenceJournalRepository) GetSession(ctx context.Context, providerConferenceID string) (*domain.ConferenceSession, error) {
	var session domain.ConferenceSession
	err := r.db.WithContext(ctx).Where("provider_conference_id = ?", providerConferenceID).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get conference session: %w", err)
	}
	return &session, nil
}

// AppendEvent inserts one journal entry.
func (r *GormConferenceJournalRepository) AppendEvent(ctx context.Context, record *domain.ConferenceEventRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	if record.OccurredAt.IsZero() {
		record.OccurredAt = record.CreatedAt
	}

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to append conference event: %w", err)
	}
	return nil
}

// ListEvents returns the journal of a conference in occurrence order.
func (r *GormConferenceJournalRepository) ListEvents(ctx context.Context, providerConferenceID string) ([]*domain.ConferenceEventRecord, error) {
	var records []*domain.ConferenceEventRecord
	err := r.db.WithContext(ctx).
		Where("provider_conference_id = ?", providerConferenceID).
		Order("occurred_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conference events: %w", err)
	}
	return records, nil
}
