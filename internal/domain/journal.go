package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONB represents a PostgreSQL JSONB field
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface for JSONB
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for JSONB
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}

	return json.Unmarshal(bytes, j)
}

// ConferenceSession is one provider conference from creation to the last leg leaving.
type ConferenceSession struct {
	ID                   string     `json:"id" gorm:"column:id;primaryKey"`
	ProviderConferenceID string     `json:"provider_conference_id" gorm:"column:provider_conference_id;uniqueIndex"`
	CreatorLegID         string     `json:"creator_leg_id" gorm:"column:creator_leg_id"`
	StartedAt            time.Time  `json:"started_at" gorm:"column:started_at"`
	EndedAt              *time.Time `json:"ended_at,omitempty" gorm:"column:ended_at"`
	CreatedAt            time.Time  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt            time.Time  `json:"updated_at" gorm:"column:updated_at"`
}

func (ConferenceSession) TableName() string {
	return "conference_sessions"
}

// ConferenceEventRecord is an append-only journal entry of a lifecycle event.
type ConferenceEventRecord struct {
	ID                   string    `json:"id" gorm:"column:id;primaryKey"`
	ProviderConferenceID string    `json:"provider_conference_id" gorm:"column:provider_conference_id;index"`
	EventType            string    `json:"event_type" gorm:"column:event_type;index"`
	LegID                string    `json:"leg_id,omitempty" gorm:"column:leg_id;index"`
	RemoteAddress        string    `json:"remote_address,omitempty" gorm:"column:remote_address"`
	Error                string    `json:"error,omitempty" gorm:"column:error"`
	Data                 JSONB     `json:"data,omitempty" gorm:"column:data;type:jsonb"`
	OccurredAt           time.Time `json:"occurred_at" gorm:"column:occurred_at;index"`
	CreatedAt            time.Time `json:"created_at" gorm:"column:created_at"`
}

func (ConferenceEventRecord) TableName() string {
	return "conference_events"
}
