package lifecycle

import (
	"context"
	"encoding/json"

	"github.com/team-telnyx/demo-conference-node/internal/core/event"
	"github.com/team-telnyx/demo-conference-node/internal/domain"
	"github.com/team-telnyx/demo-conference-node/internal/repository"
	"github.com/team-telnyx/demo-conference-node/pkg/logger"
	"go.uber.org/zap"
)

// Journal persists conference sessions and every lifecycle event.
type Journal struct {
	repos repository.RepositoryManager
}

func NewJournal(repos repository.RepositoryManager) *Journal {
	return &Journal{repos: repos}
}

// Register subscribes the journal to every lifecycle event.
func (j *Journal) Register(bus event.EventBus) error {
	return bus.SubscribeAll(j.Handle)
}

func (j *Journal) Handle(evt *event.ConferenceEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()

	if err := j.record(ctx, evt); err != nil {
		logger.Warn(ctx, "Failed to journal lifecycle event",
			zap.String("type", string(evt.Type)),
			zap.String("conference_id", evt.ConferenceID),
			zap.Error(err))
	}
}

func (j *Journal) record(ctx context.Context, evt *event.ConferenceEvent) error {
	return j.repos.WithTx(ctx, func(ctx context.Context, repos repository.RepositoryManager) error {
		journal := repos.ConferenceJournal()

		switch evt.Type {
		case event.ConferenceCreated:
			err := journal.OpenSession(ctx, &domain.ConferenceSession{
				ProviderConferenceID: evt.ConferenceID,
				CreatorLegID:         evt.LegID,
				StartedAt:            evt.Timestamp,
			})
			if err != nil {
				return err
			}
		case event.ConferenceEnded:
			if err := journal.CloseSession(ctx, evt.ConferenceID, evt.Timestamp); err != nil {
				return err
			}
		}

		return journal.AppendEvent(ctx, &domain.ConferenceEventRecord{
			ProviderConferenceID: evt.ConferenceID,
			EventType:            string(evt.Type),
			LegID:                evt.LegID,
			RemoteAddress:        evt.RemoteAddress,
			Error:                evt.ErrorMessage(),
			Data:                 toJSONB(evt.Data),
			OccurredAt:           evt.Timestamp,
		})
	})
}

// toJSONB round-trips data through JSON; non-object payloads are wrapped under "value".
func toJSONB(data interface{}) domain.JSONB {
	if data == nil {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return domain.JSONB(obj)
	}
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil
	}
	return domain.JSONB{"value": value}
}
