package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mailsift-backend/internal/ingest/domain"
)

type ScoredMessageRepository interface {
	Upsert(message *domain.ScoredMessage) error
	LatestN(userID string, n int) ([]domain.ScoredMessage, error)
	FindByMessageIDs(userID string, messageIDs []string) ([]domain.ScoredMessage, error)
}

type scoredMessageRepository struct {
	db *gorm.DB
}

func NewScoredMessageRepository(db *gorm.DB) ScoredMessageRepository {
	return &scoredMessageRepository{db: db}
}

// Upsert inserts the record or refreshes an existing one for the same
// (user, message) pair, so reprocessing a redelivered batch never creates
// duplicates.
func (r *scoredMessageRepository) Upsert(message *domain.ScoredMessage) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "message_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"sender", "subject", "snippet", "aggregate_score", "breakdown", "updated_at",
		}),
	}).Create(message).Error
}

func (r *scoredMessageRepository) LatestN(userID string, n int) ([]domain.ScoredMessage, error) {
	var messages []domain.ScoredMessage
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(n).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *scoredMessageRepository) FindByMessageIDs(userID string, messageIDs []string) ([]domain.ScoredMessage, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var messages []domain.ScoredMessage
	err := r.db.Where("user_id = ? AND message_id IN ?", userID, messageIDs).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}
