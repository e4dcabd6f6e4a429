package domain

import (
	"time"

	"mailsift-backend/internal/scoring"
)

// ScoredMessage is a message that cleared the storage threshold, kept with
// the per-rule breakdown that produced its score. Re-storing the same
// (user, message) pair is an upsert, so reprocessing a batch is harmless.
type ScoredMessage struct {
	ID             string              `json:"id" gorm:"primaryKey"`
	UserID         string              `json:"user_id" gorm:"uniqueIndex:idx_user_message;not null"`
	MessageID      string              `json:"message_id" gorm:"uniqueIndex:idx_user_message;not null"`
	Sender         string              `json:"sender"`
	Subject        string              `json:"subject"`
	Snippet        string              `json:"snippet"`
	AggregateScore float64             `json:"aggregate_score"`
	Breakdown      []scoring.RuleScore `json:"breakdown" gorm:"serializer:json"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

func (ScoredMessage) TableName() string {
	return "scored_messages"
}
