package usecase

import (
	"context"

	"mailsift-backend/internal/ingest/domain"
	rulesdomain "mailsift-backend/internal/rules/domain"
	"mailsift-backend/internal/scoring"
)

// IngestUsecase handles one push notification end to end
type IngestUsecase interface {
	HandleNotification(ctx context.Context, notification *domain.Notification) (*domain.Result, error)
}

// Scorer evaluates message content against a rule forest
type Scorer interface {
	Evaluate(ctx context.Context, content string, roots []*rulesdomain.Rule) (float64, []scoring.RuleScore)
}

// StoredMessageNotifier is told about each newly stored message, e.g. to
// push a device notification. Called outside the critical path; failures
// are the implementation's problem.
type StoredMessageNotifier interface {
	NotifyStored(userID string, message *domain.ScoredMessage)
}

// Indexer adds stored messages to a secondary search index
type Indexer interface {
	IndexMessage(ctx context.Context, userID string, message *domain.ScoredMessage) error
}
