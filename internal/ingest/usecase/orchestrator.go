package usecase

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	authrepo "mailsift-backend/internal/auth/repository"
	"mailsift-backend/internal/ingest/domain"
	ingestrepo "mailsift-backend/internal/ingest/repository"
	rulesrepo "mailsift-backend/internal/rules/repository"
)

const (
	// storageThreshold is the aggregate-score cutoff at or above which a
	// scored message is persisted.
	storageThreshold = 50.0

	// fetchTimeout bounds each individual mail-provider call
	fetchTimeout = 30 * time.Second

	cursorWriteAttempts = 3
	cursorWriteBackoff  = 200 * time.Millisecond
)

type orchestrator struct {
	userRepo  authrepo.UserRepository
	cursors   ingestrepo.CursorStore
	messages  ingestrepo.ScoredMessageRepository
	rules     rulesrepo.RuleRepository
	scorer    Scorer
	provider  domain.MailProvider
	notifier  StoredMessageNotifier // optional
	indexer   Indexer               // optional
	userLocks *keyedMutex
}

func NewOrchestrator(
	userRepo authrepo.UserRepository,
	cursors ingestrepo.CursorStore,
	messages ingestrepo.ScoredMessageRepository,
	rules rulesrepo.RuleRepository,
	scorer Scorer,
	provider domain.MailProvider,
	notifier StoredMessageNotifier,
	indexer Indexer,
) IngestUsecase {
	return &orchestrator{
		userRepo:  userRepo,
		cursors:   cursors,
		messages:  messages,
		rules:     rules,
		scorer:    scorer,
		provider:  provider,
		notifier:  notifier,
		indexer:   indexer,
		userLocks: newKeyedMutex(),
	}
}

// HandleNotification processes one push notification for one mailbox.
// Notifications for the same mailbox are serialized on a per-user lock;
// without it two concurrent deliveries could both read a stale cursor and
// double-process the same batch. The cursor is advanced only after every
// message in the batch has been scored, so a crash mid-batch leaves it at
// the old value and the transport's redelivery reprocesses the batch.
func (o *orchestrator) HandleNotification(ctx context.Context, notification *domain.Notification) (*domain.Result, error) {
	result := &domain.Result{
		EmailAddress: notification.EmailAddress,
		HistoryID:    notification.HistoryID,
	}

	o.userLocks.Lock(notification.EmailAddress)
	defer o.userLocks.Unlock(notification.EmailAddress)

	user, err := o.userRepo.FindByEmail(notification.EmailAddress)
	if err != nil {
		return result, fmt.Errorf("failed to look up user %s: %w", notification.EmailAddress, err)
	}
	if user == nil || !user.HasGmailCredentials() {
		log.Printf("[Ingest] Notification for unknown or unlinked mailbox %s, ignoring", notification.EmailAddress)
		result.Outcome = domain.OutcomeUnknownUser
		return result, nil
	}

	cursor, err := o.cursors.GetCursor(user.ID)
	if err != nil {
		return result, fmt.Errorf("failed to read cursor for user %s: %w", user.ID, err)
	}

	// First notification ever: store the position as a baseline and stop.
	// There is no prior cursor to diff against, so nothing can be fetched.
	if cursor == nil {
		if err := o.setCursorWithRetry(user.ID, notification.HistoryID); err != nil {
			return result, err
		}
		log.Printf("[Ingest] Baseline cursor %d established for %s", notification.HistoryID, notification.EmailAddress)
		result.Outcome = domain.OutcomeBaseline
		return result, nil
	}

	// Stale or duplicate delivery. Pub/Sub redelivers at least once, so
	// this is a normal path, not an error.
	if notification.HistoryID <= *cursor {
		result.Outcome = domain.OutcomeSkipped
		return result, nil
	}

	onTokenRefresh := o.tokenPersister(user.ID, user.RefreshToken)

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	messageIDs, err := o.provider.FetchNewMessageIDs(fetchCtx, user.AccessToken, user.RefreshToken, *cursor, onTokenRefresh)
	cancel()
	if err != nil {
		return result, fmt.Errorf("failed to fetch history for user %s: %w", user.ID, err)
	}
	result.Fetched = len(messageIDs)

	if len(messageIDs) == 0 {
		// An empty delta is valid, e.g. a label change. The cursor still
		// advances so the same empty range is not refetched.
		if err := o.setCursorWithRetry(user.ID, notification.HistoryID); err != nil {
			return result, err
		}
		result.Outcome = domain.OutcomeEmptyDelta
		return result, nil
	}

	// Load the forest once per notification, not once per message
	forest, err := o.rules.LoadRuleForest(user.ID)
	if err != nil {
		return result, fmt.Errorf("failed to load rules for user %s: %w", user.ID, err)
	}

	for _, messageID := range messageIDs {
		if ctx.Err() != nil {
			// Cancelled mid-batch: leave the cursor unadvanced so the
			// redelivered notification reprocesses the whole batch.
			return result, ctx.Err()
		}

		msgCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		message, err := o.provider.GetMessage(msgCtx, user.AccessToken, user.RefreshToken, messageID, onTokenRefresh)
		cancel()
		if err != nil {
			log.Printf("[Ingest] Failed to fetch message %s for user %s: %v", messageID, user.ID, err)
			result.Failed++
			continue
		}

		content := fmt.Sprintf("Subject: %s\n\n%s", message.Subject, message.Snippet)
		score, breakdown := o.scorer.Evaluate(ctx, content, forest)

		if score < storageThreshold {
			result.Discarded++
			continue
		}

		scored := &domain.ScoredMessage{
			ID:             uuid.New().String(),
			UserID:         user.ID,
			MessageID:      message.ID,
			Sender:         message.Sender,
			Subject:        message.Subject,
			Snippet:        message.Snippet,
			AggregateScore: score,
			Breakdown:      breakdown,
		}
		if err := o.messages.Upsert(scored); err != nil {
			log.Printf("[Ingest] Failed to store message %s for user %s: %v", messageID, user.ID, err)
			result.Failed++
			continue
		}
		result.Stored++

		if o.notifier != nil {
			go o.notifier.NotifyStored(user.ID, scored)
		}
		if o.indexer != nil {
			go func(m *domain.ScoredMessage) {
				idxCtx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
				defer cancel()
				if err := o.indexer.IndexMessage(idxCtx, m.UserID, m); err != nil {
					log.Printf("[Ingest] Failed to index message %s: %v", m.MessageID, err)
				}
			}(scored)
		}
	}

	if err := o.setCursorWithRetry(user.ID, notification.HistoryID); err != nil {
		return result, err
	}

	result.Outcome = domain.OutcomeProcessed
	log.Printf("[Ingest] Processed notification for %s: %d fetched, %d stored, %d discarded, %d failed",
		notification.EmailAddress, result.Fetched, result.Stored, result.Discarded, result.Failed)
	return result, nil
}

// setCursorWithRetry retries transient cursor-write failures. Losing the
// write would strand the cursor behind an already-processed batch and
// force a duplicate reprocess on the next notification.
func (o *orchestrator) setCursorWithRetry(userID string, position uint64) error {
	var err error
	for attempt := 0; attempt < cursorWriteAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(cursorWriteBackoff * time.Duration(attempt))
		}
		if err = o.cursors.SetCursor(userID, position); err == nil {
			return nil
		}
		log.Printf("[Ingest] Cursor write attempt %d failed for user %s: %v", attempt+1, userID, err)
	}
	return fmt.Errorf("failed to advance cursor for user %s: %w", userID, err)
}

// tokenPersister saves refreshed OAuth tokens back on the user record.
// Google only returns a refresh token on the initial consent, so an empty
// one in the refreshed token keeps the stored value.
func (o *orchestrator) tokenPersister(userID, currentRefreshToken string) domain.TokenUpdateFunc {
	return func(token *oauth2.Token) error {
		refreshToken := token.RefreshToken
		if refreshToken == "" {
			refreshToken = currentRefreshToken
		}
		if err := o.userRepo.UpdateTokens(userID, token.AccessToken, refreshToken); err != nil {
			log.Printf("[Ingest] Failed to persist refreshed token for user %s: %v", userID, err)
			return err
		}
		return nil
	}
}
