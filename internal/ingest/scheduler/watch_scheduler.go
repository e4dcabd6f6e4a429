package scheduler

import (
	"context"
	"log"
	"time"

	"golang.org/x/oauth2"

	authrepo "mailsift-backend/internal/auth/repository"
	"mailsift-backend/internal/ingest/domain"
)

// WatchRenewalScheduler re-registers Gmail watches before they lapse. A
// lapsed watch means push notifications silently stop for that user, so
// renewal runs well inside the roughly seven-day watch lifetime.
type WatchRenewalScheduler struct {
	userRepo authrepo.UserRepository
	provider domain.MailProvider
	interval time.Duration
	renewAt  time.Duration // renew watches expiring within this window
	stopChan chan struct{}
}

// NewWatchRenewalScheduler creates a new scheduler
func NewWatchRenewalScheduler(userRepo authrepo.UserRepository, provider domain.MailProvider) *WatchRenewalScheduler {
	return &WatchRenewalScheduler{
		userRepo: userRepo,
		provider: provider,
		interval: 1 * time.Hour,
		renewAt:  24 * time.Hour,
		stopChan: make(chan struct{}),
	}
}

// Start begins the scheduler loop
func (s *WatchRenewalScheduler) Start() {
	log.Println("[WatchScheduler] Starting watch renewal scheduler (interval: 1 hour)")

	go func() {
		// Run immediately on start
		s.renewExpiringWatches()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.renewExpiringWatches()
			case <-s.stopChan:
				log.Println("[WatchScheduler] Scheduler stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the scheduler
func (s *WatchRenewalScheduler) Stop() {
	close(s.stopChan)
}

// renewExpiringWatches finds users whose watch expires soon and re-registers it
func (s *WatchRenewalScheduler) renewExpiringWatches() {
	users, err := s.userRepo.FindWatchesExpiring(time.Now().Add(s.renewAt))
	if err != nil {
		log.Printf("[WatchScheduler] Error finding expiring watches: %v", err)
		return
	}

	if len(users) == 0 {
		return
	}

	log.Printf("[WatchScheduler] Found %d watches to renew", len(users))

	for _, user := range users {
		if !user.HasGmailCredentials() {
			continue
		}

		userID := user.ID
		currentRefreshToken := user.RefreshToken
		onTokenRefresh := func(token *oauth2.Token) error {
			refreshToken := token.RefreshToken
			if refreshToken == "" {
				refreshToken = currentRefreshToken
			}
			return s.userRepo.UpdateTokens(userID, token.AccessToken, refreshToken)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		expiry, err := s.provider.Watch(ctx, user.AccessToken, user.RefreshToken, onTokenRefresh)
		cancel()
		if err != nil {
			log.Printf("[WatchScheduler] Failed to renew watch for user %s: %v", userID, err)
			continue
		}

		if err := s.userRepo.UpdateWatchExpiry(userID, expiry); err != nil {
			log.Printf("[WatchScheduler] Failed to record watch expiry for user %s: %v", userID, err)
			continue
		}

		log.Printf("[WatchScheduler] Renewed watch for user %s, expires %s", userID, expiry.Format(time.RFC3339))
	}
}
