package domain

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// TokenUpdateFunc is called when the mail provider refreshes an OAuth token,
// so the caller can persist the new credentials.
type TokenUpdateFunc func(token *oauth2.Token) error

// Message holds the fields of a fetched mail message that scoring needs
type Message struct {
	ID      string
	Sender  string
	Subject string
	Snippet string
}

// MailProvider is the boundary to the external mail service. Fetch calls
// are slow network calls; implementations honor ctx deadlines.
type MailProvider interface {
	// FetchNewMessageIDs returns identifiers of messages added after
	// startHistoryID, oldest first, pagination handled internally.
	FetchNewMessageIDs(ctx context.Context, accessToken, refreshToken string, startHistoryID uint64, onTokenRefresh TokenUpdateFunc) ([]string, error)

	// GetMessage retrieves one message's sender, subject and snippet
	GetMessage(ctx context.Context, accessToken, refreshToken, messageID string, onTokenRefresh TokenUpdateFunc) (*Message, error)

	// Watch registers a push-notification watch on the user's inbox and
	// returns its expiration time
	Watch(ctx context.Context, accessToken, refreshToken string, onTokenRefresh TokenUpdateFunc) (time.Time, error)

	// Stop removes an active watch
	Stop(ctx context.Context, accessToken, refreshToken string, onTokenRefresh TokenUpdateFunc) error
}
