package domain

import "time"

// User is an account that owns a mailbox, a rule forest and a processed-mail cursor.
// LastHistoryID is the last fully-processed Gmail history position; it is nil until
// the first push notification establishes a baseline, and it never decreases.
type User struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Email     string    `json:"email" gorm:"uniqueIndex;not null"`
	Password  string    `json:"-"` // Never return password in JSON
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Provider  string    `json:"provider"` // "email" or "google"

	// Gmail credentials (credential reference of the cursor record)
	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`

	// Ingestion cursor, advanced only by the ingestion orchestrator
	LastHistoryID *uint64 `json:"-"`

	// Gmail watch bookkeeping for the renewal scheduler
	WatchExpiresAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasGmailCredentials reports whether the user can be used for Gmail API calls
func (u *User) HasGmailCredentials() bool {
	return u.AccessToken != "" || u.RefreshToken != ""
}

type RefreshToken struct {
	Token     string    `json:"token" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"index"`
	ExpiresAt time.Time `json:"expires_at"`
}
