package repository

import (
	"gorm.io/gorm"

	authdomain "mailsift-backend/internal/auth/domain"
)

// CursorStore reads and writes a user's last-processed history position.
// The position lives on the users table; this interface is the only way the
// ingestion path touches it.
type CursorStore interface {
	// GetCursor returns the user's cursor, nil if none has been stored yet
	GetCursor(userID string) (*uint64, error)
	// SetCursor advances the cursor to position. Writes that would move
	// the cursor backwards are silently dropped.
	SetCursor(userID string, position uint64) error
}

type cursorStore struct {
	db *gorm.DB
}

func NewCursorStore(db *gorm.DB) CursorStore {
	return &cursorStore{db: db}
}

func (s *cursorStore) GetCursor(userID string) (*uint64, error) {
	var user authdomain.User
	err := s.db.Select("last_history_id").Where("id = ?", userID).First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return user.LastHistoryID, nil
}

func (s *cursorStore) SetCursor(userID string, position uint64) error {
	// The WHERE guard makes the write monotonic even if two callers race:
	// the smaller position matches zero rows and becomes a no-op.
	return s.db.Model(&authdomain.User{}).
		Where("id = ? AND (last_history_id IS NULL OR last_history_id < ?)", userID, position).
		Update("last_history_id", position).Error
}
