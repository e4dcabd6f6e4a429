package repository

import (
	"errors"
	"time"

	rulesdomain "mailsift-backend/internal/rules/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RuleRepository defines the interface for rule storage. LoadRuleForest is the
// only operation the ingestion core uses; the rest serve the management surface.
type RuleRepository interface {
	// LoadRuleForest returns the user's assembled rule trees. An empty slice
	// when the user has no rules; an error only on storage unavailability.
	LoadRuleForest(userID string) ([]*rulesdomain.Rule, error)
	ListRows(userID string) ([]rulesdomain.RuleRow, error)
	FindRowByID(userID, ruleID string) (*rulesdomain.RuleRow, error)
	Create(row *rulesdomain.RuleRow) error
	Update(row *rulesdomain.RuleRow) error
	// Delete removes a rule and reparents its children to the deleted rule's parent
	Delete(userID, ruleID string) error
}

// ruleRepository implements RuleRepository interface
type ruleRepository struct {
	db *gorm.DB
}

// NewRuleRepository creates a new instance of ruleRepository
func NewRuleRepository(db *gorm.DB) RuleRepository {
	return &ruleRepository{
		db: db,
	}
}

func (r *ruleRepository) LoadRuleForest(userID string) ([]*rulesdomain.Rule, error) {
	rows, err := r.ListRows(userID)
	if err != nil {
		return nil, err
	}
	return rulesdomain.BuildForest(rows), nil
}

func (r *ruleRepository) ListRows(userID string) ([]rulesdomain.RuleRow, error) {
	var rows []rulesdomain.RuleRow
	err := r.db.Where("user_id = ?", userID).Order("position ASC, id ASC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ruleRepository) FindRowByID(userID, ruleID string) (*rulesdomain.RuleRow, error) {
	var row rulesdomain.RuleRow
	err := r.db.Where("user_id = ? AND id = ?", userID, ruleID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *ruleRepository) Create(row *rulesdomain.RuleRow) error {
	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	row.CreatedAt = time.Now()
	row.UpdatedAt = time.Now()
	return r.db.Create(row).Error
}

func (r *ruleRepository) Update(row *rulesdomain.RuleRow) error {
	row.UpdatedAt = time.Now()
	return r.db.Save(row).Error
}

func (r *ruleRepository) Delete(userID, ruleID string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var row rulesdomain.RuleRow
		if err := tx.Where("user_id = ? AND id = ?", userID, ruleID).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		// Reparent children so deleting a mid-tree rule keeps its subtree
		if err := tx.Model(&rulesdomain.RuleRow{}).
			Where("user_id = ? AND parent_id = ?", userID, ruleID).
			Updates(map[string]interface{}{"parent_id": row.ParentID, "updated_at": time.Now()}).Error; err != nil {
			return err
		}

		return tx.Where("user_id = ? AND id = ?", userID, ruleID).Delete(&rulesdomain.RuleRow{}).Error
	})
}
