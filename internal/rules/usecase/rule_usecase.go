package usecase

import (
	"errors"

	rulesdomain "mailsift-backend/internal/rules/domain"
	rulesdto "mailsift-backend/internal/rules/dto"
	"mailsift-backend/internal/rules/repository"
)

var (
	ErrRuleNotFound    = errors.New("rule not found")
	ErrInvalidPriority = errors.New("priority must be one of: low, medium, high")
	ErrInvalidParent   = errors.New("parent rule not found or would create a cycle")
)

// RuleUsecase defines the interface for rule management use cases
type RuleUsecase interface {
	GetRuleForest(userID string) ([]*rulesdomain.Rule, error)
	GetRule(userID, ruleID string) (*rulesdomain.RuleRow, error)
	CreateRule(userID string, req *rulesdto.CreateRuleRequest) (*rulesdomain.RuleRow, error)
	UpdateRule(userID, ruleID string, req *rulesdto.UpdateRuleRequest) (*rulesdomain.RuleRow, error)
	DeleteRule(userID, ruleID string) error
}

// ruleUsecase implements RuleUsecase interface
type ruleUsecase struct {
	ruleRepo repository.RuleRepository
}

// NewRuleUsecase creates a new instance of ruleUsecase
func NewRuleUsecase(ruleRepo repository.RuleRepository) RuleUsecase {
	return &ruleUsecase{
		ruleRepo: ruleRepo,
	}
}

func (u *ruleUsecase) GetRuleForest(userID string) ([]*rulesdomain.Rule, error) {
	return u.ruleRepo.LoadRuleForest(userID)
}

func (u *ruleUsecase) GetRule(userID, ruleID string) (*rulesdomain.RuleRow, error) {
	row, err := u.ruleRepo.FindRowByID(userID, ruleID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrRuleNotFound
	}
	return row, nil
}

func (u *ruleUsecase) CreateRule(userID string, req *rulesdto.CreateRuleRequest) (*rulesdomain.RuleRow, error) {
	priority := rulesdomain.Priority(req.Priority)
	if req.Priority == "" {
		priority = rulesdomain.PriorityLow
	}
	if !priority.Valid() {
		return nil, ErrInvalidPriority
	}

	if req.ParentID != nil {
		parent, err := u.ruleRepo.FindRowByID(userID, *req.ParentID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, ErrInvalidParent
		}
	}

	row := &rulesdomain.RuleRow{
		UserID:      userID,
		ParentID:    req.ParentID,
		Name:        req.Name,
		Description: req.Description,
		Priority:    priority,
		Position:    req.Position,
	}

	if err := u.ruleRepo.Create(row); err != nil {
		return nil, err
	}
	return row, nil
}

func (u *ruleUsecase) UpdateRule(userID, ruleID string, req *rulesdto.UpdateRuleRequest) (*rulesdomain.RuleRow, error) {
	row, err := u.ruleRepo.FindRowByID(userID, ruleID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrRuleNotFound
	}

	if req.Name != nil {
		row.Name = *req.Name
	}
	if req.Description != nil {
		row.Description = *req.Description
	}
	if req.Priority != nil {
		priority := rulesdomain.Priority(*req.Priority)
		if !priority.Valid() {
			return nil, ErrInvalidPriority
		}
		row.Priority = priority
	}
	if req.Position != nil {
		row.Position = *req.Position
	}
	if req.ParentID != nil {
		if err := u.checkParent(userID, ruleID, *req.ParentID); err != nil {
			return nil, err
		}
		row.ParentID = req.ParentID
	}

	if err := u.ruleRepo.Update(row); err != nil {
		return nil, err
	}
	return row, nil
}

func (u *ruleUsecase) DeleteRule(userID, ruleID string) error {
	row, err := u.ruleRepo.FindRowByID(userID, ruleID)
	if err != nil {
		return err
	}
	if row == nil {
		return ErrRuleNotFound
	}
	return u.ruleRepo.Delete(userID, ruleID)
}

// checkParent rejects a parent assignment that would make ruleID its own
// ancestor. The walk is bounded by the user's rule count.
func (u *ruleUsecase) checkParent(userID, ruleID, parentID string) error {
	if parentID == ruleID {
		return ErrInvalidParent
	}

	rows, err := u.ruleRepo.ListRows(userID)
	if err != nil {
		return err
	}

	parents := make(map[string]*string, len(rows))
	exists := false
	for _, r := range rows {
		parents[r.ID] = r.ParentID
		if r.ID == parentID {
			exists = true
		}
	}
	if !exists {
		return ErrInvalidParent
	}

	seen := map[string]bool{}
	for cur := &parentID; cur != nil; cur = parents[*cur] {
		if *cur == ruleID || seen[*cur] {
			return ErrInvalidParent
		}
		seen[*cur] = true
	}
	return nil
}
