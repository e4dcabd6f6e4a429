package dto

import rulesdomain "mailsift-backend/internal/rules/domain"

type CreateRuleRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description string  `json:"description" binding:"required"`
	Priority    string  `json:"priority"`
	ParentID    *string `json:"parent_id"`
	Position    int     `json:"position"`
}

type UpdateRuleRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Priority    *string `json:"priority"`
	ParentID    *string `json:"parent_id"`
	Position    *int    `json:"position"`
}

type RuleForestResponse struct {
	Rules []*rulesdomain.Rule `json:"rules"`
}

type ApplyRulesRequest struct {
	Content string `json:"content" binding:"required"`
}
