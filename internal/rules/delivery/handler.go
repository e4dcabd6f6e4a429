package delivery

import (
	"context"
	"errors"
	"net/http"

	rulesdomain "mailsift-backend/internal/rules/domain"
	rulesdto "mailsift-backend/internal/rules/dto"
	"mailsift-backend/internal/rules/usecase"
	"mailsift-backend/internal/scoring"

	"github.com/gin-gonic/gin"
)

// Scorer evaluates text against a rule forest
type Scorer interface {
	Evaluate(ctx context.Context, content string, roots []*rulesdomain.Rule) (float64, []scoring.RuleScore)
}

type RuleHandler struct {
	ruleUsecase usecase.RuleUsecase
	scorer      Scorer
}

func NewRuleHandler(ruleUsecase usecase.RuleUsecase, scorer Scorer) *RuleHandler {
	return &RuleHandler{
		ruleUsecase: ruleUsecase,
		scorer:      scorer,
	}
}

func (h *RuleHandler) GetRules(c *gin.Context) {
	userID := c.GetString("userID")

	rules, err := h.ruleUsecase.GetRuleForest(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, rulesdto.RuleForestResponse{Rules: rules})
}

func (h *RuleHandler) GetRuleByID(c *gin.Context) {
	userID := c.GetString("userID")

	row, err := h.ruleUsecase.GetRule(userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, row)
}

func (h *RuleHandler) CreateRule(c *gin.Context) {
	userID := c.GetString("userID")

	var req rulesdto.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	row, err := h.ruleUsecase.CreateRule(userID, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, row)
}

func (h *RuleHandler) UpdateRule(c *gin.Context) {
	userID := c.GetString("userID")

	var req rulesdto.UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	row, err := h.ruleUsecase.UpdateRule(userID, c.Param("id"), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, row)
}

func (h *RuleHandler) DeleteRule(c *gin.Context) {
	userID := c.GetString("userID")

	if err := h.ruleUsecase.DeleteRule(userID, c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "rule deleted"})
}

// ApplyRules scores caller-supplied text against the user's rule forest,
// without touching the cursor or storing anything. Useful for previewing
// how a draft rule set would score a given message.
func (h *RuleHandler) ApplyRules(c *gin.Context) {
	userID := c.GetString("userID")

	var req rulesdto.ApplyRulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	forest, err := h.ruleUsecase.GetRuleForest(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	score, breakdown := h.scorer.Evaluate(c.Request.Context(), req.Content, forest)

	c.JSON(http.StatusOK, gin.H{
		"aggregate_score": score,
		"breakdown":       breakdown,
	})
}

func (h *RuleHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, usecase.ErrRuleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, usecase.ErrInvalidPriority), errors.Is(err, usecase.ErrInvalidParent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
