package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rulesdomain "mailsift-backend/internal/rules/domain"
	rulesdto "mailsift-backend/internal/rules/dto"
	"mailsift-backend/internal/scoring"
)

type fakeRuleUsecase struct {
	forest []*rulesdomain.Rule
}

func (f *fakeRuleUsecase) GetRuleForest(userID string) ([]*rulesdomain.Rule, error) {
	return f.forest, nil
}
func (f *fakeRuleUsecase) GetRule(userID, ruleID string) (*rulesdomain.RuleRow, error) {
	return nil, nil
}
func (f *fakeRuleUsecase) CreateRule(userID string, req *rulesdto.CreateRuleRequest) (*rulesdomain.RuleRow, error) {
	return nil, nil
}
func (f *fakeRuleUsecase) UpdateRule(userID, ruleID string, req *rulesdto.UpdateRuleRequest) (*rulesdomain.RuleRow, error) {
	return nil, nil
}
func (f *fakeRuleUsecase) DeleteRule(userID, ruleID string) error { return nil }

type fakeScorer struct {
	lastContent string
	lastRoots   []*rulesdomain.Rule
	score       float64
	breakdown   []scoring.RuleScore
}

func (f *fakeScorer) Evaluate(_ context.Context, content string, roots []*rulesdomain.Rule) (float64, []scoring.RuleScore) {
	f.lastContent = content
	f.lastRoots = roots
	return f.score, f.breakdown
}

func newRulesRouter(uc *fakeRuleUsecase, scorer *fakeScorer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewRuleHandler(uc, scorer)

	router := gin.New()
	router.POST("/api/rules/apply", func(c *gin.Context) {
		c.Set("userID", "user-1")
		handler.ApplyRules(c)
	})
	return router
}

func TestApplyRulesScoresSuppliedText(t *testing.T) {
	forest := []*rulesdomain.Rule{{ID: "r1", UserID: "user-1", Name: "billing", Priority: rulesdomain.PriorityHigh}}
	scorer := &fakeScorer{
		score: 30.0,
		breakdown: []scoring.RuleScore{
			{RuleID: "r1", Name: "billing", MatchScore: 0.9, Matched: true, Points: 30.0},
		},
	}
	router := newRulesRouter(&fakeRuleUsecase{forest: forest}, scorer)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/rules/apply",
		strings.NewReader(`{"content":"your invoice is overdue"}`))
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		AggregateScore float64             `json:"aggregate_score"`
		Breakdown      []scoring.RuleScore `json:"breakdown"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 30.0, resp.AggregateScore)
	require.Len(t, resp.Breakdown, 1)
	assert.Equal(t, "r1", resp.Breakdown[0].RuleID)

	// The user's own forest is what gets evaluated, against the supplied text
	assert.Equal(t, "your invoice is overdue", scorer.lastContent)
	require.Len(t, scorer.lastRoots, 1)
	assert.Equal(t, "r1", scorer.lastRoots[0].ID)
}

func TestApplyRulesRequiresContent(t *testing.T) {
	router := newRulesRouter(&fakeRuleUsecase{}, &fakeScorer{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/rules/apply", strings.NewReader(`{}`))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
