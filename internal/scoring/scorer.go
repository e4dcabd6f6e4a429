package scoring

import (
	"context"
	"log"

	rulesdomain "mailsift-backend/internal/rules/domain"
	"mailsift-backend/pkg/classifier"
)

const (
	// matchThreshold is the classifier-score cutoff above which a single
	// rule node counts as matched.
	matchThreshold = 0.5

	highPriorityPoints    = 30.0
	defaultPriorityPoints = 20.0

	// maxAggregateScore bounds the total across all root branches. The
	// clamp is applied once on the aggregate, never per branch.
	maxAggregateScore = 100.0
)

// RuleScore records one rule node's contribution to a message's score
type RuleScore struct {
	RuleID     string  `json:"rule_id"`
	Name       string  `json:"name"`
	MatchScore float64 `json:"match_score"`
	Matched    bool    `json:"matched"`
	Points     float64 `json:"points"`
}

// Scorer evaluates a user's rule forest against message content
type Scorer struct {
	classifier classifier.Port
}

func NewScorer(cls classifier.Port) *Scorer {
	return &Scorer{classifier: cls}
}

// Evaluate walks every root tree, sums the points of all matched nodes and
// clamps the total to 100. Sibling order does not affect the result; the
// sum is commutative. The per-node breakdown lists every evaluated rule,
// matched or not.
func (s *Scorer) Evaluate(ctx context.Context, content string, roots []*rulesdomain.Rule) (float64, []RuleScore) {
	total := 0.0
	var breakdown []RuleScore

	for _, root := range roots {
		total += s.scoreBranch(ctx, content, root, &breakdown)
	}

	if total > maxAggregateScore {
		total = maxAggregateScore
	}
	if total < 0 {
		total = 0
	}

	return total, breakdown
}

// scoreBranch returns the additive score of one rule node and all of its
// descendants. A failed or empty classification contributes 0 for that
// node; its children are still evaluated.
func (s *Scorer) scoreBranch(ctx context.Context, content string, rule *rulesdomain.Rule, breakdown *[]RuleScore) float64 {
	entry := RuleScore{
		RuleID: rule.ID,
		Name:   rule.Name,
	}

	scores, err := s.classifier.Classify(ctx, content, []string{rule.Description})
	if err != nil {
		log.Printf("[Scorer] Classification failed for rule %s: %v", rule.ID, err)
	} else if len(scores) > 0 {
		entry.MatchScore = scores[0].Score
		if entry.MatchScore >= matchThreshold {
			entry.Matched = true
			entry.Points = pointsFor(rule.Priority)
		}
	}

	*breakdown = append(*breakdown, entry)

	branch := entry.Points
	for _, child := range rule.Children {
		branch += s.scoreBranch(ctx, content, child, breakdown)
	}

	return branch
}

// pointsFor maps a priority tier to its fixed point value. The match score
// magnitude is deliberately not part of the formula; priority alone drives
// the contribution.
func pointsFor(p rulesdomain.Priority) float64 {
	switch p {
	case rulesdomain.PriorityHigh:
		return highPriorityPoints
	case rulesdomain.PriorityMedium, rulesdomain.PriorityLow:
		return defaultPriorityPoints
	}
	return defaultPriorityPoints
}
