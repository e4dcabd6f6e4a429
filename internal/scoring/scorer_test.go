package scoring

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rulesdomain "mailsift-backend/internal/rules/domain"
	"mailsift-backend/pkg/classifier"
)

// fakeClassifier returns a fixed score per label and can fail for
// selected labels.
type fakeClassifier struct {
	scores map[string]float64
	fail   map[string]bool
	calls  int
}

func (f *fakeClassifier) Classify(_ context.Context, _ string, labels []string) ([]classifier.LabelScore, error) {
	f.calls++
	out := make([]classifier.LabelScore, 0, len(labels))
	for _, label := range labels {
		if f.fail[label] {
			return nil, errors.New("classifier unavailable")
		}
		out = append(out, classifier.LabelScore{Label: label, Score: f.scores[label]})
	}
	return out, nil
}

func rule(id, desc string, priority rulesdomain.Priority, children ...*rulesdomain.Rule) *rulesdomain.Rule {
	return &rulesdomain.Rule{
		ID:          id,
		UserID:      "u1",
		Name:        id,
		Description: desc,
		Priority:    priority,
		Children:    children,
	}
}

func TestEvaluatePriorityPoints(t *testing.T) {
	tests := []struct {
		name     string
		priority rulesdomain.Priority
		score    float64
		want     float64
	}{
		{"high match", rulesdomain.PriorityHigh, 0.9, 30.0},
		{"medium match", rulesdomain.PriorityMedium, 0.9, 20.0},
		{"low match", rulesdomain.PriorityLow, 0.9, 20.0},
		{"high below threshold", rulesdomain.PriorityHigh, 0.49, 0.0},
		{"exactly at threshold", rulesdomain.PriorityLow, 0.5, 20.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := &fakeClassifier{scores: map[string]float64{"invoices": tt.score}}
			scorer := NewScorer(cls)

			got, breakdown := scorer.Evaluate(context.Background(), "please pay invoice #42",
				[]*rulesdomain.Rule{rule("r1", "invoices", tt.priority)})

			assert.Equal(t, tt.want, got)
			require.Len(t, breakdown, 1)
			assert.Equal(t, tt.want, breakdown[0].Points)
			assert.Equal(t, tt.want > 0, breakdown[0].Matched)
		})
	}
}

func TestEvaluateClampsAggregateTo100(t *testing.T) {
	cls := &fakeClassifier{scores: map[string]float64{"urgent": 1.0}}
	scorer := NewScorer(cls)

	roots := make([]*rulesdomain.Rule, 5)
	for i := range roots {
		roots[i] = rule(string(rune('a'+i)), "urgent", rulesdomain.PriorityHigh)
	}

	got, breakdown := scorer.Evaluate(context.Background(), "urgent", roots)

	// Five matched High rules sum to 150, the aggregate clamp caps it.
	assert.Equal(t, 100.0, got)
	assert.Len(t, breakdown, 5)
	for _, entry := range breakdown {
		assert.Equal(t, 30.0, entry.Points)
	}
}

func TestEvaluateSumsBranchesAdditively(t *testing.T) {
	cls := &fakeClassifier{scores: map[string]float64{
		"billing":  0.8,
		"overdue":  0.7,
		"shipping": 0.2,
	}}
	scorer := NewScorer(cls)

	root := rule("root", "billing", rulesdomain.PriorityHigh,
		rule("c1", "overdue", rulesdomain.PriorityLow),
		rule("c2", "shipping", rulesdomain.PriorityHigh),
	)

	got, breakdown := scorer.Evaluate(context.Background(), "your bill is overdue", []*rulesdomain.Rule{root})

	// 30 (root, high) + 20 (child, low) + 0 (child below threshold)
	assert.Equal(t, 50.0, got)
	assert.Len(t, breakdown, 3)
}

func TestEvaluateAbsorbsClassifierFailure(t *testing.T) {
	cls := &fakeClassifier{
		scores: map[string]float64{"child": 0.9},
		fail:   map[string]bool{"parent": true},
	}
	scorer := NewScorer(cls)

	root := rule("root", "parent", rulesdomain.PriorityHigh,
		rule("c1", "child", rulesdomain.PriorityLow),
	)

	got, breakdown := scorer.Evaluate(context.Background(), "content", []*rulesdomain.Rule{root})

	// Failed node contributes 0 but its children are still evaluated.
	assert.Equal(t, 20.0, got)
	require.Len(t, breakdown, 2)
	assert.False(t, breakdown[0].Matched)
	assert.True(t, breakdown[1].Matched)
}

func TestEvaluateDeterministic(t *testing.T) {
	cls := &fakeClassifier{scores: map[string]float64{"a": 0.6, "b": 0.6}}
	scorer := NewScorer(cls)

	roots := []*rulesdomain.Rule{
		rule("r1", "a", rulesdomain.PriorityLow),
		rule("r2", "b", rulesdomain.PriorityHigh),
	}

	first, _ := scorer.Evaluate(context.Background(), "text", roots)
	second, _ := scorer.Evaluate(context.Background(), "text", roots)

	assert.Equal(t, first, second)
	assert.Equal(t, 50.0, first)
}

func TestEvaluateEmptyForest(t *testing.T) {
	cls := &fakeClassifier{}
	scorer := NewScorer(cls)

	got, breakdown := scorer.Evaluate(context.Background(), "anything", nil)

	assert.Equal(t, 0.0, got)
	assert.Empty(t, breakdown)
	assert.Zero(t, cls.calls)
}
