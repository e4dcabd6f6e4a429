package domain

import (
	"sort"
	"time"
)

// Priority represents how many points a matched rule contributes to a message's
// aggregate score. It is a closed set; the scoring table switches over it
// exhaustively, so adding a tier is a compile-time-visible change.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is one of the known priority tiers
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// RuleRow is the stored, flat representation of a rule. Nesting is expressed
// through ParentID only; a row never holds references to other rows, so a
// loaded tree can't contain back-edges.
type RuleRow struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	UserID      string    `json:"user_id" gorm:"index;not null"`
	ParentID    *string   `json:"parent_id,omitempty" gorm:"index"`
	Name        string    `json:"name" gorm:"not null"`
	Description string    `json:"description" gorm:"not null"` // natural-language label shown to the classifier
	Priority    Priority  `json:"priority" gorm:"default:low"`
	Position    int       `json:"position"` // order among siblings
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (RuleRow) TableName() string {
	return "rules"
}

// Rule is an immutable tree node assembled from RuleRows for one evaluation.
// Children are owned copies; nothing in a Rule points back into the repository.
type Rule struct {
	ID          string   `json:"id"`
	UserID      string   `json:"user_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Priority    Priority `json:"priority"`
	Children    []*Rule  `json:"sub_rules"`
}

// BuildForest assembles a user's flat rule rows into root trees. Rows whose
// parent is missing are treated as roots rather than dropped, so a partially
// deleted subtree still evaluates. Siblings are ordered by Position, then ID,
// which keeps evaluation order stable across loads.
func BuildForest(rows []RuleRow) []*Rule {
	nodes := make(map[string]*Rule, len(rows))
	for _, row := range rows {
		priority := row.Priority
		if !priority.Valid() {
			priority = PriorityLow
		}
		nodes[row.ID] = &Rule{
			ID:          row.ID,
			UserID:      row.UserID,
			Name:        row.Name,
			Description: row.Description,
			Priority:    priority,
		}
	}

	order := make(map[string]int, len(rows))
	parents := make(map[string]*string, len(rows))
	for _, row := range rows {
		order[row.ID] = row.Position
		parents[row.ID] = row.ParentID
	}

	// A row whose parent chain loops back on itself cannot be attached anywhere;
	// it is promoted to a root so the built structure is always a forest.
	formsCycle := func(id string) bool {
		seen := map[string]bool{}
		for cur := parents[id]; cur != nil; {
			if *cur == id || seen[*cur] {
				return true
			}
			seen[*cur] = true
			next, ok := parents[*cur]
			if !ok {
				return false
			}
			cur = next
		}
		return false
	}

	var roots []*Rule
	for _, row := range rows {
		node := nodes[row.ID]
		if row.ParentID == nil {
			roots = append(roots, node)
			continue
		}
		parent, ok := nodes[*row.ParentID]
		if !ok || parent == node || formsCycle(row.ID) {
			roots = append(roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}

	sortByPosition := func(rules []*Rule) {
		sort.SliceStable(rules, func(i, j int) bool {
			if order[rules[i].ID] != order[rules[j].ID] {
				return order[rules[i].ID] < order[rules[j].ID]
			}
			return rules[i].ID < rules[j].ID
		})
	}

	sortByPosition(roots)
	for _, node := range nodes {
		sortByPosition(node.Children)
	}

	return roots
}
