package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Outcome names the terminal state a notification reached. Every outcome is
// acknowledged to the transport; the outcome exists so callers can log and
// count what actually happened instead of discarding it.
type Outcome string

const (
	OutcomeUnknownUser Outcome = "unknown_user"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeBaseline    Outcome = "baseline"
	OutcomeEmptyDelta  Outcome = "empty_delta"
	OutcomeProcessed   Outcome = "processed"
)

// Result describes how one notification was handled
type Result struct {
	Outcome      Outcome `json:"outcome"`
	EmailAddress string  `json:"email_address"`
	HistoryID    uint64  `json:"history_id"`
	Fetched      int     `json:"fetched"`
	Stored       int     `json:"stored"`
	Discarded    int     `json:"discarded"`
	Failed       int     `json:"failed"`
}

// Notification is the decoded payload of one Gmail push event
type Notification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// ParseNotification decodes the JSON payload carried inside a push message.
// Gmail documents historyId as a string but has been observed sending a
// bare number, so both encodings are accepted.
func ParseNotification(data []byte) (*Notification, error) {
	var raw struct {
		EmailAddress string      `json:"emailAddress"`
		HistoryID    json.Number `json:"historyId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid notification payload: %w", err)
	}

	if raw.EmailAddress == "" {
		return nil, fmt.Errorf("notification missing emailAddress")
	}
	if raw.HistoryID == "" {
		return nil, fmt.Errorf("notification missing historyId")
	}

	historyID, err := strconv.ParseUint(raw.HistoryID.String(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid historyId %q: %w", raw.HistoryID.String(), err)
	}

	return &Notification{
		EmailAddress: raw.EmailAddress,
		HistoryID:    historyID,
	}, nil
}
