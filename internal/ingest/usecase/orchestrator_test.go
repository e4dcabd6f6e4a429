package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authdomain "mailsift-backend/internal/auth/domain"
	"mailsift-backend/internal/ingest/domain"
	rulesdomain "mailsift-backend/internal/rules/domain"
	"mailsift-backend/internal/scoring"
)

type fakeUserRepo struct {
	users map[string]*authdomain.User // keyed by email
}

func (f *fakeUserRepo) Create(user *authdomain.User) error { return nil }
func (f *fakeUserRepo) FindByEmail(email string) (*authdomain.User, error) {
	return f.users[email], nil
}
func (f *fakeUserRepo) FindByID(id string) (*authdomain.User, error) { return nil, nil }
func (f *fakeUserRepo) Update(user *authdomain.User) error           { return nil }
func (f *fakeUserRepo) UpdateTokens(userID, accessToken, refreshToken string) error {
	return nil
}
func (f *fakeUserRepo) UpdateWatchExpiry(userID string, expiresAt time.Time) error { return nil }
func (f *fakeUserRepo) FindWatchesExpiring(before time.Time) ([]*authdomain.User, error) {
	return nil, nil
}
func (f *fakeUserRepo) SaveRefreshToken(token *authdomain.RefreshToken) error { return nil }
func (f *fakeUserRepo) FindRefreshToken(token string) (*authdomain.RefreshToken, error) {
	return nil, nil
}
func (f *fakeUserRepo) DeleteRefreshToken(token string) error { return nil }

type fakeCursorStore struct {
	mu      sync.Mutex
	cursors map[string]uint64
	fails   int // remaining SetCursor calls that fail
	writes  int
}

func (f *fakeCursorStore) GetCursor(userID string) (*uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pos, ok := f.cursors[userID]; ok {
		p := pos
		return &p, nil
	}
	return nil, nil
}

func (f *fakeCursorStore) SetCursor(userID string, position uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.fails > 0 {
		f.fails--
		return errors.New("storage unavailable")
	}
	if cur, ok := f.cursors[userID]; ok && cur >= position {
		return nil
	}
	f.cursors[userID] = position
	return nil
}

type fakeMessageRepo struct {
	mu     sync.Mutex
	stored map[string]*domain.ScoredMessage // keyed by user_id+message_id
}

func (f *fakeMessageRepo) Upsert(m *domain.ScoredMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stored == nil {
		f.stored = map[string]*domain.ScoredMessage{}
	}
	f.stored[m.UserID+"/"+m.MessageID] = m
	return nil
}

func (f *fakeMessageRepo) LatestN(userID string, n int) ([]domain.ScoredMessage, error) {
	return nil, nil
}

func (f *fakeMessageRepo) FindByMessageIDs(userID string, ids []string) ([]domain.ScoredMessage, error) {
	return nil, nil
}

func (f *fakeMessageRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stored)
}

type fakeRuleRepo struct {
	forest []*rulesdomain.Rule
}

func (f *fakeRuleRepo) LoadRuleForest(userID string) ([]*rulesdomain.Rule, error) {
	return f.forest, nil
}
func (f *fakeRuleRepo) ListRows(userID string) ([]rulesdomain.RuleRow, error) { return nil, nil }
func (f *fakeRuleRepo) FindRowByID(userID, ruleID string) (*rulesdomain.RuleRow, error) {
	return nil, nil
}
func (f *fakeRuleRepo) Create(row *rulesdomain.RuleRow) error { return nil }
func (f *fakeRuleRepo) Update(row *rulesdomain.RuleRow) error { return nil }
func (f *fakeRuleRepo) Delete(userID, ruleID string) error    { return nil }

// fakeScorer returns a fixed score per message subject
type fakeScorer struct {
	scores map[string]float64
}

func (f *fakeScorer) Evaluate(_ context.Context, content string, _ []*rulesdomain.Rule) (float64, []scoring.RuleScore) {
	for subject, score := range f.scores {
		if strings.Contains(content, subject) {
			return score, []scoring.RuleScore{{RuleID: "r1", Name: "r1", Matched: score > 0}}
		}
	}
	return 0, nil
}

type fakeProvider struct {
	mu       sync.Mutex
	history  map[uint64][]string // startHistoryID -> message ids
	messages map[string]*domain.Message
	failIDs  map[string]bool
	fetches  int
}

func (f *fakeProvider) FetchNewMessageIDs(_ context.Context, _, _ string, start uint64, _ domain.TokenUpdateFunc) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return f.history[start], nil
}

func (f *fakeProvider) GetMessage(_ context.Context, _, _, messageID string, _ domain.TokenUpdateFunc) (*domain.Message, error) {
	if f.failIDs[messageID] {
		return nil, errors.New("message fetch failed")
	}
	msg, ok := f.messages[messageID]
	if !ok {
		return nil, errors.New("message not found")
	}
	return msg, nil
}

func (f *fakeProvider) Watch(_ context.Context, _, _ string, _ domain.TokenUpdateFunc) (time.Time, error) {
	return time.Now().Add(time.Hour), nil
}

func (f *fakeProvider) Stop(_ context.Context, _, _ string, _ domain.TokenUpdateFunc) error {
	return nil
}

func newTestUser() *authdomain.User {
	return &authdomain.User{
		ID:          "user-1",
		Email:       "alice@example.com",
		AccessToken: "token",
	}
}

func newTestOrchestrator(cursors *fakeCursorStore, messages *fakeMessageRepo, provider *fakeProvider, scorer Scorer) IngestUsecase {
	if scorer == nil {
		scorer = &fakeScorer{}
	}
	return NewOrchestrator(
		&fakeUserRepo{users: map[string]*authdomain.User{"alice@example.com": newTestUser()}},
		cursors,
		messages,
		&fakeRuleRepo{},
		scorer,
		provider,
		nil,
		nil,
	)
}

func TestHandleNotificationFirstSeenBaseline(t *testing.T) {
	cursors := &fakeCursorStore{cursors: map[string]uint64{}}
	messages := &fakeMessageRepo{}
	provider := &fakeProvider{}
	orch := newTestOrchestrator(cursors, messages, provider, nil)

	result, err := orch.HandleNotification(context.Background(),
		&domain.Notification{EmailAddress: "alice@example.com", HistoryID: 100})

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeBaseline, result.Outcome)
	assert.Equal(t, uint64(100), cursors.cursors["user-1"])
	assert.Zero(t, provider.fetches)
	assert.Zero(t, messages.count())
}

func TestHandleNotificationDuplicateSkipped(t *testing.T) {
	cursors := &fakeCursorStore{cursors: map[string]uint64{"user-1": 100}}
	messages := &fakeMessageRepo{}
	provider := &fakeProvider{}
	orch := newTestOrchestrator(cursors, messages, provider, nil)

	result, err := orch.HandleNotification(context.Background(),
		&domain.Notification{EmailAddress: "alice@example.com", HistoryID: 100})

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSkipped, result.Outcome)
	assert.Equal(t, uint64(100), cursors.cursors["user-1"])
	assert.Zero(t, provider.fetches)
	assert.Zero(t, messages.count())
}

func TestHandleNotificationEmptyDeltaAdvancesCursor(t *testing.T) {
	cursors := &fakeCursorStore{cursors: map[string]uint64{"user-1": 100}}
	messages := &fakeMessageRepo{}
	provider := &fakeProvider{history: map[uint64][]string{}}
	orch := newTestOrchestrator(cursors, messages, provider, nil)

	result, err := orch.HandleNotification(context.Background(),
		&domain.Notification{EmailAddress: "alice@example.com", HistoryID: 150})

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeEmptyDelta, result.Outcome)
	assert.Equal(t, uint64(150), cursors.cursors["user-1"])
	assert.Zero(t, messages.count())
}

func TestHandleNotificationStorageThreshold(t *testing.T) {
	cursors := &fakeCursorStore{cursors: map[string]uint64{"user-1": 100}}
	messages := &fakeMessageRepo{}
	provider := &fakeProvider{
		history: map[uint64][]string{100: {"m1", "m2"}},
		messages: map[string]*domain.Message{
			"m1": {ID: "m1", Sender: "bob@example.com", Subject: "almost", Snippet: "..."},
			"m2": {ID: "m2", Sender: "bob@example.com", Subject: "qualifies", Snippet: "..."},
		},
	}
	scorer := &fakeScorer{scores: map[string]float64{"almost": 49.9, "qualifies": 50.0}}
	orch := newTestOrchestrator(cursors, messages, provider, scorer)

	result, err := orch.HandleNotification(context.Background(),
		&domain.Notification{EmailAddress: "alice@example.com", HistoryID: 200})

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeProcessed, result.Outcome)
	assert.Equal(t, 2, result.Fetched)
	assert.Equal(t, 1, result.Stored)
	assert.Equal(t, 1, result.Discarded)
	assert.Equal(t, 1, messages.count())
	assert.Equal(t, uint64(200), cursors.cursors["user-1"])

	stored := messages.stored["user-1/m2"]
	require.NotNil(t, stored)
	assert.Equal(t, 50.0, stored.AggregateScore)
}

func TestHandleNotificationFetchErrorSkipsMessage(t *testing.T) {
	cursors := &fakeCursorStore{cursors: map[string]uint64{"user-1": 100}}
	messages := &fakeMessageRepo{}
	provider := &fakeProvider{
		history: map[uint64][]string{100: {"bad", "m2"}},
		messages: map[string]*domain.Message{
			"m2": {ID: "m2", Sender: "bob@example.com", Subject: "qualifies", Snippet: "..."},
		},
		failIDs: map[string]bool{"bad": true},
	}
	scorer := &fakeScorer{scores: map[string]float64{"qualifies": 80.0}}
	orch := newTestOrchestrator(cursors, messages, provider, scorer)

	result, err := orch.HandleNotification(context.Background(),
		&domain.Notification{EmailAddress: "alice@example.com", HistoryID: 200})

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeProcessed, result.Outcome)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Stored)
	assert.Equal(t, uint64(200), cursors.cursors["user-1"])
}

func TestHandleNotificationUnknownUser(t *testing.T) {
	cursors := &fakeCursorStore{cursors: map[string]uint64{}}
	messages := &fakeMessageRepo{}
	provider := &fakeProvider{}
	orch := newTestOrchestrator(cursors, messages, provider, nil)

	result, err := orch.HandleNotification(context.Background(),
		&domain.Notification{EmailAddress: "nobody@example.com", HistoryID: 100})

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUnknownUser, result.Outcome)
	assert.Zero(t, cursors.writes)
	assert.Zero(t, provider.fetches)
}

func TestHandleNotificationCursorMonotonicUnderInterleaving(t *testing.T) {
	cursors := &fakeCursorStore{cursors: map[string]uint64{"user-1": 100}}
	messages := &fakeMessageRepo{}
	provider := &fakeProvider{history: map[uint64][]string{}}
	orch := newTestOrchestrator(cursors, messages, provider, nil)

	positions := []uint64{150, 120, 180, 110, 160}
	var wg sync.WaitGroup
	for _, pos := range positions {
		wg.Add(1)
		go func(p uint64) {
			defer wg.Done()
			_, err := orch.HandleNotification(context.Background(),
				&domain.Notification{EmailAddress: "alice@example.com", HistoryID: p})
			assert.NoError(t, err)
		}(pos)
	}
	wg.Wait()

	assert.Equal(t, uint64(180), cursors.cursors["user-1"])
}

func TestHandleNotificationCursorWriteRetried(t *testing.T) {
	cursors := &fakeCursorStore{cursors: map[string]uint64{"user-1": 100}, fails: 2}
	messages := &fakeMessageRepo{}
	provider := &fakeProvider{history: map[uint64][]string{}}
	orch := newTestOrchestrator(cursors, messages, provider, nil)

	result, err := orch.HandleNotification(context.Background(),
		&domain.Notification{EmailAddress: "alice@example.com", HistoryID: 150})

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeEmptyDelta, result.Outcome)
	assert.Equal(t, uint64(150), cursors.cursors["user-1"])
	assert.Equal(t, 3, cursors.writes)
}

func TestParseNotificationAcceptsStringAndNumber(t *testing.T) {
	fromString, err := domain.ParseNotification([]byte(`{"emailAddress":"a@b.com","historyId":"42"}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), fromString.HistoryID)

	fromNumber, err := domain.ParseNotification([]byte(`{"emailAddress":"a@b.com","historyId":42}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), fromNumber.HistoryID)

	_, err = domain.ParseNotification([]byte(`{"historyId":"42"}`))
	assert.Error(t, err)

	_, err = domain.ParseNotification([]byte(`{"emailAddress":"a@b.com"}`))
	assert.Error(t, err)
}
