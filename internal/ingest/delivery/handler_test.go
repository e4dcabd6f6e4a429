package delivery

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ingestdomain "mailsift-backend/internal/ingest/domain"
)

type fakeIngest struct {
	lastNotification *ingestdomain.Notification
	err              error
}

func (f *fakeIngest) HandleNotification(_ context.Context, n *ingestdomain.Notification) (*ingestdomain.Result, error) {
	f.lastNotification = n
	if f.err != nil {
		return &ingestdomain.Result{}, f.err
	}
	return &ingestdomain.Result{Outcome: ingestdomain.OutcomeProcessed, Stored: 1}, nil
}

type fakeMessages struct {
	latest []ingestdomain.ScoredMessage
}

func (f *fakeMessages) Upsert(m *ingestdomain.ScoredMessage) error { return nil }
func (f *fakeMessages) LatestN(userID string, n int) ([]ingestdomain.ScoredMessage, error) {
	if n < len(f.latest) {
		return f.latest[:n], nil
	}
	return f.latest, nil
}
func (f *fakeMessages) FindByMessageIDs(userID string, ids []string) ([]ingestdomain.ScoredMessage, error) {
	return nil, nil
}

func newWebhookRouter(ingest *fakeIngest, messages *fakeMessages) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewIngestHandler(ingest, messages, nil, nil, nil)

	router := gin.New()
	router.POST("/api/notifications/gmail", handler.HandleGmailWebhook)
	router.GET("/api/messages/scored", func(c *gin.Context) {
		c.Set("userID", "user-1")
		handler.GetScoredMessages(c)
	})
	return router
}

func envelopeBody(t *testing.T, payload string) string {
	t.Helper()
	envelope := map[string]interface{}{
		"message": map[string]string{
			"data":      base64.StdEncoding.EncodeToString([]byte(payload)),
			"messageId": "pubsub-1",
		},
		"subscription": "projects/p/subscriptions/s",
	}
	body, err := json.Marshal(envelope)
	require.NoError(t, err)
	return string(body)
}

func TestWebhookRejectsNonEnvelope(t *testing.T) {
	router := newWebhookRouter(&fakeIngest{}, &fakeMessages{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/notifications/gmail", strings.NewReader(`{"foo":"bar"}`))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookAcksMalformedPayload(t *testing.T) {
	ingest := &fakeIngest{}
	router := newWebhookRouter(ingest, &fakeMessages{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/notifications/gmail",
		strings.NewReader(envelopeBody(t, `{"historyId":"42"}`)))
	router.ServeHTTP(w, req)

	// Missing emailAddress is a poisoned message, still acked
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, ingest.lastNotification)
}

func TestWebhookAcksProcessingFailure(t *testing.T) {
	ingest := &fakeIngest{err: errors.New("storage unavailable")}
	router := newWebhookRouter(ingest, &fakeMessages{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/notifications/gmail",
		strings.NewReader(envelopeBody(t, `{"emailAddress":"a@b.com","historyId":"42"}`)))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookProcessesNotification(t *testing.T) {
	ingest := &fakeIngest{}
	router := newWebhookRouter(ingest, &fakeMessages{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/notifications/gmail",
		strings.NewReader(envelopeBody(t, `{"emailAddress":"a@b.com","historyId":"42"}`)))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, ingest.lastNotification)
	assert.Equal(t, "a@b.com", ingest.lastNotification.EmailAddress)
	assert.Equal(t, uint64(42), ingest.lastNotification.HistoryID)
}

func TestGetScoredMessagesLimit(t *testing.T) {
	messages := &fakeMessages{}
	for i := 0; i < 30; i++ {
		messages.latest = append(messages.latest, ingestdomain.ScoredMessage{MessageID: fmt.Sprintf("m%d", i)})
	}
	router := newWebhookRouter(&fakeIngest{}, messages)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/messages/scored?limit=5", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Messages []ingestdomain.ScoredMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Messages, 5)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/messages/scored?limit=bogus", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
