package delivery

import (
	"encoding/base64"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	authdelivery "mailsift-backend/internal/auth/delivery"
	authrepo "mailsift-backend/internal/auth/repository"
	ingestdomain "mailsift-backend/internal/ingest/domain"
	ingestrepo "mailsift-backend/internal/ingest/repository"
	ingestusecase "mailsift-backend/internal/ingest/usecase"
	"mailsift-backend/pkg/chroma"
)

// pubSubEnvelope is the push-delivery wrapper Pub/Sub wraps around the
// actual Gmail notification
type pubSubEnvelope struct {
	Message struct {
		Data      string `json:"data" binding:"required"`
		MessageID string `json:"messageId"`
	} `json:"message" binding:"required"`
	Subscription string `json:"subscription"`
}

type IngestHandler struct {
	ingest       ingestusecase.IngestUsecase
	messages     ingestrepo.ScoredMessageRepository
	userRepo     authrepo.UserRepository
	provider     ingestdomain.MailProvider
	chromaClient *chroma.ChromaClient // optional
}

func NewIngestHandler(
	ingest ingestusecase.IngestUsecase,
	messages ingestrepo.ScoredMessageRepository,
	userRepo authrepo.UserRepository,
	provider ingestdomain.MailProvider,
	chromaClient *chroma.ChromaClient,
) *IngestHandler {
	return &IngestHandler{
		ingest:       ingest,
		messages:     messages,
		userRepo:     userRepo,
		provider:     provider,
		chromaClient: chromaClient,
	}
}

// HandleGmailWebhook receives Gmail push notifications relayed by Pub/Sub.
// A request that is not a Pub/Sub envelope at all is rejected with 400;
// everything past that point is acked with 200 regardless of processing
// outcome, otherwise Pub/Sub redelivers a poisoned message forever.
func (h *IngestHandler) HandleGmailWebhook(c *gin.Context) {
	var envelope pubSubEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid Pub/Sub envelope"})
		return
	}

	data, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		log.Printf("[Webhook] Failed to decode message data: %v", err)
		c.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
		return
	}

	notification, err := ingestdomain.ParseNotification(data)
	if err != nil {
		log.Printf("[Webhook] Dropping malformed notification: %v", err)
		c.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
		return
	}

	result, err := h.ingest.HandleNotification(c.Request.Context(), notification)
	if err != nil {
		log.Printf("[Webhook] Notification for %s failed: %v", notification.EmailAddress, err)
		c.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
		return
	}

	log.Printf("[Webhook] Notification for %s handled: %s (%d stored)", notification.EmailAddress, result.Outcome, result.Stored)
	c.JSON(http.StatusOK, gin.H{"status": "acknowledged", "outcome": result.Outcome})
}

// GetScoredMessages returns the user's latest stored messages, most recent first
func (h *IngestHandler) GetScoredMessages(c *gin.Context) {
	userID := c.GetString("userID")

	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer between 1 and 100"})
			return
		}
		limit = n
	}

	messages, err := h.messages.LatestN(userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type semanticSearchRequest struct {
	Query string `json:"query" binding:"required"`
	Limit int    `json:"limit"`
}

// SemanticSearch finds stored messages by meaning via the vector index
func (h *IngestHandler) SemanticSearch(c *gin.Context) {
	userID := c.GetString("userID")

	if h.chromaClient == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "semantic search is not configured"})
		return
	}

	var req semanticSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Limit < 1 || req.Limit > 50 {
		req.Limit = 10
	}

	messageIDs, distances, err := h.chromaClient.SemanticSearch(c.Request.Context(), userID, req.Query, req.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	messages, err := h.messages.FindByMessageIDs(userID, messageIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Preserve the index's relevance order
	byID := make(map[string]int, len(messages))
	for i, m := range messages {
		byID[m.MessageID] = i
	}
	results := make([]gin.H, 0, len(messageIDs))
	for i, id := range messageIDs {
		idx, ok := byID[id]
		if !ok {
			continue
		}
		entry := gin.H{"message": messages[idx]}
		if i < len(distances) {
			entry["distance"] = distances[i]
		}
		results = append(results, entry)
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

// StartWatch registers a Gmail push watch for the current user
func (h *IngestHandler) StartWatch(c *gin.Context) {
	user := authdelivery.CurrentUser(c)
	if user == nil || !user.HasGmailCredentials() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account has no linked Gmail credentials"})
		return
	}

	expiry, err := h.provider.Watch(c.Request.Context(), user.AccessToken, user.RefreshToken, h.tokenPersister(user.ID, user.RefreshToken))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.userRepo.UpdateWatchExpiry(user.ID, expiry); err != nil {
		log.Printf("[Webhook] Failed to record watch expiry for user %s: %v", user.ID, err)
	}

	c.JSON(http.StatusOK, gin.H{"expires_at": expiry.Format(time.RFC3339)})
}

// StopWatch removes the current user's Gmail push watch
func (h *IngestHandler) StopWatch(c *gin.Context) {
	user := authdelivery.CurrentUser(c)
	if user == nil || !user.HasGmailCredentials() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account has no linked Gmail credentials"})
		return
	}

	if err := h.provider.Stop(c.Request.Context(), user.AccessToken, user.RefreshToken, h.tokenPersister(user.ID, user.RefreshToken)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func (h *IngestHandler) tokenPersister(userID, currentRefreshToken string) ingestdomain.TokenUpdateFunc {
	return func(token *oauth2.Token) error {
		refreshToken := token.RefreshToken
		if refreshToken == "" {
			refreshToken = currentRefreshToken
		}
		return h.userRepo.UpdateTokens(userID, token.AccessToken, refreshToken)
	}
}
