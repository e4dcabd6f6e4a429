package notification

import (
	"context"
	"fmt"
	"log"

	authrepo "mailsift-backend/internal/auth/repository"
	ingestdomain "mailsift-backend/internal/ingest/domain"
	"mailsift-backend/pkg/fcm"
)

// FCMNotifier pushes a device notification for each stored message
type FCMNotifier struct {
	fcmClient *fcm.Client
	fcmRepo   authrepo.FCMTokenRepository
}

func NewFCMNotifier(fcmClient *fcm.Client, fcmRepo authrepo.FCMTokenRepository) *FCMNotifier {
	return &FCMNotifier{
		fcmClient: fcmClient,
		fcmRepo:   fcmRepo,
	}
}

func (n *FCMNotifier) NotifyStored(userID string, message *ingestdomain.ScoredMessage) {
	tokens, err := n.fcmRepo.GetTokensByUserID(userID)
	if err != nil {
		log.Printf("[FCM] Error getting tokens for user %s: %v", userID, err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	var tokenStrings []string
	for _, t := range tokens {
		tokenStrings = append(tokenStrings, t.Token)
	}

	title := fmt.Sprintf("Important email from %s", message.Sender)
	body := message.Subject
	if body == "" {
		body = "(no subject)"
	}
	if len(body) > 100 {
		body = body[:97] + "..."
	}

	failedTokens, err := n.fcmClient.SendToDevices(context.Background(), tokenStrings, fcm.NotificationData{
		Title: title,
		Body:  body,
		Data: map[string]string{
			"type":       "scored_message",
			"message_id": message.MessageID,
			"score":      fmt.Sprintf("%.1f", message.AggregateScore),
		},
	})
	if err != nil {
		log.Printf("[FCM] Error sending notifications: %v", err)
		return
	}

	// Tokens FCM rejected belong to uninstalled or expired registrations
	for _, token := range failedTokens {
		if err := n.fcmRepo.DeleteToken(token); err != nil {
			log.Printf("[FCM] Failed to delete stale token: %v", err)
		}
	}
}
