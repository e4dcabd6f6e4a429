package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	ingestdomain "mailsift-backend/internal/ingest/domain"
)

// TokenUpdateFunc is a callback function that handles token updates
type TokenUpdateFunc = ingestdomain.TokenUpdateFunc

// Service implements the mail-provider boundary against the Gmail API
type Service struct {
	clientID     string
	clientSecret string
	topicName    string
}

type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			log.Printf("[Gmail] Failed to persist refreshed token: %v", err)
		}
	}
	return t, nil
}

func NewService(clientID, clientSecret, topicName string) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
		topicName:    topicName,
	}
}

// GetGmailService creates a Gmail service with the user's access token
func (s *Service) GetGmailService(ctx context.Context, accessToken, refreshToken string, onTokenRefresh TokenUpdateFunc) (*gmail.Service, error) {
	token := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
	}

	// Only force refresh if we have a refresh token
	if refreshToken != "" {
		token.Expiry = time.Now()
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
	}

	tokenSource := config.TokenSource(ctx, token)

	// Wrap token source to detect refreshes
	wrappedSource := &notifyTokenSource{
		src:      tokenSource,
		current:  token,
		callback: onTokenRefresh,
	}

	client := oauth2.NewClient(ctx, wrappedSource)

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %v", err)
	}

	return srv, nil
}

// FetchNewMessageIDs walks the history list from startHistoryID and returns
// the ids of inbox messages added since, oldest first. Pagination is handled
// here; callers only see the flattened sequence.
func (s *Service) FetchNewMessageIDs(ctx context.Context, accessToken, refreshToken string, startHistoryID uint64, onTokenRefresh TokenUpdateFunc) ([]string, error) {
	srv, err := s.GetGmailService(ctx, accessToken, refreshToken, onTokenRefresh)
	if err != nil {
		return nil, err
	}

	var messageIDs []string
	seen := make(map[string]bool)
	pageToken := ""

	for {
		call := srv.Users.History.List("me").
			StartHistoryId(startHistoryID).
			HistoryTypes("messageAdded").
			LabelId("INBOX").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("unable to list history: %v", err)
		}

		// History records arrive in chronological order; a message can
		// appear in more than one record, so dedupe while flattening.
		for _, history := range resp.History {
			for _, added := range history.MessagesAdded {
				if added.Message == nil || seen[added.Message.Id] {
					continue
				}
				seen[added.Message.Id] = true
				messageIDs = append(messageIDs, added.Message.Id)
			}
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return messageIDs, nil
}

// GetMessage retrieves one message in raw RFC 822 form and extracts the
// fields scoring needs. The snippet comes from the API response; sender and
// subject are parsed out of the raw message itself.
func (s *Service) GetMessage(ctx context.Context, accessToken, refreshToken, messageID string, onTokenRefresh TokenUpdateFunc) (*ingestdomain.Message, error) {
	srv, err := s.GetGmailService(ctx, accessToken, refreshToken, onTokenRefresh)
	if err != nil {
		return nil, err
	}

	msg, err := srv.Users.Messages.Get("me", messageID).Format("raw").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to get message %s: %v", messageID, err)
	}

	message := &ingestdomain.Message{
		ID:      msg.Id,
		Snippet: msg.Snippet,
	}

	raw, err := base64.URLEncoding.DecodeString(msg.Raw)
	if err != nil {
		return nil, fmt.Errorf("unable to decode message %s: %v", messageID, err)
	}

	sender, subject := parseRawHeaders(raw)
	message.Sender = sender
	message.Subject = subject

	return message, nil
}

// parseRawHeaders pulls the From address and Subject out of a raw RFC 822
// message. A malformed message yields empty fields rather than an error;
// the snippet alone is still scoreable.
func parseRawHeaders(raw []byte) (sender, subject string) {
	reader, err := mail.CreateReader(strings.NewReader(string(raw)))
	if err != nil || reader == nil {
		return "", ""
	}
	defer reader.Close()

	if addrs, err := reader.Header.AddressList("From"); err == nil && len(addrs) > 0 {
		sender = addrs[0].Address
	}
	if subj, err := reader.Header.Subject(); err == nil {
		subject = subj
	}
	return sender, subject
}

// Watch registers push notifications for the user's inbox and returns the
// watch expiration. Gmail allows one watch per user, so any existing watch
// is stopped first.
func (s *Service) Watch(ctx context.Context, accessToken, refreshToken string, onTokenRefresh TokenUpdateFunc) (time.Time, error) {
	srv, err := s.GetGmailService(ctx, accessToken, refreshToken, onTokenRefresh)
	if err != nil {
		return time.Time{}, err
	}

	_ = srv.Users.Stop("me").Do()

	req := &gmail.WatchRequest{
		TopicName: s.topicName,
		LabelIds:  []string{"INBOX"},
	}

	resp, err := srv.Users.Watch("me", req).Context(ctx).Do()
	if err != nil {
		log.Printf("[Gmail] Watch API error: %v", err)
		return time.Time{}, fmt.Errorf("unable to watch mailbox: %v", err)
	}

	expiry := time.UnixMilli(resp.Expiration)
	log.Printf("[Gmail] Watch started, expires %s, historyId %d", expiry.Format(time.RFC3339), resp.HistoryId)

	return expiry, nil
}

// Stop removes push notifications for the user's mailbox
func (s *Service) Stop(ctx context.Context, accessToken, refreshToken string, onTokenRefresh TokenUpdateFunc) error {
	srv, err := s.GetGmailService(ctx, accessToken, refreshToken, onTokenRefresh)
	if err != nil {
		return err
	}

	err = srv.Users.Stop("me").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to stop mailbox watch: %v", err)
	}

	return nil
}
