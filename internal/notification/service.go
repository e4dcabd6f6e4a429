package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	ingestdomain "mailsift-backend/internal/ingest/domain"
	ingestusecase "mailsift-backend/internal/ingest/usecase"
)

// Service pulls Gmail push notifications off a Pub/Sub subscription and
// hands them to the ingestion pipeline. Pub/Sub delivers at least once;
// the pipeline's cursor logic turns that into effectively-once processing,
// so every message is acked here no matter what happened downstream.
type Service struct {
	pubsubClient *pubsub.Client
	ingest       ingestusecase.IngestUsecase
	projectID    string
	topicName    string
	subName      string
}

func NewService(projectID, topicName, credentialsFile string, ingest ingestusecase.IngestUsecase) (*Service, error) {
	ctx := context.Background()

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %v", err)
	}

	return &Service{
		pubsubClient: client,
		ingest:       ingest,
		projectID:    projectID,
		topicName:    topicName,
		subName:      topicName + "-sub", // Convention: topic-sub
	}, nil
}

func (s *Service) Start(ctx context.Context) {
	log.Printf("[PubSub] Starting notification service with topic: %s, subscription: %s", s.topicName, s.subName)

	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		log.Printf("[PubSub] Error checking subscription existence: %v", err)
		return
	}

	if !exists {
		topic := s.pubsubClient.Topic(s.topicName)
		topicExists, err := topic.Exists(ctx)
		if err != nil {
			log.Printf("[PubSub] Error checking topic existence: %v", err)
			return
		}
		if !topicExists {
			log.Printf("[PubSub] Topic does not exist, cannot create subscription")
			return
		}

		sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 10 * time.Second,
		})
		if err != nil {
			log.Printf("[PubSub] Failed to create subscription: %v", err)
			return
		}
		log.Printf("[PubSub] Created subscription: %s", s.subName)
	}

	log.Printf("[PubSub] Listening for messages on subscription: %s", s.subName)
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.handleMessage(ctx, msg)
		msg.Ack()
	})
	if err != nil {
		log.Printf("[PubSub] Error receiving messages: %v", err)
	}
}

func (s *Service) handleMessage(ctx context.Context, msg *pubsub.Message) {
	notification, err := ingestdomain.ParseNotification(msg.Data)
	if err != nil {
		log.Printf("[PubSub] Dropping malformed notification: %v", err)
		return
	}

	result, err := s.ingest.HandleNotification(ctx, notification)
	if err != nil {
		log.Printf("[PubSub] Notification for %s failed: %v", notification.EmailAddress, err)
		return
	}

	log.Printf("[PubSub] Notification for %s handled: %s", notification.EmailAddress, result.Outcome)
}
