package main

import (
	"context"
	"log"
	"strings"

	api "mailsift-backend/cmd/api"
	authdomain "mailsift-backend/internal/auth/domain"
	authrepo "mailsift-backend/internal/auth/repository"
	authusecase "mailsift-backend/internal/auth/usecase"
	ingestdomain "mailsift-backend/internal/ingest/domain"
	ingestrepo "mailsift-backend/internal/ingest/repository"
	"mailsift-backend/internal/ingest/scheduler"
	ingestusecase "mailsift-backend/internal/ingest/usecase"
	"mailsift-backend/internal/notification"
	rulesdomain "mailsift-backend/internal/rules/domain"
	rulesrepo "mailsift-backend/internal/rules/repository"
	rulesusecase "mailsift-backend/internal/rules/usecase"
	"mailsift-backend/internal/scoring"
	"mailsift-backend/pkg/chroma"
	"mailsift-backend/pkg/classifier"
	"mailsift-backend/pkg/config"
	"mailsift-backend/pkg/database"
	"mailsift-backend/pkg/fcm"
	"mailsift-backend/pkg/gmail"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&authdomain.User{},
		&authdomain.RefreshToken{},
		&authdomain.FCMToken{},
		&rulesdomain.RuleRow{},
		&ingestdomain.ScoredMessage{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize repositories (dependency injection)
	userRepo := authrepo.NewUserRepository(db)
	fcmTokenRepo := authrepo.NewFCMTokenRepository(db)
	ruleRepo := rulesrepo.NewRuleRepository(db)
	cursorStore := ingestrepo.NewCursorStore(db)
	scoredMessageRepo := ingestrepo.NewScoredMessageRepository(db)

	// Initialize Gmail service
	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GooglePubSubTopic)

	// Initialize classifier
	cls, err := classifier.New(classifier.Config{
		Provider:      classifier.ProviderType(cfg.ClassifierProvider),
		GeminiAPIKey:  cfg.GeminiAPIKey,
		OllamaBaseURL: cfg.OllamaBaseURL,
		OllamaModel:   cfg.OllamaModel,
	})
	if err != nil {
		log.Fatal("Failed to initialize classifier:", err)
	}
	log.Printf("Classifier initialized with provider: %s", cfg.ClassifierProvider)

	scorer := scoring.NewScorer(cls)

	// Initialize FCM client (optional)
	var fcmClient *fcm.Client
	if cfg.FirebaseCredentials != "" {
		fcmClient, err = fcm.NewClient(cfg.FirebaseCredentials)
		if err != nil {
			log.Printf("[WARN] Failed to initialize FCM client (push notifications disabled): %v", err)
			fcmClient = nil
		}
	}

	// Initialize Chroma client for vector search (optional)
	var chromaClient *chroma.ChromaClient
	if cfg.ChromaAPIKey != "" {
		chromaClient, err = chroma.NewChromaClient(cfg)
		if err != nil {
			log.Printf("[WARN] Failed to initialize Chroma client (semantic search disabled): %v", err)
			chromaClient = nil
		}
	}

	var notifier ingestusecase.StoredMessageNotifier
	if fcmClient != nil {
		notifier = notification.NewFCMNotifier(fcmClient, fcmTokenRepo)
	}
	var indexer ingestusecase.Indexer
	if chromaClient != nil {
		indexer = notification.NewChromaIndexer(chromaClient)
	}

	// Initialize the ingestion pipeline
	orchestrator := ingestusecase.NewOrchestrator(
		userRepo,
		cursorStore,
		scoredMessageRepo,
		ruleRepo,
		scorer,
		gmailService,
		notifier,
		indexer,
	)

	// Initialize Pub/Sub pull subscriber if a project is configured
	if cfg.GoogleProjectID != "" {
		// Extract short topic name from full resource name if necessary
		topicName := cfg.GooglePubSubTopic
		if parts := strings.Split(topicName, "/"); len(parts) > 1 {
			topicName = parts[len(parts)-1]
		}
		if topicName == "" {
			topicName = "gmail-updates"
		}

		notifService, err := notification.NewService(cfg.GoogleProjectID, topicName, cfg.GoogleCredentials, orchestrator)
		if err != nil {
			log.Printf("[ERROR] Failed to initialize notification service: %v", err)
		} else {
			go notifService.Start(context.Background())
		}
	} else {
		log.Printf("[WARN] GoogleProjectID not configured, Pub/Sub subscriber disabled")
	}

	// Start the watch renewal scheduler
	watchScheduler := scheduler.NewWatchRenewalScheduler(userRepo, gmailService)
	watchScheduler.Start()

	// Initialize use cases (dependency injection)
	authUsecaseInstance := authusecase.NewAuthUsecase(userRepo, cfg)
	ruleUsecaseInstance := rulesusecase.NewRuleUsecase(ruleRepo)

	// Initialize HTTP handler
	handler := api.NewHandler(
		authUsecaseInstance,
		ruleUsecaseInstance,
		scorer,
		orchestrator,
		scoredMessageRepo,
		userRepo,
		fcmTokenRepo,
		gmailService,
		chromaClient,
		cfg,
	)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
