package api

import (
	authdelivery "mailsift-backend/internal/auth/delivery"
	authrepo "mailsift-backend/internal/auth/repository"
	authusecase "mailsift-backend/internal/auth/usecase"
	ingestdelivery "mailsift-backend/internal/ingest/delivery"
	ingestdomain "mailsift-backend/internal/ingest/domain"
	ingestrepo "mailsift-backend/internal/ingest/repository"
	ingestusecase "mailsift-backend/internal/ingest/usecase"
	rulesdelivery "mailsift-backend/internal/rules/delivery"
	rulesusecase "mailsift-backend/internal/rules/usecase"
	"mailsift-backend/pkg/chroma"
	"mailsift-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	authUsecase   authusecase.AuthUsecase
	config        *config.Config
	authHandler   *authdelivery.AuthHandler
	ruleHandler   *rulesdelivery.RuleHandler
	ingestHandler *ingestdelivery.IngestHandler
}

func NewHandler(
	authUc authusecase.AuthUsecase,
	ruleUc rulesusecase.RuleUsecase,
	scorer rulesdelivery.Scorer,
	ingest ingestusecase.IngestUsecase,
	messages ingestrepo.ScoredMessageRepository,
	userRepo authrepo.UserRepository,
	fcmRepo authrepo.FCMTokenRepository,
	provider ingestdomain.MailProvider,
	chromaClient *chroma.ChromaClient,
	cfg *config.Config,
) *Handler {
	return &Handler{
		authUsecase:   authUc,
		config:        cfg,
		authHandler:   authdelivery.NewAuthHandler(authUc, fcmRepo),
		ruleHandler:   rulesdelivery.NewRuleHandler(ruleUc, scorer),
		ingestHandler: ingestdelivery.NewIngestHandler(ingest, messages, userRepo, provider, chromaClient),
	}
}

func (h *Handler) Start(addr string) error {
	r := gin.Default()
	gin.SetMode(gin.ReleaseMode)

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.authUsecase, h.authHandler, h.ruleHandler, h.ingestHandler)

	return r.Run(addr)
}
