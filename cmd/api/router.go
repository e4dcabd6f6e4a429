package api

import (
	"net/http"

	authdelivery "mailsift-backend/internal/auth/delivery"
	authusecase "mailsift-backend/internal/auth/usecase"
	ingestdelivery "mailsift-backend/internal/ingest/delivery"
	rulesdelivery "mailsift-backend/internal/rules/delivery"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, authUsecase authusecase.AuthUsecase, authHandler *authdelivery.AuthHandler, ruleHandler *rulesdelivery.RuleHandler, ingestHandler *ingestdelivery.IngestHandler) {
	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Gmail push webhook (called by Pub/Sub, not by users)
		api.POST("/notifications/gmail", ingestHandler.HandleGmailWebhook)

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/register", authHandler.Register)
			auth.POST("/google", authHandler.GoogleSignIn)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.GET("/me", authdelivery.AuthMiddleware(authUsecase), authHandler.Me)
			auth.POST("/logout", authHandler.Logout)
		}

		// FCM routes (protected)
		fcm := api.Group("/fcm")
		fcm.Use(authdelivery.AuthMiddleware(authUsecase))
		{
			fcm.POST("/register", authHandler.RegisterFCMToken)
			fcm.DELETE("/:token", authHandler.UnregisterFCMToken)
		}

		// Rule routes (protected)
		rules := api.Group("/rules")
		rules.Use(authdelivery.AuthMiddleware(authUsecase))
		{
			rules.GET("", ruleHandler.GetRules)
			rules.POST("", ruleHandler.CreateRule)
			rules.POST("/apply", ruleHandler.ApplyRules)
			rules.GET("/:id", ruleHandler.GetRuleByID)
			rules.PUT("/:id", ruleHandler.UpdateRule)
			rules.DELETE("/:id", ruleHandler.DeleteRule)
		}

		// Scored message routes (protected)
		messages := api.Group("/messages")
		messages.Use(authdelivery.AuthMiddleware(authUsecase))
		{
			messages.GET("/scored", ingestHandler.GetScoredMessages)
		}

		// Search routes (protected)
		search := api.Group("/search")
		search.Use(authdelivery.AuthMiddleware(authUsecase))
		{
			search.POST("/semantic", ingestHandler.SemanticSearch)
		}

		// Watch management (protected)
		notifications := api.Group("/notifications")
		notifications.Use(authdelivery.AuthMiddleware(authUsecase))
		{
			notifications.POST("/watch", ingestHandler.StartWatch)
			notifications.POST("/stop", ingestHandler.StopWatch)
		}
	}
}
