package main

import (
	"github.com/gin-gonic/gin"

	"licensepay.backend/internal/interfaces/http/handlers"
	"licensepay.backend/internal/interfaces/http/middleware"
)

type routeDeps struct {
	webhookHandler *handlers.WebhookHandler
	adminHandler   *handlers.AdminHandler
	adminAuth      gin.HandlerFunc
}

func registerAPIV1Routes(r *gin.Engine, d routeDeps) {
	v1 := r.Group("/api/v1")
	{
		// Webhook ingress (C2) — public, authenticated by the provider's
		// own signature, not by session/admin auth.
		webhooks := v1.Group("/webhooks")
		{
			webhooks.POST("/:provider", d.webhookHandler.HandleProviderWebhook)
		}

		// Admin operations — bounded recovery surface, gated by a shared
		// operator token rather than the generic admin-CRUD surface.
		// Idempotency-keyed so a retried revive/change-license/resend call
		// from an operator console can't double-apply a mutation.
		admin := v1.Group("/admin")
		admin.Use(d.adminAuth, middleware.IdempotencyMiddleware())
		{
			admin.POST("/orders/:id/revive", d.adminHandler.ReviveOrder)
			admin.POST("/orders/:id/change-license", d.adminHandler.ChangeLicense)
			admin.POST("/orders/:id/resend-license-email", d.adminHandler.ResendLicenseEmail)
			admin.POST("/transactions/:id/verify", d.adminHandler.VerifyTransaction)
			admin.GET("/waitlist", d.adminHandler.ListWaitlist)
			admin.GET("/licenses", d.adminHandler.ListLicenses)
		}
	}
}
