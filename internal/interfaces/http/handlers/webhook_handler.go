package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	domainerrors "licensepay.backend/internal/domain/errors"
	"licensepay.backend/internal/infrastructure/providers"
	"licensepay.backend/internal/interfaces/http/response"
	"licensepay.backend/internal/usecases"
)

// WebhookIngress is the subset of WebhookIngressUsecase the handler needs.
type WebhookIngress interface {
	Process(ctx context.Context, providerName string, req providers.WebhookRequest) (*usecases.IngressResult, error)
}

// WebhookHandler receives raw provider callbacks and hands them to C2
// unparsed — the provider adapter, not this handler, owns signature
// verification and payload shape.
type WebhookHandler struct {
	ingress WebhookIngress
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(ingress WebhookIngress) *WebhookHandler {
	return &WebhookHandler{ingress: ingress}
}

// HandleProviderWebhook handles incoming payment gateway callbacks.
// POST /api/v1/webhooks/:provider
func (h *WebhookHandler) HandleProviderWebhook(c *gin.Context) {
	provider := c.Param("provider")
	if provider == "" {
		response.Error(c, domainerrors.BadRequest("provider is required"))
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, domainerrors.BadRequest("failed to read request body"))
		return
	}

	req := providers.WebhookRequest{
		Headers: c.Request.Header,
		Body:    body,
	}

	result, err := h.ingress.Process(c.Request.Context(), provider, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}
