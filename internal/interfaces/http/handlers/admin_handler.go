package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"licensepay.backend/internal/domain/entities"
	domainerrors "licensepay.backend/internal/domain/errors"
	"licensepay.backend/internal/interfaces/http/response"
	"licensepay.backend/pkg/utils"
)

// AdminOpsService is the subset of usecases.AdminOps the handler needs.
type AdminOpsService interface {
	ReviveOrder(ctx context.Context, orderID uuid.UUID) (*entities.Order, error)
	ChangeLicense(ctx context.Context, orderID, newLicenseID uuid.UUID) (*entities.License, error)
	ResendLicenseEmail(ctx context.Context, orderID uuid.UUID) (*entities.Order, error)
	ListWaitlist(ctx context.Context, productRef string, params utils.PaginationParams) ([]*entities.WaitlistEntry, utils.PaginationMeta, error)
	ListLicenses(ctx context.Context, productRef string, status entities.LicenseStatus, params utils.PaginationParams) ([]*entities.License, utils.PaginationMeta, error)
}

// TransactionVerifier is the subset of usecases.ReconciliationVerifier the
// handler needs.
type TransactionVerifier interface {
	VerifyTransaction(ctx context.Context, transactionID string) error
}

// AdminHandler exposes the bounded operator-triggered recovery operations:
// reviving a canceled order, swapping a sold license, forcing an
// out-of-band reconciliation check, and resending a license email.
type AdminHandler struct {
	ops      AdminOpsService
	verifier TransactionVerifier
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(ops AdminOpsService, verifier TransactionVerifier) *AdminHandler {
	return &AdminHandler{ops: ops, verifier: verifier}
}

// ReviveOrder re-drives a CANCELED order through reservation and delivery.
// POST /api/v1/admin/orders/:id/revive
func (h *AdminHandler) ReviveOrder(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("invalid order id"))
		return
	}

	order, err := h.ops.ReviveOrder(c.Request.Context(), orderID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, order)
}

type changeLicenseRequest struct {
	NewLicenseID string `json:"newLicenseId" binding:"required"`
}

// ChangeLicense swaps the license assigned to an order for another
// AVAILABLE license of the same product.
// POST /api/v1/admin/orders/:id/change-license
func (h *AdminHandler) ChangeLicense(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("invalid order id"))
		return
	}

	var req changeLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	newLicenseID, err := uuid.Parse(req.NewLicenseID)
	if err != nil {
		response.Error(c, domainerrors.BadRequest("invalid newLicenseId"))
		return
	}

	license, err := h.ops.ChangeLicense(c.Request.Context(), orderID, newLicenseID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, license)
}

// VerifyTransaction forces an out-of-band reconciliation check against the
// gateway's canonical status for a single transaction.
// POST /api/v1/admin/transactions/:id/verify
func (h *AdminHandler) VerifyTransaction(c *gin.Context) {
	transactionID := c.Param("id")
	if transactionID == "" {
		response.Error(c, domainerrors.BadRequest("transaction id is required"))
		return
	}

	if err := h.verifier.VerifyTransaction(c.Request.Context(), transactionID); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"verified": true})
}

// ListWaitlist pages through waitlist entries in queue order.
// GET /api/v1/admin/waitlist?productRef=&page=&limit=
func (h *AdminHandler) ListWaitlist(c *gin.Context) {
	entries, meta, err := h.ops.ListWaitlist(c.Request.Context(), c.Query("productRef"), paginationFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"items": entries, "pagination": meta})
}

// ListLicenses pages through license inventory, optionally filtered by
// product and status.
// GET /api/v1/admin/licenses?productRef=&status=&page=&limit=
func (h *AdminHandler) ListLicenses(c *gin.Context) {
	status := entities.LicenseStatus(c.Query("status"))
	switch status {
	case "", entities.LicenseStatusAvailable, entities.LicenseStatusReserved, entities.LicenseStatusSold:
	default:
		response.Error(c, domainerrors.BadRequest("invalid status filter"))
		return
	}

	licenses, meta, err := h.ops.ListLicenses(c.Request.Context(), c.Query("productRef"), status, paginationFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"items": licenses, "pagination": meta})
}

func paginationFromQuery(c *gin.Context) utils.PaginationParams {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	return utils.GetPaginationParams(page, limit)
}

// ResendLicenseEmail retries delivery of the license already assigned to an
// order.
// POST /api/v1/admin/orders/:id/resend-license-email
func (h *AdminHandler) ResendLicenseEmail(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("invalid order id"))
		return
	}

	order, err := h.ops.ResendLicenseEmail(c.Request.Context(), orderID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, order)
}
