package handler

import (
	"github.com/gin-gonic/gin"
	billingapp "github.com/postcard/backend/internal/application/billing"
	"github.com/postcard/backend/internal/domain/shared"
	"github.com/postcard/backend/internal/interfaces/http/middleware"
	"github.com/postcard/backend/internal/interfaces/http/router"
)

// BillingHandler serves the prepaid postage account
type BillingHandler struct {
	BaseHandler
	accounts *billingapp.AccountService
}

// NewBillingHandler creates a new BillingHandler
func NewBillingHandler(accounts *billingapp.AccountService) *BillingHandler {
	return &BillingHandler{accounts: accounts}
}

// entryListQuery pages through ledger entries
type entryListQuery struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// Routes returns the billing route group
func (h *BillingHandler) Routes() router.RouteRegistrar {
	return router.NewDomainGroup("billing", "/billing").
		GET("/balance", h.Balance).
		POST("/credits", h.Credit).
		GET("/entries", h.Entries)
}

// Balance handles GET /billing/balance
func (h *BillingHandler) Balance(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	resp, err := h.accounts.Balance(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Credit handles POST /billing/credits
func (h *BillingHandler) Credit(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	var req billingapp.CreditRequest
	if !h.bind(c, &req) {
		return
	}
	resp, err := h.accounts.Credit(c.Request.Context(), tenantID, req, middleware.GetUserID(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// Entries handles GET /billing/entries
func (h *BillingHandler) Entries(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	var q entryListQuery
	if !h.bindQuery(c, &q) {
		return
	}
	page, pageSize := pageOf(q.Page, q.PageSize, 20)
	items, err := h.accounts.Entries(c.Request.Context(), tenantID, shared.Filter{Page: page, PageSize: pageSize})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, items)
}
