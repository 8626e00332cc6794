package handler

import (
	"github.com/gin-gonic/gin"
	suppressionapp "github.com/postcard/backend/internal/application/suppression"
	"github.com/postcard/backend/internal/interfaces/http/router"
)

// SuppressionHandler serves the do-not-mail list and tenant suppression settings
type SuppressionHandler struct {
	BaseHandler
	suppression *suppressionapp.Service
}

// NewSuppressionHandler creates a new SuppressionHandler
func NewSuppressionHandler(svc *suppressionapp.Service) *SuppressionHandler {
	return &SuppressionHandler{suppression: svc}
}

// Routes returns the suppression route group
func (h *SuppressionHandler) Routes() router.RouteRegistrar {
	return router.NewDomainGroup("suppression", "/suppression").
		GET("/entries", h.ListEntries).
		POST("/entries", h.AddEntry).
		DELETE("/entries/:id", h.RemoveEntry).
		POST("/check", h.Check).
		GET("/settings", h.GetSettings).
		PUT("/settings", h.UpdateSettings)
}

// ListEntries handles GET /suppression/entries
func (h *SuppressionHandler) ListEntries(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	var filter suppressionapp.EntryListFilter
	if !h.bindQuery(c, &filter) {
		return
	}
	items, total, err := h.suppression.ListEntries(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page, pageSize := pageOf(filter.Page, filter.PageSize, 20)
	h.SuccessWithMeta(c, items, total, page, pageSize)
}

// AddEntry handles POST /suppression/entries
func (h *SuppressionHandler) AddEntry(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	var req suppressionapp.AddEntryRequest
	if !h.bind(c, &req) {
		return
	}
	resp, err := h.suppression.AddEntry(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// RemoveEntry handles DELETE /suppression/entries/:id
func (h *SuppressionHandler) RemoveEntry(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	if err := h.suppression.RemoveEntry(c.Request.Context(), tenantID, id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Check handles POST /suppression/check
func (h *SuppressionHandler) Check(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	var req suppressionapp.CheckRequest
	if !h.bind(c, &req) {
		return
	}
	resp, err := h.suppression.Check(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// GetSettings handles GET /suppression/settings
func (h *SuppressionHandler) GetSettings(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	resp, err := h.suppression.GetSettings(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// UpdateSettings handles PUT /suppression/settings
func (h *SuppressionHandler) UpdateSettings(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	var req suppressionapp.UpdateSettingsRequest
	if !h.bind(c, &req) {
		return
	}
	resp, err := h.suppression.UpdateSettings(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
