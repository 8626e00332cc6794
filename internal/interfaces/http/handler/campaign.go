package handler

import (
	"mime"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	campaignapp "github.com/postcard/backend/internal/application/campaign"
	"github.com/postcard/backend/internal/interfaces/http/dto"
	"github.com/postcard/backend/internal/interfaces/http/middleware"
	"github.com/postcard/backend/internal/interfaces/http/router"
)

// csvFormField is the multipart field carrying a recipient CSV
const csvFormField = "file"

// CampaignHandler serves campaign and recipient routes
type CampaignHandler struct {
	BaseHandler
	campaigns   *campaignapp.Service
	importGuard []gin.HandlerFunc
}

// NewCampaignHandler creates a new CampaignHandler. importGuard runs before
// the bulk import route, typically a rate limiter.
func NewCampaignHandler(campaigns *campaignapp.Service, importGuard ...gin.HandlerFunc) *CampaignHandler {
	return &CampaignHandler{campaigns: campaigns, importGuard: importGuard}
}

// Routes returns the campaign and recipient route groups
func (h *CampaignHandler) Routes() []router.RouteRegistrar {
	campaigns := router.NewDomainGroup("campaigns", "/campaigns").
		POST("", h.Create).
		GET("", h.List).
		GET("/:id", h.Get).
		PUT("/:id/content", h.UpdateContent).
		POST("/:id/recipients", h.AddRecipient).
		POST("/:id/recipients/import", append(append([]gin.HandlerFunc{}, h.importGuard...), h.ImportRecipients)...).
		GET("/:id/recipients", h.ListRecipients).
		GET("/:id/recipients/:recipient_id", h.GetRecipient).
		POST("/:id/estimate", h.Estimate).
		POST("/:id/send", h.Send).
		POST("/:id/schedule", h.Schedule).
		POST("/:id/unschedule", h.Unschedule).
		POST("/:id/cancel", h.Cancel).
		POST("/:id/suppression/reevaluate", h.ReevaluateSuppression).
		POST("/:id/proof", h.Proof).
		POST("/:id/artwork/upload-url", h.UploadURL)

	recipients := router.NewDomainGroup("recipients", "/recipients").
		POST("/:id/reset", h.ResetRecipient).
		PUT("/:id/address", h.CorrectAddress)

	return []router.RouteRegistrar{campaigns, recipients}
}

// Create handles POST /campaigns
func (h *CampaignHandler) Create(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	var req campaignapp.CreateCampaignRequest
	if !h.bind(c, &req) {
		return
	}
	req.CreatedBy = middleware.GetUserID(c)

	resp, err := h.campaigns.Create(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// List handles GET /campaigns
func (h *CampaignHandler) List(c *gin.Context) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return
	}
	var filter campaignapp.CampaignListFilter
	if !h.bindQuery(c, &filter) {
		return
	}

	items, total, err := h.campaigns.List(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page, pageSize := pageOf(filter.Page, filter.PageSize, 20)
	h.SuccessWithMeta(c, items, total, page, pageSize)
}

// Get handles GET /campaigns/:id
func (h *CampaignHandler) Get(c *gin.Context) {
	tenantID, id, ok := h.campaignRef(c)
	if !ok {
		return
	}
	resp, err := h.campaigns.GetByID(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// UpdateContent handles PUT /campaigns/:id/content
func (h *CampaignHandler) UpdateContent(c *gin.Context) {
	tenantID, id, ok := h.campaignRef(c)
	if !ok {
		return
	}
	var req campaignapp.UpdateContentRequest
	if !h.bind(c, &req) {
		return
	}
	resp, err := h.campaigns.UpdateContent(c.Request.Context(), tenantID, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// AddRecipient handles POST /campaigns/:id/recipients
func (h *CampaignHandler) AddRecipient(c *gin.Context) {
	tenantID, id, ok := h.campaignRef(c)
	if !ok {
		return
	}
	var req campaignapp.RecipientRequest
	if !h.bind(c, &req) {
		return
	}
	resp, err := h.campaigns.AddRecipient(c.Request.Context(), tenantID, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// ImportRecipients handles POST /campaigns/:id/recipients/import. It accepts
// a multipart CSV upload, a raw text/csv body, or a JSON recipient list.
func (h *CampaignHandler) ImportRecipients(c *gin.Context) {
	tenantID, id, ok := h.campaignRef(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var (
		result *campaignapp.ImportResult
		err    error
	)
	switch mediaType(c) {
	case "multipart/form-data":
		header, ferr := c.FormFile(csvFormField)
		if ferr != nil {
			h.Error(c, dto.ErrCodeInvalidFile, "A CSV file is required in the \""+csvFormField+"\" field")
			return
		}
		file, ferr := header.Open()
		if ferr != nil {
			h.HandleError(c, ferr)
			return
		}
		defer file.Close()
		result, err = h.campaigns.ImportCSV(ctx, tenantID, id, file)
	case "text/csv":
		result, err = h.campaigns.ImportCSV(ctx, tenantID, id, c.Request.Body)
	default:
		var req campaignapp.ImportRecipientsRequest
		if !h.bind(c, &req) {
			return
		}
		result, err = h.campaigns.ImportRecipients(ctx, tenantID, id, req)
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ListRecipients handles GET /campaigns/:id/recipients
func (h *CampaignHandler) ListRecipients(c *gin.Context) {
	tenantID, id, ok := h.campaignRef(c)
	if !ok {
		return
	}
	var filter campaignapp.RecipientListFilter
	if !h.bindQuery(c, &filter) {
		return
	}
	items, total, err := h.campaigns.ListRecipients(c.Request.Context(), tenantID, id, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page, pageSize := pageOf(filter.Page, filter.PageSize, 50)
	h.SuccessWithMeta(c, items, total, page, pageSize)
}

// GetRecipient handles GET /campaigns/:id/recipients/:recipient_id
func (h *CampaignHandler) GetRecipient(c *gin.Context) {
	tenantID, id, ok := h.campaignRef(c)
	if !ok {
		return
	}
	recipientID, ok := h.pathID(c, "recipient_id")
	if !ok {
		return
	}
	resp, err := h.campaigns.GetRecipient(c.Request.Context(), tenantID, id, recipientID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Estimate handles POST /campaigns/:id/estimate
func (h *CampaignHandler) Estimate(c *gin.Context) {
	tenantID, id, ok := h.campaignRef(c)
	if !ok {
		return
	}
	resp, err := h.campaigns.Estimate(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Send handles POST /campaigns/:id/send. Dispatch continues in the
// background, so the response is 202 with the campaign in processing.
func (h *CampaignHandler) Send(c *gin.Context) {
	tenantID, id, ok := h.campaignRef(c)
	if !ok {
		return
	}
	resp, err := h.campaigns.SendNow(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, resp)
}

// Schedule handles POST /campaigns/:id/schedule
func (h *CampaignHandler) Schedule(c *gin.Context) {
	tenantID, id, ok := h.campaignRef(c)
	if !ok {
		return
	}
	var req campaignapp.ScheduleRequest
	if !h.bind(c, &req) {
		return
	}
	resp, err := h.campaigns.Schedule(c.Request.Context(), tenantID, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Unschedule handles POST /campaigns/:id/unschedule
func (h *CampaignHandler) Unschedule(c *gin.Context) {
	tenantID, id, ok := h.campaignRef(c)
	if !ok {
		return
	}
	resp, err := h.campaigns.Unschedule(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Cancel handles POST /campaigns/:id/cancel
func (h *CampaignHandler) Cancel(c *gin.Context) {
	tenantID, id, ok := h.campaignRef(c)
	if !ok {
		return
	}
	resp, err := h.campaigns.Cancel(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// ReevaluateSuppression handles POST /campaigns/:id/suppression/reevaluate
func (h *CampaignHandler) ReevaluateSuppression(c *gin.Context) {
	tenantID, id, ok := h.campaignRef(c)
	if !ok {
		return
	}
	resp, err := h.campaigns.ReevaluateSuppression(c.Request.Context(), tenantID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Proof handles POST /campaigns/:id/proof. The body is optional.
func (h *CampaignHandler) Proof(c *gin.Context) {
	tenantID, id, ok := h.campaignRef(c)
	if !ok {
		return
	}
	var req campaignapp.ProofRequest
	if c.Request.ContentLength != 0 && !h.bind(c, &req) {
		return
	}
	proof, err := h.campaigns.Proof(c.Request.Context(), tenantID, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, proof)
}

// UploadURL handles POST /campaigns/:id/artwork/upload-url
func (h *CampaignHandler) UploadURL(c *gin.Context) {
	tenantID, id, ok := h.campaignRef(c)
	if !ok {
		return
	}
	var req campaignapp.UploadURLRequest
	if !h.bind(c, &req) {
		return
	}
	resp, err := h.campaigns.UploadURL(c.Request.Context(), tenantID, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// ResetRecipient handles POST /recipients/:id/reset
func (h *CampaignHandler) ResetRecipient(c *gin.Context) {
	tenantID, campaignID, recipientID, ok := h.recipientRef(c)
	if !ok {
		return
	}
	resp, err := h.campaigns.ResetRecipient(c.Request.Context(), tenantID, campaignID, recipientID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// CorrectAddress handles PUT /recipients/:id/address
func (h *CampaignHandler) CorrectAddress(c *gin.Context) {
	tenantID, campaignID, recipientID, ok := h.recipientRef(c)
	if !ok {
		return
	}
	var req campaignapp.CorrectAddressRequest
	if !h.bind(c, &req) {
		return
	}
	resp, err := h.campaigns.CorrectAddress(c.Request.Context(), tenantID, campaignID, recipientID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

func (h *CampaignHandler) campaignRef(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	tenantID, ok := h.tenant(c)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	id, ok := h.pathID(c, "id")
	return tenantID, id, ok
}

// recipientRef resolves tenant, campaign and recipient for routes addressed
// by recipient id alone
func (h *CampaignHandler) recipientRef(c *gin.Context) (tenantID, campaignID, recipientID uuid.UUID, ok bool) {
	tenantID, recipientID, ok = h.campaignRef(c)
	if !ok {
		return
	}
	campaignID, err := h.campaigns.CampaignOfRecipient(c.Request.Context(), tenantID, recipientID)
	if err != nil {
		h.HandleError(c, err)
		return tenantID, uuid.Nil, recipientID, false
	}
	return tenantID, campaignID, recipientID, true
}

func mediaType(c *gin.Context) string {
	mt, _, err := mime.ParseMediaType(c.GetHeader("Content-Type"))
	if err != nil {
		return ""
	}
	return strings.ToLower(mt)
}

// pageOf mirrors the service defaults so the meta block matches the query
func pageOf(page, pageSize, defaultSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultSize
	}
	return page, pageSize
}
