package handler

import (
	"net/http"
	"path/filepath"
	"strings"

	"backoffice/internal/media"
	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

const maxUploadBytes = 10 << 20

var allowedMediaExt = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".heic": true, ".mp4": true, ".mov": true}

type QuoteHandler struct {
	quoteService      service.QuoteService
	conversionService service.ConversionService
	media             media.Store
}

func NewQuoteHandler(quoteService service.QuoteService, conversionService service.ConversionService, store media.Store) *QuoteHandler {
	return &QuoteHandler{
		quoteService:      quoteService,
		conversionService: conversionService,
		media:             store,
	}
}

type ArchiveRequest struct {
	Archived bool `json:"archived"`
}

func (h *QuoteHandler) RegisterRoutes(router *gin.RouterGroup) {
	quotes := router.Group("/quotes")
	{
		quotes.POST("", h.CreateQuote)
		quotes.GET("", h.ListQuotes)
		quotes.GET("/:id", h.GetQuote)
		quotes.POST("/:id/estimate", middleware.RequireRole(model.RoleAdmin), h.SubmitEstimate)
		quotes.POST("/:id/respond", middleware.RequireRole(model.RoleClient), h.RespondToQuote)
		quotes.POST("/:id/override", middleware.RequireRole(model.RoleAdmin), h.OverrideResponse)
		quotes.PUT("/:id/archive", middleware.RequireRole(model.RoleAdmin), h.SetArchived)
		quotes.PUT("/:id/media", h.UpdateMedia)
		quotes.DELETE("/:id", middleware.RequireRole(model.RoleAdmin), h.DeleteQuote)
		quotes.POST("/:id/convert", middleware.RequireRole(model.RoleAdmin, model.RoleStaff), h.ConvertToWorkOrder)
	}
	router.POST("/media", h.UploadMedia)
}

// CreateQuote files a new quote request
// @Summary      Create quote request
// @Description  Clients request pricing for services; staff may file on behalf of a client via client_id
// @Tags         quotes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateQuoteRequest  true  "Quote request"
// @Success      201      {object}  response.Response{data=service.QuoteResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/quotes [post]
func (h *QuoteHandler) CreateQuote(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.CreateQuoteRequest
	if !bindJSON(c, &req) {
		return
	}

	quote, err := h.quoteService.CreateQuote(c.Request.Context(), a, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, quote))
}

// ListQuotes returns a page of quotes; clients only see their own
// @Summary      List quotes
// @Tags         quotes
// @Security     BearerAuth
// @Produce      json
// @Param        status    query     string  false  "pending, estimated, accepted, rejected or converted"
// @Param        archived  query     bool    false  "Filter on the archive flag"
// @Param        page      query     int     false  "Page number (default 1)"
// @Param        limit     query     int     false  "Items per page (default 20)"
// @Success      200       {object}  response.Response{data=response.Page}
// @Router       /api/quotes [get]
func (h *QuoteHandler) ListQuotes(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)

	quotes, total, err := h.quoteService.ListQuotes(c.Request.Context(), a, service.QuoteFilter{
		Status:   c.Query("status"),
		Archived: pagination.Bool(c, "archived"),
		Page:     p.Page,
		Limit:    p.Limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paged(http.StatusOK, quotes, total, p.Page, p.Limit))
}

// GetQuote returns one quote
// @Summary      Get quote
// @Tags         quotes
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Quote ID"
// @Success      200  {object}  response.Response{data=service.QuoteResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/quotes/{id} [get]
func (h *QuoteHandler) GetQuote(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	quote, err := h.quoteService.GetQuote(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, quote))
}

// SubmitEstimate prices every requested service
// @Summary      Estimate quote
// @Description  Admin only. Every requested service needs a positive amount; the total is their sum
// @Tags         quotes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                   true  "Quote ID"
// @Param        payload  body      service.EstimateRequest  true  "Per-service amounts"
// @Success      200      {object}  response.Response{data=service.QuoteResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/quotes/{id}/estimate [post]
func (h *QuoteHandler) SubmitEstimate(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.EstimateRequest
	if !bindJSON(c, &req) {
		return
	}
	quote, err := h.quoteService.SubmitEstimate(c.Request.Context(), a, c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, quote))
}

// RespondToQuote records the client's answer to an estimate
// @Summary      Respond to quote
// @Tags         quotes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                  true  "Quote ID"
// @Param        payload  body      service.RespondRequest  true  "accepted or rejected"
// @Success      200      {object}  response.Response{data=service.QuoteResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/quotes/{id}/respond [post]
func (h *QuoteHandler) RespondToQuote(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.RespondRequest
	if !bindJSON(c, &req) {
		return
	}
	quote, err := h.quoteService.RespondToQuote(c.Request.Context(), a, c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, quote))
}

// OverrideResponse lets an admin set the response on the client's behalf
// @Summary      Override quote response
// @Tags         quotes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                  true  "Quote ID"
// @Param        payload  body      service.RespondRequest  true  "accepted or rejected"
// @Success      200      {object}  response.Response{data=service.QuoteResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/quotes/{id}/override [post]
func (h *QuoteHandler) OverrideResponse(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.RespondRequest
	if !bindJSON(c, &req) {
		return
	}
	quote, err := h.quoteService.OverrideResponse(c.Request.Context(), a, c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, quote))
}

// SetArchived hides or restores a quote without touching its status
// @Summary      Archive quote
// @Tags         quotes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string          true  "Quote ID"
// @Param        payload  body      ArchiveRequest  true  "Archive flag"
// @Success      200      {object}  response.Response{data=service.QuoteResponse}
// @Router       /api/quotes/{id}/archive [put]
func (h *QuoteHandler) SetArchived(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req ArchiveRequest
	if !bindJSON(c, &req) {
		return
	}
	quote, err := h.quoteService.SetArchived(c.Request.Context(), a, c.Param("id"), req.Archived)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, quote))
}

// UpdateMedia replaces the attachment list while the quote awaits a response
// @Summary      Update quote media
// @Tags         quotes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                      true  "Quote ID"
// @Param        payload  body      service.UpdateMediaRequest  true  "Attachment URLs"
// @Success      200      {object}  response.Response{data=service.QuoteResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/quotes/{id}/media [put]
func (h *QuoteHandler) UpdateMedia(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.UpdateMediaRequest
	if !bindJSON(c, &req) {
		return
	}
	quote, err := h.quoteService.UpdateMedia(c.Request.Context(), a, c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, quote))
}

// DeleteQuote hard-deletes a quote and its attachments
// @Summary      Delete quote
// @Tags         quotes
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Quote ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/quotes/{id} [delete]
func (h *QuoteHandler) DeleteQuote(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	if err := h.quoteService.DeleteQuote(c.Request.Context(), a, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"id": c.Param("id")}))
}

// ConvertToWorkOrder turns an accepted quote into a work order
// @Summary      Convert quote to work order
// @Description  Idempotent: repeating the call returns the work order created the first time
// @Tags         quotes
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Quote ID"
// @Success      201  {object}  response.Response{data=service.WorkOrderResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/quotes/{id}/convert [post]
func (h *QuoteHandler) ConvertToWorkOrder(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	wo, err := h.conversionService.ConvertToWorkOrder(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, wo))
}

// UploadMedia stores one photo or video and returns its URL
// @Summary      Upload media
// @Tags         quotes
// @Security     BearerAuth
// @Accept       mpfd
// @Produce      json
// @Param        file  formData  file  true  "Photo or video"
// @Success      201   {object}  response.Response{data=object}
// @Failure      400   {object}  response.Response
// @Router       /api/media [post]
func (h *QuoteHandler) UploadMedia(c *gin.Context) {
	if _, ok := actor(c); !ok {
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "File is required"))
		return
	}
	if file.Size > maxUploadBytes {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "File is larger than 10 MB"))
		return
	}
	if !allowedMediaExt[strings.ToLower(filepath.Ext(file.Filename))] {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Unsupported file type"))
		return
	}

	src, err := file.Open()
	if err != nil {
		writeError(c, err)
		return
	}
	defer src.Close()

	url, err := h.media.Save(c.Request.Context(), file.Filename, src)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, gin.H{"url": url}))
}
