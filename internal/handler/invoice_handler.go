package handler

import (
	"fmt"
	"net/http"

	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type InvoiceHandler struct {
	invoiceService    service.InvoiceService
	conversionService service.ConversionService
}

func NewInvoiceHandler(invoiceService service.InvoiceService, conversionService service.ConversionService) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService:    invoiceService,
		conversionService: conversionService,
	}
}

func (h *InvoiceHandler) RegisterRoutes(router *gin.RouterGroup) {
	staffOnly := middleware.RequireRole(model.RoleAdmin, model.RoleStaff)
	invoices := router.Group("/invoices")
	{
		invoices.POST("", staffOnly, h.ConvertToInvoice)
		invoices.GET("", h.ListInvoices)
		invoices.GET("/:id", h.GetInvoice)
		invoices.GET("/:id/pdf", h.DownloadPDF)
		invoices.PUT("/:id/status", staffOnly, h.TransitionInvoice)
	}
}

// ConvertToInvoice bills an accepted quote or a completed work order
// @Summary      Issue invoice
// @Description  Idempotent per source: repeating the call returns the invoice issued the first time
// @Tags         invoices
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.ConvertToInvoiceRequest  true  "Invoice source"
// @Success      201      {object}  response.Response{data=service.InvoiceResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/invoices [post]
func (h *InvoiceHandler) ConvertToInvoice(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.ConvertToInvoiceRequest
	if !bindJSON(c, &req) {
		return
	}
	invoice, err := h.conversionService.ConvertToInvoice(c.Request.Context(), a, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, invoice))
}

// ListInvoices returns a paginated list of invoices
// @Summary      List invoices
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        status      query     string  false  "draft, sent, paid or overdue"
// @Param        invoice_no  query     string  false  "Partial invoice number"
// @Param        page        query     int     false  "Page number (default 1)"
// @Param        limit       query     int     false  "Items per page (default 20)"
// @Success      200         {object}  response.Response{data=response.Page}
// @Router       /api/invoices [get]
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)
	invoices, total, err := h.invoiceService.ListInvoices(c.Request.Context(), a, service.InvoiceFilter{
		Status:    c.Query("status"),
		InvoiceNo: c.Query("invoice_no"),
		Page:      p.Page,
		Limit:     p.Limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paged(http.StatusOK, invoices, total, p.Page, p.Limit))
}

// GetInvoice returns one invoice
// @Summary      Get invoice
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=service.InvoiceResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/invoices/{id} [get]
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	invoice, err := h.invoiceService.GetInvoice(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

// DownloadPDF renders the invoice as a PDF attachment
// @Summary      Download invoice PDF
// @Tags         invoices
// @Security     BearerAuth
// @Produce      application/pdf
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {file}    file
// @Failure      404  {object}  response.Response
// @Router       /api/invoices/{id}/pdf [get]
func (h *InvoiceHandler) DownloadPDF(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	name, data, err := h.invoiceService.RenderPDF(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/pdf", data)
}

// TransitionInvoice moves an invoice to sent, paid or overdue
// @Summary      Change invoice status
// @Tags         invoices
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                     true  "Invoice ID"
// @Param        payload  body      service.TransitionRequest  true  "Target status"
// @Success      200      {object}  response.Response{data=service.InvoiceResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/invoices/{id}/status [put]
func (h *InvoiceHandler) TransitionInvoice(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.TransitionRequest
	if !bindJSON(c, &req) {
		return
	}
	invoice, err := h.invoiceService.TransitionInvoice(c.Request.Context(), a, c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}
