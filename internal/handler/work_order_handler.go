package handler

import (
	"net/http"

	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type WorkOrderHandler struct {
	workOrderService service.WorkOrderService
}

func NewWorkOrderHandler(workOrderService service.WorkOrderService) *WorkOrderHandler {
	return &WorkOrderHandler{workOrderService: workOrderService}
}

func (h *WorkOrderHandler) RegisterRoutes(router *gin.RouterGroup) {
	staffOnly := middleware.RequireRole(model.RoleAdmin, model.RoleStaff)
	orders := router.Group("/work-orders")
	{
		orders.POST("", staffOnly, h.CreateWorkOrder)
		orders.GET("", h.ListWorkOrders)
		orders.GET("/:id", h.GetWorkOrder)
		orders.PUT("/:id/status", staffOnly, h.TransitionWorkOrder)
		orders.PUT("/:id/services", staffOnly, h.UpdateServices)
		orders.GET("/:id/commission", staffOnly, h.CommissionDetail)
	}
}

// CreateWorkOrder opens a work order directly, without a quote
// @Summary      Create work order
// @Tags         work-orders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateWorkOrderRequest  true  "Work order"
// @Success      201      {object}  response.Response{data=service.WorkOrderResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/work-orders [post]
func (h *WorkOrderHandler) CreateWorkOrder(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.CreateWorkOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	wo, err := h.workOrderService.CreateWorkOrder(c.Request.Context(), a, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, wo))
}

// ListWorkOrders returns a page of work orders
// @Summary      List work orders
// @Tags         work-orders
// @Security     BearerAuth
// @Produce      json
// @Param        status  query     string  false  "Filter by status"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Items per page (default 20)"
// @Success      200     {object}  response.Response{data=response.Page}
// @Router       /api/work-orders [get]
func (h *WorkOrderHandler) ListWorkOrders(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)
	orders, total, err := h.workOrderService.ListWorkOrders(c.Request.Context(), a, service.WorkOrderFilter{
		Status: c.Query("status"),
		Page:   p.Page,
		Limit:  p.Limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paged(http.StatusOK, orders, total, p.Page, p.Limit))
}

// GetWorkOrder returns one work order
// @Summary      Get work order
// @Tags         work-orders
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Work order ID"
// @Success      200  {object}  response.Response{data=service.WorkOrderResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/work-orders/{id} [get]
func (h *WorkOrderHandler) GetWorkOrder(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	wo, err := h.workOrderService.GetWorkOrder(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, wo))
}

// TransitionWorkOrder moves a work order along its lifecycle
// @Summary      Change work order status
// @Tags         work-orders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                     true  "Work order ID"
// @Param        payload  body      service.TransitionRequest  true  "Target status"
// @Success      200      {object}  response.Response{data=service.WorkOrderResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/work-orders/{id}/status [put]
func (h *WorkOrderHandler) TransitionWorkOrder(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.TransitionRequest
	if !bindJSON(c, &req) {
		return
	}
	wo, err := h.workOrderService.TransitionWorkOrder(c.Request.Context(), a, c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, wo))
}

// UpdateServices replaces the service lines of an open work order
// @Summary      Update work order services
// @Tags         work-orders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                         true  "Work order ID"
// @Param        payload  body      service.UpdateServicesRequest  true  "Service lines"
// @Success      200      {object}  response.Response{data=service.WorkOrderResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/work-orders/{id}/services [put]
func (h *WorkOrderHandler) UpdateServices(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.UpdateServicesRequest
	if !bindJSON(c, &req) {
		return
	}
	wo, err := h.workOrderService.UpdateServices(c.Request.Context(), a, c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, wo))
}

// CommissionDetail lists commission per service line
// @Summary      Work order commission
// @Tags         work-orders
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Work order ID"
// @Success      200  {object}  response.Response{data=[]service.LineCommissionResponse}
// @Failure      403  {object}  response.Response
// @Router       /api/work-orders/{id}/commission [get]
func (h *WorkOrderHandler) CommissionDetail(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	lines, err := h.workOrderService.CommissionDetail(c.Request.Context(), a, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, lines))
}
