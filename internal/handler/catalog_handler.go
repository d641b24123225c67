package handler

import (
	"net/http"

	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/service"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type CatalogHandler struct {
	catalogService service.CatalogService
}

func NewCatalogHandler(catalogService service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService}
}

func (h *CatalogHandler) RegisterRoutes(router *gin.RouterGroup) {
	services := router.Group("/services")
	{
		services.GET("", h.ListServices)
		services.PUT("", middleware.RequireRole(model.RoleAdmin), h.UpsertService)
	}
}

// ListServices returns the service catalog
// @Summary      List services
// @Tags         services
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]service.ServiceResponse}
// @Router       /api/services [get]
func (h *CatalogHandler) ListServices(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	services, err := h.catalogService.ListServices(c.Request.Context(), a)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, services))
}

// UpsertService creates or updates a catalog entry
// @Summary      Upsert service
// @Tags         services
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.UpsertServiceRequest  true  "Service"
// @Success      200      {object}  response.Response{data=service.ServiceResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/services [put]
func (h *CatalogHandler) UpsertService(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.UpsertServiceRequest
	if !bindJSON(c, &req) {
		return
	}
	svc, err := h.catalogService.UpsertService(c.Request.Context(), a, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, svc))
}
