package handler

import (
	"fmt"
	"net/http"

	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/service"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type CommissionHandler struct {
	commissionService service.CommissionService
}

func NewCommissionHandler(commissionService service.CommissionService) *CommissionHandler {
	return &CommissionHandler{commissionService: commissionService}
}

func (h *CommissionHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/commissions")
	group.Use(middleware.RequireRole(model.RoleAdmin, model.RoleStaff))
	{
		group.GET("", h.Report)
		group.GET("/export", middleware.RequireRole(model.RoleAdmin), h.Export)
	}
}

// Report totals commission per staff member for today, this week and this month
// @Summary      Commission report
// @Description  Admins see every staff member; staff see their own row
// @Tags         commissions
// @Security     BearerAuth
// @Produce      json
// @Param        window  query     string  false  "day, week, month or all; adds an amount column for that window"
// @Success      200     {object}  response.Response{data=[]service.CommissionRow}
// @Failure      400     {object}  response.Response
// @Router       /api/commissions [get]
func (h *CommissionHandler) Report(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	rows, err := h.commissionService.Report(c.Request.Context(), a, c.Query("window"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rows))
}

// Export downloads this month's commission report as a workbook
// @Summary      Export commission workbook
// @Tags         commissions
// @Security     BearerAuth
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Success      200  {file}    file
// @Failure      403  {object}  response.Response
// @Router       /api/commissions/export [get]
func (h *CommissionHandler) Export(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	name, data, err := h.commissionService.ExportWorkbook(c.Request.Context(), a)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, xlsxContentType, data)
}
