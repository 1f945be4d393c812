package platform

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/medalarm/internal/handler"
	"github.com/jwalitptl/medalarm/internal/model"
	"github.com/jwalitptl/medalarm/internal/platform"
)

type Handler struct {
	client platform.ReportingClient
}

func NewHandler(client platform.ReportingClient) *Handler {
	return &Handler{client: client}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	p := r.Group("/platform")
	{
		p.GET("/permissions", h.GetPermissions)
		p.PUT("/permissions", h.ReportPermissions)
		p.POST("/settings", h.OpenSettings)
	}
}

type reportPermissionsRequest struct {
	CanScheduleExactAlarms *bool `json:"can_schedule_exact_alarms" binding:"required"`
}

func (h *Handler) GetPermissions(c *gin.Context) {
	perms, err := h.client.CheckPermissions(c.Request.Context())
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, perms)
}

// ReportPermissions records the permission state the device currently holds.
func (h *Handler) ReportPermissions(c *gin.Context) {
	var req reportPermissionsRequest
	if err := handler.BindJSON(c, &req); err != nil {
		handler.Fail(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := h.client.ReportPermissions(ctx, model.Permissions{CanScheduleExactAlarms: *req.CanScheduleExactAlarms}); err != nil {
		handler.Fail(c, err)
		return
	}

	perms, err := h.client.CheckPermissions(ctx)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, perms)
}

// OpenSettings asks the device to show its alarm permission settings.
func (h *Handler) OpenSettings(c *gin.Context) {
	if err := h.client.OpenAlarmSettings(c.Request.Context()); err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, gin.H{"requested": true})
}
