package preference

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/medalarm/internal/handler"
	"github.com/jwalitptl/medalarm/internal/model"
	"github.com/jwalitptl/medalarm/internal/service/reschedule"
)

type PreferenceService interface {
	Get(ctx context.Context) (model.Preferences, error)
	Update(ctx context.Context, req *model.UpdatePreferencesRequest) (model.Preferences, *reschedule.Summary, error)
}

type Handler struct {
	service PreferenceService
}

func NewHandler(service PreferenceService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	prefs := r.Group("/preferences")
	{
		prefs.GET("", h.Get)
		prefs.PUT("", h.Update)
	}
}

type updateResponse struct {
	Preferences model.Preferences   `json:"preferences"`
	Reschedule  *reschedule.Summary `json:"reschedule,omitempty"`
}

func (h *Handler) Get(c *gin.Context) {
	prefs, err := h.service.Get(c.Request.Context())
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, prefs)
}

// Update applies a partial update; omitted fields keep their value. Every
// medication is rescheduled so pending alarms pick up the change.
func (h *Handler) Update(c *gin.Context) {
	var req model.UpdatePreferencesRequest
	if err := handler.BindJSON(c, &req); err != nil {
		handler.Fail(c, err)
		return
	}

	prefs, summary, err := h.service.Update(c.Request.Context(), &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, updateResponse{Preferences: prefs, Reschedule: summary})
}
