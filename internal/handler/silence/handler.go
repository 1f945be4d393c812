package silence

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/medalarm/internal/handler"
	"github.com/jwalitptl/medalarm/internal/model"
	"github.com/jwalitptl/medalarm/internal/service/alarm"
)

type SilenceService interface {
	SilenceMedication(ctx context.Context, medicationID int64) (*alarm.Result, error)
	UnsilenceMedication(ctx context.Context, medicationID int64) (*alarm.Result, error)
	SilenceSlot(ctx context.Context, medicationID int64, slot string) (*alarm.Result, error)
	UnsilenceSlot(ctx context.Context, medicationID int64, slot string) (*alarm.Result, error)
	State(ctx context.Context, medicationID int64) (*model.SilenceState, error)
}

type Handler struct {
	service SilenceService
}

func NewHandler(service SilenceService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	silence := r.Group("/medications/:id/silence")
	{
		silence.GET("", h.GetState)
		silence.POST("", h.Silence)
		silence.DELETE("", h.Unsilence)
		silence.POST("/slots/:slot", h.SilenceSlot)
		silence.DELETE("/slots/:slot", h.UnsilenceSlot)
	}
}

// changeResponse carries the silence state after a change and the
// reschedule that applied it.
type changeResponse struct {
	State      *model.SilenceState `json:"state"`
	Reschedule *alarm.Result       `json:"reschedule"`
}

func (h *Handler) GetState(c *gin.Context) {
	id, err := handler.ParseID(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	state, err := h.service.State(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, state)
}

func (h *Handler) Silence(c *gin.Context) {
	h.change(c, func(ctx context.Context, id int64) (*alarm.Result, error) {
		return h.service.SilenceMedication(ctx, id)
	})
}

func (h *Handler) Unsilence(c *gin.Context) {
	h.change(c, func(ctx context.Context, id int64) (*alarm.Result, error) {
		return h.service.UnsilenceMedication(ctx, id)
	})
}

func (h *Handler) SilenceSlot(c *gin.Context) {
	slot := c.Param("slot")
	h.change(c, func(ctx context.Context, id int64) (*alarm.Result, error) {
		return h.service.SilenceSlot(ctx, id, slot)
	})
}

func (h *Handler) UnsilenceSlot(c *gin.Context) {
	slot := c.Param("slot")
	h.change(c, func(ctx context.Context, id int64) (*alarm.Result, error) {
		return h.service.UnsilenceSlot(ctx, id, slot)
	})
}

func (h *Handler) change(c *gin.Context, apply func(context.Context, int64) (*alarm.Result, error)) {
	id, err := handler.ParseID(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	ctx := c.Request.Context()
	result, err := apply(ctx, id)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	state, err := h.service.State(ctx, id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, changeResponse{State: state, Reschedule: result})
}
