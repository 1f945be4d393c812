package system

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/medalarm/internal/handler"
	"github.com/jwalitptl/medalarm/internal/service/reschedule"
)

type Rescheduler interface {
	Trigger(ctx context.Context, trigger reschedule.Trigger) (*reschedule.Summary, error)
}

// Signaler publishes the device reboot signal to the worker.
type Signaler interface {
	Signal(ctx context.Context) error
}

type Handler struct {
	rescheduler Rescheduler
	boot        Signaler
}

// NewHandler builds the system handler. With a nil boot signaler the boot
// pass runs inside the request instead of in the worker.
func NewHandler(rescheduler Rescheduler, boot Signaler) *Handler {
	return &Handler{rescheduler: rescheduler, boot: boot}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	system := r.Group("/system")
	{
		system.POST("/boot", h.Boot)
		system.POST("/foreground", h.Foreground)
		system.POST("/reschedule", h.RescheduleAll)
	}
}

func (h *Handler) Boot(c *gin.Context) {
	if h.boot == nil {
		h.run(c, reschedule.TriggerBoot)
		return
	}
	if err := h.boot.Signal(c.Request.Context()); err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, handler.NewSuccessResponse(gin.H{"signalled": true}))
}

func (h *Handler) Foreground(c *gin.Context) {
	h.run(c, reschedule.TriggerForeground)
}

func (h *Handler) RescheduleAll(c *gin.Context) {
	h.run(c, reschedule.TriggerManual)
}

// run fails the request when any medication in the pass failed; the
// per-medication outcome is in the logs and metrics.
func (h *Handler) run(c *gin.Context, trigger reschedule.Trigger) {
	summary, err := h.rescheduler.Trigger(c.Request.Context(), trigger)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, summary)
}
