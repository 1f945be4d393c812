package alarm

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/medalarm/internal/handler"
	alarmService "github.com/jwalitptl/medalarm/internal/service/alarm"
)

// Rescheduler loads a medication and runs its alarm lifecycle.
type Rescheduler interface {
	RescheduleMedication(ctx context.Context, medicationID int64) (*alarmService.Result, error)
}

type Lifecycle interface {
	Cancel(ctx context.Context, medicationID int64) (*alarmService.Result, error)
	ScheduledIDs(ctx context.Context, medicationID int64) ([]int64, error)
	LookupMedication(ctx context.Context, alarmID int64) (int64, error)
}

type Handler struct {
	rescheduler Rescheduler
	lifecycle   Lifecycle
}

func NewHandler(rescheduler Rescheduler, lifecycle Lifecycle) *Handler {
	return &Handler{rescheduler: rescheduler, lifecycle: lifecycle}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	medications := r.Group("/medications/:id")
	{
		medications.POST("/reschedule", h.Reschedule)
		medications.GET("/alarms", h.ListAlarms)
		medications.DELETE("/alarms", h.CancelAlarms)
	}
	r.GET("/alarms/:alarmId", h.GetAlarm)
}

type alarmsResponse struct {
	MedicationID int64   `json:"medication_id"`
	AlarmIDs     []int64 `json:"alarm_ids"`
}

type alarmResponse struct {
	AlarmID      int64 `json:"alarm_id"`
	MedicationID int64 `json:"medication_id"`
}

func (h *Handler) Reschedule(c *gin.Context) {
	id, err := handler.ParseID(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	result, err := h.rescheduler.RescheduleMedication(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, result)
}

func (h *Handler) ListAlarms(c *gin.Context) {
	id, err := handler.ParseID(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	ids, err := h.lifecycle.ScheduledIDs(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	handler.OK(c, alarmsResponse{MedicationID: id, AlarmIDs: ids})
}

// CancelAlarms cancels every pending alarm of the medication, e.g. after it
// was deleted, without scheduling new ones.
func (h *Handler) CancelAlarms(c *gin.Context) {
	id, err := handler.ParseID(c, "id")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	result, err := h.lifecycle.Cancel(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, result)
}

// GetAlarm resolves a fired alarm id back to its medication.
func (h *Handler) GetAlarm(c *gin.Context) {
	alarmID, err := handler.ParseID(c, "alarmId")
	if err != nil {
		handler.Fail(c, err)
		return
	}

	medID, err := h.lifecycle.LookupMedication(c.Request.Context(), alarmID)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, alarmResponse{AlarmID: alarmID, MedicationID: medID})
}
