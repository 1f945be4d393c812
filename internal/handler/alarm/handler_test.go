package alarm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/medalarm/internal/middleware"
	alarmService "github.com/jwalitptl/medalarm/internal/service/alarm"
	apperrors "github.com/jwalitptl/medalarm/pkg/errors"
	"github.com/jwalitptl/medalarm/pkg/logger"
)

type fakeLifecycle struct {
	scheduled   map[int64][]int64
	rescheduled []int64
	cancelled   []int64
	err         error
}

func (f *fakeLifecycle) RescheduleMedication(ctx context.Context, medicationID int64) (*alarmService.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.rescheduled = append(f.rescheduled, medicationID)
	return &alarmService.Result{MedicationID: medicationID, Scheduled: f.scheduled[medicationID]}, nil
}

func (f *fakeLifecycle) Cancel(ctx context.Context, medicationID int64) (*alarmService.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.cancelled = append(f.cancelled, medicationID)
	result := &alarmService.Result{MedicationID: medicationID, Cancelled: f.scheduled[medicationID]}
	delete(f.scheduled, medicationID)
	return result, nil
}

func (f *fakeLifecycle) ScheduledIDs(ctx context.Context, medicationID int64) ([]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.scheduled[medicationID], nil
}

func (f *fakeLifecycle) LookupMedication(ctx context.Context, alarmID int64) (int64, error) {
	for medID, ids := range f.scheduled {
		for _, id := range ids {
			if id == alarmID {
				return medID, nil
			}
		}
	}
	return 0, apperrors.NewNotFound("alarm", nil)
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func setup() (*gin.Engine, *fakeLifecycle) {
	gin.SetMode(gin.TestMode)
	fake := &fakeLifecycle{scheduled: map[int64][]int64{3: {300000, 300001, 300002}}}

	r := gin.New()
	r.Use(middleware.ErrorHandler(logger.Nop()))
	NewHandler(fake, fake).RegisterRoutes(r.Group("/api/v1"))
	return r, fake
}

func do(t *testing.T, r *gin.Engine, method, path string) (int, envelope) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w.Code, env
}

func TestReschedule(t *testing.T) {
	r, fake := setup()

	code, env := do(t, r, http.MethodPost, "/api/v1/medications/3/reschedule")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", env.Status)
	assert.Equal(t, []int64{3}, fake.rescheduled)

	var result alarmService.Result
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, []int64{300000, 300001, 300002}, result.Scheduled)
}

func TestReschedule_InvalidID(t *testing.T) {
	r, fake := setup()

	for _, path := range []string{"/api/v1/medications/abc/reschedule", "/api/v1/medications/0/reschedule"} {
		code, env := do(t, r, http.MethodPost, path)
		assert.Equal(t, http.StatusBadRequest, code, path)
		assert.Equal(t, "error", env.Status)
	}
	assert.Empty(t, fake.rescheduled)
}

func TestReschedule_UnknownMedication(t *testing.T) {
	r, fake := setup()
	fake.err = apperrors.NewNotFound("medication 9", nil)

	code, env := do(t, r, http.MethodPost, "/api/v1/medications/9/reschedule")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "medication 9 not found", env.Message)
}

func TestListAlarms(t *testing.T) {
	r, _ := setup()

	code, env := do(t, r, http.MethodGet, "/api/v1/medications/3/alarms")
	require.Equal(t, http.StatusOK, code)
	var body alarmsResponse
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, alarmsResponse{MedicationID: 3, AlarmIDs: []int64{300000, 300001, 300002}}, body)

	code, env = do(t, r, http.MethodGet, "/api/v1/medications/5/alarms")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, []int64{}, body.AlarmIDs)
}

func TestCancelAlarms(t *testing.T) {
	r, fake := setup()

	code, env := do(t, r, http.MethodDelete, "/api/v1/medications/3/alarms")
	require.Equal(t, http.StatusOK, code)
	var result alarmService.Result
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, []int64{300000, 300001, 300002}, result.Cancelled)
	assert.Equal(t, []int64{3}, fake.cancelled)
	assert.Empty(t, fake.scheduled[3])
}

func TestGetAlarm(t *testing.T) {
	r, _ := setup()

	code, env := do(t, r, http.MethodGet, "/api/v1/alarms/300001")
	require.Equal(t, http.StatusOK, code)
	var body alarmResponse
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, alarmResponse{AlarmID: 300001, MedicationID: 3}, body)

	code, _ = do(t, r, http.MethodGet, "/api/v1/alarms/999")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStorageFailure(t *testing.T) {
	r, fake := setup()
	fake.err = apperrors.NewStorage("read scheduled ids", errors.New("connection refused"))

	code, env := do(t, r, http.MethodGet, "/api/v1/medications/3/alarms")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.NotContains(t, env.Message, "connection refused")
}
