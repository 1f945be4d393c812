package silence

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/medalarm/internal/middleware"
	"github.com/jwalitptl/medalarm/internal/model"
	redisrepo "github.com/jwalitptl/medalarm/internal/repository/redis"
	"github.com/jwalitptl/medalarm/internal/service/alarm"
	silenceService "github.com/jwalitptl/medalarm/internal/service/silence"
	"github.com/jwalitptl/medalarm/pkg/logger"
	"github.com/jwalitptl/medalarm/pkg/metrics"
)

type rescheduleSpy struct {
	calls []int64
}

func (s *rescheduleSpy) RescheduleMedication(ctx context.Context, medicationID int64) (*alarm.Result, error) {
	s.calls = append(s.calls, medicationID)
	return &alarm.Result{MedicationID: medicationID}, nil
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func setup(t *testing.T) (*gin.Engine, *rescheduleSpy) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	repo := redisrepo.NewSilenceRepository(redisrepo.NewStore(client, "medalarm:", metrics.New("test")))
	spy := &rescheduleSpy{}
	svc := silenceService.NewService(repo, spy, logger.Nop())

	r := gin.New()
	r.Use(middleware.ErrorHandler(logger.Nop()))
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))
	return r, spy
}

func do(t *testing.T, r *gin.Engine, method, path string) (int, envelope) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w.Code, env
}

func state(t *testing.T, env envelope) model.SilenceState {
	var resp changeResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.NotNil(t, resp.State)
	require.NotNil(t, resp.Reschedule)
	return *resp.State
}

func TestSilenceMedication(t *testing.T) {
	r, spy := setup(t)

	code, env := do(t, r, http.MethodPost, "/api/v1/medications/3/silence")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, state(t, env).Silenced)

	code, env = do(t, r, http.MethodDelete, "/api/v1/medications/3/silence")
	require.Equal(t, http.StatusOK, code)
	assert.False(t, state(t, env).Silenced)

	assert.Equal(t, []int64{3, 3}, spy.calls)
}

func TestSilenceSlot(t *testing.T) {
	r, spy := setup(t)

	code, env := do(t, r, http.MethodPost, "/api/v1/medications/3/silence/slots/8:00")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"08:00"}, state(t, env).Slots)

	code, env = do(t, r, http.MethodGet, "/api/v1/medications/3/silence")
	require.Equal(t, http.StatusOK, code)
	var current model.SilenceState
	require.NoError(t, json.Unmarshal(env.Data, &current))
	assert.Equal(t, model.SilenceState{MedicationID: 3, Silenced: false, Slots: []string{"08:00"}}, current)

	code, env = do(t, r, http.MethodDelete, "/api/v1/medications/3/silence/slots/08:00")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, state(t, env).Slots)

	assert.Equal(t, []int64{3, 3}, spy.calls)
}

func TestSilenceSlot_Invalid(t *testing.T) {
	r, spy := setup(t)

	code, env := do(t, r, http.MethodPost, "/api/v1/medications/3/silence/slots/25:00")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "error", env.Status)
	assert.Contains(t, env.Message, "invalid slot")
	assert.Empty(t, spy.calls)
}

func TestGetState_Empty(t *testing.T) {
	r, _ := setup(t)

	code, env := do(t, r, http.MethodGet, "/api/v1/medications/7/silence")
	require.Equal(t, http.StatusOK, code)
	var current model.SilenceState
	require.NoError(t, json.Unmarshal(env.Data, &current))
	assert.Equal(t, model.SilenceState{MedicationID: 7, Slots: []string{}}, current)
}
