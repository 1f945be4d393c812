package silence

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/medalarm/internal/repository"
	redisrepo "github.com/jwalitptl/medalarm/internal/repository/redis"
	"github.com/jwalitptl/medalarm/internal/service/alarm"
	apperrors "github.com/jwalitptl/medalarm/pkg/errors"
	"github.com/jwalitptl/medalarm/pkg/logger"
	"github.com/jwalitptl/medalarm/pkg/metrics"
)

type rescheduleSpy struct {
	repo     repository.SilenceRepository
	calls    []int64
	silenced []bool
}

func (r *rescheduleSpy) RescheduleMedication(ctx context.Context, medicationID int64) (*alarm.Result, error) {
	silenced, err := r.repo.IsMedicationSilenced(ctx, medicationID)
	if err != nil {
		return nil, err
	}
	r.calls = append(r.calls, medicationID)
	r.silenced = append(r.silenced, silenced)
	return &alarm.Result{MedicationID: medicationID}, nil
}

func setup(t *testing.T) (*miniredis.Miniredis, *Service, *rescheduleSpy) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	repo := redisrepo.NewSilenceRepository(redisrepo.NewStore(client, "medalarm:", metrics.New("test")))
	spy := &rescheduleSpy{repo: repo}
	return mr, NewService(repo, spy, logger.Nop()), spy
}

func TestSilenceMedication_ReschedulesAfterWrite(t *testing.T) {
	_, svc, spy := setup(t)
	ctx := context.Background()

	_, err := svc.SilenceMedication(ctx, 3)
	require.NoError(t, err)
	_, err = svc.UnsilenceMedication(ctx, 3)
	require.NoError(t, err)

	assert.Equal(t, []int64{3, 3}, spy.calls)
	// the reschedule saw the state it was triggered by
	assert.Equal(t, []bool{true, false}, spy.silenced)
}

func TestSilenceSlot_Normalizes(t *testing.T) {
	_, svc, spy := setup(t)
	ctx := context.Background()

	_, err := svc.SilenceSlot(ctx, 3, "8:00")
	require.NoError(t, err)

	state, err := svc.State(ctx, 3)
	require.NoError(t, err)
	assert.False(t, state.Silenced)
	assert.Equal(t, []string{"08:00"}, state.Slots)

	_, err = svc.UnsilenceSlot(ctx, 3, "08:00")
	require.NoError(t, err)
	state, err = svc.State(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, state.Slots)
	assert.Len(t, spy.calls, 2)
}

func TestSilenceSlot_Invalid(t *testing.T) {
	_, svc, spy := setup(t)

	for _, slot := range []string{"", "24:00", "08:60", "8am", "08:00:00"} {
		_, err := svc.SilenceSlot(context.Background(), 3, slot)
		assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest), slot)
	}
	assert.Empty(t, spy.calls)
}

func TestSilence_StorageFailure(t *testing.T) {
	mr, svc, spy := setup(t)
	mr.SetError("READONLY")

	_, err := svc.SilenceMedication(context.Background(), 3)
	assert.True(t, apperrors.Is(err, apperrors.ErrStorage))
	_, err = svc.State(context.Background(), 3)
	assert.True(t, apperrors.Is(err, apperrors.ErrStorage))
	assert.Empty(t, spy.calls)
}

func TestSilencedMedications(t *testing.T) {
	_, svc, _ := setup(t)
	ctx := context.Background()

	_, err := svc.SilenceMedication(ctx, 9)
	require.NoError(t, err)
	_, err = svc.SilenceMedication(ctx, 2)
	require.NoError(t, err)

	ids, err := svc.SilencedMedications(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 9}, ids)
}
