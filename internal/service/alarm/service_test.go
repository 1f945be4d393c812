package alarm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/medalarm/internal/model"
	"github.com/jwalitptl/medalarm/internal/platform"
	"github.com/jwalitptl/medalarm/internal/repository"
	redisrepo "github.com/jwalitptl/medalarm/internal/repository/redis"
	"github.com/jwalitptl/medalarm/internal/schedule"
	apperrors "github.com/jwalitptl/medalarm/pkg/errors"
	"github.com/jwalitptl/medalarm/pkg/keylock"
	"github.com/jwalitptl/medalarm/pkg/logger"
	"github.com/jwalitptl/medalarm/pkg/metrics"
)

var scenarioNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type env struct {
	mr       *miniredis.Miniredis
	client   *goredis.Client
	mappings repository.MappingRepository
	silence  repository.SilenceRepository
	prefs    repository.PreferenceRepository
	platform *platform.Recorder
	svc      *Service
}

func newEnv(t *testing.T) *env {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	m := metrics.New("test")
	store := redisrepo.NewStore(client, "medalarm:", m)
	e := &env{
		mr:       mr,
		client:   client,
		mappings: redisrepo.NewMappingRepository(store),
		silence:  redisrepo.NewSilenceRepository(store),
		prefs:    redisrepo.NewPreferenceRepository(store),
		platform: platform.NewRecorder(),
	}
	gen := schedule.NewGenerator(e.silence, logger.Nop(),
		schedule.WithClock(func() time.Time { return scenarioNow }),
		schedule.WithLocation(time.UTC))
	e.svc = NewService(e.mappings, e.silence, e.prefs, gen, e.platform, m, logger.Nop(), Config{})
	return e
}

func medication(id int64) *model.Medication {
	return &model.Medication{
		ID:                    id,
		Name:                  "Amoxicillin",
		Dosage:                "500",
		Unit:                  "mg",
		StartDate:             "2024-01-01",
		StartTime:             "08:00",
		IntervalHours:         8,
		TreatmentDurationDays: 2,
		Active:                true,
	}
}

func actions(calls []platform.Call) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Action
	}
	return out
}

func TestReschedule_Scenario(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	result, err := e.svc.Reschedule(ctx, medication(3))
	require.NoError(t, err)

	want := []int64{300000, 300001, 300002, 300003, 300004}
	assert.Equal(t, want, result.Scheduled)
	assert.Empty(t, result.Cancelled)

	stored, err := e.mappings.GetScheduledIDs(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, want, stored)

	for _, id := range want {
		medID, err := e.svc.LookupMedication(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(3), medID)
		assert.True(t, e.platform.Pending(id))
	}
}

func TestReschedule_Idempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.Reschedule(ctx, medication(3))
	require.NoError(t, err)
	first, err := e.mappings.GetScheduledIDs(ctx, 3)
	require.NoError(t, err)

	e.platform.Reset()
	_, err = e.svc.Reschedule(ctx, medication(3))
	require.NoError(t, err)
	second, err := e.mappings.GetScheduledIDs(ctx, 3)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 5, e.platform.PendingCount())

	// one cancel per previous id, all before the first schedule
	calls := e.platform.Calls()
	require.Len(t, calls, 10)
	for i, c := range calls[:5] {
		assert.Equal(t, platform.ActionCancel, c.Action)
		assert.Equal(t, first[i], c.AlarmID)
	}
	for _, c := range calls[5:] {
		assert.Equal(t, platform.ActionSchedule, c.Action)
	}
}

func TestReschedule_PlatformFailureExcludesDose(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.platform.FailSchedule(300001, errors.New("exact alarm denied"))

	result, err := e.svc.Reschedule(ctx, medication(3))
	require.NoError(t, err)

	assert.Equal(t, []int64{300001}, result.Failed)
	assert.Equal(t, []int64{300000, 300002, 300003, 300004}, result.Scheduled)

	stored, err := e.mappings.GetScheduledIDs(ctx, 3)
	require.NoError(t, err)
	assert.NotContains(t, stored, int64(300001))

	// the mapping was written before the platform call
	medID, err := e.svc.LookupMedication(ctx, 300001)
	require.NoError(t, err)
	assert.Equal(t, int64(3), medID)
}

type mappingWatcher struct {
	*platform.Recorder
	mappings repository.MappingRepository
	missing  []int64
}

func (p *mappingWatcher) ScheduleAlarm(ctx context.Context, alarmID int64, payload model.AlarmPayload) error {
	if _, err := p.mappings.LookupMedicationID(ctx, alarmID); err != nil {
		p.missing = append(p.missing, alarmID)
	}
	return p.Recorder.ScheduleAlarm(ctx, alarmID, payload)
}

func TestReschedule_MappingBeforeSubmit(t *testing.T) {
	e := newEnv(t)
	watcher := &mappingWatcher{Recorder: e.platform, mappings: e.mappings}
	gen := schedule.NewGenerator(e.silence, logger.Nop(),
		schedule.WithClock(func() time.Time { return scenarioNow }),
		schedule.WithLocation(time.UTC))
	svc := NewService(e.mappings, e.silence, e.prefs, gen, watcher, metrics.New("test"), logger.Nop(), Config{})

	_, err := svc.Reschedule(context.Background(), medication(3))
	require.NoError(t, err)
	assert.Empty(t, watcher.missing)
	assert.Equal(t, 5, e.platform.PendingCount())
}

func TestReschedule_SilencedCancelsAndStops(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.Reschedule(ctx, medication(3))
	require.NoError(t, err)
	require.NoError(t, e.silence.SilenceMedication(ctx, 3))

	e.platform.Reset()
	result, err := e.svc.Reschedule(ctx, medication(3))
	require.NoError(t, err)

	assert.Equal(t, SkipSilenced, result.Skipped)
	assert.Len(t, result.Cancelled, 5)
	assert.Equal(t, 0, e.platform.PendingCount())
	for _, a := range actions(e.platform.Calls()) {
		assert.Equal(t, platform.ActionCancel, a)
	}

	stored, err := e.mappings.GetScheduledIDs(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, stored)

	_, err = e.svc.LookupMedication(ctx, 300000)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestReschedule_InactiveCancelsAndStops(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.Reschedule(ctx, medication(3))
	require.NoError(t, err)

	med := medication(3)
	med.Active = false
	result, err := e.svc.Reschedule(ctx, med)
	require.NoError(t, err)
	assert.Equal(t, SkipInactive, result.Skipped)
	assert.Equal(t, 0, e.platform.PendingCount())
}

func TestReschedule_NoDoses(t *testing.T) {
	e := newEnv(t)
	med := medication(3)
	med.IntervalHours = 0

	result, err := e.svc.Reschedule(context.Background(), med)
	require.NoError(t, err)
	assert.Equal(t, SkipNoDoses, result.Skipped)
	assert.Empty(t, e.platform.Calls())
}

func TestReschedule_StorageFailureSurfaces(t *testing.T) {
	e := newEnv(t)
	e.mr.SetError("READONLY You can't write against a read only replica.")

	_, err := e.svc.Reschedule(context.Background(), medication(3))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrStorage))
	assert.Empty(t, e.platform.Calls())
}

func TestReschedule_UsesStoredPreferences(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.prefs.Save(ctx, model.Preferences{ToneID: 2, Volume: 15}))

	_, err := e.svc.Reschedule(ctx, medication(3))
	require.NoError(t, err)

	calls := e.platform.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, 2, calls[0].Payload.ToneID)
	assert.Equal(t, 15, calls[0].Payload.Volume)
	assert.False(t, calls[0].Payload.Sound)
}

func TestCancel(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.Reschedule(ctx, medication(3))
	require.NoError(t, err)

	result, err := e.svc.Cancel(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, result.Cancelled, 5)

	ids, err := e.svc.ScheduledIDs(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, 0, e.platform.PendingCount())

	// nothing left to cancel
	result, err = e.svc.Cancel(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, result.Cancelled)
}

func TestLookupMedication_Unknown(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.LookupMedication(context.Background(), 12345)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestReschedule_NilMedication(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.Reschedule(context.Background(), nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}

func TestReschedule_SerializedPerMedication(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			_, err := e.svc.Reschedule(ctx, medication(3))
			done <- err
		}()
	}
	for i := 0; i < 4; i++ {
		require.NoError(t, <-done)
	}

	stored, err := e.mappings.GetScheduledIDs(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{300000, 300001, 300002, 300003, 300004}, stored)
	assert.Equal(t, 5, e.platform.PendingCount())
}

// gatedPlatform holds the first ScheduleAlarm until release is closed.
type gatedPlatform struct {
	*platform.Recorder
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedPlatform) ScheduleAlarm(ctx context.Context, alarmID int64, payload model.AlarmPayload) error {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.Recorder.ScheduleAlarm(ctx, alarmID, payload)
}

// process builds a lifecycle service as a separate binary would: its own
// generator, limiter and lock client over the shared Redis and device.
func (e *env) process(t *testing.T, client platform.Client) *Service {
	rc := goredis.NewClient(&goredis.Options{Addr: e.mr.Addr()})
	t.Cleanup(func() { rc.Close() })
	gen := schedule.NewGenerator(e.silence, logger.Nop(),
		schedule.WithClock(func() time.Time { return scenarioNow }),
		schedule.WithLocation(time.UTC))
	return NewService(e.mappings, e.silence, e.prefs, gen, client, metrics.New("test"), logger.Nop(), Config{
		Locker: keylock.NewRedisLocker(rc, keylock.RedisConfig{
			Prefix:        "medalarm:lock:medication:",
			RetryInterval: 5 * time.Millisecond,
		}),
	})
}

func TestReschedule_SerializedAcrossProcesses(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	gated := &gatedPlatform{
		Recorder: e.platform,
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	api := e.process(t, gated)
	worker := e.process(t, e.platform)

	apiDone := make(chan error, 1)
	go func() {
		_, err := api.Reschedule(ctx, medication(3))
		apiDone <- err
	}()
	<-gated.entered

	changed := medication(3)
	changed.IntervalHours = 4
	workerDone := make(chan error, 1)
	go func() {
		_, err := worker.Reschedule(ctx, changed)
		workerDone <- err
	}()

	select {
	case <-workerDone:
		t.Fatal("second process rescheduled while the first was committing")
	case <-time.After(100 * time.Millisecond):
	}

	close(gated.release)
	require.NoError(t, <-apiDone)
	require.NoError(t, <-workerDone)

	stored, err := e.mappings.GetScheduledIDs(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, stored, 10)
	assert.Equal(t, 10, e.platform.PendingCount())
	for _, id := range stored {
		assert.True(t, e.platform.Pending(id))
	}

	require.NoError(t, e.silence.SilenceMedication(ctx, 3))
	_, err = api.Reschedule(ctx, changed)
	require.NoError(t, err)
	assert.Equal(t, 0, e.platform.PendingCount())
	assert.False(t, e.mr.Exists("medalarm:lock:medication:3"))
}

func TestReschedule_LockFailureIsStorageError(t *testing.T) {
	e := newEnv(t)
	svc := e.process(t, e.platform)
	e.mr.SetError("LOADING")

	_, err := svc.Reschedule(context.Background(), medication(3))
	assert.True(t, apperrors.Is(err, apperrors.ErrStorage))
	assert.Empty(t, e.platform.Calls())
}

type countingSilence struct {
	repository.SilenceRepository
	mu    sync.Mutex
	reads int
}

func (c *countingSilence) IsMedicationSilenced(ctx context.Context, medicationID int64) (bool, error) {
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
	return c.SilenceRepository.IsMedicationSilenced(ctx, medicationID)
}

func TestReschedule_ReadsMedicationSilenceOnce(t *testing.T) {
	e := newEnv(t)
	counting := &countingSilence{SilenceRepository: e.silence}
	gen := schedule.NewGenerator(counting, logger.Nop(),
		schedule.WithClock(func() time.Time { return scenarioNow }),
		schedule.WithLocation(time.UTC))
	svc := NewService(e.mappings, counting, e.prefs, gen, e.platform, metrics.New("test"), logger.Nop(), Config{})

	result, err := svc.Reschedule(context.Background(), medication(3))
	require.NoError(t, err)
	assert.Len(t, result.Scheduled, 5)
	assert.Equal(t, 1, counting.reads)
}
