package platform

import (
	"context"
	"sync"

	"github.com/jwalitptl/medalarm/internal/model"
)

// Call is one recorded platform invocation.
type Call struct {
	Action  string
	AlarmID int64
	Payload model.AlarmPayload
}

// Recorder is an in-process Client. It keeps the set of alarms that would be
// pending on a device and the ordered list of calls made.
type Recorder struct {
	mu       sync.Mutex
	calls    []Call
	pending  map[int64]model.AlarmPayload
	perms    model.Permissions
	failures map[int64]error
}

func NewRecorder() *Recorder {
	return &Recorder{
		pending:  make(map[int64]model.AlarmPayload),
		perms:    model.Permissions{CanScheduleExactAlarms: true},
		failures: make(map[int64]error),
	}
}

// FailSchedule makes ScheduleAlarm return err for alarmID.
func (r *Recorder) FailSchedule(alarmID int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[alarmID] = err
}

func (r *Recorder) ScheduleAlarm(ctx context.Context, alarmID int64, payload model.AlarmPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, Call{Action: ActionSchedule, AlarmID: alarmID, Payload: payload})
	if err, ok := r.failures[alarmID]; ok {
		return err
	}
	r.pending[alarmID] = payload
	return nil
}

func (r *Recorder) CancelAlarm(ctx context.Context, alarmID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, Call{Action: ActionCancel, AlarmID: alarmID})
	delete(r.pending, alarmID)
	return nil
}

func (r *Recorder) CheckPermissions(ctx context.Context) (model.Permissions, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.perms, nil
}

func (r *Recorder) ReportPermissions(ctx context.Context, perms model.Permissions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.perms = perms
	return nil
}

func (r *Recorder) OpenAlarmSettings(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Action: ActionOpenSettings})
	return nil
}

// Calls returns a copy of the recorded calls in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Reset forgets recorded calls but keeps pending alarms.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// Pending reports whether alarmID is scheduled and not cancelled.
func (r *Recorder) Pending(alarmID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[alarmID]
	return ok
}

func (r *Recorder) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
