package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/medalarm/internal/model"
	"github.com/jwalitptl/medalarm/internal/repository"
	"github.com/jwalitptl/medalarm/pkg/circuitbreaker"
	"github.com/jwalitptl/medalarm/pkg/logger"
	"github.com/jwalitptl/medalarm/pkg/messaging"
)

const (
	ActionSchedule     = "schedule"
	ActionCancel       = "cancel"
	ActionOpenSettings = "open_settings"
)

// Command is what the device-facing layer receives on the command channel.
type Command struct {
	Action   string              `json:"action"`
	AlarmID  int64               `json:"alarm_id,omitempty"`
	Payload  *model.AlarmPayload `json:"payload,omitempty"`
	IssuedAt time.Time           `json:"issued_at"`
}

// BrokerClient forwards platform calls to the device over a message broker.
// Delivery is fire-and-forget: a nil error means the command was published.
type BrokerClient struct {
	broker  messaging.Broker
	channel string
	cb      *circuitbreaker.CircuitBreaker
	perms   repository.PermissionRepository
	ttl     time.Duration
	logger  *logger.Logger
	now     func() time.Time
}

// NewBrokerClient publishes on cfg.Channel. Permission reports go to perms so
// every process sharing it sees them; nil keeps them in this process.
func NewBrokerClient(broker messaging.Broker, perms repository.PermissionRepository, cfg Config, log *logger.Logger) *BrokerClient {
	if cfg.Channel == "" {
		cfg.Channel = messaging.ChannelAlarmCommands
	}
	if cfg.PermissionTTL <= 0 {
		cfg.PermissionTTL = DefaultConfig().PermissionTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	if perms == nil {
		perms = NewMemoryPermissions()
	}
	return &BrokerClient{
		broker:  broker,
		channel: cfg.Channel,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "alarm-platform",
			MaxFailures: cfg.MaxFailures,
			Timeout:     cfg.BreakerReset,
		}),
		perms:  perms,
		ttl:    cfg.PermissionTTL,
		logger: log,
		now:    time.Now,
	}
}

func (c *BrokerClient) ScheduleAlarm(ctx context.Context, alarmID int64, payload model.AlarmPayload) error {
	return c.send(ctx, Command{Action: ActionSchedule, AlarmID: alarmID, Payload: &payload})
}

func (c *BrokerClient) CancelAlarm(ctx context.Context, alarmID int64) error {
	return c.send(ctx, Command{Action: ActionCancel, AlarmID: alarmID})
}

func (c *BrokerClient) OpenAlarmSettings(ctx context.Context) error {
	return c.send(ctx, Command{Action: ActionOpenSettings})
}

// CheckPermissions returns the last report from the device. Until the device
// has reported, or after the report expires, exact alarms are assumed allowed.
func (c *BrokerClient) CheckPermissions(ctx context.Context) (model.Permissions, error) {
	perms, found, err := c.perms.GetPermissions(ctx)
	if err != nil {
		return model.Permissions{}, err
	}
	if !found {
		return model.Permissions{CanScheduleExactAlarms: true}, nil
	}
	return perms, nil
}

func (c *BrokerClient) ReportPermissions(ctx context.Context, perms model.Permissions) error {
	if perms.ReportedAt.IsZero() {
		perms.ReportedAt = c.now()
	}
	if err := c.perms.SavePermissions(ctx, perms, c.ttl); err != nil {
		return err
	}
	if !perms.CanScheduleExactAlarms {
		c.logger.Warn("device reports exact alarms are not permitted")
	}
	return nil
}

func (c *BrokerClient) send(ctx context.Context, cmd Command) error {
	cmd.IssuedAt = c.now()
	err := c.cb.Execute(func() error {
		return c.broker.Publish(ctx, c.channel, messaging.Message{Type: cmd.Action, Payload: cmd})
	})
	if err != nil {
		return fmt.Errorf("failed to send %s command for alarm %d: %w", cmd.Action, cmd.AlarmID, err)
	}
	return nil
}
