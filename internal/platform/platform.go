package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/medalarm/internal/model"
	"github.com/jwalitptl/medalarm/internal/repository"
	"github.com/jwalitptl/medalarm/pkg/logger"
	"github.com/jwalitptl/medalarm/pkg/messaging"
)

// Client is the device alarm platform. ScheduleAlarm and CancelAlarm report
// success or failure only; CancelAlarm on an unknown id is not an error.
type Client interface {
	ScheduleAlarm(ctx context.Context, alarmID int64, payload model.AlarmPayload) error
	CancelAlarm(ctx context.Context, alarmID int64) error
	CheckPermissions(ctx context.Context) (model.Permissions, error)
	OpenAlarmSettings(ctx context.Context) error
}

// PermissionReporter accepts the permission state observed on the device.
type PermissionReporter interface {
	ReportPermissions(ctx context.Context, perms model.Permissions) error
}

// ReportingClient is a Client the device can report permissions to.
type ReportingClient interface {
	Client
	PermissionReporter
}

const (
	DriverBroker   = "broker"
	DriverRecorder = "recorder"
)

type Config struct {
	Driver        string
	Channel       string
	PermissionTTL time.Duration
	MaxFailures   int
	BreakerReset  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Driver:        DriverBroker,
		Channel:       messaging.ChannelAlarmCommands,
		PermissionTTL: 24 * time.Hour,
		MaxFailures:   5,
		BreakerReset:  30 * time.Second,
	}
}

// New builds the client named by cfg.Driver. broker and perms may be nil for
// the recorder driver.
func New(cfg Config, broker messaging.Broker, perms repository.PermissionRepository, log *logger.Logger) (ReportingClient, error) {
	switch cfg.Driver {
	case "", DriverBroker:
		if broker == nil {
			return nil, fmt.Errorf("platform driver %q requires a broker", DriverBroker)
		}
		return NewBrokerClient(broker, perms, cfg, log), nil
	case DriverRecorder:
		return NewRecorder(), nil
	default:
		return nil, fmt.Errorf("unknown platform driver %q", cfg.Driver)
	}
}
