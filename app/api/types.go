package api

import (
	"time"

	"github.com/lysyi3m/guideline-hub/app/database"
	"github.com/lysyi3m/guideline-hub/app/source"
	"github.com/lysyi3m/guideline-hub/app/tasks"
)

const (
	recentWindow    = 30 * 24 * time.Hour
	defaultRunLimit = 10
	maxRunLimit     = 100
)

type ConfigLister interface {
	GetEnabledConfigs() []*source.Config
}

// SchedulerInterface is the part of the scheduler the API needs.
type SchedulerInterface interface {
	Trigger(reason string) bool
	State() tasks.State
	Interval() time.Duration
}

var _ SchedulerInterface = (*tasks.Scheduler)(nil)

type Handler struct {
	guidelines  database.GuidelineReader
	runs        database.RunRepository
	configCache ConfigLister
	scheduler   SchedulerInterface
	location    *time.Location
	now         func() time.Time
}
