// Package cli implements the tdk command tree. Service dependencies are
// wired in by the internal.NewApp constructor before Execute runs.
package cli

import (
	"github.com/valter-silva-au/taskdeck/internal/core"
	"github.com/valter-silva-au/taskdeck/internal/dispatch"
	"github.com/valter-silva-au/taskdeck/internal/observability"
	"github.com/valter-silva-au/taskdeck/internal/storage"
)

// Package-level service dependencies, wired by internal.NewApp.
var (
	BasePath string

	Tasks      core.TaskService
	TaskStore  storage.TaskStore
	Steering   *core.SteeringService
	Scheduler  core.Pool
	Dispatcher *dispatch.Dispatcher
	Repairer   *core.DependencyRepairer

	EventLog    observability.EventLog
	MetricsCalc observability.MetricsCalculator
	AlertEngine observability.AlertEngine
)
