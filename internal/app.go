// Package internal provides the App struct that wires all components of
// taskdeck together and initializes the CLI layer.
package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/valter-silva-au/taskdeck/internal/cli"
	"github.com/valter-silva-au/taskdeck/internal/core"
	"github.com/valter-silva-au/taskdeck/internal/dispatch"
	"github.com/valter-silva-au/taskdeck/internal/logging"
	"github.com/valter-silva-au/taskdeck/internal/observability"
	"github.com/valter-silva-au/taskdeck/internal/storage"
)

// App holds all service dependencies for taskdeck.
type App struct {
	BasePath string

	// Configuration
	ConfigMgr core.ConfigurationManager

	// Storage layer
	TaskStore     storage.TaskStore
	SteeringStore storage.SteeringStore

	// Core services
	Tasks       core.TaskService
	Steering    *core.SteeringService
	Repairer    *core.DependencyRepairer
	ProjectInit core.ProjectInitializer

	// Tool surface
	Dispatcher *dispatch.Dispatcher

	// Observability
	EventLog    observability.EventLog
	MetricsCalc observability.MetricsCalculator
	AlertEngine observability.AlertEngine
}

// NewApp creates and wires all components of taskdeck. basePath is the
// directory containing .deckconfig (or where one would be created).
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	// --- Logging ---
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	// --- Storage layer ---
	taskDir := core.ResolveDir(basePath, cfg.TaskDir)
	app.TaskStore, err = storage.NewTaskStore(taskDir)
	if err != nil {
		return nil, fmt.Errorf("opening task store: %w", err)
	}

	controlDir := core.ResolveDir(basePath, cfg.ControlDir)
	app.SteeringStore, err = storage.NewSteeringStore(controlDir)
	if err != nil {
		return nil, fmt.Errorf("opening steering store: %w", err)
	}

	// --- Observability ---
	eventLogPath := filepath.Join(basePath, ".deck_events.jsonl")
	app.EventLog, err = observability.NewJSONLEventLog(eventLogPath)
	if err != nil {
		// Non-fatal: run without the event log if it can't be created.
		app.EventLog = nil
	}

	thresholds := observability.DefaultAlertThresholds()
	if cfg.Alerts.StaleHeartbeatMinutes > 0 {
		thresholds.StaleHeartbeat = time.Duration(cfg.Alerts.StaleHeartbeatMinutes) * time.Minute
	}
	if cfg.Alerts.StaleInProgressDays > 0 {
		thresholds.StaleInProgress = time.Duration(cfg.Alerts.StaleInProgressDays) * 24 * time.Hour
	}
	if cfg.Alerts.MaxBlocked > 0 {
		thresholds.MaxBlocked = cfg.Alerts.MaxBlocked
	}
	app.AlertEngine = observability.NewAlertEngine(app.TaskStore, app.SteeringStore, thresholds)
	if app.EventLog != nil {
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}

	// --- Core services ---
	var events core.EventLogger
	if app.EventLog != nil {
		events = &eventLogAdapter{log: app.EventLog}
	}
	app.Tasks = core.NewTaskService(app.TaskStore, events)
	app.Steering = core.NewSteeringService(app.SteeringStore, events)
	app.Repairer = core.NewDependencyRepairer(app.TaskStore)
	app.ProjectInit = core.NewProjectInitializer()

	// --- Tool surface ---
	app.Dispatcher = dispatch.NewDispatcher("taskdeck")
	dispatch.RegisterTaskTools(app.Dispatcher, app.Tasks)
	dispatch.RegisterSteeringTools(app.Dispatcher, app.Steering)

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.Tasks = app.Tasks
	cli.TaskStore = app.TaskStore
	cli.Steering = app.Steering
	cli.Scheduler = core.Pool(cfg.Scheduler.Pool)
	cli.Dispatcher = app.Dispatcher
	cli.Repairer = app.Repairer
	cli.ProjectInit = app.ProjectInit

	cli.EventLog = app.EventLog
	cli.MetricsCalc = app.MetricsCalc
	cli.AlertEngine = app.AlertEngine

	return app, nil
}

// Close releases resources held by the App, such as the event log file
// handle. Safe to call when the event log is disabled.
func (a *App) Close() error {
	if a.EventLog != nil {
		return a.EventLog.Close()
	}
	return nil
}

// ResolveBasePath determines the base path for the taskdeck workspace. It
// checks the TDK_HOME env var, then walks up from the current directory
// looking for .deckconfig, and finally falls back to the current directory.
func ResolveBasePath() string {
	if home := os.Getenv("TDK_HOME"); home != "" {
		return home
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, core.ConfigFileName)); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	cwd, _ := os.Getwd()
	return cwd
}

// eventLogAdapter adapts observability.EventLog to core.EventLogger.
type eventLogAdapter struct {
	log observability.EventLog
}

func (a *eventLogAdapter) LogEvent(eventType string, data map[string]any) error {
	return a.log.Write(observability.Event{
		Time: time.Now().UTC(),
		Type: eventType,
		Data: data,
	})
}
