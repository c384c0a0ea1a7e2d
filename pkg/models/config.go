package models

// GlobalConfig is the merged configuration loaded from .deckconfig.
type GlobalConfig struct {
	// TaskDir and ControlDir are resolved relative to the base path when not
	// absolute.
	TaskDir    string `yaml:"task_dir"`
	ControlDir string `yaml:"control_dir"`

	Logging   LoggingConfig   `yaml:"logging"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Alerts    AlertConfig     `yaml:"alerts"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
}

// SchedulerConfig controls task selection defaults.
type SchedulerConfig struct {
	// Pool is the default candidate pool for get-next: "analysed" or "todo".
	Pool string `yaml:"pool"`
}

// AlertConfig holds thresholds for the alert engine.
type AlertConfig struct {
	StaleHeartbeatMinutes int `yaml:"stale_heartbeat_minutes"`
	StaleInProgressDays   int `yaml:"stale_in_progress_days"`
	MaxBlocked            int `yaml:"max_blocked"`
}
