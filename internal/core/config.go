package core

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/valter-silva-au/taskdeck/pkg/models"
)

// ConfigFileName is the per-project configuration file taskdeck looks for.
const ConfigFileName = ".deckconfig"

// ConfigurationManager loads and writes the .deckconfig file.
type ConfigurationManager interface {
	Load() (*models.GlobalConfig, error)
	WriteDefault() error
}

// viperConfigManager implements ConfigurationManager using Viper for
// reading the YAML configuration file.
type viperConfigManager struct {
	basePath string
}

// NewConfigurationManager creates a ConfigurationManager that reads
// .deckconfig from basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultConfig returns a GlobalConfig populated with sensible defaults.
func DefaultConfig() *models.GlobalConfig {
	return &models.GlobalConfig{
		TaskDir:    "tasks",
		ControlDir: "control",
		Logging: models.LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Scheduler: models.SchedulerConfig{
			Pool: "analysed",
		},
		Alerts: models.AlertConfig{
			StaleHeartbeatMinutes: 10,
			StaleInProgressDays:   3,
			MaxBlocked:            10,
		},
	}
}

// Load reads .deckconfig from the base path. A missing file yields defaults.
func (cm *viperConfigManager) Load() (*models.GlobalConfig, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)

	v.SetDefault("task_dir", cfg.TaskDir)
	v.SetDefault("control_dir", cfg.ControlDir)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("scheduler.pool", cfg.Scheduler.Pool)
	v.SetDefault("alerts.stale_heartbeat_minutes", cfg.Alerts.StaleHeartbeatMinutes)
	v.SetDefault("alerts.stale_in_progress_days", cfg.Alerts.StaleInProgressDays)
	v.SetDefault("alerts.max_blocked", cfg.Alerts.MaxBlocked)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
	}

	cfg.TaskDir = v.GetString("task_dir")
	cfg.ControlDir = v.GetString("control_dir")
	cfg.Logging.Level = v.GetString("logging.level")
	cfg.Logging.Format = v.GetString("logging.format")
	cfg.Scheduler.Pool = v.GetString("scheduler.pool")
	cfg.Alerts.StaleHeartbeatMinutes = v.GetInt("alerts.stale_heartbeat_minutes")
	cfg.Alerts.StaleInProgressDays = v.GetInt("alerts.stale_in_progress_days")
	cfg.Alerts.MaxBlocked = v.GetInt("alerts.max_blocked")

	return cfg, nil
}

// WriteDefault renders the default configuration to .deckconfig. Existing
// files are left untouched.
func (cm *viperConfigManager) WriteDefault() error {
	path := filepath.Join(cm.basePath, ConfigFileName)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshalling default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", ConfigFileName, err)
	}
	return nil
}

// ResolveDir resolves a configured directory against the base path when it
// is not absolute.
func ResolveDir(basePath, dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(basePath, dir)
}
