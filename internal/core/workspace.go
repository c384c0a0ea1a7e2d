package core

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/valter-silva-au/taskdeck/pkg/models"
)

// InitResult reports what a workspace initialization touched.
type InitResult struct {
	Created []string
	Skipped []string
}

// ProjectInitializer scaffolds a taskdeck workspace.
type ProjectInitializer interface {
	Init(basePath string) (*InitResult, error)
}

type projectInitializer struct {
	configs func(basePath string) ConfigurationManager
}

// NewProjectInitializer creates a ProjectInitializer that writes the
// default .deckconfig and the directory layout it describes.
func NewProjectInitializer() ProjectInitializer {
	return &projectInitializer{configs: NewConfigurationManager}
}

// Init creates the status directories, the control directory, and a default
// .deckconfig under basePath. Existing files and directories are skipped.
func (pi *projectInitializer) Init(basePath string) (*InitResult, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace root: %w", err)
	}

	result := &InitResult{}

	configPath := filepath.Join(basePath, ConfigFileName)
	if _, err := os.Stat(configPath); err == nil {
		result.Skipped = append(result.Skipped, configPath)
	} else {
		if err := pi.configs(basePath).WriteDefault(); err != nil {
			return nil, err
		}
		result.Created = append(result.Created, configPath)
	}

	cfg, err := pi.configs(basePath).Load()
	if err != nil {
		return nil, err
	}

	taskDir := ResolveDir(basePath, cfg.TaskDir)
	var dirs []string
	for _, status := range models.Statuses {
		dirs = append(dirs, filepath.Join(taskDir, string(status)))
	}
	dirs = append(dirs,
		filepath.Join(ResolveDir(basePath, cfg.ControlDir), "processes"),
	)

	for _, dir := range dirs {
		if _, err := os.Stat(dir); err == nil {
			result.Skipped = append(result.Skipped, dir)
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
		result.Created = append(result.Created, dir)
	}

	return result, nil
}
