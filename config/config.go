package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed cyton.toml
var defaultConfigData []byte

// Global state variables for the selected board
var (
	BoardName  string
	Channels   int
	Daisy      bool
	BaudRate   int
	Timeout    time.Duration
	Settle     time.Duration
	Port       string
	Disabled   []int
	Gain       int
	Timestamps bool
	Debug      bool
	Study      []Task          // study tasks in recording order
	TaskMap    map[string]Task // task name -> task
)

// Config represents the entire TOML configuration structure
type Config struct {
	Default string   `toml:"default"`
	Debug   bool     `toml:"debug"`
	Study   []string `toml:"study"`
	Board   []Board  `toml:"board"`
	Task    []Task   `toml:"task"`
}

// Board represents one board setup
type Board struct {
	Name       string `toml:"name"`
	Channels   int    `toml:"channels"`
	Daisy      bool   `toml:"daisy"`
	Baud       int    `toml:"baud"`
	TimeoutMs  int    `toml:"timeout_ms"`
	SettleMs   int    `toml:"settle_ms"`
	Port       string `toml:"port"`
	Disabled   []int  `toml:"disabled"`
	Gain       int    `toml:"gain"`
	Timestamps bool   `toml:"timestamps"`
}

// Task represents one recording of the study protocol
type Task struct {
	Name  string `toml:"name"`
	Title string `toml:"title"`
	File  string `toml:"file"`
}

// configPath determines the config file path based on the operating system
func configPath() (string, error) {
	var configDir string
	var err error

	switch runtime.GOOS {
	case "windows":
		// Use AppData directory for Windows
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, "cyton")
	default:
		// Linux/macOS: use home directory
		configDir, err = os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine user home directory: %w", err)
		}
	}

	return filepath.Join(configDir, ".cyton"), nil
}

// Path returns the location of the configuration file
func Path() string {
	path, err := configPath()
	if err != nil {
		return "~/.cyton"
	}
	return path
}

// Initialize loads and validates the configuration file.
// If the config file doesn't exist, it creates it from the embedded default.
func Initialize() error {
	configPath, err := configPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Create parent directory if needed (for Windows)
		configDir := filepath.Dir(configPath)
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
		}

		if err := os.WriteFile(configPath, defaultConfigData, 0644); err != nil {
			return fmt.Errorf("failed to create default config file at %s: %w", configPath, err)
		}
	}

	return Load(configPath)
}

// Load parses and validates the given config file,
// then stores the selected board in the global variables.
func Load(path string) error {
	var conf Config
	if _, err := toml.DecodeFile(path, &conf); err != nil {
		return fmt.Errorf("failed to parse TOML config at %s: %w", path, err)
	}
	return apply(&conf)
}

func apply(conf *Config) error {
	if conf.Default == "" {
		return errors.New("`default` key is missing or empty in config")
	}

	// Search board array for matching name
	var found *Board
	for i := range conf.Board {
		if conf.Board[i].Name == conf.Default {
			found = &conf.Board[i]
			break
		}
	}
	if found == nil {
		return fmt.Errorf("default board %q not found in board array", conf.Default)
	}

	if found.Channels <= 0 || found.Channels > 16 {
		return fmt.Errorf("board %q has invalid channels: %d (must be 1-16)", conf.Default, found.Channels)
	}
	if found.Channels > 8 && !found.Daisy {
		return fmt.Errorf("board %q has %d channels but no daisy module", conf.Default, found.Channels)
	}
	if found.Baud <= 0 {
		return fmt.Errorf("board %q has invalid baud: %d (must be positive)", conf.Default, found.Baud)
	}
	if found.TimeoutMs <= 0 {
		return fmt.Errorf("board %q has invalid timeout_ms: %d (must be positive)", conf.Default, found.TimeoutMs)
	}
	if found.SettleMs < 0 {
		return fmt.Errorf("board %q has invalid settle_ms: %d", conf.Default, found.SettleMs)
	}
	for _, ch := range found.Disabled {
		if ch < 1 || ch > found.Channels {
			return fmt.Errorf("board %q disables channel %d which is not in use", conf.Default, ch)
		}
	}

	// Build task map, then verify the study order refers to known tasks
	taskMap := make(map[string]Task)
	for _, task := range conf.Task {
		if task.File == "" {
			return fmt.Errorf("task %q has no file name", task.Name)
		}
		taskMap[task.Name] = task
	}
	study := make([]Task, 0, len(conf.Study))
	for _, name := range conf.Study {
		task, ok := taskMap[name]
		if !ok {
			return fmt.Errorf("study task %q not found in task array", name)
		}
		study = append(study, task)
	}

	BoardName = conf.Default
	Channels = found.Channels
	Daisy = found.Daisy
	BaudRate = found.Baud
	Timeout = time.Duration(found.TimeoutMs) * time.Millisecond
	Settle = time.Duration(found.SettleMs) * time.Millisecond
	Port = found.Port
	Disabled = append([]int(nil), found.Disabled...)
	Gain = found.Gain
	Timestamps = found.Timestamps
	Debug = conf.Debug
	Study = study
	TaskMap = taskMap
	return nil
}

// GetTask returns the study task with the given name.
// Returns an error if the task is not found in the configuration.
func GetTask(name string) (Task, error) {
	task, ok := TaskMap[name]
	if !ok {
		return Task{}, fmt.Errorf("task %q not found in configuration", name)
	}
	return task, nil
}
