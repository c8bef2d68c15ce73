// Package config handles configuration loading, validation, and persistence
// for the rallyd race server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultAPIPort    = 23555
	DefaultDataPort   = 23556

	// DefaultLoginSecret is the shared password every player presents.
	DefaultLoginSecret = "simrallycn"
)

// Config is the root configuration structure for rallyd.
type Config struct {
	mu   sync.RWMutex
	path string

	Server ServerData `json:"server"`
	Game   GameData   `json:"game"`
	App    AppData    `json:"application"`
}

// ServerData contains the listener configuration.
type ServerData struct {
	BindAddress string `json:"bind_address"`
	APIPort     int    `json:"api_port"`
	DataPort    int    `json:"data_port"`
}

// GameData contains race engine configuration.
type GameData struct {
	// LoginSecret is the shared login password.
	LoginSecret string `json:"login_secret"`

	// DataDirectory holds the stage/car/weather catalog JSON files.
	DataDirectory string `json:"data_directory"`

	// RoomCapacity is the seat limit of player-created rooms.
	RoomCapacity int `json:"room_capacity"`

	// DailyPeriodSec is the interval between scheduled daily challenges.
	// DebugSchedule shortens it to 30s for local testing.
	DailyPeriodSec int  `json:"daily_period_sec"`
	DebugSchedule  bool `json:"debug_schedule"`
}

// AppData contains application-level configuration.
type AppData struct {
	Database DatabaseConfig `json:"database"`
	Security SecurityConfig `json:"security"`
	Logging  LoggingConfig  `json:"logging"`
}

// DatabaseConfig holds the score database settings.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerData{
			BindAddress: "0.0.0.0",
			APIPort:     DefaultAPIPort,
			DataPort:    DefaultDataPort,
		},
		Game: GameData{
			LoginSecret:    DefaultLoginSecret,
			DataDirectory:  "data",
			RoomCapacity:   8,
			DailyPeriodSec: 180,
		},
		App: AppData{
			Database: DatabaseConfig{
				Path: filepath.Join("data", "rallyd.db"),
			},
			Security: SecurityConfig{
				RateLimitRPS: 100,
			},
			Logging: LoggingConfig{
				Level:      "info",
				Directory:  "logs",
				MaxSizeMB:  10,
				MaxBackups: 5,
			},
		},
	}
}

// Load reads configuration from a JSON file.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save config to persist any new default fields added in code updates.
	// This ensures config.json always reflects the complete set of options.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Ensure config directory exists
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetServer returns a copy of the listener configuration.
func (c *Config) GetServer() ServerData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Server
}

// GetGame returns a copy of the race engine configuration.
func (c *Config) GetGame() GameData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Game
}

// GetApp returns a copy of the application configuration.
func (c *Config) GetApp() AppData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.App
}

// DailyPeriod returns the interval between scheduled daily challenges,
// shortened to 30s when the debug schedule is on.
func (c *Config) DailyPeriod() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Game.DebugSchedule {
		return 30 * time.Second
	}
	if c.Game.DailyPeriodSec <= 0 {
		return 180 * time.Second
	}
	return time.Duration(c.Game.DailyPeriodSec) * time.Second
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}
