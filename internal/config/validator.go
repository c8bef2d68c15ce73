package config

import (
	"fmt"
	"net"
	"os"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateServer(&cfg.Server, result)
	validateGame(&cfg.Game, result)
	validateApp(&cfg.App, result)

	return result
}

func validateServer(data *ServerData, result *ValidationResult) {
	validatePort(data.APIPort, "server.api_port", result)
	validatePort(data.DataPort, "server.data_port", result)

	if data.APIPort == data.DataPort {
		result.AddError("server.ports", "api_port and data_port must be distinct")
	}
}

func validateGame(data *GameData, result *ValidationResult) {
	if strings.TrimSpace(data.LoginSecret) == "" {
		result.AddError("game.login_secret", "login secret is required")
	}

	if strings.TrimSpace(data.DataDirectory) == "" {
		result.AddError("game.data_directory", "data directory is required")
	} else if _, err := os.Stat(data.DataDirectory); os.IsNotExist(err) {
		result.AddWarning("game.data_directory",
			fmt.Sprintf("directory does not exist: %s", data.DataDirectory))
	}

	if data.RoomCapacity < 2 {
		result.AddError("game.room_capacity", "rooms need at least 2 seats")
	}
	if data.RoomCapacity > 64 {
		result.AddWarning("game.room_capacity",
			fmt.Sprintf("high room capacity (%d) may flood the broadcast fan-out", data.RoomCapacity))
	}

	if data.DailyPeriodSec < 30 && !data.DebugSchedule {
		result.AddWarning("game.daily_period_sec",
			"daily period under 30s leaves players little time in the waiting area")
	}
}

func validateApp(data *AppData, result *ValidationResult) {
	if strings.TrimSpace(data.Database.Path) == "" {
		result.AddError("application.database.path", "database path is required")
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

// IsPortAvailable checks if a port is available for binding.
func IsPortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
