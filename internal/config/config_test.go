package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, DefaultAPIPort, cfg.GetServer().APIPort)
	assert.Equal(t, DefaultLoginSecret, cfg.GetGame().LoginSecret)
	assert.FileExists(t, filepath.Join(dir, DefaultConfigFile))
}

func TestLoadOverlaysPartialFile(t *testing.T) {
	dir := t.TempDir()
	partial := map[string]any{
		"server": map[string]any{"api_port": 9000},
	}
	data, err := json.Marshal(partial)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), data, 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.GetServer().APIPort)
	// Unset fields keep their defaults.
	assert.Equal(t, DefaultDataPort, cfg.GetServer().DataPort)
	assert.Equal(t, 8, cfg.GetGame().RoomCapacity)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("{nope"), 0644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestDailyPeriod(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 180*time.Second, cfg.DailyPeriod())

	cfg.Game.DailyPeriodSec = 600
	assert.Equal(t, 600*time.Second, cfg.DailyPeriod())

	cfg.Game.DebugSchedule = true
	assert.Equal(t, 30*time.Second, cfg.DailyPeriod())

	cfg.Game.DebugSchedule = false
	cfg.Game.DailyPeriodSec = 0
	assert.Equal(t, 180*time.Second, cfg.DailyPeriod())
}

func TestValidateDefaultsPass(t *testing.T) {
	result := Validate(DefaultConfig())
	assert.True(t, result.IsValid(), "default config should validate: %+v", result.Errors)
}

func TestValidateCatchesErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.DataPort = cfg.Server.APIPort
	cfg.Game.LoginSecret = ""
	cfg.Game.RoomCapacity = 1
	cfg.App.Database.Path = ""

	result := Validate(cfg)
	assert.False(t, result.IsValid())
	assert.GreaterOrEqual(t, len(result.Errors), 4)
}
