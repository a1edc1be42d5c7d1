package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 30, cfg.VideoDuration)
	assert.Equal(t, "/app/recordings", cfg.RecordingsPath)
	assert.Equal(t, 1920, cfg.CameraWidth)
	assert.Equal(t, 1080, cfg.CameraHeight)
	assert.Equal(t, 30, cfg.CameraFPS)
	assert.Equal(t, "/dev/ttyS0", cfg.SerialPort)
	assert.Equal(t, 256000, cfg.SerialBaud)
	assert.Equal(t, 17, cfg.PresencePin)
	assert.Equal(t, 500*time.Millisecond, cfg.MinTargetInterval)
	assert.Equal(t, 5*time.Second, cfg.RecordingCooldown)
	assert.False(t, cfg.FTPEnabled)
	assert.Equal(t, 21, cfg.FTPPort)
	assert.Equal(t, 30*time.Second, cfg.ClipDuration())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("VIDEO_DURATION", "10")
	t.Setenv("CAMERA_ROTATION", "180")
	t.Setenv("FTP_ENABLED", "true")
	t.Setenv("FTP_HOSTNAME", "ftp.example.net")
	t.Setenv("MIN_TARGET_INTERVAL", "250ms")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.VideoDuration)
	assert.Equal(t, 180, cfg.CameraRotation)
	assert.True(t, cfg.FTPEnabled)
	assert.Equal(t, "ftp.example.net", cfg.FTPHostname)
	assert.Equal(t, 250*time.Millisecond, cfg.MinTargetInterval)
}

func TestLoadFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	contents := "VIDEO_DURATION=15\nSERIAL_PORT=/dev/ttyAMA0\nCAMERA_HFLIP=true\n"
	require.NoError(t, os.WriteFile(envFile, []byte(contents), 0o644))

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.VideoDuration)
	assert.Equal(t, "/dev/ttyAMA0", cfg.SerialPort)
	assert.True(t, cfg.CameraHFlip)
}

func TestEnvironmentOverridesEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("VIDEO_DURATION=15\n"), 0o644))

	t.Setenv("VIDEO_DURATION", "45")

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, 45, cfg.VideoDuration)
}

func TestLoadLeavesProcessEnvUntouched(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("VIDEO_DURATION=15\n"), 0o644))

	cfg, err := Load(envFile)
	require.NoError(t, err)
	require.Equal(t, 15, cfg.VideoDuration)

	// file values must not leak into the environment of later tests
	_, set := os.LookupEnv("VIDEO_DURATION")
	assert.False(t, set)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.VideoDuration)
}

func TestLoadMissingEnvFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.env"))
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.VideoDuration)
}

func TestCameraZoom(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.CameraZoom.Enabled(), "default zoom should be the full frame")

	t.Setenv("CAMERA_ZOOM", "0.25,0.25,0.5,0.5")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.True(t, cfg.CameraZoom.Enabled())
	assert.Equal(t, ZoomRect{0.25, 0.25, 0.5, 0.5}, cfg.CameraZoom)

	t.Setenv("CAMERA_ZOOM", "0.5,0.5")
	_, err = Load("")
	assert.Error(t, err, "wrong arity should fail to parse")

	t.Setenv("CAMERA_ZOOM", "a,b,c,d")
	_, err = Load("")
	assert.Error(t, err)

	// crop extends past the frame edge
	t.Setenv("CAMERA_ZOOM", "0.5,0.5,0.75,0.75")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	t.Run("zero duration", func(t *testing.T) {
		cfg := base()
		cfg.VideoDuration = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad rotation", func(t *testing.T) {
		cfg := base()
		cfg.CameraRotation = 45
		assert.Error(t, cfg.Validate())
	})

	t.Run("empty serial port", func(t *testing.T) {
		cfg := base()
		cfg.SerialPort = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("ftp enabled without host", func(t *testing.T) {
		cfg := base()
		cfg.FTPEnabled = true
		cfg.FTPHostname = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad fps", func(t *testing.T) {
		cfg := base()
		cfg.CameraFPS = -1
		assert.Error(t, cfg.Validate())
	})
}
