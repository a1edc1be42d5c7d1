// Package config loads the daemon configuration from environment variables,
// optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ZoomRect is a normalized digital zoom crop parsed from "x,y,w,h" where x,y
// is the top-left corner and w,h the extent, all as fractions of the frame.
// The full-frame rect (0,0,1,1) disables zooming.
type ZoomRect struct {
	X, Y, W, H float64
}

// Enabled reports whether the rect actually crops. The zero value and the
// full-frame rect both mean no zoom.
func (z ZoomRect) Enabled() bool {
	return z != ZoomRect{} && z != ZoomRect{0, 0, 1, 1}
}

// UnmarshalText implements encoding.TextUnmarshaler for the env parser.
func (z *ZoomRect) UnmarshalText(text []byte) error {
	parts := strings.Split(string(text), ",")
	if len(parts) != 4 {
		return fmt.Errorf("zoom must be x,y,w,h, got %q", text)
	}
	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return fmt.Errorf("invalid zoom component %q: %w", p, err)
		}
		vals[i] = v
	}
	z.X, z.Y, z.W, z.H = vals[0], vals[1], vals[2], vals[3]
	return nil
}

// Config holds the full daemon configuration. Defaults match a Raspberry Pi
// with the camera module on /dev/video0 and the LD2410 on the primary UART.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	DBPath     string `env:"DB_PATH" envDefault:"radarcam.db"`
	LogDir     string `env:"LOG_DIR" envDefault:"logs"`

	VideoDuration  int    `env:"VIDEO_DURATION" envDefault:"30"` // seconds
	RecordingsPath string `env:"RECORDINGS_PATH" envDefault:"/app/recordings"`

	CameraDevice   int  `env:"CAMERA_DEVICE" envDefault:"0"`
	CameraWidth    int  `env:"CAMERA_WIDTH" envDefault:"1920"`
	CameraHeight   int  `env:"CAMERA_HEIGHT" envDefault:"1080"`
	CameraFPS      int  `env:"CAMERA_FPS" envDefault:"30"`
	CameraRotation int  `env:"CAMERA_ROTATION" envDefault:"0"`
	CameraHFlip    bool `env:"CAMERA_HFLIP" envDefault:"false"`
	CameraVFlip    bool `env:"CAMERA_VFLIP" envDefault:"false"`

	CameraZoom ZoomRect `env:"CAMERA_ZOOM" envDefault:"0.0,0.0,1.0,1.0"`

	SerialPort  string `env:"SERIAL_PORT" envDefault:"/dev/ttyS0"`
	SerialBaud  int    `env:"SERIAL_BAUD" envDefault:"256000"`
	PresencePin int    `env:"PRESENCE_PIN" envDefault:"17"`

	MinTargetInterval     time.Duration `env:"MIN_TARGET_INTERVAL" envDefault:"500ms"`
	RecordingCooldown     time.Duration `env:"RECORDING_COOLDOWN" envDefault:"5s"`
	MaxTriggerDistanceCm  int           `env:"MAX_TRIGGER_DISTANCE_CM" envDefault:"0"`
	MinTriggerSignal      int           `env:"MIN_TRIGGER_SIGNAL" envDefault:"0"`
	MotionVerify          bool          `env:"MOTION_VERIFY" envDefault:"false"`
	MotionVerifyThreshold float64       `env:"MOTION_VERIFY_THRESHOLD" envDefault:"1.0"`

	FTPEnabled    bool   `env:"FTP_ENABLED" envDefault:"false"`
	FTPHostname   string `env:"FTP_HOSTNAME" envDefault:"127.0.0.1"`
	FTPPort       int    `env:"FTP_PORT" envDefault:"21"`
	FTPUsername   string `env:"FTP_USERNAME" envDefault:"username"`
	FTPPassword   string `env:"FTP_PASSWORD" envDefault:"password"`
	FTPRemotePath string `env:"FTP_REMOTE_PATH" envDefault:"/"`
}

// Load reads the optional .env file at envFile and parses the environment. A
// missing .env file is not an error; variables already set in the environment
// take precedence over file values. The process environment is left untouched.
func Load(envFile string) (*Config, error) {
	environ := env.ToMap(os.Environ())
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			fileVars, err := godotenv.Read(envFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
			}
			for k, v := range fileVars {
				if _, ok := environ[k]; !ok {
					environ[k] = v
				}
			}
		}
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges that the env parser cannot express.
func (c *Config) Validate() error {
	if c.VideoDuration <= 0 {
		return fmt.Errorf("invalid VIDEO_DURATION %d: must be positive", c.VideoDuration)
	}
	if c.CameraWidth <= 0 || c.CameraHeight <= 0 {
		return fmt.Errorf("invalid camera resolution %dx%d", c.CameraWidth, c.CameraHeight)
	}
	if c.CameraFPS <= 0 {
		return fmt.Errorf("invalid CAMERA_FPS %d: must be positive", c.CameraFPS)
	}
	switch c.CameraRotation {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("invalid CAMERA_ROTATION %d: must be 0, 90, 180 or 270", c.CameraRotation)
	}
	if z := c.CameraZoom; z.Enabled() {
		if z.X < 0 || z.Y < 0 || z.W <= 0 || z.H <= 0 || z.X+z.W > 1 || z.Y+z.H > 1 {
			return fmt.Errorf("invalid CAMERA_ZOOM %v,%v,%v,%v: must be a crop inside the frame", z.X, z.Y, z.W, z.H)
		}
	}
	if c.SerialPort == "" {
		return fmt.Errorf("SERIAL_PORT must not be empty")
	}
	if c.FTPEnabled && c.FTPHostname == "" {
		return fmt.Errorf("FTP_HOSTNAME must be set when FTP_ENABLED is true")
	}
	return nil
}

// ClipDuration returns the recording length as a duration.
func (c *Config) ClipDuration() time.Duration {
	return time.Duration(c.VideoDuration) * time.Second
}
