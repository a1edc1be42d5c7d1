// Command radarcam runs the radar-triggered security camera daemon. It
// watches an LD2410 presence sensor on the serial port and records a
// fixed-length clip whenever a target is detected, optionally shipping each
// clip to an FTP server.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sentry-pi/radarcam/internal/api"
	"github.com/sentry-pi/radarcam/internal/app"
	"github.com/sentry-pi/radarcam/internal/camera"
	"github.com/sentry-pi/radarcam/internal/config"
	"github.com/sentry-pi/radarcam/internal/db"
	"github.com/sentry-pi/radarcam/internal/detect"
	"github.com/sentry-pi/radarcam/internal/gpio"
	"github.com/sentry-pi/radarcam/internal/monitoring"
	"github.com/sentry-pi/radarcam/internal/serialmux"
	"github.com/sentry-pi/radarcam/internal/uploader"
)

var (
	devMode       = flag.Bool("dev", false, "Run in dev mode with a simulated sensor")
	listen        = flag.String("listen", "", "Listen address (overrides LISTEN_ADDR)")
	serialDev     = flag.String("port", "", "Serial device path (overrides SERIAL_PORT)")
	envFile       = flag.String("env-file", ".env", "Path to the .env file")
	disableRadar  = flag.Bool("disable-radar", false, "Run without a radar sensor")
	disableCamera = flag.Bool("disable-camera", false, "Run without a camera")
)

// mockReportFrame is a moving target at 150cm, replayed in dev mode.
var mockReportFrame = []byte{0xF8, 0x01, 0x00, 0x0F, 0x50, 0x00, 0xFE}

func main() {
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *listen != "" {
		cfg.ListenAddr = *listen
	}
	if *serialDev != "" {
		cfg.SerialPort = *serialDev
	}

	rotator, err := monitoring.InitFileLogging(cfg.LogDir)
	if err != nil {
		log.Fatalf("failed to initialize logging: %v", err)
	}
	defer rotator.Close()

	var m serialmux.SerialMuxInterface
	switch {
	case *disableRadar:
		m = serialmux.NewDisabledSerialMux()
	case *devMode:
		m = serialmux.NewMockSerialMux(mockReportFrame)
	default:
		m, err = serialmux.NewRealSerialMux(cfg.SerialPort, serialmux.PortOptions{
			BaudRate: cfg.SerialBaud,
		})
		if err != nil {
			log.Fatalf("failed to open serial port %s: %v", cfg.SerialPort, err)
		}
	}
	defer m.Close()

	if err := m.Initialize(); err != nil {
		log.Printf("failed to initialize sensor: %v", err)
	}

	database, err := db.NewDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	var recorder *camera.Recorder
	if !*disableCamera && !*devMode {
		cam := camera.New(camera.Settings{
			DeviceID: cfg.CameraDevice,
			Width:    cfg.CameraWidth,
			Height:   cfg.CameraHeight,
			FPS:      cfg.CameraFPS,
		})
		recorder, err = camera.NewRecorder(cam, camera.RecorderConfig{
			RecordingsPath: cfg.RecordingsPath,
			Width:          cfg.CameraWidth,
			Height:         cfg.CameraHeight,
			FPS:            cfg.CameraFPS,
			Rotation:       cfg.CameraRotation,
			HFlip:          cfg.CameraHFlip,
			VFlip:          cfg.CameraVFlip,
			Zoom: camera.Zoom{
				X: cfg.CameraZoom.X, Y: cfg.CameraZoom.Y,
				W: cfg.CameraZoom.W, H: cfg.CameraZoom.H,
			},
		})
		if err != nil {
			log.Fatalf("failed to create recorder: %v", err)
		}
		if cfg.MotionVerify {
			recorder.SetMotionVerifier(camera.NewMotionVerifier(cfg.MotionVerifyThreshold))
		}
	}

	var up *uploader.Uploader
	if cfg.FTPEnabled {
		up = uploader.New(uploader.Config{
			Host:       cfg.FTPHostname,
			Port:       cfg.FTPPort,
			Username:   cfg.FTPUsername,
			Password:   cfg.FTPPassword,
			RemotePath: cfg.FTPRemotePath,
		})
		defer up.Close()
	}

	presence, err := gpio.Open(cfg.PresencePin)
	if err != nil {
		log.Printf("presence pin unavailable, continuing without it: %v", err)
		presence = nil
	}

	detector := detect.New(detect.Options{
		MinInterval:   cfg.MinTargetInterval,
		MaxDistanceCm: cfg.MaxTriggerDistanceCm,
		MinSignal:     cfg.MinTriggerSignal,
	})

	opts := app.Options{
		Mux:               m,
		Detector:          detector,
		DB:                database,
		Presence:          presence,
		ClipDuration:      cfg.ClipDuration(),
		RecordingCooldown: cfg.RecordingCooldown,
	}
	if recorder != nil {
		opts.Recorder = recorder
	}
	if up != nil {
		opts.Uploader = up
	}
	pipeline := app.New(opts)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := m.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// run the detection pipeline
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := pipeline.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("pipeline error: %v", err)
		}
		log.Print("pipeline routine terminated")
	}()

	// log level changes on the sensor's OUT pin as a cross-check against the
	// serial report stream
	wg.Add(1)
	go func() {
		defer wg.Done()
		presence.Watch(ctx, func(present bool) {
			log.Printf("presence pin %s: %t", presence.Name(), present)
		})
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes
		if err := database.AttachAdminRoutes(mux); err != nil {
			log.Printf("failed to attach db admin routes: %v", err)
		}
		m.AttachAdminRoutes(mux)

		apiServer := api.NewServer(m, database, cfg.RecordingsPath, pipeline.Status)
		mux.Handle("/", apiServer.ServeMux())

		server := &http.Server{
			Addr:    cfg.ListenAddr,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
