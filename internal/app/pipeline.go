// Package app wires the radar stream to the camera and the uploader. It owns
// the daemon's event loop: sensor frames come in from the serial mux, the
// detector debounces them into events, each event is persisted and, cooldown
// permitting, triggers a fixed-length recording that is queued for upload.
package app

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sentry-pi/radarcam/internal/api"
	"github.com/sentry-pi/radarcam/internal/camera"
	"github.com/sentry-pi/radarcam/internal/db"
	"github.com/sentry-pi/radarcam/internal/detect"
	"github.com/sentry-pi/radarcam/internal/gpio"
	"github.com/sentry-pi/radarcam/internal/ld2410"
	"github.com/sentry-pi/radarcam/internal/monitoring"
	"github.com/sentry-pi/radarcam/internal/serialmux"
)

// DefaultRecordingCooldown matches the original deployment: once a recording
// has been triggered, further detections are ignored for this long.
const DefaultRecordingCooldown = 5 * time.Second

const uploadQueueSize = 16

// ClipRecorder is the part of camera.Recorder the pipeline needs.
type ClipRecorder interface {
	Record(ctx context.Context, duration time.Duration) (camera.Clip, error)
	IsRecording() bool
}

// ClipUploader ships a finished clip off-device.
type ClipUploader interface {
	Upload(localPath string) error
}

// Options configures a Pipeline. Recorder and Uploader may be nil, in which
// case detections are persisted but no clips are produced or shipped.
type Options struct {
	Mux      serialmux.SerialMuxInterface
	Detector *detect.Detector
	Recorder ClipRecorder
	Uploader ClipUploader
	DB       *db.DB
	Presence *gpio.PresencePin

	// ClipDuration is the length of each recording.
	ClipDuration time.Duration
	// RecordingCooldown is the minimum time between two triggered recordings.
	RecordingCooldown time.Duration
}

// Pipeline runs the detection-to-recording event loop.
type Pipeline struct {
	opts Options

	uploads chan upload

	mu                sync.Mutex
	lastRecordingTime time.Time
	now               func() time.Time

	detectionCount atomic.Int64
	lastDetection  atomic.Pointer[time.Time]
	queued         atomic.Int32

	recordWG sync.WaitGroup
}

type upload struct {
	recordingID string
	path        string
}

func New(opts Options) *Pipeline {
	if opts.ClipDuration <= 0 {
		opts.ClipDuration = 30 * time.Second
	}
	if opts.RecordingCooldown <= 0 {
		opts.RecordingCooldown = DefaultRecordingCooldown
	}
	return &Pipeline{
		opts:    opts,
		uploads: make(chan upload, uploadQueueSize),
		now:     time.Now,
	}
}

// Run consumes the radar stream until ctx is cancelled. It blocks; callers
// run it in a goroutine alongside the mux's Monitor.
func (p *Pipeline) Run(ctx context.Context) error {
	id, frames := p.opts.Mux.Subscribe()
	defer p.opts.Mux.Unsubscribe(id)

	var workerWG sync.WaitGroup
	if p.opts.Uploader != nil {
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			p.uploadWorker()
		}()
	}

	shutdown := func() {
		p.recordWG.Wait()
		close(p.uploads)
		workerWG.Wait()
	}

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				// mux closed underneath us
				shutdown()
				return nil
			}
			p.handleFrame(ctx, frame)
		case <-ctx.Done():
			shutdown()
			return ctx.Err()
		}
	}
}

func (p *Pipeline) handleFrame(ctx context.Context, frame []byte) {
	report, err := ld2410.ParseFrame(frame)
	if err != nil {
		monitoring.Logf("dropping unparseable frame: %v", err)
		return
	}

	event, ok := p.opts.Detector.Observe(report)
	if !ok {
		return
	}

	p.detectionCount.Add(1)
	at := event.Time
	p.lastDetection.Store(&at)

	monitoring.Logf("target detected: moving=%t stationary=%t distance=%dcm signal=%d",
		event.MovingTarget, event.StationaryTarget, event.DistanceCm, event.SignalStrength)

	if p.opts.DB != nil {
		if err := p.opts.DB.RecordDetection(detectionRow(event)); err != nil {
			monitoring.Logf("failed to persist detection: %v", err)
		}
	}

	if p.opts.Recorder == nil {
		return
	}
	if !p.tryStartRecording() {
		return
	}

	p.recordWG.Add(1)
	go func() {
		defer p.recordWG.Done()
		p.record(ctx, event)
	}()
}

// tryStartRecording claims the cooldown slot. The timestamp is taken at
// trigger time so a long clip does not extend the cooldown window.
func (p *Pipeline) tryStartRecording() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if now.Sub(p.lastRecordingTime) < p.opts.RecordingCooldown {
		return false
	}
	p.lastRecordingTime = now
	return true
}

func (p *Pipeline) record(ctx context.Context, event detect.Event) {
	clip, err := p.opts.Recorder.Record(ctx, p.opts.ClipDuration)
	switch {
	case errors.Is(err, camera.ErrAlreadyRecording):
		return
	case errors.Is(err, camera.ErrNoMotion):
		monitoring.Logf("radar trigger had no visible motion, clip discarded")
		return
	case errors.Is(err, context.Canceled) && clip.Path != "":
		// shutdown cut the clip short; track what was written, skip the upload
		monitoring.Logf("recording stopped early, keeping partial clip %s", clip.Path)
		p.persistRecording(event, clip)
		return
	case err != nil:
		monitoring.Logf("recording failed: %v", err)
		return
	}

	monitoring.Logf("recorded clip %s (%.1fs, %d bytes)",
		clip.Path, clip.Duration.Seconds(), clip.SizeBytes)

	recordingID := p.persistRecording(event, clip)

	if p.opts.Uploader == nil {
		monitoring.Logf("upload disabled, keeping local file %s", clip.Path)
		return
	}

	p.queued.Add(1)
	select {
	case p.uploads <- upload{recordingID: recordingID, path: clip.Path}:
	case <-ctx.Done():
		p.queued.Add(-1)
		monitoring.Logf("shutting down, keeping local file %s", clip.Path)
	}
}

func (p *Pipeline) persistRecording(event detect.Event, clip camera.Clip) string {
	recordingID := uuid.NewString()
	if p.opts.DB != nil {
		err := p.opts.DB.RecordRecording(db.Recording{
			ID:           recordingID,
			DetectionID:  event.ID,
			Path:         clip.Path,
			StartedAt:    clip.StartedAt,
			DurationSecs: clip.Duration.Seconds(),
			SizeBytes:    clip.SizeBytes,
		})
		if err != nil {
			monitoring.Logf("failed to persist recording: %v", err)
		}
	}
	return recordingID
}

func (p *Pipeline) uploadWorker() {
	for u := range p.uploads {
		if err := p.opts.Uploader.Upload(u.path); err != nil {
			monitoring.Logf("upload failed, keeping local file %s: %v", u.path, err)
			p.queued.Add(-1)
			continue
		}
		if p.opts.DB != nil {
			if err := p.opts.DB.MarkUploaded(u.recordingID, time.Now()); err != nil {
				monitoring.Logf("failed to mark recording uploaded: %v", err)
			}
		}
		p.queued.Add(-1)
	}
}

// Status snapshots the pipeline state for the API.
func (p *Pipeline) Status() api.Status {
	status := api.Status{
		RadarConnected: p.opts.Mux != nil,
		CameraEnabled:  p.opts.Recorder != nil,
		Presence:       p.opts.Presence.Present(),
		DetectionCount: p.detectionCount.Load(),
		UploadsPending: int(p.queued.Load()),
	}
	if p.opts.Recorder != nil {
		status.Recording = p.opts.Recorder.IsRecording()
	}
	if at := p.lastDetection.Load(); at != nil {
		status.LastDetection = at
	}
	return status
}

// SetClock replaces the cooldown time source. Tests only.
func (p *Pipeline) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

func detectionRow(event detect.Event) db.Detection {
	var raw string
	if len(event.Raw) > 0 {
		raw = hex.EncodeToString(event.Raw)
	}
	return db.Detection{
		ID:               event.ID,
		DetectedAt:       event.Time,
		MovingTarget:     event.MovingTarget,
		StationaryTarget: event.StationaryTarget,
		DistanceCm:       event.DistanceCm,
		SignalStrength:   event.SignalStrength,
		RawFrame:         raw,
	}
}
