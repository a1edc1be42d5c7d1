package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// ErrAlreadyRecording is returned when a trigger arrives while a clip is
// still being written. Triggers are dropped, not queued.
var ErrAlreadyRecording = errors.New("already recording, skipping this trigger")

// ErrNoMotion is returned when a motion verifier is attached and the finished
// clip contained no visible motion. The clip file is deleted.
var ErrNoMotion = errors.New("no visible motion in clip, discarding")

// Zoom is a normalized digital zoom crop: X, Y is the top-left corner and
// W, H the extent, as fractions of the frame. The cropped region is scaled
// back up to the full output resolution. The zero value and the full-frame
// crop disable zooming.
type Zoom struct {
	X, Y, W, H float64
}

// Enabled reports whether the crop does anything.
func (z Zoom) Enabled() bool {
	return z != Zoom{} && z != Zoom{0, 0, 1, 1}
}

// RecorderConfig describes how clips are produced.
type RecorderConfig struct {
	RecordingsPath string
	Width          int
	Height         int
	FPS            int
	// Rotation in degrees; 0, 90, 180 or 270.
	Rotation int
	HFlip    bool
	VFlip    bool
	Zoom     Zoom
	// Codec is the FourCC passed to the video writer. Defaults to mp4v.
	Codec string
}

// Clip describes one finished recording on disk.
type Clip struct {
	Path      string        `json:"path"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	SizeBytes int64         `json:"size_bytes"`
}

// Recorder writes fixed-duration MP4 clips from a Camera. At most one clip is
// recorded at a time.
type Recorder struct {
	camera   Camera
	cfg      RecorderConfig
	verifier *MotionVerifier

	mu          sync.Mutex
	isRecording bool
}

// NewRecorder creates a Recorder over the given camera. The recordings
// directory is created if it does not exist.
func NewRecorder(cam Camera, cfg RecorderConfig) (*Recorder, error) {
	if cfg.RecordingsPath == "" {
		return nil, errors.New("recordings path is required")
	}
	if err := os.MkdirAll(cfg.RecordingsPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recordings directory: %w", err)
	}
	if cfg.Width <= 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = DefaultHeight
	}
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultFPS
	}
	if cfg.Codec == "" {
		cfg.Codec = "mp4v"
	}
	switch cfg.Rotation {
	case 0, 90, 180, 270:
	default:
		return nil, fmt.Errorf("unsupported rotation %d: must be 0, 90, 180 or 270", cfg.Rotation)
	}
	if z := cfg.Zoom; z.Enabled() {
		if z.X < 0 || z.Y < 0 || z.W <= 0 || z.H <= 0 || z.X+z.W > 1 || z.Y+z.H > 1 {
			return nil, fmt.Errorf("invalid zoom crop %v,%v,%v,%v: must be inside the frame", z.X, z.Y, z.W, z.H)
		}
	}
	return &Recorder{camera: cam, cfg: cfg}, nil
}

// SetMotionVerifier attaches a frame-differencing check. With a verifier in
// place, a clip whose frames never change is deleted instead of kept. Must be
// called before the first Record.
func (r *Recorder) SetMotionVerifier(v *MotionVerifier) {
	r.verifier = v
}

// IsRecording reports whether a clip is currently being written.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isRecording
}

// Record captures a clip of the given duration into the recordings directory.
// Files are named motion_YYYYMMDD_HHMMSS.mp4. A second trigger while a clip
// is in flight fails with ErrAlreadyRecording. Cancelling the context stops
// the clip early but keeps the frames written so far.
func (r *Recorder) Record(ctx context.Context, duration time.Duration) (Clip, error) {
	r.mu.Lock()
	if r.isRecording {
		r.mu.Unlock()
		return Clip{}, ErrAlreadyRecording
	}
	r.isRecording = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.isRecording = false
		r.mu.Unlock()
	}()

	if !r.camera.IsOpen() {
		if err := r.camera.Open(); err != nil {
			return Clip{}, fmt.Errorf("failed to open camera: %w", err)
		}
	}

	started := time.Now()
	path := filepath.Join(r.cfg.RecordingsPath, fmt.Sprintf("motion_%s.mp4", started.Format("20060102_150405")))

	writer, err := gocv.VideoWriterFile(path, r.cfg.Codec, float64(r.cfg.FPS), r.outputWidth(), r.outputHeight(), true)
	if err != nil {
		return Clip{}, fmt.Errorf("failed to open video writer: %w", err)
	}
	defer writer.Close()

	if r.verifier != nil {
		r.verifier.Reset()
	}
	motionSeen := false

	interval := time.Second / time.Duration(r.cfg.FPS)
	deadline := started.Add(duration)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return r.finish(path, started), ctx.Err()
		case <-ticker.C:
		}

		frame, err := r.camera.ReadFrame()
		if err != nil {
			return r.finish(path, started), fmt.Errorf("failed to read frame: %w", err)
		}

		out := r.transform(frame)
		if r.verifier != nil && !motionSeen {
			if moving, _ := r.verifier.Check(out); moving {
				motionSeen = true
			}
		}
		werr := writer.Write(*out)
		if out != frame {
			out.Close()
		}
		frame.Close()
		if werr != nil {
			return r.finish(path, started), fmt.Errorf("failed to write frame: %w", werr)
		}
	}

	if r.verifier != nil && !motionSeen {
		// Unlink now; the deferred writer close flushes to the orphaned inode.
		os.Remove(path)
		return Clip{}, ErrNoMotion
	}

	return r.finish(path, started), nil
}

func (r *Recorder) finish(path string, started time.Time) Clip {
	clip := Clip{
		Path:      path,
		StartedAt: started,
		Duration:  time.Since(started),
	}
	if info, err := os.Stat(path); err == nil {
		clip.SizeBytes = info.Size()
	}
	return clip
}

// transform applies the configured zoom crop, rotation and flips. The
// returned Mat is the input when no transform is needed; otherwise it is a
// new Mat the caller must close.
func (r *Recorder) transform(frame *gocv.Mat) *gocv.Mat {
	out := frame

	if z := r.cfg.Zoom; z.Enabled() {
		cols, rows := float64(out.Cols()), float64(out.Rows())
		rect := image.Rect(
			int(z.X*cols), int(z.Y*rows),
			int((z.X+z.W)*cols), int((z.Y+z.H)*rows),
		)
		region := out.Region(rect)
		zoomed := gocv.NewMat()
		gocv.Resize(region, &zoomed, image.Pt(out.Cols(), out.Rows()), 0, 0, gocv.InterpolationLinear)
		region.Close()
		out = &zoomed
	}

	if r.cfg.Rotation != 0 {
		rotated := gocv.NewMat()
		var code gocv.RotateFlag
		switch r.cfg.Rotation {
		case 90:
			code = gocv.Rotate90Clockwise
		case 180:
			code = gocv.Rotate180Clockwise
		case 270:
			code = gocv.Rotate90CounterClockwise
		}
		gocv.Rotate(*out, &rotated, code)
		if out != frame {
			out.Close()
		}
		out = &rotated
	}

	if r.cfg.HFlip || r.cfg.VFlip {
		flipCode := 1 // horizontal
		if r.cfg.HFlip && r.cfg.VFlip {
			flipCode = -1
		} else if r.cfg.VFlip {
			flipCode = 0
		}
		flipped := gocv.NewMat()
		gocv.Flip(*out, &flipped, flipCode)
		if out != frame {
			out.Close()
		}
		out = &flipped
	}

	return out
}

// outputWidth accounts for 90/270 degree rotation swapping the axes.
func (r *Recorder) outputWidth() int {
	if r.cfg.Rotation == 90 || r.cfg.Rotation == 270 {
		return r.cfg.Height
	}
	return r.cfg.Width
}

func (r *Recorder) outputHeight() int {
	if r.cfg.Rotation == 90 || r.cfg.Rotation == 270 {
		return r.cfg.Width
	}
	return r.cfg.Height
}
