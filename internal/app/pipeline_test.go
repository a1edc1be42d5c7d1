package app

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentry-pi/radarcam/internal/camera"
	"github.com/sentry-pi/radarcam/internal/db"
	"github.com/sentry-pi/radarcam/internal/detect"
	"github.com/sentry-pi/radarcam/internal/ld2410"
)

type stubMux struct {
	frames chan []byte
}

func newStubMux() *stubMux {
	return &stubMux{frames: make(chan []byte, 32)}
}

func (s *stubMux) Subscribe() (string, chan []byte)     { return "stub", s.frames }
func (s *stubMux) Unsubscribe(string)                   {}
func (s *stubMux) Monitor(ctx context.Context) error    { <-ctx.Done(); return ctx.Err() }
func (s *stubMux) Close() error                         { return nil }
func (s *stubMux) Initialize() error                    { return nil }
func (s *stubMux) SendCommand([]byte) error             { return nil }
func (s *stubMux) AttachAdminRoutes(mux *http.ServeMux) {}

type stubRecorder struct {
	mu        sync.Mutex
	calls     int
	recording bool
	clip      camera.Clip
	err       error
}

func (r *stubRecorder) Record(ctx context.Context, duration time.Duration) (camera.Clip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return r.clip, r.err
	}
	return r.clip, nil
}

func (r *stubRecorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

func (r *stubRecorder) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type stubUploader struct {
	uploads atomic.Int32
	err     error
}

func (u *stubUploader) Upload(localPath string) error {
	if u.err != nil {
		return u.err
	}
	u.uploads.Add(1)
	return nil
}

func movingFrame() []byte {
	return []byte{ld2410.FrameHeader, 0x01, 0x00, 0x0F, 0x50, 0x00, ld2410.FrameTail}
}

func idleFrame() []byte {
	return []byte{ld2410.FrameHeader, 0x00, 0x00, 0x00, 0x00, 0x00, ld2410.FrameTail}
}

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func runPipeline(t *testing.T, p *Pipeline) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()
	return func() {
		stop()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("pipeline did not shut down")
		}
	}
}

func TestPipelineRecordsAndUploads(t *testing.T) {
	mux := newStubMux()
	database := newTestDB(t)
	recorder := &stubRecorder{clip: camera.Clip{
		Path:      "/app/recordings/motion_20260829_120000.mp4",
		StartedAt: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
		Duration:  30 * time.Second,
		SizeBytes: 2048,
	}}
	uploader := &stubUploader{}

	p := New(Options{
		Mux:      mux,
		Detector: detect.New(detect.Options{MinInterval: time.Nanosecond}),
		Recorder: recorder,
		Uploader: uploader,
		DB:       database,
	})
	cancel := runPipeline(t, p)
	defer cancel()

	mux.frames <- movingFrame()

	require.Eventually(t, func() bool {
		return uploader.uploads.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)

	detections, err := database.RecentDetections(10)
	require.NoError(t, err)
	require.Len(t, detections, 1)
	assert.True(t, detections[0].MovingTarget)
	assert.Equal(t, 150, detections[0].DistanceCm)
	assert.NotEmpty(t, detections[0].RawFrame)

	require.Eventually(t, func() bool {
		recordings, err := database.RecentRecordings(10)
		return err == nil && len(recordings) == 1 && recordings[0].Uploaded
	}, 5*time.Second, 10*time.Millisecond)

	recordings, err := database.RecentRecordings(10)
	require.NoError(t, err)
	assert.Equal(t, detections[0].ID, recordings[0].DetectionID)
	assert.Equal(t, int64(2048), recordings[0].SizeBytes)
}

func TestPipelineIgnoresIdleReports(t *testing.T) {
	mux := newStubMux()
	database := newTestDB(t)
	recorder := &stubRecorder{}

	p := New(Options{
		Mux:      mux,
		Detector: detect.New(detect.Options{MinInterval: time.Nanosecond}),
		Recorder: recorder,
		DB:       database,
	})
	cancel := runPipeline(t, p)

	mux.frames <- idleFrame()
	mux.frames <- []byte{0xDE, 0xAD} // unparseable
	time.Sleep(50 * time.Millisecond)
	cancel()

	detections, err := database.RecentDetections(10)
	require.NoError(t, err)
	assert.Empty(t, detections)
	assert.Zero(t, recorder.callCount())
}

func TestPipelineCooldownSuppressesSecondRecording(t *testing.T) {
	mux := newStubMux()
	database := newTestDB(t)
	recorder := &stubRecorder{clip: camera.Clip{Path: "a.mp4", StartedAt: time.Now()}}

	p := New(Options{
		Mux:      mux,
		Detector: detect.New(detect.Options{MinInterval: time.Nanosecond}),
		Recorder: recorder,
		DB:       database,
	})
	fixed := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	p.SetClock(func() time.Time { return fixed })

	cancel := runPipeline(t, p)

	mux.frames <- movingFrame()
	require.Eventually(t, func() bool {
		return recorder.callCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	// Still inside the cooldown window, so this detection is persisted but
	// does not trigger a second clip.
	mux.frames <- movingFrame()
	time.Sleep(50 * time.Millisecond)
	cancel()

	assert.Equal(t, 1, recorder.callCount())

	detections, err := database.RecentDetections(10)
	require.NoError(t, err)
	assert.Len(t, detections, 2)
}

func TestPipelineRecordsAfterCooldownExpires(t *testing.T) {
	mux := newStubMux()
	recorder := &stubRecorder{clip: camera.Clip{Path: "a.mp4", StartedAt: time.Now()}}

	p := New(Options{
		Mux:      mux,
		Detector: detect.New(detect.Options{MinInterval: time.Nanosecond}),
		Recorder: recorder,
	})
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	var clockMu sync.Mutex
	p.SetClock(func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	})

	cancel := runPipeline(t, p)
	defer cancel()

	mux.frames <- movingFrame()
	require.Eventually(t, func() bool {
		return recorder.callCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	clockMu.Lock()
	now = now.Add(DefaultRecordingCooldown + time.Second)
	clockMu.Unlock()

	mux.frames <- movingFrame()
	require.Eventually(t, func() bool {
		return recorder.callCount() == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestPipelineUploadFailureKeepsRecordingUnuploaded(t *testing.T) {
	mux := newStubMux()
	database := newTestDB(t)
	recorder := &stubRecorder{clip: camera.Clip{Path: "a.mp4", StartedAt: time.Now()}}
	uploader := &stubUploader{err: errors.New("connection refused")}

	p := New(Options{
		Mux:      mux,
		Detector: detect.New(detect.Options{MinInterval: time.Nanosecond}),
		Recorder: recorder,
		Uploader: uploader,
		DB:       database,
	})
	cancel := runPipeline(t, p)

	mux.frames <- movingFrame()
	require.Eventually(t, func() bool {
		recordings, err := database.RecentRecordings(10)
		return err == nil && len(recordings) == 1
	}, 5*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	cancel()

	recordings, err := database.RecentRecordings(10)
	require.NoError(t, err)
	require.Len(t, recordings, 1)
	assert.False(t, recordings[0].Uploaded)
}

func TestPipelineKeepsPartialClipFromStoppedRecording(t *testing.T) {
	mux := newStubMux()
	database := newTestDB(t)
	recorder := &stubRecorder{
		clip: camera.Clip{Path: "a.mp4", StartedAt: time.Now(), Duration: 3 * time.Second, SizeBytes: 512},
		err:  context.Canceled,
	}
	uploader := &stubUploader{}

	p := New(Options{
		Mux:      mux,
		Detector: detect.New(detect.Options{MinInterval: time.Nanosecond}),
		Recorder: recorder,
		Uploader: uploader,
		DB:       database,
	})
	cancel := runPipeline(t, p)

	mux.frames <- movingFrame()

	// a recording cut short still ends up tracked, without an upload
	require.Eventually(t, func() bool {
		recordings, err := database.RecentRecordings(10)
		return err == nil && len(recordings) == 1
	}, 5*time.Second, 10*time.Millisecond)
	cancel()

	recordings, err := database.RecentRecordings(10)
	require.NoError(t, err)
	require.Len(t, recordings, 1)
	assert.False(t, recordings[0].Uploaded)
	assert.Equal(t, int64(512), recordings[0].SizeBytes)
	assert.Zero(t, uploader.uploads.Load())
}

func TestPipelineStatus(t *testing.T) {
	mux := newStubMux()
	recorder := &stubRecorder{recording: true}

	p := New(Options{
		Mux:      mux,
		Detector: detect.New(detect.Options{}),
		Recorder: recorder,
	})

	status := p.Status()
	assert.True(t, status.RadarConnected)
	assert.True(t, status.CameraEnabled)
	assert.True(t, status.Recording)
	assert.False(t, status.Presence)
	assert.Zero(t, status.DetectionCount)
	assert.Nil(t, status.LastDetection)
}
