package uploader

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient records stored files in memory.
type fakeClient struct {
	mu      sync.Mutex
	stored  map[string][]byte
	storErr error
	quit    bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{stored: make(map[string][]byte)}
}

func (f *fakeClient) Stor(path string, r io.Reader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storErr != nil {
		err := f.storErr
		f.storErr = nil
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.stored[path] = data
	return nil
}

func (f *fakeClient) Quit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quit = true
	return nil
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "motion_20250601_120000.mp4")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testConfig() Config {
	return Config{
		Host:       "ftp.example.com",
		Username:   "user",
		Password:   "pass",
		RemotePath: "/recordings",
		RetryDelay: time.Millisecond,
	}
}

func TestUploadStoresAndRemovesLocalFile(t *testing.T) {
	client := newFakeClient()
	u := NewWithDialer(testConfig(), func() (Client, error) { return client, nil })

	local := writeTempFile(t, "clip-bytes")
	require.NoError(t, u.Upload(local))

	assert.Equal(t, []byte("clip-bytes"), client.stored["/recordings/motion_20250601_120000.mp4"])

	_, err := os.Stat(local)
	assert.True(t, os.IsNotExist(err), "local file should be removed after upload")
}

func TestUploadMissingLocalFile(t *testing.T) {
	u := NewWithDialer(testConfig(), func() (Client, error) { return newFakeClient(), nil })

	err := u.Upload(filepath.Join(t.TempDir(), "nope.mp4"))
	assert.Error(t, err)
}

func TestUploadDialFailureKeepsLocalFile(t *testing.T) {
	dialErr := errors.New("connection refused")
	u := NewWithDialer(testConfig(), func() (Client, error) { return nil, dialErr })

	local := writeTempFile(t, "clip")
	err := u.Upload(local)
	assert.ErrorIs(t, err, dialErr)

	_, statErr := os.Stat(local)
	assert.NoError(t, statErr, "local file should survive a failed upload")
}

func TestUploadRetriesAfterTransferError(t *testing.T) {
	client := newFakeClient()
	client.storErr = errors.New("broken pipe")

	var dials int
	u := NewWithDialer(testConfig(), func() (Client, error) {
		dials++
		return client, nil
	})

	local := writeTempFile(t, "clip")
	require.NoError(t, u.Upload(local))

	// first attempt failed and dropped the connection, second redialed
	assert.Equal(t, 2, dials)
	assert.Len(t, client.stored, 1)
}

func TestUploadGivesUpAfterAttempts(t *testing.T) {
	cfg := testConfig()
	cfg.Attempts = 2

	dialErr := errors.New("no route to host")
	var dials int
	u := NewWithDialer(cfg, func() (Client, error) {
		dials++
		return nil, dialErr
	})

	local := writeTempFile(t, "clip")
	err := u.Upload(local)
	assert.ErrorIs(t, err, dialErr)
	assert.Equal(t, 2, dials)
}

func TestUploadReusesConnection(t *testing.T) {
	client := newFakeClient()
	var dials int
	u := NewWithDialer(testConfig(), func() (Client, error) {
		dials++
		return client, nil
	})

	require.NoError(t, u.Upload(writeTempFile(t, "one")))
	require.NoError(t, u.Upload(writeTempFile(t, "two")))
	assert.Equal(t, 1, dials)
}

func TestClose(t *testing.T) {
	client := newFakeClient()
	u := NewWithDialer(testConfig(), func() (Client, error) { return client, nil })

	// no connection yet: close is a no-op
	require.NoError(t, u.Close())

	require.NoError(t, u.Upload(writeTempFile(t, "clip")))
	require.NoError(t, u.Close())
	assert.True(t, client.quit)
}
