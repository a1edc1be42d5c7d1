// Package uploader ships finished recordings to an FTP server. Uploads are
// serialized over a single lazily-established connection; a successful upload
// removes the local file.
package uploader

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/sentry-pi/radarcam/internal/monitoring"
)

// Client is the subset of the FTP connection the uploader needs. It is an
// interface so tests can substitute a fake server connection.
type Client interface {
	Stor(path string, r io.Reader) error
	Quit() error
}

// DialFunc opens and authenticates an FTP connection.
type DialFunc func() (Client, error)

// Config holds FTP server credentials and retry behaviour.
type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	RemotePath string
	// Attempts is the number of tries per upload. Defaults to 3.
	Attempts int
	// RetryDelay is the pause between attempts. Defaults to 2s.
	RetryDelay time.Duration
	// DialTimeout bounds connection establishment. Defaults to 10s.
	DialTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = 21
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	return c
}

// Uploader uploads files over FTP. Safe for concurrent use; uploads are
// serialized.
type Uploader struct {
	cfg  Config
	dial DialFunc

	mu   sync.Mutex
	conn Client
}

// New creates an Uploader for the given server. No connection is made until
// the first upload.
func New(cfg Config) *Uploader {
	cfg = cfg.withDefaults()
	u := &Uploader{cfg: cfg}
	u.dial = func() (Client, error) {
		conn, err := ftp.Dial(
			fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			ftp.DialWithTimeout(cfg.DialTimeout),
		)
		if err != nil {
			return nil, err
		}
		if err := conn.Login(cfg.Username, cfg.Password); err != nil {
			conn.Quit()
			return nil, err
		}
		return conn, nil
	}
	return u
}

// NewWithDialer creates an Uploader with a custom dialer. Tests only.
func NewWithDialer(cfg Config, dial DialFunc) *Uploader {
	u := New(cfg)
	u.dial = dial
	return u
}

// connect establishes the FTP connection if not already connected.
// Caller must hold u.mu.
func (u *Uploader) connect() error {
	if u.conn != nil {
		return nil
	}
	conn, err := u.dial()
	if err != nil {
		return fmt.Errorf("ftp connection error: %w", err)
	}
	u.conn = conn
	return nil
}

// dropConn discards the current connection so the next upload reconnects.
// Caller must hold u.mu.
func (u *Uploader) dropConn() {
	if u.conn != nil {
		u.conn.Quit()
		u.conn = nil
	}
}

// Upload stores localPath under the configured remote path and removes the
// local file on success. A failed attempt keeps the local file; transfer and
// connection errors are retried with a reconnect in between.
func (u *Uploader) Upload(localPath string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if _, err := os.Stat(localPath); err != nil {
		return fmt.Errorf("local file %s not found: %w", localPath, err)
	}

	remotePath := path.Join(u.cfg.RemotePath, filepath.Base(localPath))

	var lastErr error
	for attempt := 1; attempt <= u.cfg.Attempts; attempt++ {
		if attempt > 1 {
			time.Sleep(u.cfg.RetryDelay)
		}

		if err := u.connect(); err != nil {
			lastErr = err
			continue
		}

		file, err := os.Open(localPath)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", localPath, err)
		}

		err = u.conn.Stor(remotePath, file)
		file.Close()
		if err != nil {
			lastErr = fmt.Errorf("ftp upload error: %w", err)
			// the connection may be wedged after a failed transfer
			u.dropConn()
			continue
		}

		monitoring.Logf("Successfully uploaded %s to remote server", localPath)

		if err := os.Remove(localPath); err != nil {
			monitoring.Logf("Failed to remove local file %s: %v", localPath, err)
		} else {
			monitoring.Logf("Removed local file %s", localPath)
		}
		return nil
	}

	return lastErr
}

// Close terminates the FTP connection if one is open.
func (u *Uploader) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return nil
	}
	err := u.conn.Quit()
	u.conn = nil
	return err
}
