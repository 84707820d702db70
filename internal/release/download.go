package release

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/thrive-launcher/launcher/internal/logging"
)

const (
	// DefaultTimeout bounds a single download attempt, body included
	DefaultTimeout = 60 * time.Minute
	// DefaultRetries is the default number of download retries
	DefaultRetries = 3
	// DefaultUserAgent is the User-Agent header sent with requests
	DefaultUserAgent = "ThriveLauncher/1.0"
)

// DefaultContentTypes lists the media types accepted for release archives.
var DefaultContentTypes = []string{
	"application/x-7z-compressed",
	"application/zip",
	"application/octet-stream",
	"application/gzip",
	"application/x-gzip",
}

// ProgressFunc receives the bytes received so far and the declared total.
// total is -1 when the server did not declare a length.
type ProgressFunc func(received, total int64)

// Downloader handles HTTP downloads with retry logic.
// Only one Fetch may run at a time.
type Downloader struct {
	client    *http.Client
	userAgent string
	retries   int
	backoff   func(attempt int) time.Duration
	logger    logging.Logger
	active    atomic.Bool
}

// DownloaderOptions configures a Downloader.
type DownloaderOptions struct {
	Timeout   time.Duration
	Retries   int
	UserAgent string
	Logger    logging.Logger
}

// NewDownloader creates a new downloader.
func NewDownloader(opts DownloaderOptions) *Downloader {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	return &Downloader{
		client: &http.Client{
			Timeout: opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		userAgent: opts.UserAgent,
		retries:   opts.Retries,
		backoff: func(attempt int) time.Duration {
			// 1s, 2s, 4s, ...
			return time.Duration(1<<uint(attempt-1)) * time.Second
		},
		logger: logging.OrNoop(opts.Logger),
	}
}

// Active reports whether a download is running.
func (d *Downloader) Active() bool {
	return d.active.Load()
}

// Fetch downloads remoteURL to localPath and returns the response's declared
// media type. The body is streamed to "<localPath>.tmp" and renamed into place
// on success; on any failure or cancellation nothing is left at either path.
//
// Canceling ctx aborts the transfer; the returned error then matches both
// ErrCanceled and context.Canceled.
func (d *Downloader) Fetch(ctx context.Context, remoteURL, localPath string, onProgress ProgressFunc) (string, error) {
	if !d.active.CompareAndSwap(false, true) {
		return "", ErrDownloadInProgress
	}
	defer d.active.Store(false)

	// Overwrite semantics: a stale file must not survive a failed attempt.
	if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("remove stale file: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= d.retries; attempt++ {
		if ctx.Err() != nil {
			return "", cancellation(ctx, lastErr)
		}

		if attempt > 0 {
			d.logger.Warn("retrying download", "url", remoteURL, "attempt", attempt, "error", lastErr)
			select {
			case <-time.After(d.backoff(attempt)):
			case <-ctx.Done():
				return "", cancellation(ctx, lastErr)
			}
		}

		contentType, err := d.downloadOnce(ctx, remoteURL, localPath, onProgress)
		if err == nil {
			d.logger.Info("download finished", "url", remoteURL, "path", localPath, "content_type", contentType)
			return contentType, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", cancellation(ctx, err)
		}
		if !retryable(err) {
			break
		}
	}

	if d.retries == 0 {
		return "", lastErr
	}
	return "", fmt.Errorf("download failed after %d retries: %w", d.retries, lastErr)
}

// downloadOnce performs a single download attempt
func (d *Downloader) downloadOnce(ctx context.Context, remoteURL, localPath string, onProgress ProgressFunc) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return "", &permanentError{fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &statusError{code: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return "", &permanentError{fmt.Errorf("create dest dir: %w", err)}
	}

	tmpPath := localPath + ".tmp"
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return "", &permanentError{fmt.Errorf("create temp file: %w", err)}
	}

	cleanupNeeded := true
	defer func() {
		tmpFile.Close()
		if cleanupNeeded {
			os.Remove(tmpPath)
		}
	}()

	var w io.Writer = tmpFile
	if onProgress != nil {
		w = &ProgressWriter{Writer: tmpFile, Total: resp.ContentLength, OnUpdate: onProgress}
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("copy response body: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, localPath); err != nil {
		return "", &permanentError{fmt.Errorf("rename temp file: %w", err)}
	}

	cleanupNeeded = false
	return resp.Header.Get("Content-Type"), nil
}

// ProgressWriter wraps a writer and reports the running byte count.
type ProgressWriter struct {
	Writer   io.Writer
	Total    int64
	Written  int64
	OnUpdate ProgressFunc
}

// Write implements io.Writer.
func (pw *ProgressWriter) Write(p []byte) (int, error) {
	n, err := pw.Writer.Write(p)
	pw.Written += int64(n)
	if pw.OnUpdate != nil {
		pw.OnUpdate(pw.Written, pw.Total)
	}
	return n, err
}

// CheckContentType validates a declared media type against the allowed list.
// Parameters such as "; charset=binary" are ignored. An empty allowed list
// means DefaultContentTypes.
func CheckContentType(contentType string, allowed []string) error {
	if len(allowed) == 0 {
		allowed = DefaultContentTypes
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}

	for _, a := range allowed {
		if strings.EqualFold(mediaType, a) {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnexpectedContentType, contentType)
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.code)
}

// permanentError marks local failures that a retry cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func retryable(err error) bool {
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	var status *statusError
	if errors.As(err, &status) {
		return status.code >= 500 || status.code == http.StatusTooManyRequests
	}
	return true
}

// cancellation maps a finished context to the error Fetch returns.
// A deadline is reported as a transport failure, not a user cancel.
func cancellation(ctx context.Context, cause error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
	}
	if cause != nil {
		return fmt.Errorf("download aborted: %w", cause)
	}
	return ctx.Err()
}
