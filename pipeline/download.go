package pipeline

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
)

// maxDownloadAttempts and downloadRetryDelay implement a fixed backoff
// up to a small retry count for transient network failures. No HTTP
// client library covers this case, so this wraps net/http directly
// rather than reaching for an unfamiliar third-party client.
const (
	maxDownloadAttempts = 5
	downloadRetryDelay  = 2 * time.Second
)

// Downloader fetches replication files from the upstream mirror.
type Downloader interface {
	// Download retrieves url into destPath, preserving the server's
	// Last-Modified header as the file's mtime.
	Download(url, destPath string) error
}

type httpDownloader struct {
	client *http.Client
}

func newHTTPDownloader() *httpDownloader {
	return &httpDownloader{client: &http.Client{Timeout: 60 * time.Second}}
}

func (d *httpDownloader) Download(url, destPath string) error {
	var lastErr error
	for attempt := 1; attempt <= maxDownloadAttempts; attempt++ {
		if err := d.downloadOnce(url, destPath); err != nil {
			lastErr = err
			sigolo.Debugf("download attempt %d/%d for %s failed: %v", attempt, maxDownloadAttempts, url, err)
			time.Sleep(downloadRetryDelay)
			continue
		}
		return nil
	}
	return errors.Wrapf(lastErr, "downloading %s after %d attempts", url, maxDownloadAttempts)
}

func (d *httpDownloader) downloadOnce(url, destPath string) error {
	resp, err := d.client.Get(url)
	if err != nil {
		return errors.Wrapf(err, "requesting %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}

	if err := os.MkdirAll(parentDir(destPath), 0777); err != nil {
		return errors.Wrapf(err, "creating directory for %s", destPath)
	}

	tmp := destPath + "-tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "creating %s", tmp)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "writing %s", tmp)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "closing %s", tmp)
	}

	if err := os.Rename(tmp, destPath); err != nil {
		return errors.Wrapf(err, "renaming %s to %s", tmp, destPath)
	}

	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			if err := os.Chtimes(destPath, t, t); err != nil {
				sigolo.Debugf("unable to set mtime on %s: %v", destPath, err)
			}
		}
	}

	return nil
}
