package transcription

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"council-pipeline-go/internal/logger"
	"council-pipeline-go/internal/retry"
)

// Downloader streams remote videos to disk.
type Downloader struct {
	client     *http.Client
	maxElapsed time.Duration
	// wait is slept after every completed download to go easy on the host.
	wait time.Duration
	log  *logger.Logger
}

func NewDownloader(client *http.Client, maxElapsed, wait time.Duration, log *logger.Logger) *Downloader {
	if client == nil {
		// videos run to several GB, so no overall timeout
		client = &http.Client{}
	}
	return &Downloader{client: client, maxElapsed: maxElapsed, wait: wait, log: log.Component("downloader")}
}

// Download writes url to dest. The body goes to dest.tmp first and is only
// renamed into place once fully written.
func (d *Downloader) Download(ctx context.Context, url, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp := dest + ".tmp"
	start := time.Now()

	var written int64
	err := retry.Do(ctx, d.maxElapsed, func() error {
		n, err := d.fetch(ctx, url, tmp)
		if err != nil {
			d.log.WithError(err).WithField("url", url).Warn("download attempt failed")
			return err
		}
		written = n
		return nil
	})
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("download %s: %w", url, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}

	d.log.WithField("url", url).
		WithField("dest", dest).
		WithField("bytes", written).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("downloaded video")

	if d.wait > 0 {
		select {
		case <-time.After(d.wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (d *Downloader) fetch(ctx context.Context, url, tmp string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, retry.Permanent(err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, retry.CheckStatus(resp.StatusCode, b)
	}

	f, err := os.Create(tmp)
	if err != nil {
		return 0, retry.Permanent(err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}
