package install

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/woozymasta/launcherd/internal/vars"
)

// ProgressFunc receives the bytes written so far and the expected total (<= 0 if unknown).
// A non-nil return aborts the transfer.
type ProgressFunc func(done, total int64) error

// Transfer fetches the client artifact into dst.
type Transfer interface {
	Fetch(ctx context.Context, dst io.Writer, progress ProgressFunc) error
}

// NewTransfer picks a transfer for source: empty simulates, http(s) downloads,
// anything else (optionally file://) copies a local file.
func NewTransfer(source string, stepDelay time.Duration, client *http.Client) Transfer {
	switch {
	case source == "":
		return SimulatedTransfer{StepDelay: stepDelay}
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		if client == nil {
			client = http.DefaultClient
		}
		return &HTTPTransfer{URL: source, Client: client}
	default:
		return FileTransfer{Path: strings.TrimPrefix(source, "file://")}
	}
}

// SimulatedTransfer reports 100 paced steps and writes nothing.
type SimulatedTransfer struct {
	StepDelay time.Duration
}

// Fetch implements Transfer.
func (s SimulatedTransfer) Fetch(ctx context.Context, _ io.Writer, progress ProgressFunc) error {
	const steps = 100
	for i := 1; i <= steps; i++ {
		if err := sleepCtx(ctx, s.StepDelay); err != nil {
			return err
		}
		if err := progress(int64(i), steps); err != nil {
			return err
		}
	}
	return nil
}

// HTTPTransfer downloads the artifact over HTTP.
type HTTPTransfer struct {
	Client *http.Client
	URL    string
}

// Fetch implements Transfer.
func (h *HTTPTransfer) Fetch(ctx context.Context, dst io.Writer, progress ProgressFunc) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", vars.UserAgent())

	resp, err := h.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %d", h.URL, resp.StatusCode)
	}

	return copyWithProgress(ctx, dst, resp.Body, resp.ContentLength, progress)
}

// FileTransfer copies the artifact from a local path.
type FileTransfer struct {
	Path string
}

// Fetch implements Transfer.
func (f FileTransfer) Fetch(ctx context.Context, dst io.Writer, progress ProgressFunc) error {
	src, err := os.Open(f.Path)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	return copyWithProgress(ctx, dst, src, info.Size(), progress)
}

// copyWithProgress copies in chunks, reporting after each one and checking ctx between them.
func copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, total int64, progress ProgressFunc) error {
	buf := make([]byte, 32*1024)
	var done int64

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return err
			}
			done += int64(n)
			if err := progress(done, total); err != nil {
				return err
			}
		}

		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
