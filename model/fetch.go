package model

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Fetch downloads the named model into Dir, resuming a previous
// partial download when the server supports byte ranges. Progress
// goes to stderr. Returns the installed path.
func Fetch(name string) (string, error) {
	info, ok := Lookup(name)
	if !ok {
		return "", fmt.Errorf("unknown model %q (known: %s)", name, strings.Join(Known(), ", "))
	}
	dir := Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model dir: %w", err)
	}
	dest := filepath.Join(dir, info.filename())
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	part := dest + ".part"
	var offset int64
	if fi, err := os.Stat(part); err == nil {
		offset = fi.Size()
	}

	if free, ok := diskFree(dir); ok && free < info.Size-offset {
		return "", fmt.Errorf("not enough disk space for %s: need %d MB free, have %d MB",
			info.Name, (info.Size-offset)/mib, free/mib)
	}

	req, err := http.NewRequest(http.MethodGet, info.url(), nil)
	if err != nil {
		return "", err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download model: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		// Server ignored the range; start over.
		offset = 0
	default:
		return "", fmt.Errorf("download model: %s", resp.Status)
	}

	f, err := openPart(part, offset)
	if err != nil {
		return "", fmt.Errorf("open partial file: %w", err)
	}

	var total int64
	if resp.ContentLength > 0 {
		total = offset + resp.ContentLength
	}
	src := io.Reader(resp.Body)
	if total > 0 {
		src = &progressReader{r: resp.Body, read: offset, total: total}
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return "", fmt.Errorf("write model: %w", err)
	}
	if total > 0 {
		fmt.Fprintln(os.Stderr)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(part, dest); err != nil {
		return "", fmt.Errorf("install model: %w", err)
	}
	return dest, nil
}

func openPart(part string, offset int64) (*os.File, error) {
	if offset > 0 {
		return os.OpenFile(part, os.O_WRONLY|os.O_APPEND, 0o644)
	}
	return os.OpenFile(part, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
}

// progressReader reports download progress at most twice a second.
type progressReader struct {
	r     io.Reader
	total int64
	read  int64
	last  time.Time
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if now := time.Now(); now.Sub(p.last) >= 500*time.Millisecond || p.read == p.total {
		p.last = now
		pct := float64(p.read) / float64(p.total) * 100
		fmt.Fprintf(os.Stderr, "\r  %.0f%% (%d / %d MB)", pct, p.read/mib, p.total/mib)
	}
	return n, err
}
