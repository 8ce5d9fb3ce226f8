// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package acquire downloads the hOCR pages of a charter book from a list of
// URLs into hocr/<book>/.
package acquire

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/time/rate"

	"github.com/pdiddy/charterbook/internal/httputil"
	"github.com/pdiddy/charterbook/pkg/types"
)

// BatchResult holds the outcome of a book download run.
type BatchResult struct {
	Downloaded int
	Skipped    int
	Failed     int
}

// Total returns the total number of URLs processed.
func (r BatchResult) Total() int {
	return r.Downloaded + r.Skipped + r.Failed
}

// HasFailures reports whether any page failed.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// ReadURLs reads one URL per line from path. Blank lines and lines starting
// with # are ignored, and repeated URLs are kept once.
func ReadURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening URL file: %w", err)
	}
	defer f.Close()

	var (
		urls []string
		seen = make(map[string]bool)
	)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || seen[line] {
			continue
		}
		seen[line] = true
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading URL file: %w", err)
	}
	return urls, nil
}

// PageFile returns the file name a page URL is saved under: the last path
// segment, query stripped.
func PageFile(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("no file name in %s", rawURL)
	}
	return name, nil
}

// AcquireBook downloads every URL into cfg.HOCRDir/<book>/. Existing files
// are skipped. A URL whose file name was already taken by a different URL
// in the same run fails rather than overwrite or shadow that page. Requests are paced by a token bucket of
// cfg.RequestsPerSecond and retried on HTTP 429. Failures are counted and
// the run continues; only a cancelled context stops it early.
func AcquireBook(ctx context.Context, client *http.Client, book string, urls []string, cfg types.AcquisitionConfig, w io.Writer) (BatchResult, error) {
	var result BatchResult

	bookDir := filepath.Join(cfg.HOCRDir, book)
	if err := os.MkdirAll(bookDir, 0o755); err != nil {
		return result, fmt.Errorf("creating directory %s: %w", bookDir, err)
	}

	limiter := newLimiter(cfg)

	// owners maps each file name to the URL that claimed it in this run.
	owners := make(map[string]string)

	for _, u := range urls {
		name, err := PageFile(u)
		if err != nil {
			fmt.Fprintf(w, "failed:  %s (%v)\n", u, err)
			result.Failed++
			continue
		}
		if prev, taken := owners[name]; taken && prev != u {
			fmt.Fprintf(w, "failed:  %s (file name %s already used by %s)\n", u, name, prev)
			result.Failed++
			continue
		}
		owners[name] = u
		dest := filepath.Join(bookDir, name)

		if _, err := os.Stat(dest); err == nil {
			fmt.Fprintf(w, "skipped: %s (already exists)\n", name)
			result.Skipped++
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			return result, err
		}

		fmt.Fprintf(w, "downloading: %s\n", name)
		if err := downloadFile(ctx, client, u, dest, cfg); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			fmt.Fprintf(w, "failed:  %s (%v)\n", name, err)
			result.Failed++
			continue
		}
		result.Downloaded++
	}

	fmt.Fprintf(w, "\nBatch summary: %d downloaded, %d skipped, %d failed (total: %d)\n",
		result.Downloaded, result.Skipped, result.Failed, result.Total())
	return result, nil
}

func newLimiter(cfg types.AcquisitionConfig) *rate.Limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if cfg.RequestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
}

// downloadFile fetches url to destPath through a temporary file in the same
// directory, so an interrupted download never leaves a partial page behind.
func downloadFile(ctx context.Context, client *http.Client, url, destPath string, cfg types.AcquisitionConfig) error {
	resp, err := httputil.Get(ctx, client, url, cfg.UserAgent, cfg.MaxRetries)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".acquire-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, copyErr := io.Copy(tmpFile, resp.Body)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing download: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
