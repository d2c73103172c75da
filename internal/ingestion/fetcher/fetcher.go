// Package fetcher resolves and retrieves tabular data from uploaded files or
// remote spreadsheet exports, tolerating the several export endpoint shapes
// Google Sheets presents depending on sharing settings.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"orderdesk_backend/platform/apperr"
	"orderdesk_backend/platform/logger"
)

const userAgent = "orderdesk-ingest/1.0"

// Source describes where rows come from.
type Source struct {
	Kind        SourceKind `json:"kind"`
	URL         string     `json:"url,omitempty"`
	SheetGID    string     `json:"sheetGid,omitempty"`
	Bucket      string     `json:"bucket,omitempty"`
	ObjectKey   string     `json:"objectKey,omitempty"`
	Filename    string     `json:"filename,omitempty"`
	ContentType string     `json:"contentType,omitempty"`
}

type SourceKind string

const (
	KindURL    SourceKind = "url"
	KindUpload SourceKind = "upload"
)

// Table is the fetched result: a header row and data rows.
type Table struct {
	Headers []string
	Rows    [][]string
}

// ObjectStore abstracts the uploaded-file backend (MinIO in production).
type ObjectStore interface {
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

type Fetcher struct {
	http    *http.Client
	objects ObjectStore
	log     *logger.Logger

	// backoff base, overridable in tests
	retryBase time.Duration
}

func New(timeout time.Duration, objects ObjectStore, log *logger.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Fetcher{
		http:      &http.Client{Timeout: timeout},
		objects:   objects,
		log:       log,
		retryBase: 300 * time.Millisecond,
	}
}

// Fetch retrieves and parses the source into a Table.
func (f *Fetcher) Fetch(ctx context.Context, src Source) (Table, error) {
	switch src.Kind {
	case KindUpload:
		return f.fetchUpload(ctx, src)
	case KindURL:
		return f.fetchRemote(ctx, src)
	default:
		return Table{}, apperr.Validation(fmt.Sprintf("unknown source kind %q", src.Kind))
	}
}

func (f *Fetcher) fetchUpload(ctx context.Context, src Source) (Table, error) {
	if f.objects == nil {
		return Table{}, apperr.Precondition("object storage not configured")
	}
	rc, err := f.objects.Get(ctx, src.Bucket, src.ObjectKey)
	if err != nil {
		return Table{}, apperr.Wrap(apperr.KindUnavailable, "fetch uploaded source", err)
	}
	defer func() {
		_ = rc.Close()
	}()

	return ParseUpload(src.Filename, src.ContentType, rc)
}

func (f *Fetcher) fetchRemote(ctx context.Context, src Source) (Table, error) {
	candidates := CandidateURLs(src.URL, src.SheetGID)
	if len(candidates) == 0 {
		return Table{}, apperr.Validation("source url is empty")
	}

	var lastErr error
	for _, candidate := range candidates {
		body, err := f.fetchCandidate(ctx, candidate)
		if err != nil {
			lastErr = err
			f.log.Debug("source candidate failed", "url", candidate, "error", err.Error())
			continue
		}
		table, err := ParseCSV(bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}
		return table, nil
	}

	return Table{}, apperr.Wrap(apperr.KindUnavailable, "all source candidates failed", lastErr)
}

// fetchCandidate fetches one export URL, retrying up to 3 times with
// exponential backoff only on rate-limit and server-error responses. An HTML
// body (interstitial or permission page) counts as failure for this candidate.
func (f *Fetcher) fetchCandidate(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			delay := f.retryBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		body, retryable, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return nil, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/csv, text/plain, */*")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("source returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("source returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}

	if LooksLikeHTML(data) {
		return nil, false, fmt.Errorf("source returned an HTML document")
	}

	return data, false, nil
}

var sheetIDPattern = regexp.MustCompile(`/spreadsheets/d/(?:e/)?([a-zA-Z0-9-_]+)`)

// CandidateURLs builds the ordered list of export URLs to try for a remote
// spreadsheet. Non-Google URLs are fetched as-is.
func CandidateURLs(rawURL, gid string) []string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || !strings.Contains(parsed.Host, "docs.google.com") {
		return []string{rawURL}
	}

	match := sheetIDPattern.FindStringSubmatch(parsed.Path)
	if match == nil {
		return []string{rawURL}
	}
	id := match[1]

	if gid == "" {
		if g := parsed.Query().Get("gid"); g != "" {
			gid = g
		} else if frag := parsed.Fragment; strings.HasPrefix(frag, "gid=") {
			gid = strings.TrimPrefix(frag, "gid=")
		}
	}

	base := "https://docs.google.com/spreadsheets/d/" + id
	var candidates []string
	if gid != "" {
		candidates = append(candidates, base+"/export?format=csv&gid="+url.QueryEscape(gid))
	}
	candidates = append(candidates,
		base+"/export?format=csv",
		base+"/pub?output=csv",
		base+"/gviz/tq?tqx=out:csv",
	)
	return candidates
}
