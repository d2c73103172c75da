package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"orderdesk_backend/platform/logger"
)

func newTestFetcher() *Fetcher {
	f := New(5*time.Second, nil, logger.New("development"))
	f.retryBase = time.Millisecond
	return f
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("id,statut\nCMD-1,confirmé\n"))
	}))
	defer srv.Close()

	table, err := newTestFetcher().Fetch(context.Background(), Source{Kind: KindURL, URL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	if len(table.Rows) != 1 || table.Rows[0][0] != "CMD-1" {
		t.Fatalf("table = %+v", table)
	}
}

func TestFetch_GivesUpAfterThreeAttempts(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestFetcher().Fetch(context.Background(), Source{Kind: KindURL, URL: srv.URL})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestFetch_HTMLBodyIsNotRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		_, _ = w.Write([]byte("<!DOCTYPE html><html><body>Sign in to continue</body></html>"))
	}))
	defer srv.Close()

	_, err := newTestFetcher().Fetch(context.Background(), Source{Kind: KindURL, URL: srv.URL})
	if err == nil {
		t.Fatal("expected error for HTML body")
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (permission pages do not recover on retry)", attempts)
	}
}

func TestFetch_NotFoundIsNotRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestFetcher().Fetch(context.Background(), Source{Kind: KindURL, URL: srv.URL})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

func TestFetch_UploadWithoutStorage(t *testing.T) {
	_, err := newTestFetcher().Fetch(context.Background(), Source{Kind: KindUpload, Bucket: "b", ObjectKey: "k"})
	if err == nil {
		t.Fatal("expected error when object storage is not configured")
	}
}

func TestCandidateURLs_GoogleSheet(t *testing.T) {
	raw := "https://docs.google.com/spreadsheets/d/abc123XYZ/edit#gid=42"

	got := CandidateURLs(raw, "")
	want := []string{
		"https://docs.google.com/spreadsheets/d/abc123XYZ/export?format=csv&gid=42",
		"https://docs.google.com/spreadsheets/d/abc123XYZ/export?format=csv",
		"https://docs.google.com/spreadsheets/d/abc123XYZ/pub?output=csv",
		"https://docs.google.com/spreadsheets/d/abc123XYZ/gviz/tq?tqx=out:csv",
	}
	if len(got) != len(want) {
		t.Fatalf("candidates = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("candidate %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCandidateURLs_ExplicitGIDWins(t *testing.T) {
	raw := "https://docs.google.com/spreadsheets/d/abc/edit#gid=42"
	got := CandidateURLs(raw, "7")
	if got[0] != "https://docs.google.com/spreadsheets/d/abc/export?format=csv&gid=7" {
		t.Fatalf("candidate 0 = %q", got[0])
	}
}

func TestCandidateURLs_NonGooglePassthrough(t *testing.T) {
	raw := "https://example.com/export.csv"
	got := CandidateURLs(raw, "")
	if len(got) != 1 || got[0] != raw {
		t.Fatalf("candidates = %v", got)
	}
}

func TestCandidateURLs_Empty(t *testing.T) {
	if got := CandidateURLs("   ", ""); got != nil {
		t.Fatalf("candidates = %v", got)
	}
}
