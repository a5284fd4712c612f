package downloader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sws-run/sws/internal/errs"
)

func TestGet_SetsConfiguredUserAgent(t *testing.T) {
	var gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("ok"))
	}))
	defer ts.Close()

	d, err := New(Config{UserAgent: "sws-test/9"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := d.Get(context.Background(), ts.URL); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if gotUA != "sws-test/9" {
		t.Errorf("expected configured UA, got %q", gotUA)
	}
}

func TestGet_NonSuccessStatusIsDownloadError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	d, _ := New(Config{})
	_, err := d.Get(context.Background(), ts.URL)
	if err == nil {
		t.Fatal("expected an error for 404 status")
	}
	classified, ok := errs.As(err)
	if !ok || classified.Kind != errs.KindDownload {
		t.Fatalf("expected a classified DownloadError, got %v", err)
	}
}

func TestGet_TimeoutIsDownloadError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	d, _ := New(Config{Timeout: 5 * time.Millisecond})
	_, err := d.Get(context.Background(), ts.URL)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	classified, ok := errs.As(err)
	if !ok || classified.Kind != errs.KindDownload {
		t.Fatalf("expected a classified DownloadError, got %v", err)
	}
}

func TestGet_ReturnsBodyAndStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html></html>"))
	}))
	defer ts.Close()

	d, _ := New(Config{})
	page, err := d.Get(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if page.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", page.StatusCode)
	}
	if string(page.Body) != "<html></html>" {
		t.Errorf("unexpected body: %q", page.Body)
	}
}
