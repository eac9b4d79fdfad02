package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const testUserAgent = "rv/test"

func newTestClient(retries uint) *Client {
	return New(testUserAgent,
		WithRetries(retries),
		WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	)
}

func TestClientDownload(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantErr    bool
		notFound   bool
	}{
		{
			name:       "successful_download",
			statusCode: http.StatusOK,
			body:       "tarball bytes",
		},
		{
			name:       "404_not_found",
			statusCode: http.StatusNotFound,
			body:       "not found",
			wantErr:    true,
			notFound:   true,
		},
		{
			name:       "403_forbidden",
			statusCode: http.StatusForbidden,
			wantErr:    true,
		},
		{
			name:       "500_server_error",
			statusCode: http.StatusInternalServerError,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("User-Agent") != testUserAgent {
					t.Errorf("unexpected User-Agent: %s", r.Header.Get("User-Agent"))
				}
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			dst := filepath.Join(t.TempDir(), "out")
			n, err := newTestClient(1).Download(context.Background(), server.URL, dst)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				var httpErr *HTTPError
				if !errors.As(err, &httpErr) || httpErr.StatusCode != tt.statusCode {
					t.Errorf("error = %v, want HTTPError %d", err, tt.statusCode)
				}
				if IsNotFound(err) != tt.notFound {
					t.Errorf("IsNotFound() = %v, want %v", IsNotFound(err), tt.notFound)
				}
				if _, statErr := os.Stat(dst); !os.IsNotExist(statErr) {
					t.Error("no file should be created for an HTTP error")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			content, err := os.ReadFile(dst)
			if err != nil {
				t.Fatalf("failed to read downloaded file: %v", err)
			}
			if string(content) != tt.body || n != int64(len(tt.body)) {
				t.Errorf("content = %q (%d bytes), want %q", content, n, tt.body)
			}
		})
	}
}

func TestClientDownload_RetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("success"))
	}))
	defer server.Close()

	dst := filepath.Join(t.TempDir(), "out")
	if _, err := newTestClient(3).Download(context.Background(), server.URL, dst); err != nil {
		t.Fatalf("expected success after retries, got error: %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
	content, _ := os.ReadFile(dst)
	if string(content) != "success" {
		t.Errorf("unexpected content: %s", content)
	}
}

func TestClientDownload_NotFoundIsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestClient(3).Download(context.Background(), server.URL, filepath.Join(t.TempDir(), "out"))
	if !IsNotFound(err) {
		t.Fatalf("error = %v, want not found", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("404 was requested %d times, want 1", attempts.Load())
	}
}

func TestClientDownload_TruncatedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		_, _ = w.Write([]byte("partial"))
	}))
	defer server.Close()

	_, err := newTestClient(1).Download(context.Background(), server.URL, filepath.Join(t.TempDir(), "out"))
	if err == nil {
		t.Fatal("expected error for truncated body")
	}
}

func TestClientDownload_Unreachable(t *testing.T) {
	// Grab a free port and close it so nothing is listening
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = newTestClient(2).Download(context.Background(), "http://"+addr+"/x.tar.gz", filepath.Join(t.TempDir(), "out"))
	if err == nil {
		t.Fatal("expected connection error")
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		t.Errorf("connection failure reported as HTTP status: %v", err)
	}
}

func TestClientDownload_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(3).Download(ctx, server.URL, filepath.Join(t.TempDir(), "out"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}

func TestClientGetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte(`{"tag_name":"3.4.5"}`))
		default:
			_, _ = w.Write([]byte(`<html>`))
		}
	}))
	defer server.Close()

	var payload struct {
		TagName string `json:"tag_name"`
	}
	if err := newTestClient(1).GetJSON(context.Background(), server.URL+"/ok", &payload); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if payload.TagName != "3.4.5" {
		t.Errorf("tag_name = %q", payload.TagName)
	}

	err := newTestClient(3).GetJSON(context.Background(), server.URL+"/html", &payload)
	if err == nil || !strings.Contains(err.Error(), "decode") {
		t.Errorf("GetJSON() error = %v, want decode error", err)
	}
}
