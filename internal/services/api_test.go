package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/desertthunder/libsync/internal/shared"
)

func TestAPIService(t *testing.T) {
	ctx := context.Background()

	t.Run("New", func(t *testing.T) {
		srv := NewAPIService("http://example.com/", nil)
		if srv.baseURL != "http://example.com" {
			t.Errorf("expected trailing slash trimmed, got %s", srv.baseURL)
		}
		if srv.httpClient != http.DefaultClient {
			t.Error("expected http.DefaultClient to be used")
		}
	})

	t.Run("Get decodes JSON and sends headers", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				t.Errorf("expected GET method, got %s", r.Method)
			}
			if r.Header.Get("X-Auth-File") != "/tmp/headers.json" {
				t.Errorf("expected auth header, got %q", r.Header.Get("X-Auth-File"))
			}
			json.NewEncoder(w).Encode(map[string]string{"status": "success"})
		}))
		defer server.Close()

		srv := NewAPIService(server.URL, nil)
		srv.SetHeader("X-Auth-File", "/tmp/headers.json")

		var got map[string]string
		if err := srv.Get(ctx, "/test", &got); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got["status"] != "success" {
			t.Errorf("unexpected body %v", got)
		}
	})

	t.Run("Post sends JSON body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("expected JSON content type, got %q", r.Header.Get("Content-Type"))
			}
			body, _ := io.ReadAll(r.Body)
			if string(body) != `{"rating":"LIKE"}` {
				t.Errorf("unexpected body %s", body)
			}
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		if err := NewAPIService(server.URL, nil).Post(ctx, "/rate", map[string]string{"rating": "LIKE"}, nil); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("Status classification", func(t *testing.T) {
		tc := []struct {
			name       string
			status     int
			body       string
			wantClass  Outcome
			wantTarget error
		}{
			{name: "rate limited", status: http.StatusTooManyRequests, wantClass: Transient, wantTarget: shared.ErrTransientAPI},
			{name: "server error", status: http.StatusBadGateway, wantClass: Transient, wantTarget: shared.ErrTransientAPI},
			{name: "not found", status: http.StatusNotFound, body: `{"detail":"Video unavailable"}`, wantClass: Permanent, wantTarget: ErrNotFound},
			{name: "bad request", status: http.StatusBadRequest, wantClass: Permanent, wantTarget: shared.ErrPermanentAPI},
			{name: "unauthorized", status: http.StatusUnauthorized, wantClass: Permanent, wantTarget: shared.ErrNotAuthenticated},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tt.status)
					io.WriteString(w, tt.body)
				}))
				defer server.Close()

				err := NewAPIService(server.URL, nil).Get(ctx, "/x", nil)
				if !errors.Is(err, tt.wantTarget) {
					t.Errorf("expected %v in chain, got %v", tt.wantTarget, err)
				}
				if got := Classify(err); got != tt.wantClass {
					t.Errorf("Classify = %v, want %v", got, tt.wantClass)
				}
			})
		}
	})

	t.Run("Retry-After and detail", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			io.WriteString(w, `{"error":{"status":429,"message":"API rate limit exceeded"}}`)
		}))
		defer server.Close()

		err := NewAPIService(server.URL, nil).Get(ctx, "/x", nil)
		if got := RetryAfterHint(err); got != 3*time.Second {
			t.Errorf("expected 3s hint, got %v", got)
		}
		var se *StatusError
		if !errors.As(err, &se) || se.Detail != "API rate limit exceeded" {
			t.Errorf("expected detail from Spotify error body, got %v", err)
		}
	})

	t.Run("Network failure is transient", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		err := NewAPIService(server.URL, nil).Get(ctx, "/x", nil)
		if Classify(err) != Transient {
			t.Errorf("expected transient, got %v", err)
		}
	})

	t.Run("Cancelled context is not retried", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		defer server.Close()

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := NewAPIService(server.URL, nil).Get(cctx, "/x", nil)
		if !errors.Is(err, context.Canceled) || Classify(err) != Permanent {
			t.Errorf("expected permanent context.Canceled, got %v", err)
		}
	})

	t.Run("Malformed JSON is permanent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "{not json")
		}))
		defer server.Close()

		var out map[string]any
		err := NewAPIService(server.URL, nil).Get(ctx, "/x", &out)
		if !errors.Is(err, shared.ErrPermanentAPI) {
			t.Errorf("expected ErrPermanentAPI, got %v", err)
		}
	})
}

func TestResultOf(t *testing.T) {
	if r := ResultOf(nil); r.Outcome != Success || r.Err != nil {
		t.Errorf("nil error should be success, got %+v", r)
	}
	if r := ResultOf(context.DeadlineExceeded); r.Outcome != Transient {
		t.Errorf("deadline should be transient, got %v", r.Outcome)
	}
	if r := ResultOf(errors.New("boom")); r.Outcome != Permanent {
		t.Errorf("unknown errors should be permanent, got %v", r.Outcome)
	}
}
