package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/libsync/internal/shared"
	"golang.org/x/oauth2"
)

func tokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":3600}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(tokenURL, redirect string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		RedirectURL:  redirect,
		Endpoint:     oauth2.Endpoint{AuthURL: "https://example.invalid/authorize", TokenURL: tokenURL},
	}
}

func TestOAuthHandler(t *testing.T) {
	tokens := tokenServer(t)

	tc := []struct {
		name       string
		query      string
		wantStatus int
		wantToken  bool
		wantErr    error
	}{
		{name: "valid callback", query: "state=s1&code=good-code", wantStatus: http.StatusOK, wantToken: true},
		{name: "wrong state", query: "state=other&code=good-code", wantStatus: http.StatusBadRequest, wantErr: shared.ErrAuthFailed},
		{name: "denied", query: "state=s1&error=access_denied", wantStatus: http.StatusBadRequest, wantErr: shared.ErrAuthFailed},
		{name: "exchange fails", query: "state=s1&code=bad-code", wantStatus: http.StatusInternalServerError, wantErr: shared.ErrAuthFailed},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			h := NewOAuthHandler(testConfig(tokens.URL, "http://127.0.0.1:3000/callback"), "s1")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?"+tt.query, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}

			result := <-h.Result()
			if tt.wantToken && (result.Token == nil || result.Token.RefreshToken != "rt") {
				t.Errorf("expected refresh token rt, got %+v", result.Token)
			}
			if tt.wantErr != nil && !errors.Is(result.Error(), tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, result.Error())
			}
		})
	}

	t.Run("second callback is rejected", func(t *testing.T) {
		h := NewOAuthHandler(testConfig(tokens.URL, "http://127.0.0.1:3000/callback"), "s1")
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/callback?state=s1&code=good-code", nil))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=s1&code=good-code", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 on replay, got %d", rec.Code)
		}
	})
}

func TestCallbackAddr(t *testing.T) {
	tc := []struct {
		name     string
		redirect string
		addr     string
		path     string
		wantErr  bool
	}{
		{name: "explicit path", redirect: "http://127.0.0.1:3000/callback", addr: "127.0.0.1:3000", path: "/callback"},
		{name: "custom path", redirect: "http://localhost:8888/auth/spotify", addr: "localhost:8888", path: "/auth/spotify"},
		{name: "no path", redirect: "http://127.0.0.1:3000", addr: "127.0.0.1:3000", path: "/callback"},
		{name: "relative", redirect: "/callback", wantErr: true},
		{name: "empty", redirect: "", wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			addr, path, err := CallbackAddr(tt.redirect)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if addr != tt.addr || path != tt.path {
				t.Errorf("expected %s %s, got %s %s", tt.addr, tt.path, addr, path)
			}
		})
	}
}

func TestBasicRouter(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	router := NewBasicRouter()
	router.Use(mw("outer"), mw("inner"))
	router.Handle(http.MethodGet, "/ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "pong")
	}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Body.String() != "pong" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
	if strings.Join(order, ",") != "outer,inner" {
		t.Errorf("middleware ran in order %v", order)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ping", nil))
	if rec.Code != http.StatusMethodNotAllowed || !strings.Contains(rec.Header().Get("Allow"), "GET") {
		t.Errorf("expected 405 with Allow header, got %d %q", rec.Code, rec.Header().Get("Allow"))
	}
}

func TestAwaitCallback(t *testing.T) {
	tokens := tokenServer(t)

	t.Run("returns the exchanged token", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		redirect := "http://" + ln.Addr().String() + "/callback"
		h := NewOAuthHandler(testConfig(tokens.URL, redirect), "s1")

		go func() {
			resp, err := http.Get(redirect + "?state=s1&code=good-code")
			if err == nil {
				resp.Body.Close()
			}
		}()

		var logs bytes.Buffer
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		token, err := AwaitCallback(ctx, ln, h, shared.NewLogger(&logs))
		if err != nil {
			t.Fatalf("AwaitCallback failed: %v", err)
		}
		if token.RefreshToken != "rt" {
			t.Errorf("expected refresh token rt, got %q", token.RefreshToken)
		}
	})

	t.Run("times out", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		h := NewOAuthHandler(testConfig(tokens.URL, "http://"+ln.Addr().String()+"/callback"), "s1")

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		if _, err := AwaitCallback(ctx, ln, h, shared.NewLogger(io.Discard)); !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
	})

	t.Run("reports a failed exchange", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		redirect := "http://" + ln.Addr().String() + "/callback"
		h := NewOAuthHandler(testConfig(tokens.URL, redirect), "s1")

		go func() {
			resp, err := http.Get(redirect + "?state=wrong&code=good-code")
			if err == nil {
				resp.Body.Close()
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := AwaitCallback(ctx, ln, h, shared.NewLogger(io.Discard)); !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
	})
}
