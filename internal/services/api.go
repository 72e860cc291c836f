package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/libsync/internal/shared"
)

// StatusError is a non-2xx response.
//
// It unwraps to [shared.ErrTransientAPI] or [shared.ErrPermanentAPI], plus [ErrNotFound] for 404 and
// [shared.ErrNotAuthenticated] for 401.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Detail     string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Transient reports whether the request may succeed if retried.
func (e *StatusError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode >= 500
}

func (e *StatusError) Unwrap() []error {
	errs := []error{shared.ErrPermanentAPI}
	if e.Transient() {
		errs[0] = shared.ErrTransientAPI
	}
	switch e.StatusCode {
	case http.StatusNotFound:
		errs = append(errs, ErrNotFound)
	case http.StatusUnauthorized:
		errs = append(errs, shared.ErrNotAuthenticated)
	}
	return errs
}

// RetryAfterHint extracts the server's requested delay from err, if any.
func RetryAfterHint(err error) time.Duration {
	var se *StatusError
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	return 0
}

// APIService is the JSON transport shared by the catalog clients.
type APIService struct {
	baseURL    string
	httpClient *http.Client
	headers    http.Header
}

// NewAPIService creates a transport for baseURL. A nil client uses [http.DefaultClient].
func NewAPIService(baseURL string, client *http.Client) *APIService {
	if client == nil {
		client = http.DefaultClient
	}
	return &APIService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		headers:    make(http.Header),
	}
}

// SetHeader adds a header sent with every request.
func (a *APIService) SetHeader(key, value string) {
	a.headers.Set(key, value)
}

// Get decodes the JSON response of GET path into result.
func (a *APIService) Get(ctx context.Context, path string, result any) error {
	return a.Do(ctx, http.MethodGet, path, nil, result)
}

// Post sends body as JSON and decodes the response into result, which may be nil.
func (a *APIService) Post(ctx context.Context, path string, body, result any) error {
	return a.Do(ctx, http.MethodPost, path, body, result)
}

// Delete sends a DELETE with an optional JSON body.
func (a *APIService) Delete(ctx context.Context, path string, body any) error {
	return a.Do(ctx, http.MethodDelete, path, body, nil)
}

// Do performs a request. path may be absolute, which paging "next" links rely on.
//
// Transport failures wrap [shared.ErrTransientAPI]; a cancelled context is returned as is.
func (a *APIService) Do(ctx context.Context, method, path string, body, result any) error {
	fullURL := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		fullURL = a.baseURL + path
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range a.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %v", shared.ErrTransientAPI, method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", shared.ErrTransientAPI, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(payload),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	if result != nil && len(bytes.TrimSpace(payload)) > 0 {
		if err := json.Unmarshal(payload, result); err != nil {
			return fmt.Errorf("%w: failed to decode response from %s: %v", shared.ErrPermanentAPI, path, err)
		}
	}
	return nil
}

// errorDetail pulls a message out of FastAPI ({"detail": ...}) and Spotify ({"error": {"message": ...}}) bodies.
func errorDetail(body []byte) string {
	var parsed struct {
		Detail any `json:"detail"`
		Error  any `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return strings.TrimSpace(string(body))
	}
	switch d := parsed.Detail.(type) {
	case string:
		return d
	case nil:
	default:
		b, _ := json.Marshal(d)
		return string(b)
	}
	switch e := parsed.Error.(type) {
	case string:
		return e
	case map[string]any:
		if msg, ok := e["message"].(string); ok {
			return msg
		}
	}
	return ""
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
