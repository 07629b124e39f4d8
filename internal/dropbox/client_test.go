package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/patrickmn/go-cache"
)

// newTestClient points a Client at test servers for both hosts.
func newTestClient(apiServer, contentServer *httptest.Server) *Client {
	c := &Client{
		httpClient:     &http.Client{},
		appKey:         "test-app-key",
		appSecret:      "test-app-secret",
		apiBaseURL:     defaultAPIBaseURL,
		contentBaseURL: defaultContentBaseURL,
		tokens:         cache.New(cache.NoExpiration, 0),
	}
	if apiServer != nil {
		c.apiBaseURL = apiServer.URL
	}
	if contentServer != nil {
		c.contentBaseURL = contentServer.URL
	}
	return c
}

func TestAccessTokenRefreshAndCache(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/oauth2/token" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		r.ParseForm()
		if r.Form.Get("grant_type") != "refresh_token" {
			t.Errorf("grant_type = %s", r.Form.Get("grant_type"))
		}
		if r.Form.Get("refresh_token") != "refresh-abc" {
			t.Errorf("refresh_token = %s", r.Form.Get("refresh_token"))
		}
		if r.Form.Get("client_id") != "test-app-key" || r.Form.Get("client_secret") != "test-app-secret" {
			t.Error("app credentials missing from token request")
		}
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "access-xyz", TokenType: "bearer", ExpiresIn: 14400})
	}))
	defer server.Close()

	c := newTestClient(server, nil)

	tok, err := c.AccessToken(context.Background(), "ws-1", "refresh-abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok != "access-xyz" {
		t.Errorf("token = %s", tok)
	}

	// Second call must come from cache.
	if _, err := c.AccessToken(context.Background(), "ws-1", "refresh-abc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("token endpoint called %d times, want 1", calls)
	}

	// Invalidation forces a refresh.
	c.InvalidateToken("ws-1")
	if _, err := c.AccessToken(context.Background(), "ws-1", "refresh-abc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("token endpoint called %d times after invalidation, want 2", calls)
	}
}

func TestAccessTokenInvalidGrant(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(tokenErrorResponse{Error: "invalid_grant", ErrorDescription: "refresh token is revoked"})
	}))
	defer server.Close()

	c := newTestClient(server, nil)
	_, err := c.AccessToken(context.Background(), "ws-1", "revoked-token")

	var reauth *ReauthRequiredError
	if !errors.As(err, &reauth) {
		t.Fatalf("error = %v, want ReauthRequiredError", err)
	}
	if !strings.Contains(reauth.Reason, "revoked") {
		t.Errorf("reason = %q", reauth.Reason)
	}
}

func TestUploadFileSingleShot(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 4096)
	var gotArg string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/files/upload" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer access-xyz" {
			t.Errorf("authorization = %s", r.Header.Get("Authorization"))
		}
		gotArg = r.Header.Get("Dropbox-API-Arg")
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	local := filepath.Join(t.TempDir(), "photo.jpg")
	if err := os.WriteFile(local, payload, 0o644); err != nil {
		t.Fatal(err)
	}

	c := newTestClient(nil, server)
	if err := c.UploadFile(context.Background(), "access-xyz", local, "/Exports/photo.jpg", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var commit commitInfo
	if err := json.Unmarshal([]byte(gotArg), &commit); err != nil {
		t.Fatalf("parse Dropbox-API-Arg: %v", err)
	}
	if commit.Path != "/Exports/photo.jpg" {
		t.Errorf("path = %s", commit.Path)
	}
	if commit.Mode != "overwrite" {
		t.Errorf("mode = %s, want overwrite", commit.Mode)
	}
	if commit.Autorename {
		t.Error("autorename must be false so retries overwrite in place")
	}
	if !bytes.Equal(gotBody, payload) {
		t.Errorf("uploaded %d bytes, want %d", len(gotBody), len(payload))
	}
}

func TestUploadSessionChunkMath(t *testing.T) {
	// 20MB with 8MB chunks must produce exactly start + append + finish.
	size := int64(20 << 20)
	payload := bytes.Repeat([]byte("y"), int(size))

	var endpoints []string
	var offsets []string
	var finishArg string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoints = append(endpoints, r.URL.Path)
		arg := r.Header.Get("Dropbox-API-Arg")
		body, _ := io.ReadAll(r.Body)

		switch r.URL.Path {
		case "/2/files/upload_session/start":
			if len(body) != chunkSize {
				t.Errorf("start chunk = %d bytes, want %d", len(body), chunkSize)
			}
			json.NewEncoder(w).Encode(sessionStartResponse{SessionID: "sess-1"})
		case "/2/files/upload_session/append_v2":
			offsets = append(offsets, arg)
			if len(body) != chunkSize {
				t.Errorf("append chunk = %d bytes, want %d", len(body), chunkSize)
			}
			w.Write([]byte(`{}`))
		case "/2/files/upload_session/finish":
			finishArg = arg
			if len(body) != int(size)-2*chunkSize {
				t.Errorf("finish chunk = %d bytes, want %d", len(body), int(size)-2*chunkSize)
			}
			w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected endpoint: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	var progress [][2]int
	c := newTestClient(nil, server)
	err := c.uploadSession(context.Background(), "access-xyz", bytes.NewReader(payload), size, "/Exports/booth.mp4",
		func(chunk, total int, _ int64) {
			progress = append(progress, [2]int{chunk, total})
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"/2/files/upload_session/start",
		"/2/files/upload_session/append_v2",
		"/2/files/upload_session/finish",
	}
	if len(endpoints) != len(want) {
		t.Fatalf("endpoints = %v, want %v", endpoints, want)
	}
	for i := range want {
		if endpoints[i] != want[i] {
			t.Errorf("endpoints[%d] = %s, want %s", i, endpoints[i], want[i])
		}
	}

	if len(offsets) != 1 || !strings.Contains(offsets[0], `"offset":8388608`) {
		t.Errorf("append offsets = %v", offsets)
	}
	if !strings.Contains(finishArg, `"offset":16777216`) {
		t.Errorf("finish arg = %s", finishArg)
	}
	if !strings.Contains(finishArg, `"mode":"overwrite"`) {
		t.Errorf("finish commit must overwrite, arg = %s", finishArg)
	}
	if !strings.Contains(finishArg, `"session_id":"sess-1"`) {
		t.Errorf("finish arg = %s", finishArg)
	}

	wantProgress := [][2]int{{1, 3}, {2, 3}, {3, 3}}
	if len(progress) != len(wantProgress) {
		t.Fatalf("progress = %v, want %v", progress, wantProgress)
	}
	for i := range wantProgress {
		if progress[i] != wantProgress[i] {
			t.Errorf("progress[%d] = %v, want %v", i, progress[i], wantProgress[i])
		}
	}
}

func TestClassifyUploadError(t *testing.T) {
	t.Run("401 requires reauth", func(t *testing.T) {
		err := classifyUploadError(401, `{}`, "/p", "")
		var reauth *ReauthRequiredError
		if !errors.As(err, &reauth) {
			t.Fatalf("error = %v", err)
		}
	})

	t.Run("400 invalid_grant requires reauth", func(t *testing.T) {
		err := classifyUploadError(400, `{"error_summary":"invalid_grant/..."}`, "/p", "")
		var reauth *ReauthRequiredError
		if !errors.As(err, &reauth) {
			t.Fatalf("error = %v", err)
		}
	})

	t.Run("409 insufficient space", func(t *testing.T) {
		err := classifyUploadError(409, `{"error_summary":"path/insufficient_space/.."}`, "/Exports/a.jpg", "")
		var space *InsufficientSpaceError
		if !errors.As(err, &space) {
			t.Fatalf("error = %v", err)
		}
		if space.Path != "/Exports/a.jpg" {
			t.Errorf("path = %s", space.Path)
		}
	})

	t.Run("429 rate limited with retry-after", func(t *testing.T) {
		err := classifyUploadError(429, `{}`, "/p", "12")
		var rate *RateLimitedError
		if !errors.As(err, &rate) {
			t.Fatalf("error = %v", err)
		}
		if rate.RetryAfter != 12 {
			t.Errorf("retry after = %d, want 12", rate.RetryAfter)
		}
	})

	t.Run("other statuses are plain upload errors", func(t *testing.T) {
		err := classifyUploadError(500, "internal", "/p", "")
		var up *UploadError
		if !errors.As(err, &up) {
			t.Fatalf("error = %v", err)
		}
		if up.Status != 500 {
			t.Errorf("status = %d", up.Status)
		}
	})

	t.Run("409 without space marker is a plain upload error", func(t *testing.T) {
		err := classifyUploadError(409, `{"error_summary":"path/conflict/file"}`, "/p", "")
		var up *UploadError
		if !errors.As(err, &up) {
			t.Fatalf("error = %v", err)
		}
	})
}

func TestUploadFileRejectsOversize(t *testing.T) {
	local := filepath.Join(t.TempDir(), "huge.bin")
	f, err := os.Create(local)
	if err != nil {
		t.Fatal(err)
	}
	// Sparse file over the 500MB ceiling; no real bytes written.
	if err := f.Truncate(maxUploadSize + 1); err != nil {
		t.Fatal(err)
	}
	f.Close()

	c := newTestClient(nil, nil)
	err = c.UploadFile(context.Background(), "tok", local, "/Exports/huge.bin", nil)
	if err == nil || !strings.Contains(err.Error(), "export limit") {
		t.Fatalf("error = %v, want export limit rejection", err)
	}
}

func TestAPIArgEscapesNonASCII(t *testing.T) {
	arg, err := apiArg(newCommitInfo("/Exports/café.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.ContainsRune(arg, 'é') {
		t.Errorf("arg should escape non-ASCII: %s", arg)
	}
	if !strings.Contains(arg, `caf\u00e9`) {
		t.Errorf("arg should contain the escaped rune: %s", arg)
	}
}
