package dropbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
)

const (
	// defaultAPIBaseURL serves RPC-style endpoints (token exchange lives on
	// the api host, not the content host).
	defaultAPIBaseURL = "https://api.dropboxapi.com"

	// defaultContentBaseURL serves upload endpoints.
	defaultContentBaseURL = "https://content.dropboxapi.com"

	// tokenTimeout bounds the OAuth refresh call.
	tokenTimeout = 30 * time.Second

	// dataTimeout bounds each content-carrying call. Chunked sessions apply
	// it per chunk, not per file.
	dataTimeout = 120 * time.Second

	// tokenCacheSlack is subtracted from the token's expires_in so a cached
	// token is never handed out moments before Dropbox rejects it.
	tokenCacheSlack = 5 * time.Minute
)

// Client talks to the Dropbox API on behalf of one app registration.
// Per-workspace refresh tokens are supplied per call; short-lived access
// tokens are cached per workspace.
type Client struct {
	httpClient     *http.Client
	appKey         string
	appSecret      string
	apiBaseURL     string
	contentBaseURL string
	tokens         *cache.Cache
}

// NewClient creates a Dropbox client for the given app credentials.
func NewClient(appKey, appSecret string) *Client {
	return &Client{
		// No client-level timeout: per-call deadlines differ between token
		// and content endpoints and are set via context.
		httpClient:     &http.Client{},
		appKey:         appKey,
		appSecret:      appSecret,
		apiBaseURL:     defaultAPIBaseURL,
		contentBaseURL: defaultContentBaseURL,
		tokens:         cache.New(cache.NoExpiration, 10*time.Minute),
	}
}

// tokenResponse is the JSON body of a successful oauth2/token call.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// tokenErrorResponse is the JSON body of a failed oauth2/token call.
type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// AccessToken exchanges the workspace's refresh token for a short-lived
// access token, serving from cache while the cached token is still fresh.
func (c *Client) AccessToken(ctx context.Context, workspaceID, refreshToken string) (string, error) {
	if tok, ok := c.tokens.Get(workspaceID); ok {
		return tok.(string), nil
	}

	ctx, cancel := context.WithTimeout(ctx, tokenTimeout)
	defer cancel()

	params := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.appKey},
		"client_secret": {c.appSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBaseURL+"/oauth2/token",
		strings.NewReader(params.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var terr tokenErrorResponse
		if err := json.Unmarshal(body, &terr); err == nil && terr.Error == "invalid_grant" {
			log.Warn().
				Str("workspace_id", workspaceID).
				Str("description", terr.ErrorDescription).
				Msg("Dropbox refresh token revoked")
			return "", &ReauthRequiredError{Reason: terr.ErrorDescription}
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return "", &ReauthRequiredError{Reason: "token endpoint returned 401"}
		}
		return "", &UploadError{Status: resp.StatusCode, Body: truncate(string(body), 200)}
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}

	ttl := time.Duration(tok.ExpiresIn)*time.Second - tokenCacheSlack
	if ttl > 0 {
		c.tokens.Set(workspaceID, tok.AccessToken, ttl)
	}
	log.Debug().
		Str("workspace_id", workspaceID).
		Int64("expires_in", tok.ExpiresIn).
		Msg("Dropbox access token refreshed")
	return tok.AccessToken, nil
}

// InvalidateToken drops the cached access token for a workspace. Called when
// an upload comes back 401 so the next attempt refreshes.
func (c *Client) InvalidateToken(workspaceID string) {
	c.tokens.Delete(workspaceID)
}

// classifyUploadError maps a non-2xx upload response to a typed error.
func classifyUploadError(status int, body, path, retryAfterHeader string) error {
	switch {
	case status == http.StatusUnauthorized:
		return &ReauthRequiredError{Reason: "upload returned 401"}
	case status == http.StatusBadRequest && strings.Contains(body, "invalid_grant"):
		return &ReauthRequiredError{Reason: "upload returned invalid_grant"}
	case status == http.StatusConflict && strings.Contains(body, "insufficient_space"):
		return &InsufficientSpaceError{Path: path}
	case status == http.StatusTooManyRequests:
		return &RateLimitedError{RetryAfter: parseRetryAfter(retryAfterHeader)}
	default:
		return &UploadError{Status: status, Body: truncate(body, 200)}
	}
}

// apiArg serializes a value for the Dropbox-API-Arg header. Dropbox requires
// non-ASCII characters escaped in this header.
func apiArg(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal api arg: %w", err)
	}
	var b strings.Builder
	for _, r := range string(data) {
		if r > 126 {
			b.WriteString(fmt.Sprintf(`\u%04x`, r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// parseRetryAfter reads a Retry-After header value in seconds.
func parseRetryAfter(h string) int {
	if h == "" {
		return 0
	}
	n, err := strconv.Atoi(h)
	if err != nil {
		return 0
	}
	return n
}
