package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// singleUploadLimit is the Dropbox files/upload size ceiling. Files at
	// or above this use an upload session.
	singleUploadLimit = 150 << 20

	// chunkSize is the session append size. Dropbox requires non-final
	// chunks to be multiples of 4MB; 8MB balances call count against the
	// memory held per chunk.
	chunkSize = 8 << 20

	// maxUploadSize is this deployment's export ceiling.
	maxUploadSize = 500 << 20
)

// ProgressFunc reports chunked upload progress. chunk is 1-based.
type ProgressFunc func(chunk, totalChunks int, bytesSent int64)

// commitInfo is the Dropbox-API-Arg commit payload. Mode is always
// overwrite: job retries must be able to re-deliver the same file without
// conflict copies piling up in the operator's folder.
type commitInfo struct {
	Path       string `json:"path"`
	Mode       string `json:"mode"`
	Autorename bool   `json:"autorename"`
	Mute       bool   `json:"mute"`
}

func newCommitInfo(path string) commitInfo {
	return commitInfo{Path: path, Mode: "overwrite", Autorename: false, Mute: true}
}

// UploadFile delivers a local file to the given Dropbox path, choosing the
// single-shot or session flow by size. progress may be nil.
func (c *Client) UploadFile(ctx context.Context, accessToken, localPath, dropboxPath string, progress ProgressFunc) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stat upload source: %w", err)
	}
	if info.Size() > maxUploadSize {
		return fmt.Errorf("file %s is %d bytes, over the %d byte export limit", localPath, info.Size(), int64(maxUploadSize))
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open upload source: %w", err)
	}
	defer f.Close()

	log.Info().
		Str("local_path", localPath).
		Str("dropbox_path", dropboxPath).
		Int64("bytes", info.Size()).
		Bool("chunked", info.Size() >= singleUploadLimit).
		Msg("Starting Dropbox upload")

	if info.Size() < singleUploadLimit {
		return c.uploadSingle(ctx, accessToken, f, info.Size(), dropboxPath)
	}
	return c.uploadSession(ctx, accessToken, f, info.Size(), dropboxPath, progress)
}

// uploadSingle sends the whole file in one files/upload call.
func (c *Client) uploadSingle(ctx context.Context, accessToken string, r io.Reader, size int64, dropboxPath string) error {
	arg, err := apiArg(newCommitInfo(dropboxPath))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, dataTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.contentBaseURL+"/2/files/upload", r)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Dropbox-API-Arg", arg)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return classifyUploadError(resp.StatusCode, string(body), dropboxPath, resp.Header.Get("Retry-After"))
	}

	log.Info().Str("dropbox_path", dropboxPath).Int64("bytes", size).Msg("Dropbox upload complete")
	return nil
}

// sessionStartResponse is the JSON body of upload_session/start.
type sessionStartResponse struct {
	SessionID string `json:"session_id"`
}

// uploadSession streams the file through an upload session: start carries the
// first chunk, append_v2 the middle ones, finish the last chunk plus commit.
func (c *Client) uploadSession(ctx context.Context, accessToken string, r io.Reader, size int64, dropboxPath string, progress ProgressFunc) error {
	totalChunks := int((size + chunkSize - 1) / chunkSize)
	buf := make([]byte, chunkSize)
	var offset int64
	var sessionID string

	for chunk := 1; chunk <= totalChunks; chunk++ {
		n, err := io.ReadFull(r, buf)
		if err != nil && err != io.ErrUnexpectedEOF {
			return fmt.Errorf("read chunk %d: %w", chunk, err)
		}
		data := buf[:n]
		last := chunk == totalChunks

		switch {
		case chunk == 1 && last:
			// A session for a single chunk never happens given the size
			// threshold, but the flow stays correct if the limits change.
			sessionID, err = c.sessionStart(ctx, accessToken, data)
			if err == nil {
				err = c.sessionFinish(ctx, accessToken, sessionID, nil, offset+int64(n), dropboxPath)
			}
		case chunk == 1:
			sessionID, err = c.sessionStart(ctx, accessToken, data)
		case last:
			err = c.sessionFinish(ctx, accessToken, sessionID, data, offset, dropboxPath)
		default:
			err = c.sessionAppend(ctx, accessToken, sessionID, data, offset)
		}
		if err != nil {
			return fmt.Errorf("upload session chunk %d/%d: %w", chunk, totalChunks, err)
		}

		offset += int64(n)
		if progress != nil {
			progress(chunk, totalChunks, offset)
		}
		log.Debug().
			Int("chunk", chunk).
			Int("total_chunks", totalChunks).
			Int64("bytes_sent", offset).
			Msg("Upload session chunk sent")
	}

	log.Info().
		Str("dropbox_path", dropboxPath).
		Int64("bytes", size).
		Int("chunks", totalChunks).
		Msg("Dropbox session upload complete")
	return nil
}

func (c *Client) sessionStart(ctx context.Context, accessToken string, data []byte) (string, error) {
	body, err := c.contentCall(ctx, accessToken, "/2/files/upload_session/start", `{"close":false}`, data, "")
	if err != nil {
		return "", err
	}
	var start sessionStartResponse
	if err := json.Unmarshal(body, &start); err != nil {
		return "", fmt.Errorf("parse session start response: %w", err)
	}
	if start.SessionID == "" {
		return "", fmt.Errorf("session start response missing session_id")
	}
	return start.SessionID, nil
}

func (c *Client) sessionAppend(ctx context.Context, accessToken, sessionID string, data []byte, offset int64) error {
	arg := fmt.Sprintf(`{"cursor":{"session_id":%q,"offset":%d},"close":false}`, sessionID, offset)
	_, err := c.contentCall(ctx, accessToken, "/2/files/upload_session/append_v2", arg, data, "")
	return err
}

func (c *Client) sessionFinish(ctx context.Context, accessToken, sessionID string, data []byte, offset int64, dropboxPath string) error {
	commit, err := apiArg(newCommitInfo(dropboxPath))
	if err != nil {
		return err
	}
	arg := fmt.Sprintf(`{"cursor":{"session_id":%q,"offset":%d},"commit":%s}`, sessionID, offset, commit)
	_, err = c.contentCall(ctx, accessToken, "/2/files/upload_session/finish", arg, data, dropboxPath)
	return err
}

// contentCall posts one content-endpoint request with the standard headers
// and the per-call data timeout. path is only used for error classification.
func (c *Client) contentCall(ctx context.Context, accessToken, endpoint, arg string, data []byte, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, dataTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.contentBaseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Dropbox-API-Arg", arg)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, classifyUploadError(resp.StatusCode, string(body), path, resp.Header.Get("Retry-After"))
	}

	log.Debug().
		Str("endpoint", endpoint).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("Dropbox content call complete")
	return body, nil
}
