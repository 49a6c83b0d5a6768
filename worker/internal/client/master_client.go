// Package client talks to the coordinator: registration, heartbeats, work
// acquisition, chunked file transfer, progress, and terminal reports.
// Generalized from a poll-a-job/report-complete shape to the full RPC
// surface.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/avfarm/common/models"
	"github.com/avfarm/common/utils"
)

// ErrNoWork is returned by Next when the coordinator has nothing to assign.
var ErrNoWork = errors.New("no work available")

// ErrStaleLease is returned when the coordinator rejects a call because
// the lease token no longer matches the current assignment.
var ErrStaleLease = errors.New("stale lease")

type Client struct {
	baseURL  string
	workerID string
	http     *utils.HTTPClient
}

func New(baseURL, workerID string) *Client {
	return &Client{
		baseURL:  baseURL,
		workerID: workerID,
		http:     utils.NewHTTPClient(utils.WithTimeout(30 * time.Second)),
	}
}

func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.RegisterResponse, error) {
	var resp models.RegisterResponse
	if err := c.postJSON(ctx, "/workers/register", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Heartbeat(ctx context.Context, req models.HeartbeatRequest) (*models.HeartbeatResponse, error) {
	var resp models.HeartbeatResponse
	path := fmt.Sprintf("/workers/%s/heartbeat", c.workerID)
	if err := c.postJSON(ctx, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Next(ctx context.Context) (*models.NextAssignment, error) {
	var resp models.NextResponse
	path := fmt.Sprintf("/workers/%s/next", c.workerID)
	if err := c.postJSON(ctx, path, struct{}{}, &resp); err != nil {
		return nil, err
	}
	if resp.NoWork || resp.Assignment == nil {
		return nil, ErrNoWork
	}
	return resp.Assignment, nil
}

func (c *Client) Progress(ctx context.Context, fileID int64, req models.ProgressRequest) error {
	path := fmt.Sprintf("/files/%d/progress", fileID)
	var resp models.ReportResponse
	return c.postJSON(ctx, path, req, &resp)
}

func (c *Client) Report(ctx context.Context, fileID int64, req models.ReportRequest) error {
	path := fmt.Sprintf("/files/%d/report", fileID)
	var resp models.ReportResponse
	return c.postJSON(ctx, path, req, &resp)
}

// Download streams the source file for fileID into destPath, resuming
// from destPath's current size if it's a partial download from a prior
// attempt, and verifies the end-to-end SHA-256 once complete.
func (c *Client) Download(ctx context.Context, fileID int64, destPath string) error {
	var offset int64
	if info, err := os.Stat(destPath); err == nil {
		offset = info.Size()
	}

	url := fmt.Sprintf("%s/files/%d/bytes?offset=%d", c.baseURL, fileID, offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return &models.TransferError{Kind: "io_error", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return ErrStaleLease
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		body, _ := io.ReadAll(resp.Body)
		return &models.TransferError{Kind: "io_error", Message: fmt.Sprintf("status %d: %s", resp.StatusCode, body)}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	// #nosec G304 - destPath is the worker's own temp directory, not attacker-controlled
	f, err := os.OpenFile(destPath, flags, 0o644)
	if err != nil {
		return &models.TransferError{Kind: "io_error", Message: err.Error()}
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return &models.TransferError{Kind: "io_error", Message: err.Error()}
	}

	wantHash := resp.Header.Get("X-Content-Hash")
	if wantHash != "" {
		match, err := utils.VerifyFileSHA256(destPath, wantHash)
		if err != nil {
			return &models.TransferError{Kind: "io_error", Message: err.Error()}
		}
		if !match {
			return &models.TransferError{Kind: "hash_mismatch", Message: "downloaded content hash does not match"}
		}
	}
	return nil
}

// Upload sends the encoded output at localPath to the coordinator,
// attaching the lease token and the file's SHA-256 as request headers.
func (c *Client) Upload(ctx context.Context, fileID int64, leaseToken, localPath string) (*models.UploadAccepted, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, &models.TransferError{Kind: "io_error", Message: err.Error()}
	}
	defer f.Close()

	hash, err := utils.CalculateFileSHA256(localPath)
	if err != nil {
		return nil, &models.TransferError{Kind: "io_error", Message: err.Error()}
	}

	info, err := f.Stat()
	if err != nil {
		return nil, &models.TransferError{Kind: "io_error", Message: err.Error()}
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, &models.TransferError{Kind: "io_error", Message: err.Error()}
	}

	url := fmt.Sprintf("%s/files/%d/result", c.baseURL, fileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, f)
	if err != nil {
		return nil, err
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Lease-Token", leaseToken)
	req.Header.Set("X-Content-Hash", hash)
	req.Header.Set("X-Output-Size", fmt.Sprintf("%d", info.Size()))

	// localPath is read once as f above; a retry needs its own fresh handle
	// seeked back to the start rather than replaying the already-drained f.
	req.GetBody = func() (io.ReadCloser, error) {
		rf, openErr := os.Open(localPath)
		if openErr != nil {
			return nil, openErr
		}
		return rf, nil
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, &models.TransferError{Kind: "io_error", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return nil, ErrStaleLease
	}

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		var rejected models.UploadRejected
		if json.Unmarshal(body, &rejected) == nil && rejected.Rejected {
			return nil, fmt.Errorf("upload rejected: %s", rejected.Reason)
		}
		return nil, &models.TransferError{Kind: "io_error", Message: fmt.Sprintf("status %d: %s", resp.StatusCode, body)}
	}

	var accepted models.UploadAccepted
	if err := json.Unmarshal(body, &accepted); err != nil {
		return nil, &models.TransferError{Kind: "io_error", Message: err.Error()}
	}
	return &accepted, nil
}

func (c *Client) postJSON(ctx context.Context, path string, reqBody, respBody any) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return ErrStaleLease
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	return json.NewDecoder(resp.Body).Decode(respBody)
}
