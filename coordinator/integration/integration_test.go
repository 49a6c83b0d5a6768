// Package integration exercises the coordinator's HTTP surface end to end,
// in-process, against the real Store/Registry/EventBus/Server stack.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/avfarm/common/models"
	"github.com/avfarm/common/utils"
	"github.com/avfarm/coordinator/internal/config"
	"github.com/avfarm/coordinator/internal/eventbus"
	"github.com/avfarm/coordinator/internal/registry"
	"github.com/avfarm/coordinator/internal/scanner"
	"github.com/avfarm/coordinator/internal/server"
	"github.com/avfarm/coordinator/internal/store"
)

func newTestServer(t *testing.T, mediaRoot string) (*httptest.Server, *store.Store) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "coordinator.db")
	st, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfgPath := filepath.Join(t.TempDir(), "cluster.json")
	configMgr, err := config.NewManager(cfgPath, config.DefaultClusterConfig())
	if err != nil {
		t.Fatalf("failed to create config manager: %v", err)
	}

	scn := scanner.New(mediaRoot, []string{".mp4", ".mkv"}, 4)
	srv := server.New("127.0.0.1:0", server.Deps{
		Store:     st,
		Registry:  registry.New(),
		Bus:       eventbus.New(),
		ConfigMgr: configMgr,
		Scanner:   scn,
		MediaRoot: mediaRoot,
		TempDir:   t.TempDir(),
	})

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, st
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body, out any) *http.Response {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request: %v", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	resp, err := http.Post(ts.URL+path, "application/json", reqBody)
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response from %s: %v", path, err)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("failed to decode response from %s: %v (%s)", path, err, raw)
		}
	}
	return resp
}

// TestFullConversionLifecycle drives one file through register, claim,
// download, upload, and report, and asserts the coordinator replaced the
// original with the (fake, undersized) encoded candidate.
func TestFullConversionLifecycle(t *testing.T) {
	mediaRoot := t.TempDir()
	sourcePath := filepath.Join(mediaRoot, "movie.mp4")
	sourceContent := bytes.Repeat([]byte("original-source-bytes"), 1000)
	if err := os.WriteFile(sourcePath, sourceContent, 0o600); err != nil {
		t.Fatalf("failed to write source file: %v", err)
	}

	ts, st := newTestServer(t, mediaRoot)

	scanResp := postJSON(t, ts, "/admin/scan", nil, &models.AdminScanResponse{})
	if scanResp.StatusCode != http.StatusOK {
		t.Fatalf("scan failed: %d", scanResp.StatusCode)
	}

	files, err := st.ListFiles(context.Background(), "", 10)
	if err != nil || len(files) != 1 {
		t.Fatalf("expected exactly one scanned file, got %d files, err=%v", len(files), err)
	}
	fileID := files[0].ID

	var regResp models.RegisterResponse
	postJSON(t, ts, "/workers/register", models.RegisterRequest{
		WorkerID: "worker-1",
		Hostname: "test-host",
	}, &regResp)
	if !regResp.Accepted {
		t.Fatalf("expected registration to be accepted")
	}

	var nextResp models.NextResponse
	postJSON(t, ts, "/workers/worker-1/next", nil, &nextResp)
	if nextResp.Assignment == nil || nextResp.Assignment.FileID != fileID {
		t.Fatalf("expected an assignment for file %d, got %+v", fileID, nextResp.Assignment)
	}
	leaseToken := nextResp.Assignment.LeaseToken

	downloadResp, err := http.Get(fmt.Sprintf("%s/files/%d/bytes", ts.URL, fileID))
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	downloaded, err := io.ReadAll(downloadResp.Body)
	_ = downloadResp.Body.Close()
	if err != nil || !bytes.Equal(downloaded, sourceContent) {
		t.Fatalf("downloaded content mismatch: err=%v", err)
	}

	candidate := bytes.Repeat([]byte("x"), len(sourceContent)/4)
	candidateFile := filepath.Join(t.TempDir(), "candidate.mkv")
	if err := os.WriteFile(candidateFile, candidate, 0o600); err != nil {
		t.Fatalf("failed to write candidate file: %v", err)
	}
	hash, err := utils.CalculateFileSHA256(candidateFile)
	if err != nil {
		t.Fatalf("failed to hash candidate: %v", err)
	}

	uploadReq, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/files/%d/result", ts.URL, fileID), bytes.NewReader(candidate))
	if err != nil {
		t.Fatalf("failed to build upload request: %v", err)
	}
	uploadReq.Header.Set("X-Lease-Token", leaseToken)
	uploadReq.Header.Set("X-Content-Hash", hash)
	uploadResp, err := http.DefaultClient.Do(uploadReq)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	var uploadAccepted models.UploadAccepted
	raw, _ := io.ReadAll(uploadResp.Body)
	_ = uploadResp.Body.Close()
	if err := json.Unmarshal(raw, &uploadAccepted); err != nil || !uploadAccepted.Accepted {
		t.Fatalf("upload not accepted: %s (err=%v)", raw, err)
	}

	var reportResp models.ReportResponse
	postJSON(t, ts, fmt.Sprintf("/files/%d/report", fileID), models.ReportRequest{
		LeaseToken: leaseToken,
		Outcome: models.Outcome{
			Success: &models.SuccessOutcome{OutputSize: int64(len(candidate)), ContentHash: hash},
		},
	}, &reportResp)
	if !reportResp.OK {
		t.Fatalf("expected report to succeed")
	}

	final, err := st.GetFile(context.Background(), fileID)
	if err != nil {
		t.Fatalf("failed to refetch file: %v", err)
	}
	if final.Status != "completed" {
		t.Fatalf("expected file to be completed, got %q", final.Status)
	}

	replaced, err := os.ReadFile(sourcePath)
	if err != nil {
		t.Fatalf("failed to read replaced file: %v", err)
	}
	if !bytes.Equal(replaced, candidate) {
		t.Fatalf("expected original to be replaced with the encoded candidate")
	}
}

// TestHeartbeatMarksWorkerOnline verifies the registry/status path a CLI
// poll depends on.
func TestHeartbeatMarksWorkerOnline(t *testing.T) {
	ts, _ := newTestServer(t, t.TempDir())

	postJSON(t, ts, "/workers/register", models.RegisterRequest{WorkerID: "worker-2"}, &models.RegisterResponse{})
	postJSON(t, ts, "/workers/worker-2/heartbeat", models.HeartbeatRequest{CPUPercent: 10, MemPercent: 20}, &models.HeartbeatResponse{})

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var stats models.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if stats.WorkersTotal != 1 || stats.WorkersOnline != 1 {
		t.Fatalf("expected 1 total/online worker, got total=%d online=%d", stats.WorkersTotal, stats.WorkersOnline)
	}

	time.Sleep(10 * time.Millisecond) // let the heartbeat timestamp settle before any follow-up assertion
}

// TestAdminPinRoutesAssignment verifies POST /admin/files/{id}/pin steers
// ClaimNext toward the named worker and that claiming clears the pin.
func TestAdminPinRoutesAssignment(t *testing.T) {
	mediaRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(mediaRoot, "pinned.mkv"), []byte("source-bytes"), 0o600); err != nil {
		t.Fatalf("failed to write source file: %v", err)
	}

	ts, st := newTestServer(t, mediaRoot)

	postJSON(t, ts, "/admin/scan", nil, &models.AdminScanResponse{})
	files, err := st.ListFiles(context.Background(), "", 10)
	if err != nil || len(files) != 1 {
		t.Fatalf("expected exactly one scanned file, got %d files, err=%v", len(files), err)
	}
	fileID := files[0].ID

	postJSON(t, ts, "/workers/register", models.RegisterRequest{WorkerID: "worker-other"}, &models.RegisterResponse{})
	postJSON(t, ts, "/workers/register", models.RegisterRequest{WorkerID: "worker-preferred"}, &models.RegisterResponse{})

	pinResp := postJSON(t, ts, fmt.Sprintf("/admin/files/%d/pin", fileID), map[string]string{"worker_id": "worker-preferred"}, nil)
	if pinResp.StatusCode != http.StatusOK {
		t.Fatalf("pin request failed: %d", pinResp.StatusCode)
	}

	var otherNext models.NextResponse
	postJSON(t, ts, "/workers/worker-other/next", nil, &otherNext)
	if otherNext.Assignment != nil {
		t.Fatalf("expected the unpinned worker to see no work while the pin is fresh, got %+v", otherNext.Assignment)
	}

	var preferredNext models.NextResponse
	postJSON(t, ts, "/workers/worker-preferred/next", nil, &preferredNext)
	if preferredNext.Assignment == nil || preferredNext.Assignment.FileID != fileID {
		t.Fatalf("expected the pinned worker to claim file %d, got %+v", fileID, preferredNext.Assignment)
	}

	final, err := st.GetFile(context.Background(), fileID)
	if err != nil {
		t.Fatalf("failed to refetch file: %v", err)
	}
	if final.PreferredWorkerID != "" || final.PinnedAt != nil {
		t.Fatalf("expected the pin to be cleared once claimed, got preferred=%q pinned_at=%v", final.PreferredWorkerID, final.PinnedAt)
	}
}

// TestAdminCancelArmsPendingCancelLease verifies POST /admin/files/{id}/cancel
// reaches the registry and is delivered on the assigned worker's next
// heartbeat as CancelLeaseToken.
func TestAdminCancelArmsPendingCancelLease(t *testing.T) {
	mediaRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(mediaRoot, "cancel-me.mkv"), []byte("source-bytes"), 0o600); err != nil {
		t.Fatalf("failed to write source file: %v", err)
	}

	ts, st := newTestServer(t, mediaRoot)

	postJSON(t, ts, "/admin/scan", nil, &models.AdminScanResponse{})
	files, err := st.ListFiles(context.Background(), "", 10)
	if err != nil || len(files) != 1 {
		t.Fatalf("expected exactly one scanned file, got %d files, err=%v", len(files), err)
	}
	fileID := files[0].ID

	postJSON(t, ts, "/workers/register", models.RegisterRequest{WorkerID: "worker-1"}, &models.RegisterResponse{})

	var nextResp models.NextResponse
	postJSON(t, ts, "/workers/worker-1/next", nil, &nextResp)
	if nextResp.Assignment == nil || nextResp.Assignment.FileID != fileID {
		t.Fatalf("expected an assignment for file %d, got %+v", fileID, nextResp.Assignment)
	}
	leaseToken := nextResp.Assignment.LeaseToken

	cancelResp := postJSON(t, ts, fmt.Sprintf("/admin/files/%d/cancel", fileID), nil, nil)
	if cancelResp.StatusCode != http.StatusOK {
		t.Fatalf("cancel request failed: %d", cancelResp.StatusCode)
	}

	var hbResp models.HeartbeatResponse
	postJSON(t, ts, "/workers/worker-1/heartbeat", models.HeartbeatRequest{CPUPercent: 5, MemPercent: 5}, &hbResp)
	if hbResp.CancelLeaseToken != leaseToken {
		t.Fatalf("expected heartbeat to deliver the cancel for lease %q, got %q", leaseToken, hbResp.CancelLeaseToken)
	}
}
