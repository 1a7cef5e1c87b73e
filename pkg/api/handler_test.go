package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
	"gorm.io/datatypes"

	"github.com/jdziat/firmware-jobs/pkg/core"
	"github.com/jdziat/firmware-jobs/pkg/pool"
	"github.com/jdziat/firmware-jobs/pkg/supervisor"
)

type fakeBackend struct {
	mu         sync.Mutex
	submitErr  error
	submitted  []supervisor.Submission
	artifacts  []string
	contents   []string
	jobs       map[string]*core.Job
	results    map[string]*core.Result
	events     chan core.Event
	subscribed chan struct{}
	unsubbed   chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		jobs:       map[string]*core.Job{},
		results:    map[string]*core.Result{},
		events:     make(chan core.Event, 10),
		subscribed: make(chan struct{}, 1),
		unsubbed:   make(chan struct{}, 1),
	}
}

func (f *fakeBackend) Submit(_ context.Context, sub supervisor.Submission, artifact string) (*pool.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	data, err := os.ReadFile(artifact)
	if err != nil {
		return nil, err
	}
	f.submitted = append(f.submitted, sub)
	f.artifacts = append(f.artifacts, artifact)
	f.contents = append(f.contents, string(data))
	return nil, nil
}

type submitted struct {
	subs      []supervisor.Submission
	artifacts []string
	contents  []string
}

func (f *fakeBackend) snapshot() submitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return submitted{
		subs:      append([]supervisor.Submission(nil), f.submitted...),
		artifacts: append([]string(nil), f.artifacts...),
		contents:  append([]string(nil), f.contents...),
	}
}

func (f *fakeBackend) Job(_ context.Context, id string) (*core.Job, error) {
	if j, ok := f.jobs[id]; ok {
		return j, nil
	}
	return nil, core.ErrJobNotFound
}

func (f *fakeBackend) Result(_ context.Context, id string) (*core.Result, error) {
	if r, ok := f.results[id]; ok {
		return r, nil
	}
	return nil, core.ErrResultNotFound
}

func (f *fakeBackend) Jobs(_ context.Context, status core.JobStatus, limit int) ([]*core.Job, error) {
	ids := make([]string, 0, len(f.jobs))
	for id := range f.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []*core.Job
	for _, id := range ids {
		j := f.jobs[id]
		if status != "" && j.Status != status {
			continue
		}
		out = append(out, j)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeBackend) Outstanding() int64 { return 2 }
func (f *fakeBackend) Capacity() int64    { return 4 }

func (f *fakeBackend) Events() <-chan core.Event {
	f.subscribed <- struct{}{}
	return f.events
}

func (f *fakeBackend) Unsubscribe(<-chan core.Event) {
	f.unsubbed <- struct{}{}
}

func upload(t *testing.T, url, filename, content string, fields map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("firmware", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(url+"/v1/analyses", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func newServer(t *testing.T, b *fakeBackend, opts ...Option) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(Handler(b, opts...))
	t.Cleanup(srv.Close)
	return srv
}

func TestSubmit_Accepted(t *testing.T) {
	b := newFakeBackend()
	uploads := t.TempDir()
	srv := newServer(t, b, WithUploadDir(uploads))

	resp := upload(t, srv.URL, "router.zip", "PK-data", map[string]string{
		"id":      "fw-1",
		"name":    "router",
		"version": "1.0",
		"flags":   "-s -z",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out map[string]string
	decode(t, resp, &out)
	assert.Equal(t, "fw-1", out["id"])

	got := b.snapshot()
	require.Len(t, got.subs, 1)
	assert.Equal(t, supervisor.Submission{ID: "fw-1", Name: "router", Version: "1.0", Flags: "-s -z"}, got.subs[0])
	assert.Equal(t, "router.zip", filepath.Base(got.artifacts[0]))
	assert.Equal(t, "PK-data", got.contents[0])

	entries, err := os.ReadDir(uploads)
	require.NoError(t, err)
	assert.Empty(t, entries, "upload buffer removed after submit")
}

func TestSubmit_GeneratesID(t *testing.T) {
	b := newFakeBackend()
	srv := newServer(t, b, WithUploadDir(t.TempDir()))

	resp := upload(t, srv.URL, "../../etc/fw.bin", "x", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out map[string]string
	decode(t, resp, &out)
	assert.Len(t, out["id"], 36)
	got := b.snapshot()
	require.Len(t, got.subs, 1)
	assert.Equal(t, out["id"], got.subs[0].ID)
	assert.Equal(t, "fw.bin", filepath.Base(got.artifacts[0]))
}

func TestSubmit_ErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{core.ErrAdmissionRejected, http.StatusServiceUnavailable},
		{core.ErrPoolClosed, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: found 2", core.ErrMalformedSubmission), http.StatusBadRequest},
		{core.ErrInvalidJobID, http.StatusBadRequest},
		{core.ErrInvalidFlags, http.StatusBadRequest},
		{supervisor.ErrStagingExists, http.StatusConflict},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			b := newFakeBackend()
			b.submitErr = tt.err
			srv := newServer(t, b, WithUploadDir(t.TempDir()))

			resp := upload(t, srv.URL, "fw.bin", "x", map[string]string{"id": "fw-1"})
			assert.Equal(t, tt.status, resp.StatusCode)

			var out map[string]string
			decode(t, resp, &out)
			assert.Equal(t, tt.err.Error(), out["error"])
			if tt.status == http.StatusServiceUnavailable {
				assert.Equal(t, "30", resp.Header.Get("Retry-After"))
			}
		})
	}
}

func TestSubmit_MissingFile(t *testing.T) {
	b := newFakeBackend()
	srv := newServer(t, b, WithUploadDir(t.TempDir()))

	resp := upload(t, srv.URL, "", "", map[string]string{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, b.snapshot().subs)
}

func TestSubmit_TooLarge(t *testing.T) {
	b := newFakeBackend()
	srv := newServer(t, b, WithUploadDir(t.TempDir()), WithMaxUploadBytes(64))

	resp := upload(t, srv.URL, "fw.bin", strings.Repeat("x", 4096), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, b.snapshot().subs)
}

func TestJobs(t *testing.T) {
	b := newFakeBackend()
	ended := time.Now()
	b.jobs["a"] = &core.Job{ID: "a", Status: core.StatusFinished, Outcome: "succeeded", Finished: true, EndedAt: &ended, Duration: 1500 * time.Millisecond}
	b.jobs["b"] = &core.Job{ID: "b", Status: core.StatusRunning, PID: 42}
	srv := newServer(t, b)

	resp, err := http.Get(srv.URL + "/v1/jobs")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var all []map[string]any
	decode(t, resp, &all)
	assert.Len(t, all, 2)

	resp2, err := http.Get(srv.URL + "/v1/jobs?status=running&limit=5")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var running []map[string]any
	decode(t, resp2, &running)
	require.Len(t, running, 1)
	assert.Equal(t, "b", running[0]["id"])
	assert.EqualValues(t, 42, running[0]["pid"])

	resp3, err := http.Get(srv.URL + "/v1/jobs?limit=lots")
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp3.StatusCode)
}

func TestJobs_GzipEncoded(t *testing.T) {
	b := newFakeBackend()
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("job-%02d-%s", i, strings.Repeat("x", 32))
		b.jobs[id] = &core.Job{ID: id, Name: "openwrt", Status: core.StatusPending}
	}
	srv := newServer(t, b)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/jobs", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))

	zr, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	var all []map[string]any
	require.NoError(t, json.NewDecoder(zr).Decode(&all))
	assert.Len(t, all, 50)
}

func TestGetJob(t *testing.T) {
	b := newFakeBackend()
	b.jobs["a"] = &core.Job{ID: "a", Status: core.StatusFailed, Outcome: "no_report", LastError: "report missing", Duration: 2 * time.Second}
	srv := newServer(t, b)

	resp, err := http.Get(srv.URL + "/v1/jobs/a")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var job map[string]any
	decode(t, resp, &job)
	assert.Equal(t, "failed", job["status"])
	assert.Equal(t, "no_report", job["outcome"])
	assert.Equal(t, "report missing", job["error"])
	assert.EqualValues(t, 2000, job["duration_ms"])

	resp2, err := http.Get(srv.URL + "/v1/jobs/nope")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestGetResult(t *testing.T) {
	b := newFakeBackend()
	b.results["a"] = &core.Result{JobID: "a", ResultFields: core.ResultFields{
		Files:     7,
		CveHigh:   3,
		StrcpyBin: datatypes.JSON(`{"busybox":"4"}`),
	}}
	srv := newServer(t, b)

	resp, err := http.Get(srv.URL + "/v1/jobs/a/result")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res map[string]any
	decode(t, resp, &res)
	assert.Equal(t, "a", res["job_id"])
	assert.EqualValues(t, 7, res["files"])
	assert.EqualValues(t, 3, res["cve_high"])
	assert.Equal(t, map[string]any{"busybox": "4"}, res["strcpy_bin"])

	resp2, err := http.Get(srv.URL + "/v1/jobs/b/result")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestStatus_OverHTTP2Cleartext(t *testing.T) {
	srv := newServer(t, newFakeBackend())

	client := &http.Client{Transport: &http2.Transport{
		AllowHTTP: true,
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}}
	resp, err := client.Get(srv.URL + "/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 2, resp.ProtoMajor)
	var out map[string]int64
	decode(t, resp, &out)
	assert.Equal(t, map[string]int64{"outstanding": 2, "capacity": 4}, out)
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	srv := newServer(t, newFakeBackend())

	resp, err := http.Get(srv.URL + "/v1/analyses")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestEvents_Websocket(t *testing.T) {
	b := newFakeBackend()
	srv := newServer(t, b)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events?job=fw-1"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	select {
	case <-b.subscribed:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never subscribed")
	}

	b.events <- &core.JobStarted{JobID: "other", PID: 1}
	b.events <- &core.JobProgress{JobID: "fw-1", Phase: "testing", Module: "S09_firmware_base_version_check"}
	b.events <- &core.JobFinished{
		JobID:    "fw-1",
		Outcome:  core.Outcome{Kind: core.OutcomeNoReport},
		Duration: 3 * time.Second,
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var progress, finished eventMessage
	require.NoError(t, conn.ReadJSON(&progress))
	require.NoError(t, conn.ReadJSON(&finished))

	assert.Equal(t, "job_progress", progress.Type)
	assert.Equal(t, "S09_firmware_base_version_check", progress.Module)

	assert.Equal(t, "job_finished", finished.Type)
	assert.Equal(t, "failed", finished.Status)
	assert.Equal(t, "no_report", finished.Outcome)
	assert.Equal(t, core.ErrReportMissing.Error(), finished.Error)
	assert.EqualValues(t, 3000, finished.DurationMS)

	require.NoError(t, conn.Close())
	select {
	case <-b.unsubbed:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never unsubscribed")
	}
}

func TestUploadName(t *testing.T) {
	assert.Equal(t, "fw.tar.gz", uploadName("fw.tar.gz"))
	assert.Equal(t, "fw.zip", uploadName(`C:\Users\me\fw.zip`))
	assert.Equal(t, "passwd", uploadName("../../etc/passwd"))
	assert.Equal(t, "firmware.bin", uploadName(""))
	assert.Equal(t, "firmware.bin", uploadName(".."))
}
