package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"bulkload/internal/config"
	"bulkload/internal/controller"
	"bulkload/internal/database"
	"bulkload/internal/model"
	"bulkload/internal/notify"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServerController struct{ rabbitErr error }

func (f fakeServerController) DBHealth() error     { return nil }
func (f fakeServerController) CacheHealth() error  { return nil }
func (f fakeServerController) RabbitHealth() error { return f.rabbitErr }
func (f fakeServerController) Online() string      { return "Online" }

type fakeJobController struct {
	controller.JobController

	jobs      map[string]*model.Job
	uploads   []string
	channels  []string
	retries   []string
	lastQuery model.JobFilter
}

func (f *fakeJobController) CreateUploadJob(ctx context.Context, filePath, fileName, channelID string) (*model.Job, error) {
	f.uploads = append(f.uploads, filePath)
	f.channels = append(f.channels, channelID)
	return &model.Job{JobID: "job-1", FileName: fileName, Status: model.StatusQueued}, nil
}

func (f *fakeJobController) EnqueueRetry(ctx context.Context, jobID, channelID, retriedBy string) error {
	if _, ok := f.jobs[jobID]; !ok {
		return database.ErrJobNotFound
	}
	f.retries = append(f.retries, jobID)
	return nil
}

func (f *fakeJobController) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, database.ErrJobNotFound
	}
	return job, nil
}

func (f *fakeJobController) ListJobs(ctx context.Context, filter model.JobFilter) ([]*model.Job, int64, error) {
	f.lastQuery = filter
	return nil, 0, nil
}

func (f *fakeJobController) GetProgress(ctx context.Context, jobID string) (json.RawMessage, error) {
	return json.RawMessage(`{"jobId":"` + jobID + `","progress":30}`), nil
}

func (f *fakeJobController) GetAvailableJobTypes() map[string]string {
	return map[string]string{"csv-import": "CSV Import"}
}

type fakeRecordsController struct {
	controller.RecordsController
}

func (f fakeRecordsController) ExportFailedRecords(ctx context.Context, jobID string, w io.Writer) error {
	switch jobID {
	case "job-1":
	case "clean":
		return controller.ErrNoFailedRecords
	default:
		return database.ErrJobNotFound
	}
	_, err := io.WriteString(w, "Row,Error Reason,Store Name\n1,bad,x\n")
	return err
}

func (f fakeRecordsController) ArchiveFailedRecords(ctx context.Context, jobID string) (string, error) {
	return "", controller.ErrArchiveDisabled
}

func (f fakeRecordsController) JobSummary(ctx context.Context, jobID string) (*controller.JobSummary, error) {
	if jobID != "job-1" {
		return nil, database.ErrJobNotFound
	}
	return &controller.JobSummary{
		JobID: "job-1", FileName: "stores.csv", Status: model.StatusCompleted,
		TotalRecords: 2, SuccessCount: 1, FailureCount: 1,
		FailedRecords: []model.FailedRecordEntry{{Record: map[string]string{"storeName": "x"}, RowIndex: 1, Reason: "bad"}},
	}, nil
}

func (f fakeRecordsController) ExportJobSummary(ctx context.Context, jobID string, w io.Writer) error {
	switch jobID {
	case "job-1":
	case "clean":
		return controller.ErrNoFailedRecords
	default:
		return database.ErrJobNotFound
	}
	_, err := io.WriteString(w, "storeName,reason\nx,bad\n")
	return err
}

func (f fakeRecordsController) RetryNow(ctx context.Context, jobID, retriedBy string) (*model.RetryResult, error) {
	if jobID == "busy" {
		return nil, fmt.Errorf("replace failed records of busy: %w", database.ErrFailedJobConflict)
	}
	return &model.RetryResult{Retried: 2, SuccessCount: 1, FailedCount: 1, Remaining: 1}, nil
}

func newTestServer(t *testing.T) (*Server, *fakeJobController) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jc := &fakeJobController{jobs: map[string]*model.Job{
		"job-1": {JobID: "job-1", Status: model.StatusCompleted},
	}}
	return &Server{
		sc:  fakeServerController{},
		jc:  jc,
		rc:  fakeRecordsController{},
		hub: notify.NewHub(),
		config: config.Config{
			Ingest: config.IngestConfig{UploadDir: t.TempDir(), MaxFileSizeMB: 1},
		},
	}, jc
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.RegisterRoutes().ServeHTTP(w, req)
	return w
}

func multipartUpload(t *testing.T, name string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("channelId", "session-1"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	assert.Equal(t, http.StatusOK, serve(s, httptest.NewRequest(http.MethodGet, "/health", nil)).Code)

	s.sc = fakeServerController{rabbitErr: assert.AnError}
	w := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"database":true,"cache":true,"rabbit":false}`, w.Body.String())
}

func TestUploadQueuesJob(t *testing.T) {
	s, jc := newTestServer(t)

	w := serve(s, multipartUpload(t, "stores.csv", []byte("Store Name,Store Address\na,b\n")))
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"jobId":"job-1"`)

	require.Len(t, jc.uploads, 1)
	assert.Equal(t, "session-1", jc.channels[0])
	assert.True(t, strings.HasPrefix(jc.uploads[0], s.config.Ingest.UploadDir))
	saved, err := os.ReadFile(jc.uploads[0])
	require.NoError(t, err)
	assert.Contains(t, string(saved), "Store Name")
}

func TestUploadRejectsInvalidFiles(t *testing.T) {
	s, jc := newTestServer(t)

	w := serve(s, multipartUpload(t, "stores.xlsx", []byte("x")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(s, multipartUpload(t, "big.csv", bytes.Repeat([]byte("a"), 2<<20)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = serve(s, httptest.NewRequest(http.MethodPost, "/api/upload", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Empty(t, jc.uploads)
}

func TestJobRoutes(t *testing.T) {
	s, jc := newTestServer(t)

	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs/job-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs?status=completed&page=2&limit=5&search=x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"jobs":[],"total":0}`, w.Body.String())
	assert.Equal(t, model.JobFilter{Status: model.StatusCompleted, Search: "x", Page: 2, Limit: 5}, jc.lastQuery)

	w = serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs?status=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs/job-1/progress", nil))
	assert.JSONEq(t, `{"jobId":"job-1","progress":30}`, w.Body.String())

	w = serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs/types", nil))
	assert.JSONEq(t, `{"csv-import":"CSV Import"}`, w.Body.String())
}

func TestRetryRoutes(t *testing.T) {
	s, jc := newTestServer(t)

	w := serve(s, httptest.NewRequest(http.MethodPost, "/api/jobs/job-1/retry", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"retried":2,"successCount":1,"failedCount":1,"remaining":1}`, w.Body.String())

	w = serve(s, httptest.NewRequest(http.MethodPost, "/api/jobs/job-1/retry?async=true", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"job-1"}, jc.retries)

	w = serve(s, httptest.NewRequest(http.MethodPost, "/api/jobs/nope/retry?async=true", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(s, httptest.NewRequest(http.MethodPost, "/api/jobs/busy/retry", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestFailedRecordRoutes(t *testing.T) {
	s, _ := newTestServer(t)

	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs/job-1/failed/download", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "failed-records-job-1.csv")

	w = serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs/nope/failed/download", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs/clean/failed/download", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"no failed records found to export"}`, w.Body.String())

	w = serve(s, httptest.NewRequest(http.MethodPost, "/api/jobs/job-1/failed/archive", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSummaryDownload(t *testing.T) {
	s, _ := newTestServer(t)

	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs/job-1/download", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.JSONEq(t, `{
		"jobId": "job-1", "fileName": "stores.csv", "status": "completed",
		"totalRecords": 2, "successCount": 1, "failureCount": 1,
		"failedRecords": [{"record": {"storeName": "x"}, "rowIndex": 1, "reason": "bad", "retryCount": 0, "failedAt": "0001-01-01T00:00:00Z"}]
	}`, w.Body.String())

	w = serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs/job-1/download?format=csv", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="failed-summary-job-1.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, "storeName,reason\nx,bad\n", w.Body.String())

	w = serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs/clean/download?format=csv", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs/nope/download", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs/job-1/download?format=xml", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventsRequiresChannel(t *testing.T) {
	s, _ := newTestServer(t)
	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventsStream(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.RegisterRoutes())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events?channelId=session-1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: connected\n", line)

	require.Eventually(t, func() bool { return s.hub.Subscribers("session-1") == 1 }, time.Second, 10*time.Millisecond)
	s.hub.Notify("session-1", model.EventUploadProgress, model.ProgressEvent{JobID: "job-1", Progress: 10})

	for {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event: "+model.EventUploadProgress) {
			break
		}
	}
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, `"jobId":"job-1"`)
}
