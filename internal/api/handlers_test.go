package api

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/diaglog/backend/internal/job"
	"github.com/diaglog/backend/internal/models"
	"github.com/diaglog/backend/internal/storage"
	"github.com/diaglog/backend/internal/upload"
)

func newTestHandler(t *testing.T) (*Handler, *job.Manager, storage.Store) {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	jobs := job.NewManager(job.Config{TempDir: t.TempDir()}, nil)
	uploads := upload.NewManager(store)
	return NewHandler(store, jobs, uploads, "test"), jobs, store
}

func tarGzArchive(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	hdr := &tar.Header{
		Name:     "logs/device.log",
		Mode:     0644,
		Size:     int64(len(content)),
		ModTime:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Typeflag: tar.TypeReg,
	}
	require.NoError(t, tw.WriteHeader(hdr))
	tw.Write([]byte(content))
	tw.Close()
	gz.Close()
	return buf.Bytes()
}

func multipartUpload(t *testing.T, fieldFile string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	part, err := writer.CreateFormFile("file", fieldFile)
	require.NoError(t, err)
	part.Write(data)
	writer.Close()
	return body, writer.FormDataContentType()
}

func waitJob(t *testing.T, jobs *job.Manager, id string) *models.ParseJob {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		j, ok := jobs.Get(id)
		require.True(t, ok, "job disappeared")
		switch j.Status {
		case models.JobStatusComplete, models.JobStatusError, models.JobStatusCancelled:
			return j
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("job never finished")
	return nil
}

func TestHandleHealth(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.HandleHealth(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHandleUploadArchive(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestHandler(t)

	t.Run("valid archive is accepted", func(t *testing.T) {
		body, contentType := multipartUpload(t, "diag.tar.gz", tarGzArchive(t, "line\n"), nil)
		req := httptest.NewRequest(http.MethodPost, "/api/archives/upload", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		require.NoError(t, h.HandleUploadArchive(c))
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"format":"tar.gz"`)
	})

	t.Run("non-archive is rejected", func(t *testing.T) {
		body, contentType := multipartUpload(t, "notes.txt", []byte("plain text"), nil)
		req := httptest.NewRequest(http.MethodPost, "/api/archives/upload", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := h.HandleUploadArchive(c)
		require.Error(t, err)
		apiErr, ok := err.(*APIError)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	})
}

func TestChunkedUploadFlow(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestHandler(t)
	data := tarGzArchive(t, "2025-01-01 00:00:00,4000,2500,\n")

	mid := len(data) / 2
	for i, chunk := range [][]byte{data[:mid], data[mid:]} {
		body, contentType := multipartUpload(t, "blob", chunk, map[string]string{
			"uploadId":   "up-1",
			"chunkIndex": string(rune('0' + i)),
		})
		req := httptest.NewRequest(http.MethodPost, "/api/archives/upload/chunk", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		require.NoError(t, h.HandleUploadChunk(c))
		assert.Equal(t, http.StatusAccepted, rec.Code)
	}

	completeBody := bytes.NewBufferString(`{"uploadId":"up-1","name":"diag.tar.gz","totalChunks":2}`)
	req := httptest.NewRequest(http.MethodPost, "/api/archives/upload/complete", completeBody)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.HandleCompleteUpload(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	jobID, _ := resp["jobId"].(string)
	require.NotEmpty(t, jobID)

	// Poll the upload job endpoint until finalization finishes.
	deadline := time.Now().Add(5 * time.Second)
	for {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("jobId")
		c.SetParamValues(jobID)
		require.NoError(t, h.HandleUploadJobStatus(c))

		var uj upload.Job
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &uj))
		if uj.Status == upload.StatusComplete {
			require.NotNil(t, uj.FileInfo)
			assert.Equal(t, 1, uj.MemberCount)
			break
		}
		if uj.Status == upload.StatusError {
			t.Fatalf("upload job failed: %s", uj.Error)
		}
		require.True(t, time.Now().Before(deadline), "upload job never finished")
		time.Sleep(10 * time.Millisecond)
	}
}

func TestParseLifecycle(t *testing.T) {
	e := echo.New()
	h, jobs, store := newTestHandler(t)

	info, err := store.Save("diag.tar.gz", bytes.NewReader(tarGzArchive(t, "2025-01-01 00:00:00,4000,2500,live\n")))
	require.NoError(t, err)

	startBody := bytes.NewBufferString(`{"fileId":"` + info.ID + `","mode":"bandwidth","timezone":"UTC"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/parse", startBody)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.HandleStartParse(c))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var started models.ParseJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	done := waitJob(t, jobs, started.ID)
	require.Equal(t, models.JobStatusComplete, done.Status)

	t.Run("status endpoint", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("jobId")
		c.SetParamValues(started.ID)

		require.NoError(t, h.HandleParseStatus(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"complete"`)
	})

	t.Run("result as JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("jobId")
		c.SetParamValues(started.ID)

		require.NoError(t, h.HandleParseResult(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"mode":"bandwidth"`)
	})

	t.Run("result as MessagePack", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("jobId")
		c.SetParamValues(started.ID)

		require.NoError(t, h.HandleParseResultMsgpack(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/x-msgpack", rec.Header().Get(echo.HeaderContentType))

		var result models.ParseResult
		require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, "bandwidth", result.Mode)
		assert.Equal(t, 1, result.LineCount)
	})
}

func TestStartParseRejectsBadInput(t *testing.T) {
	e := echo.New()
	h, _, store := newTestHandler(t)

	info, err := store.Save("diag.tar.gz", bytes.NewReader(tarGzArchive(t, "x\n")))
	require.NoError(t, err)

	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"unknown archive", `{"fileId":"missing","mode":"bandwidth"}`, http.StatusNotFound},
		{"unknown mode", `{"fileId":"` + info.ID + `","mode":"nope"}`, http.StatusUnprocessableEntity},
		{"unknown timezone", `{"fileId":"` + info.ID + `","mode":"bandwidth","timezone":"Mars/Olympus"}`, http.StatusUnprocessableEntity},
		{"bad start stamp", `{"fileId":"` + info.ID + `","mode":"bandwidth","start":"yesterday"}`, http.StatusUnprocessableEntity},
		{"missing mode", `{"fileId":"` + info.ID + `"}`, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/parse", bytes.NewBufferString(tc.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := h.HandleStartParse(c)
			require.Error(t, err)
			apiErr, ok := err.(*APIError)
			require.True(t, ok)
			assert.Equal(t, tc.status, apiErr.Status)
		})
	}
}

func TestCancelUnknownJob(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("jobId")
	c.SetParamValues("missing")

	err := h.HandleCancelParse(c)
	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestInspectArchive(t *testing.T) {
	e := echo.New()
	h, _, store := newTestHandler(t)

	info, err := store.Save("diag.tar.gz", bytes.NewReader(tarGzArchive(t, "x\n")))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(info.ID)

	require.NoError(t, h.HandleInspectArchive(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "logs/device.log")
}

func TestListModes(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/parse/modes", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.HandleListModes(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bandwidth")
	assert.Contains(t, rec.Body.String(), "modem_stats")
	assert.Contains(t, rec.Body.String(), "verbose")
}
