// handlers_parse.go - Parse job operation handlers
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/diaglog/backend/internal/job"
	"github.com/diaglog/backend/internal/models"
	"github.com/diaglog/backend/internal/parser"
	"github.com/diaglog/backend/internal/timeutil"
)

// HandleStartParse starts a background parse job for an archive.
func (h *Handler) HandleStartParse(c echo.Context) error {
	var req startParseRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.FileID == "" {
		return NewValidationError("fileId")
	}
	if req.Mode == "" {
		return NewValidationError("mode")
	}

	path, err := h.store.GetFilePath(req.FileID)
	if err != nil {
		return NewNotFoundError("archive", req.FileID)
	}

	loc, err := timeutil.Location(req.Timezone)
	if err != nil {
		return NewUnprocessableError("unknown timezone", err)
	}
	start, err := parseStampParam(req.Start, loc)
	if err != nil {
		return NewUnprocessableError("invalid start time", err)
	}
	end, err := parseStampParam(req.End, loc)
	if err != nil {
		return NewUnprocessableError("invalid end time", err)
	}

	j, err := h.jobs.Start(job.Request{
		FileID:      req.FileID,
		ArchivePath: path,
		Mode:        req.Mode,
		Timezone:    req.Timezone,
		Start:       start,
		End:         end,
		ErrorLevel:  req.ErrorLevel,
	})
	if err != nil {
		return NewUnprocessableError("cannot start parse", err)
	}

	h.store.SetStatus(req.FileID, "parsing")
	return c.JSON(http.StatusAccepted, j)
}

// HandleParseStatus returns the current state of a parse job.
func (h *Handler) HandleParseStatus(c echo.Context) error {
	id := c.Param("jobId")
	if id == "" {
		return NewValidationError("jobId")
	}
	j, ok := h.jobs.Get(id)
	if !ok {
		return NewNotFoundError("job", id)
	}
	return c.JSON(http.StatusOK, j)
}

// HandleCancelParse requests cooperative cancellation. The job winds
// down at its next checkpoint and keeps everything parsed so far.
func (h *Handler) HandleCancelParse(c echo.Context) error {
	id := c.Param("jobId")
	if id == "" {
		return NewValidationError("jobId")
	}
	if !h.jobs.Cancel(id) {
		return NewNotFoundError("job", id)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"jobId":     id,
		"cancelled": true,
	})
}

// HandleParseResult returns the finished result as JSON.
func (h *Handler) HandleParseResult(c echo.Context) error {
	result, apiErr := h.loadResult(c)
	if apiErr != nil {
		return apiErr
	}
	return c.JSON(http.StatusOK, result)
}

// HandleParseResultMsgpack returns the finished result in MessagePack
// for large payloads.
func (h *Handler) HandleParseResultMsgpack(c echo.Context) error {
	result, apiErr := h.loadResult(c)
	if apiErr != nil {
		return apiErr
	}
	data, err := msgpack.Marshal(result)
	if err != nil {
		return NewInternalError("failed to encode result", err)
	}
	return c.Blob(http.StatusOK, "application/x-msgpack", data)
}

func (h *Handler) loadResult(c echo.Context) (*models.ParseResult, *APIError) {
	id := c.Param("jobId")
	if id == "" {
		return nil, NewValidationError("jobId")
	}

	if j, ok := h.jobs.Get(id); ok {
		switch j.Status {
		case models.JobStatusComplete, models.JobStatusCancelled:
		case models.JobStatusError:
			return nil, NewConflictError("job failed: " + j.Error)
		default:
			return nil, NewConflictError("job is still running")
		}
	}

	result, err := h.jobs.Result(id)
	if err != nil {
		return nil, NewNotFoundError("result", id)
	}
	return result, nil
}

// HandleListModes enumerates supported parse modes and error levels.
func (h *Handler) HandleListModes(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"modes":       parser.Modes(),
		"errorLevels": parser.ErrorLevels(),
	})
}

// HandleHealth returns server health status.
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": h.version,
	})
}

// Request types

type startParseRequest struct {
	FileID     string `json:"fileId"`
	Mode       string `json:"mode"`
	Timezone   string `json:"timezone"`
	Start      string `json:"start"`
	End        string `json:"end"`
	ErrorLevel string `json:"errorLevel"`
}

// parseStampParam accepts RFC 3339 or the bare log stamp layouts.
// Empty means unbounded.
func parseStampParam(s string, loc *time.Location) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.In(loc)
		return &t, nil
	}
	t, err := timeutil.ParseStamp(s, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
