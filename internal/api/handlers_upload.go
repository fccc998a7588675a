// handlers_upload.go - Archive upload and management handlers
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/diaglog/backend/internal/archive"
)

// HandleUploadArchive accepts a raw archive upload (multipart/form-data).
// The storage layer rejects files whose signature matches no supported
// archive format.
func (h *Handler) HandleUploadArchive(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}

	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	info, err := h.store.Save(file.Filename, src)
	if err != nil {
		return NewUnprocessableError("archive rejected", err)
	}

	return c.JSON(http.StatusCreated, info)
}

// HandleUploadChunk accepts a single chunk of a chunked upload.
func (h *Handler) HandleUploadChunk(c echo.Context) error {
	uploadID := c.FormValue("uploadId")
	if uploadID == "" {
		return NewValidationError("uploadId")
	}
	chunkIndex, err := strconv.Atoi(c.FormValue("chunkIndex"))
	if err != nil || chunkIndex < 0 {
		return NewValidationError("chunkIndex")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no chunk provided", err)
	}
	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open chunk", err)
	}
	defer src.Close()

	if err := h.store.SaveChunk(uploadID, chunkIndex, src); err != nil {
		return NewInternalError("failed to save chunk", err)
	}
	return c.NoContent(http.StatusAccepted)
}

// HandleCompleteUpload finalizes a chunked upload asynchronously.
func (h *Handler) HandleCompleteUpload(c echo.Context) error {
	var req completeUploadRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	job := h.uploads.StartJob(req.UploadID, req.Name, req.TotalChunks)
	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

// HandleUploadJobStatus returns the state of an upload finalization job.
func (h *Handler) HandleUploadJobStatus(c echo.Context) error {
	id := c.Param("jobId")
	if id == "" {
		return NewValidationError("jobId")
	}
	job, ok := h.uploads.GetJob(id)
	if !ok {
		return NewNotFoundError("upload job", id)
	}
	return c.JSON(http.StatusOK, job)
}

// HandleListArchives returns recently uploaded archives.
func (h *Handler) HandleListArchives(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	list, err := h.store.List(limit)
	if err != nil {
		return NewInternalError("failed to list archives", err)
	}
	return c.JSON(http.StatusOK, list)
}

// HandleGetArchive returns metadata for one archive.
func (h *Handler) HandleGetArchive(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}
	info, err := h.store.Get(id)
	if err != nil {
		return NewNotFoundError("archive", id)
	}
	return c.JSON(http.StatusOK, info)
}

// HandleInspectArchive lists archive members without extracting any
// file bodies.
func (h *Handler) HandleInspectArchive(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}
	path, err := h.store.GetFilePath(id)
	if err != nil {
		return NewNotFoundError("archive", id)
	}
	members, err := archive.ListMembers(path)
	if err != nil {
		return NewUnprocessableError("archive is not readable", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"archiveId": id,
		"members":   members,
	})
}

// HandleDeleteArchive removes an archive.
func (h *Handler) HandleDeleteArchive(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}
	if err := h.store.Delete(id); err != nil {
		return NewNotFoundError("archive", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleRenameArchive updates the display name of an archive.
func (h *Handler) HandleRenameArchive(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}
	var req renameArchiveRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Name == "" {
		return NewValidationError("name")
	}
	info, err := h.store.Rename(id, req.Name)
	if err != nil {
		return NewNotFoundError("archive", id)
	}
	return c.JSON(http.StatusOK, info)
}

// Request types

type completeUploadRequest struct {
	UploadID    string `json:"uploadId"`
	Name        string `json:"name"`
	TotalChunks int    `json:"totalChunks"`
}

func (r *completeUploadRequest) validate() error {
	if r.UploadID == "" {
		return NewValidationError("uploadId")
	}
	if r.Name == "" {
		return NewValidationError("name")
	}
	if r.TotalChunks <= 0 {
		return NewBadRequestError("totalChunks must be positive", nil)
	}
	return nil
}

type renameArchiveRequest struct {
	Name string `json:"name"`
}
