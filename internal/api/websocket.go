package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/diaglog/backend/internal/job"
	"github.com/diaglog/backend/internal/models"
)

// Server -> client message types for the job progress stream.
const (
	MsgTypeStatus = "status"
	MsgTypeError  = "error"
	MsgTypeDone   = "done"
)

// WSJobUpdate is one progress frame pushed to the client.
type WSJobUpdate struct {
	Type      string           `json:"type"`
	Job       *models.ParseJob `json:"job,omitempty"`
	Message   string           `json:"message,omitempty"`
	Timestamp int64            `json:"timestamp"`
}

// WebSocketHandler pushes parse job progress to connected clients.
type WebSocketHandler struct {
	jobs     *job.Manager
	upgrader websocket.Upgrader
	interval time.Duration
	timeout  time.Duration
}

// NewWebSocketHandler creates a progress stream handler.
func NewWebSocketHandler(jobs *job.Manager) *WebSocketHandler {
	return &WebSocketHandler{
		jobs: jobs,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		interval: 200 * time.Millisecond,
		timeout:  10 * time.Minute,
	}
}

// HandleJobProgress upgrades the connection and streams job status
// frames until the job reaches a terminal state.
func (wsh *WebSocketHandler) HandleJobProgress(c echo.Context) error {
	jobID := c.Param("jobId")
	if jobID == "" {
		return NewValidationError("jobId")
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	fmt.Printf("[WebSocket] Client watching job %s\n", jobID)

	// Drain client frames so pings and close messages are processed.
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	j, ok := wsh.jobs.Get(jobID)
	if !ok {
		wsh.send(ws, WSJobUpdate{Type: MsgTypeError, Message: "job not found: " + jobID})
		return nil
	}
	if !wsh.send(ws, WSJobUpdate{Type: MsgTypeStatus, Job: j}) {
		return nil
	}

	ticker := time.NewTicker(wsh.interval)
	defer ticker.Stop()
	deadline := time.NewTimer(wsh.timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ticker.C:
			j, ok := wsh.jobs.Get(jobID)
			if !ok {
				wsh.send(ws, WSJobUpdate{Type: MsgTypeError, Message: "job expired: " + jobID})
				return nil
			}
			if !wsh.send(ws, WSJobUpdate{Type: MsgTypeStatus, Job: j}) {
				return nil
			}
			switch j.Status {
			case models.JobStatusComplete, models.JobStatusCancelled, models.JobStatusError:
				wsh.send(ws, WSJobUpdate{Type: MsgTypeDone, Job: j})
				return nil
			}
		case <-deadline.C:
			wsh.send(ws, WSJobUpdate{Type: MsgTypeError, Message: "stream timeout"})
			return nil
		}
	}
}

// send writes one frame and reports whether the connection is still
// usable.
func (wsh *WebSocketHandler) send(ws *websocket.Conn, update WSJobUpdate) bool {
	update.Timestamp = time.Now().UnixMilli()
	if err := ws.WriteJSON(update); err != nil {
		fmt.Printf("[WebSocket] Write failed: %v\n", err)
		return false
	}
	return true
}
