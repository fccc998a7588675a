// routes.go - Route registration
package api

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes wires all HTTP routes onto the Echo instance.
func RegisterRoutes(e *echo.Echo, h *Handler, wsh *WebSocketHandler) {
	e.HTTPErrorHandler = ErrorHandler

	e.GET("/health", h.HandleHealth)

	archives := e.Group("/api/archives")
	archives.POST("/upload", h.HandleUploadArchive)
	archives.POST("/upload/chunk", h.HandleUploadChunk)
	archives.POST("/upload/complete", h.HandleCompleteUpload)
	archives.GET("/upload/jobs/:jobId", h.HandleUploadJobStatus)
	archives.GET("", h.HandleListArchives)
	archives.GET("/:id", h.HandleGetArchive)
	archives.GET("/:id/members", h.HandleInspectArchive)
	archives.DELETE("/:id", h.HandleDeleteArchive)
	archives.PUT("/:id", h.HandleRenameArchive)

	parse := e.Group("/api/parse")
	parse.GET("/modes", h.HandleListModes)
	parse.POST("", h.HandleStartParse)
	parse.GET("/:jobId/status", h.HandleParseStatus)
	parse.POST("/:jobId/cancel", h.HandleCancelParse)
	parse.GET("/:jobId/result", h.HandleParseResult)
	parse.GET("/:jobId/result/msgpack", h.HandleParseResultMsgpack)

	if wsh != nil {
		e.GET("/api/ws/jobs/:jobId", wsh.HandleJobProgress)
	}
}
