// Package api exposes the diagnostic archive service over HTTP: archive
// uploads, parse job control and result retrieval.
package api

import (
	"github.com/diaglog/backend/internal/job"
	"github.com/diaglog/backend/internal/storage"
	"github.com/diaglog/backend/internal/upload"
)

// Handler bundles the dependencies shared by all route handlers.
type Handler struct {
	store   storage.Store
	jobs    *job.Manager
	uploads *upload.Manager
	version string
}

// NewHandler creates the API handler.
func NewHandler(store storage.Store, jobs *job.Manager, uploads *upload.Manager, version string) *Handler {
	return &Handler{
		store:   store,
		jobs:    jobs,
		uploads: uploads,
		version: version,
	}
}
