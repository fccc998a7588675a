package models

import "time"

// FileInfo describes an uploaded diagnostic archive.
type FileInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	Format     string    `json:"format"` // "tar.bz2", "tar.gz" or "zip"
	UploadedAt time.Time `json:"uploadedAt"`
	Status     string    `json:"status"` // "uploaded", "parsing", "parsed", "error"
}
