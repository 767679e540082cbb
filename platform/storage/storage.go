package storage

import (
	"io"
	"path/filepath"
)

type UsageStats struct {
	TotalBytes uint64
	FreeBytes  uint64
}

// Storage is the blob store behind uploaded files and form images. Keys are
// slash separated paths; a written key is guaranteed retrievable afterwards.
type Storage interface {
	Read(path string) (io.ReadCloser, error)

	Write(path string, data io.Reader) error

	Delete(path string) error

	List(path string) ([]string, error)

	Exists(path string) (bool, error)

	Size(path string) (int64, error)

	Usage() (UsageStats, error)

	Location() string
}

// UploadPath is where a submission's uploaded file lives, keyed by its
// collision resistant stored filename.
func UploadPath(storedFilename string) string {
	return filepath.Join("uploads", storedFilename)
}

// FormImagePath is where a form's display image lives.
func FormImagePath(filename string) string {
	return filepath.Join("form_images", filename)
}
