package storage

import (
	"io"
)

type FileInfo struct {
	Filename    string
	ContentType string
}

// Storage keeps rendered chart exports.
type Storage interface {
	SaveFile(r io.Reader, info FileInfo) (string, error)
	OpenFile(path string) (io.ReadSeekCloser, error)
	DeleteFile(path string) error
}
