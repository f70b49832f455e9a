package upload

import (
	"context"
	"io"
	"time"
)

// Store is the interface for upload storage backends.
type Store interface {
	// Save stores the uploaded file and returns its ID.
	// The file is kept until Claim is called or Cleanup expires it.
	Save(ctx context.Context, filename, contentType string, r io.Reader) (id string, err error)

	// Claim retrieves and removes a stored file.
	Claim(ctx context.Context, id string) (*File, error)

	// Cleanup removes files older than maxAge.
	Cleanup(ctx context.Context, maxAge time.Duration) error
}

// File represents an uploaded file.
type File struct {
	// ID is the unique identifier for this upload.
	ID string

	// Filename is the original filename from the client.
	Filename string

	// ContentType is the MIME type of the file.
	ContentType string

	// Size is the file size in bytes.
	Size int64

	// Path is the local filesystem path (for DiskStore).
	Path string

	// URL is the remote URL (for S3/CDN storage).
	URL string

	// Reader provides access to the file contents.
	Reader io.ReadCloser
}

// Close closes the file reader if open.
func (f *File) Close() error {
	if f.Reader != nil {
		return f.Reader.Close()
	}
	return nil
}
