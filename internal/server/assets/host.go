// Package assets stores payment proof images on an S3-compatible asset host.
package assets

import (
	"context"
	"io"

	"github.com/devsoc/devsoc-backend/internal/common"
)

// UploadInput describes one object to store. Folder and Name are joined
// into the object key; Tags are attached as object tags.
type UploadInput struct {
	Folder      string
	Name        string
	Body        io.Reader
	Size        int64
	ContentType string
	Tags        map[string]string
}

// Asset identifies a stored object and the public URL it is served from.
type Asset struct {
	ID  string
	URL string
}

type Host interface {
	Configured() bool
	Upload(ctx context.Context, in UploadInput) (*Asset, error)
	Delete(ctx context.Context, id string) error
}

// UnconfiguredHost is used when no credentials are available. Every
// operation fails with common.ErrConfiguration.
type UnconfiguredHost struct{}

func (UnconfiguredHost) Configured() bool { return false }

func (UnconfiguredHost) Upload(context.Context, UploadInput) (*Asset, error) {
	return nil, common.ErrConfiguration
}

func (UnconfiguredHost) Delete(context.Context, string) error {
	return common.ErrConfiguration
}
