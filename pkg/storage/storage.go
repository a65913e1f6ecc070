// Package storage uploads catalog images to Cloudinary.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// ErrNotConfigured is returned by Disabled for every upload
var ErrNotConfigured = errors.New("image storage is not configured")

// Object is a stored asset. PublicID is the handle used to delete it.
type Object struct {
	URL      string
	PublicID string
}

// Store uploads and deletes assets
type Store interface {
	Upload(ctx context.Context, r io.Reader, folder string) (*Object, error)
	Delete(ctx context.Context, publicID string) error
}

// Cloudinary implements Store
type Cloudinary struct {
	cld        *cloudinary.Cloudinary
	rootFolder string
}

// NewCloudinary builds a client from a cloudinary:// URL
func NewCloudinary(url, rootFolder string) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid cloudinary url: %w", err)
	}
	return &Cloudinary{cld: cld, rootFolder: rootFolder}, nil
}

// Upload stores r under rootFolder/folder
func (c *Cloudinary) Upload(ctx context.Context, r io.Reader, folder string) (*Object, error) {
	res, err := c.cld.Upload.Upload(ctx, r, uploader.UploadParams{
		Folder: joinFolder(c.rootFolder, folder),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload image: %w", err)
	}
	if res.Error.Message != "" {
		return nil, fmt.Errorf("failed to upload image: %s", res.Error.Message)
	}
	return &Object{URL: res.SecureURL, PublicID: res.PublicID}, nil
}

// Delete removes an asset by public id
func (c *Cloudinary) Delete(ctx context.Context, publicID string) error {
	if publicID == "" {
		return nil
	}
	res, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	if err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	if res.Error.Message != "" {
		return fmt.Errorf("failed to delete image: %s", res.Error.Message)
	}
	return nil
}

func joinFolder(root, folder string) string {
	switch {
	case root == "":
		return folder
	case folder == "":
		return root
	default:
		return root + "/" + folder
	}
}

// Disabled rejects uploads and ignores deletes
type Disabled struct{}

// Upload implements Store
func (Disabled) Upload(context.Context, io.Reader, string) (*Object, error) {
	return nil, ErrNotConfigured
}

// Delete implements Store
func (Disabled) Delete(context.Context, string) error { return nil }
