package blob

import (
	"context"
	"fmt"

	"agritrace/internal/blob/core"
	infrafs "agritrace/internal/infra/blob/fs"
	inframemory "agritrace/internal/infra/blob/memory"
	infras3 "agritrace/internal/infra/blob/s3"
)

// S3Config configures the S3 driver.
type S3Config = infras3.Config

// Config selects and configures a driver.
type Config struct {
	Driver string
	FSRoot string
	S3     S3Config
}

// Open builds the Store named by cfg.Driver (fs when empty).
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver, err := core.ParseDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}
	switch driver {
	case DriverS3:
		store, err := NewS3(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("open s3 blob store: %w", err)
		}
		return store, nil
	case DriverMemory:
		return NewMemory(), nil
	default:
		return NewFilesystem(cfg.FSRoot)
	}
}

// NewMemory returns an in-process Store.
func NewMemory() Store { return inframemory.New() }

// NewFilesystem returns a Store rooted at root (./blobdata when empty).
func NewFilesystem(root string) (Store, error) {
	store, err := infrafs.New(root)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewS3 returns a Store on an S3 compatible bucket.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	store, err := infras3.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewMockS3ForTests returns an S3 Store backed by an in-process fake bucket.
func NewMockS3ForTests() Store { return infras3.NewMockForTests() }
