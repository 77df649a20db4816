package blob

import (
	"context"
	"fmt"

	"officeflow/internal/infra/blob/fs"
	memorystore "officeflow/internal/infra/blob/memory"
	infraS3 "officeflow/internal/infra/blob/s3"
)

// S3Config carries the OFFICEFLOW_BLOB_S3_* settings.
type S3Config = infraS3.Config

// Config selects and configures an attachment backend.
type Config struct {
	Driver Driver
	// Root is the filesystem root when Driver is fs. Defaults to ./storage.
	Root string
	S3   S3Config
}

// Open returns the Store described by cfg; an empty driver means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverFilesystem, "":
		return NewFilesystem(cfg.Root)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewFilesystem stores attachments as files below root.
func NewFilesystem(root string) (Store, error) { return fs.New(root) }

// NewS3 stores attachments in a single bucket.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) { return infraS3.New(ctx, cfg) }

// NewFakeS3 returns an S3 store served by an in-process bucket.
func NewFakeS3() Store { return infraS3.NewFake() }

// NewMemory keeps attachments in process memory.
func NewMemory() Store { return memorystore.New() }

// NewFaultyMemory is NewMemory with injectable put and delete failures.
func NewFaultyMemory(failPut, failDelete func(key string) error) Store {
	s := memorystore.New()
	s.FailPuts(failPut)
	s.FailDeletes(failDelete)
	return s
}
