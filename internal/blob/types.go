// Package blob is the attachment storage facade. Callers depend on Store and
// pick a backend through Open; the implementations live under internal/infra/blob.
package blob

import "officeflow/internal/blob/core"

type (
	Driver           = core.Driver
	PutOptions       = core.PutOptions
	SignedURLOptions = core.SignedURLOptions
	Info             = core.Info
	// Store holds attachment binaries keyed by departments/<dept>/uploads/... paths.
	Store = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

// Sentinel errors; match with errors.Is.
var (
	ErrUnsupported = core.ErrUnsupported
	ErrExists      = core.ErrExists
	ErrNotFound    = core.ErrNotFound
)
