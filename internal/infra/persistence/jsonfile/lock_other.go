//go:build !unix

package jsonfile

import (
	"context"
	"os"
)

// Without flock only goroutines of this process are serialised.
func lockFile(context.Context, *os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
