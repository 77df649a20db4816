// Package ident allocates identifiers: opaque random ids for unordered
// records, and human-readable per-year counters (DOC_2024_0001,
// DAK/IN/2024/001) that stay unique under concurrent writers.
package ident

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync/atomic"
	"time"

	"officeflow/internal/infra/persistence/jsonfile"
	"officeflow/pkg/domain"
)

// DefaultRetries bounds how often Reserve rescans after losing a race.
const DefaultRetries = 5

var (
	randRead = rand.Read
	fallback atomic.Uint64
)

// RandomID returns 32 lowercase hex characters from the secure random source.
// If that source fails, the id combines the clock with a process-wide counter
// so it is still unique within the process.
func RandomID() string {
	var b [16]byte
	if _, err := randRead(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}
	seq := fallback.Add(1)
	return fmt.Sprintf("%016x%016x", uint64(time.Now().UnixNano()), seq)
}

// FormatScopedID renders <category>_<year>_<n> with n zero-padded to width.
func FormatScopedID(category string, year, n, width int) string {
	return fmt.Sprintf("%s_%d_%0*d", category, year, width, n)
}

func scopedPattern(category string, year int) *regexp.Regexp {
	return regexp.MustCompile("^" + regexp.QuoteMeta(fmt.Sprintf("%s_%d_", category, year)) + `(\d+)\.json$`)
}

// NextScopedID scans dir for <category>_<year>_<n>.json files and returns the
// id after the highest counter, skipping any candidate that already exists.
func NextScopedID(dir string, year int, category string, width int) (string, error) {
	pattern := scopedPattern(category, year)
	entries, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("scan %s: %w", dir, err)
	}
	highest := 0
	for _, e := range entries {
		m := pattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	for n := highest + 1; ; n++ {
		id := FormatScopedID(category, year, n, width)
		_, err := os.Lstat(filepath.Join(dir, id+".json"))
		if errors.Is(err, fs.ErrNotExist) {
			return id, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", id, err)
		}
	}
}

// Allocator reserves scoped ids under a lock shared by every writer of the
// same (dir, category, year).
type Allocator struct {
	retries int
}

// NewAllocator returns an allocator that retries lost races up to retries
// times; values below one use DefaultRetries.
func NewAllocator(retries int) *Allocator {
	if retries < 1 {
		retries = DefaultRetries
	}
	return &Allocator{retries: retries}
}

// Reserve scans for the next id and calls persist with it while holding the
// allocation lock. When persist reports fs.ErrExist the scan is repeated; after
// the retry budget the call fails with domain.ErrAllocationRace.
func (a *Allocator) Reserve(ctx context.Context, dir, category string, year, width int, persist func(id string) error) (string, error) {
	lockPath := filepath.Join(dir, fmt.Sprintf(".%s_%d.alloc", category, year))
	var lastErr error
	for attempt := 0; attempt < a.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		var id string
		err := jsonfile.WithLock(ctx, lockPath, func() error {
			next, err := NextScopedID(dir, year, category, width)
			if err != nil {
				return err
			}
			id = next
			return persist(id)
		})
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", err
		}
		lastErr = err
	}
	return "", domain.AllocationRace("", fmt.Sprintf("%s/%s_%d", dir, category, year), lastErr)
}

// Reserve allocates with the default retry budget.
func Reserve(ctx context.Context, dir, category string, year, width int, persist func(id string) error) (string, error) {
	return NewAllocator(DefaultRetries).Reserve(ctx, dir, category, year, width, persist)
}

// NextDakReference returns the reference after the highest counter used by
// entries of the same direction and year.
func NextDakReference(entries []domain.DakEntry, direction domain.DakDirection, year int) string {
	highest := 0
	for _, e := range entries {
		if e.Direction != "" && e.Direction != direction {
			continue
		}
		if n, ok := domain.DakCounter(e.ReferenceNo, direction, year); ok && n > highest {
			highest = n
		}
	}
	return domain.FormatDakReference(direction, year, highest+1)
}
