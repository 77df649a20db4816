package jsonfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Lock is an exclusive advisory lock on a path, held across a read-modify-write
// cycle. It serialises goroutines of this process and, where the platform
// supports it, other processes sharing the same data root.
type Lock struct {
	key  string
	slot *lockSlot
	file *os.File
}

type lockSlot struct {
	sem  chan struct{}
	refs int
}

var (
	slotsMu sync.Mutex
	slots   = make(map[string]*lockSlot)
)

// Acquire blocks until the lock for path is held or ctx is done. The lock file
// lives at path + ".lock".
func Acquire(ctx context.Context, path string) (*Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := filepath.Abs(path)
	if err != nil {
		key = filepath.Clean(path)
	}
	slot := retainSlot(key)
	select {
	case slot.sem <- struct{}{}:
	case <-ctx.Done():
		releaseSlot(key)
		return nil, ctx.Err()
	}
	l := &Lock{key: key, slot: slot}
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		l.unlockProcess()
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	f, err := os.OpenFile(path+".lock", os.O_RDWR|os.O_CREATE, filePerm)
	if err != nil {
		l.unlockProcess()
		return nil, fmt.Errorf("open lock %s: %w", path, err)
	}
	if err := lockFile(ctx, f); err != nil {
		_ = f.Close()
		l.unlockProcess()
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	l.file = f
	return l, nil
}

// Release drops the lock. Calling it more than once is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := unlockFile(l.file)
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	l.file = nil
	l.unlockProcess()
	return err
}

func (l *Lock) unlockProcess() {
	<-l.slot.sem
	releaseSlot(l.key)
}

// WithLock runs fn while holding the lock for path.
func WithLock(ctx context.Context, path string, fn func() error) (err error) {
	l, err := Acquire(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := l.Release(); err == nil && rerr != nil {
			err = rerr
		}
	}()
	return fn()
}

func retainSlot(key string) *lockSlot {
	slotsMu.Lock()
	defer slotsMu.Unlock()
	slot, ok := slots[key]
	if !ok {
		slot = &lockSlot{sem: make(chan struct{}, 1)}
		slots[key] = slot
	}
	slot.refs++
	return slot
}

func releaseSlot(key string) {
	slotsMu.Lock()
	defer slotsMu.Unlock()
	slot, ok := slots[key]
	if !ok {
		return
	}
	slot.refs--
	if slot.refs <= 0 {
		delete(slots, key)
	}
}
