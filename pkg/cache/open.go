package cache

import (
	"github.com/pkg/errors"
)

type Backend string

const (
	BackendMemory Backend = "memory"
	BackendSQLite Backend = "sqlite"
)

// Open builds the store named by backend. path is only used by sqlite, maxSize
// only by memory.
func Open(backend Backend, path string, maxSize int) (Store, error) {
	switch backend {
	case BackendMemory, "":
		return NewMemoryStore(WithMaxSize(maxSize)), nil
	case BackendSQLite:
		if path == "" {
			return nil, errors.New("sqlite cache needs a path")
		}
		return NewSQLiteStore(path)
	default:
		return nil, errors.Errorf("unknown cache backend %q", backend)
	}
}
