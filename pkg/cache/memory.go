package cache

import (
	"container/list"
	"context"
	"sort"
	"sync"

	"github.com/go-go-golems/cauldron/pkg/recipes"
	"github.com/rs/zerolog/log"
)

const DefaultMaxSize = 1000

type memoryEntry struct {
	recipe  *recipes.Recipe
	element *list.Element // for LRU tracking
}

// MemoryStore is an in-process Store bounded by an LRU size cap. Recipes are
// cloned on the way in and out so callers can never mutate a stored entry.
type MemoryStore struct {
	entries map[string]memoryEntry
	lruList *list.List
	maxSize int
	mu      sync.Mutex
}

type MemoryOption func(*MemoryStore)

func WithMaxSize(size int) MemoryOption {
	return func(s *MemoryStore) {
		if size > 0 {
			s.maxSize = size
		}
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		lruList: list.New(),
		maxSize: DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Get(ctx context.Context, fingerprint string) (*recipes.Recipe, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[fingerprint]
	if !ok {
		return nil, false, nil
	}
	s.lruList.MoveToFront(entry.element)
	return entry.recipe.Clone(), true, nil
}

func (s *MemoryStore) PutIfAbsent(ctx context.Context, fingerprint string, recipe *recipes.Recipe) (bool, error) {
	stored := recipe.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[fingerprint]; ok {
		return false, nil
	}

	if s.lruList.Len() >= s.maxSize {
		oldest := s.lruList.Back()
		if oldest != nil {
			oldestKey := oldest.Value.(string)
			delete(s.entries, oldestKey)
			s.lruList.Remove(oldest)
			log.Debug().Str("fingerprint", oldestKey).Msg("Evicted recipe from memory cache")
		}
	}

	element := s.lruList.PushFront(fingerprint)
	s.entries[fingerprint] = memoryEntry{
		recipe:  stored,
		element: element,
	}
	return true, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*recipes.Recipe, error) {
	s.mu.Lock()
	ret := make([]*recipes.Recipe, 0, len(s.entries))
	for _, entry := range s.entries {
		ret = append(ret, entry.recipe.Clone())
	}
	s.mu.Unlock()

	sort.Slice(ret, func(i, j int) bool {
		if ret[i].CreatedAt.Equal(ret[j].CreatedAt) {
			return ret[i].Hash < ret[j].Hash
		}
		return ret[i].CreatedAt.After(ret[j].CreatedAt)
	})
	return ret, nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
