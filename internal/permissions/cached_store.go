package permissions

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// CachedStore fronts a Store with a RecordCache on the Lookup path. Writes go
// straight through and invalidate the affected entry both before and after
// the statement, so a Lookup racing the write cannot cache the old value.
type CachedStore struct {
	Store
	cache  *RecordCache
	logger *zap.Logger
}

// CachedStoreConfig configures the CachedStore.
type CachedStoreConfig struct {
	Store    Store
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// NewCachedStore wraps cfg.Store. A zero CacheTTL falls back to 5s.
func NewCachedStore(cfg CachedStoreConfig) *CachedStore {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedStore{
		Store:  cfg.Store,
		cache:  NewRecordCache(ttl),
		logger: logger,
	}
}

func (s *CachedStore) Lookup(ctx context.Context, tables []string) (map[string]Record, error) {
	out := make(map[string]Record, len(tables))
	var misses []string
	gens := make(map[string]Generation)

	for _, t := range tables {
		t = NormalizeName(t)
		rec, hit := s.cache.Get(t)
		if !hit {
			if _, seen := gens[t]; !seen {
				misses = append(misses, t)
				gens[t] = s.cache.Generation(t)
			}
			continue
		}
		if rec != nil {
			out[t] = *rec
		}
	}

	if len(misses) == 0 {
		return out, nil
	}

	fetched, err := s.Store.Lookup(ctx, misses)
	if err != nil {
		return nil, err
	}
	for _, t := range misses {
		var cached *Record
		if rec, ok := fetched[t]; ok {
			out[t] = rec
			cached = &rec
		}
		if !s.cache.Fill(t, cached, gens[t]) {
			s.logger.Debug("permission changed during lookup, not caching",
				zap.String("table", t),
			)
		}
	}
	return out, nil
}

func (s *CachedStore) Insert(ctx context.Context, rec Record) error {
	table := NormalizeName(rec.TableName)
	s.cache.Invalidate(table)
	defer s.cache.Invalidate(table)
	return s.Store.Insert(ctx, rec)
}

func (s *CachedStore) SetFlag(ctx context.Context, table string, kind Kind, enabled bool, defaults Policy) (*Record, error) {
	name := NormalizeName(table)
	s.cache.Invalidate(name)
	defer s.cache.Invalidate(name)
	return s.Store.SetFlag(ctx, table, kind, enabled, defaults)
}

func (s *CachedStore) Delete(ctx context.Context, table string) error {
	name := NormalizeName(table)
	s.cache.Invalidate(name)
	defer s.cache.Invalidate(name)
	return s.Store.Delete(ctx, table)
}

// Invalidate drops every cached record.
func (s *CachedStore) Invalidate() {
	s.cache.Purge()
}
