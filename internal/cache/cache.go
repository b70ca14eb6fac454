// Package cache memoizes extraction results per file fingerprint and strategy.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// DefaultTTL is how long a cached result may be served.
const DefaultTTL = 24 * time.Hour

// DefaultSweepProbability is the chance that a Get or Set also sweeps expired records.
const DefaultSweepProbability = 0.1

// ErrCorrupt is returned by backends when a stored record cannot be decoded.
var ErrCorrupt = eris.New("cache: corrupt record")

// Record is the unit of storage, one per fingerprint and strategy.
type Record struct {
	Timestamp      time.Time              `json:"timestamp"`
	Result         model.ExtractionResult `json:"result"`
	SourceFilename string                 `json:"source_filename"`
	StrategyName   string                 `json:"strategy_name"`
}

// Backend stores records by key. Load returns (nil, nil) on a miss.
type Backend interface {
	Load(ctx context.Context, key string) (*Record, error)
	Store(ctx context.Context, key string, rec Record) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// Sizer is implemented by backends that can report their on-disk footprint.
type Sizer interface {
	SizeBytes(ctx context.Context) (int64, error)
}

// Stats summarizes the cache contents.
type Stats struct {
	TotalEntries int        `json:"total_entries"`
	TotalSizeMB  float64    `json:"total_size_mb"`
	Oldest       *time.Time `json:"oldest,omitempty"`
	Newest       *time.Time `json:"newest,omitempty"`
}

// Cache is a TTL memo over a Backend. It is safe for concurrent use as long
// as the backend is.
type Cache struct {
	backend          Backend
	ttl              time.Duration
	sweepProbability float64
	now              func() time.Time
	rand             func() float64
	stat             func(string) (os.FileInfo, error)
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithSweepProbability overrides DefaultSweepProbability.
func WithSweepProbability(p float64) Option {
	return func(c *Cache) { c.sweepProbability = p }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithRand injects the sweep sampling source, which must return values in [0,1).
func WithRand(r func() float64) Option {
	return func(c *Cache) { c.rand = r }
}

// New creates a Cache over backend.
func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{
		backend:          backend,
		ttl:              DefaultTTL,
		sweepProbability: DefaultSweepProbability,
		now:              time.Now,
		rand:             rand.Float64,
		stat:             os.Stat,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Fingerprint identifies file content cheaply by size and modification time.
// The path is deliberately excluded so a renamed file keeps its entries.
func Fingerprint(size int64, mtime time.Time) string {
	h := sha256.New()
	h.Write([]byte(strconv.FormatInt(size, 10)))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatInt(mtime.UnixNano(), 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// Key combines a fingerprint with a strategy name into a storage key.
func Key(fingerprint, strategy string) string {
	return fingerprint + "_" + sanitize(strategy)
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}

func (c *Cache) keyFor(path, strategy string) (string, error) {
	info, err := c.stat(path)
	if err != nil {
		return "", eris.Wrapf(err, "cache: stat %s", path)
	}
	return Key(Fingerprint(info.Size(), info.ModTime()), strategy), nil
}

// Get returns the cached result for path and strategy, or false on a miss.
// Expired and corrupt records are deleted and reported as misses.
func (c *Cache) Get(ctx context.Context, path, strategy string) (*model.ExtractionResult, bool) {
	c.maybeSweep(ctx)

	key, err := c.keyFor(path, strategy)
	if err != nil {
		zap.L().Debug("cache: miss, file not readable", zap.String("path", path), zap.Error(err))
		return nil, false
	}

	rec, err := c.backend.Load(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCorrupt) {
			_ = c.backend.Delete(ctx, key)
		}
		zap.L().Warn("cache: load failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if rec == nil {
		return nil, false
	}

	if c.now().Sub(rec.Timestamp) > c.ttl {
		if err := c.backend.Delete(ctx, key); err != nil {
			zap.L().Warn("cache: delete expired failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	res := rec.Result.
		WithMetadata(model.MetaFromCache, true).
		WithMetadata(model.MetaCachedAt, rec.Timestamp.UTC().Format(time.RFC3339))
	zap.L().Debug("cache: hit",
		zap.String("strategy", strategy),
		zap.String("file", filepath.Base(path)),
	)
	return &res, true
}

// Set stores res for path and strategy. Failed results are never cached.
func (c *Cache) Set(ctx context.Context, path, strategy string, res model.ExtractionResult) error {
	if res.Failed() {
		return nil
	}

	key, err := c.keyFor(path, strategy)
	if err != nil {
		return err
	}

	rec := Record{
		Timestamp:      c.now(),
		Result:         res,
		SourceFilename: filepath.Base(path),
		StrategyName:   strategy,
	}
	if err := c.backend.Store(ctx, key, rec); err != nil {
		return eris.Wrap(err, "cache: store")
	}

	c.maybeSweep(ctx)
	return nil
}

func (c *Cache) maybeSweep(ctx context.Context) {
	if c.sweepProbability <= 0 || c.rand() >= c.sweepProbability {
		return
	}
	removed, err := c.Sweep(ctx)
	if err != nil {
		zap.L().Warn("cache: sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		zap.L().Info("cache: swept expired records", zap.Int("removed", removed))
	}
}

// Sweep deletes expired and corrupt records and returns how many were removed.
func (c *Cache) Sweep(ctx context.Context) (int, error) {
	keys, err := c.backend.Keys(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "cache: list keys")
	}

	removed := 0
	now := c.now()
	for _, key := range keys {
		rec, err := c.backend.Load(ctx, key)
		switch {
		case err != nil && !errors.Is(err, ErrCorrupt):
			continue
		case err == nil && rec != nil && now.Sub(rec.Timestamp) <= c.ttl:
			continue
		case err == nil && rec == nil:
			continue
		}
		if err := c.backend.Delete(ctx, key); err == nil {
			removed++
		}
	}
	return removed, nil
}

// Clear deletes every record and returns how many were removed.
func (c *Cache) Clear(ctx context.Context) (int, error) {
	keys, err := c.backend.Keys(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "cache: list keys")
	}
	removed := 0
	for _, key := range keys {
		if err := c.backend.Delete(ctx, key); err != nil {
			return removed, eris.Wrapf(err, "cache: delete %s", key)
		}
		removed++
	}
	return removed, nil
}

// Stats reports entry count, size, and the age range of stored records.
func (c *Cache) Stats(ctx context.Context) (*Stats, error) {
	keys, err := c.backend.Keys(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "cache: list keys")
	}

	st := &Stats{}
	for _, key := range keys {
		rec, err := c.backend.Load(ctx, key)
		if err != nil || rec == nil {
			continue
		}
		st.TotalEntries++
		ts := rec.Timestamp
		if st.Oldest == nil || ts.Before(*st.Oldest) {
			st.Oldest = &ts
		}
		if st.Newest == nil || ts.After(*st.Newest) {
			st.Newest = &ts
		}
	}

	if sizer, ok := c.backend.(Sizer); ok {
		size, err := sizer.SizeBytes(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "cache: size")
		}
		st.TotalSizeMB = float64(size) / (1024 * 1024)
	}
	return st, nil
}
