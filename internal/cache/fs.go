package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

const recordExt = ".json"

// FSBackend keeps one indented JSON file per key in a flat directory.
// Writes go through a temp file and rename so readers never see a partial record.
type FSBackend struct {
	dir string
}

// NewFSBackend creates dir if needed.
func NewFSBackend(dir string) (*FSBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "cache: create dir %s", dir)
	}
	return &FSBackend{dir: dir}, nil
}

// Dir returns the backing directory.
func (b *FSBackend) Dir() string { return b.dir }

func (b *FSBackend) path(key string) string {
	return filepath.Join(b.dir, key+recordExt)
}

func (b *FSBackend) Load(_ context.Context, key string) (*Record, error) {
	data, err := os.ReadFile(b.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "cache: read %s", key)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, eris.Wrapf(ErrCorrupt, "cache: decode %s: %v", key, err)
	}
	return &rec, nil
}

func (b *FSBackend) Store(_ context.Context, key string, rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return eris.Wrap(err, "cache: encode record")
	}

	tmp, err := os.CreateTemp(b.dir, key+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "cache: create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrap(err, "cache: write temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return eris.Wrap(err, "cache: close temp file")
	}
	if err := os.Rename(tmpName, b.path(key)); err != nil {
		os.Remove(tmpName)
		return eris.Wrapf(err, "cache: rename %s", key)
	}
	return nil
}

func (b *FSBackend) Delete(_ context.Context, key string) error {
	if err := os.Remove(b.path(key)); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "cache: remove %s", key)
	}
	return nil
}

func (b *FSBackend) Keys(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, eris.Wrap(err, "cache: read dir")
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(e.Name(), recordExt))
	}
	return keys, nil
}

// SizeBytes sums the size of all record files.
func (b *FSBackend) SizeBytes(ctx context.Context) (int64, error) {
	keys, err := b.Keys(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, key := range keys {
		info, err := os.Stat(b.path(key))
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}
