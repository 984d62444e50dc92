package toplog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	goredis "github.com/redis/go-redis/v9"
)

// ErrPersistCorrupt is returned by Load when stored data cannot be decoded.
// Callers treat it the same as a missing log.
var ErrPersistCorrupt = errors.New("top-log storage corrupt")

// Store persists a single Log document. Load returns (nil, nil) when nothing
// has been saved yet.
type Store interface {
	Load(ctx context.Context) (*Log, error)
	Save(ctx context.Context, log *Log) error
}

// Decode parses a persisted log document.
func Decode(raw []byte) (*Log, error) {
	var log Log
	if err := json.Unmarshal(raw, &log); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistCorrupt, err)
	}
	if !log.valid() {
		return nil, fmt.Errorf("%w: current top %q has no entry", ErrPersistCorrupt, log.CurrentTopUserID)
	}
	return &log, nil
}

// Encode serializes log in the persisted layout.
func Encode(log *Log) ([]byte, error) {
	if log == nil {
		return nil, errors.New("nil top-log")
	}
	return json.MarshalIndent(log, "", "  ")
}

// FileStore keeps the log in one JSON file, rewritten whole on every save.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore { return &FileStore{Path: path} }

func (f *FileStore) Load(_ context.Context) (*Log, error) {
	raw, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistCorrupt, err)
	}
	return Decode(raw)
}

func (f *FileStore) Save(_ context.Context, log *Log) error {
	raw, err := Encode(log)
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create top-log dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create top-log temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write top-log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close top-log: %w", err)
	}
	if err := os.Rename(tmpName, f.Path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace top-log: %w", err)
	}
	return nil
}

// RedisStore keeps the same JSON document under a single key.
type RedisStore struct {
	Client goredis.UniversalClient
	Key    string
}

func NewRedisStore(client goredis.UniversalClient, key string) *RedisStore {
	return &RedisStore{Client: client, Key: key}
}

func (r *RedisStore) Load(ctx context.Context) (*Log, error) {
	raw, err := r.Client.Get(ctx, r.Key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: redis get %s: %v", ErrPersistCorrupt, r.Key, err)
	}
	return Decode(raw)
}

func (r *RedisStore) Save(ctx context.Context, log *Log) error {
	raw, err := Encode(log)
	if err != nil {
		return err
	}
	if err := r.Client.Set(ctx, r.Key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.Key, err)
	}
	return nil
}

// MemoryStore is an in-process Store, mostly for tests and dry runs.
type MemoryStore struct {
	mu  sync.Mutex
	raw []byte
}

func (m *MemoryStore) Load(_ context.Context) (*Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.raw == nil {
		return nil, nil
	}
	return Decode(m.raw)
}

func (m *MemoryStore) Save(_ context.Context, log *Log) error {
	raw, err := Encode(log)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.raw = raw
	m.mu.Unlock()
	return nil
}

// SetRaw replaces the stored bytes, corrupt ones included.
func (m *MemoryStore) SetRaw(raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw = raw
}
