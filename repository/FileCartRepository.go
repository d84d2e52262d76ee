package repository

import (
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"coopStore/models"

	"go.uber.org/zap"
)

const cartFileExt = ".json"

// FileCartRepo keeps one file per key in a directory. Several processes may share the
// directory; each write replaces the file atomically.
type FileCartRepo struct {
	dir    string
	logger *zap.Logger

	mu      sync.Mutex
	written map[string]string // last value this repo wrote, per key
}

func NewFileCartRepository(dir string, logger *zap.Logger) (*FileCartRepo, error) {
	if dir == "" {
		return nil, errors.New("dir must be non-empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileCartRepo{
		dir:     dir,
		logger:  logger,
		written: make(map[string]string),
	}, nil
}

func (f *FileCartRepo) Dir() string {
	return f.dir
}

func (f *FileCartRepo) path(key string) string {
	return filepath.Join(f.dir, url.QueryEscape(key)+cartFileExt)
}

// keyFromPath reverses path; ok is false for files the repo does not own.
func keyFromPath(p string) (key string, ok bool) {
	name := filepath.Base(p)
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, cartFileExt) {
		return
	}
	key, err := url.QueryUnescape(strings.TrimSuffix(name, cartFileExt))
	if err != nil {
		return "", false
	}
	return key, true
}

func (f *FileCartRepo) GetCart(key string) (raw string, exists bool, err error) {
	data, e := os.ReadFile(f.path(key))
	if e != nil {
		if errors.Is(e, fs.ErrNotExist) {
			return
		}
		f.logger.Error("GetCart: read failed", zap.String("key", key), zap.Error(e))
		err = models.ErrPersistenceUnavailable
		return
	}
	return string(data), true, nil
}

func (f *FileCartRepo) SetCart(key string, raw string) (err error) {
	target := f.path(key)
	tmp, e := os.CreateTemp(f.dir, "."+filepath.Base(target)+".*")
	if e != nil {
		f.logger.Error("SetCart: temp file failed", zap.String("key", key), zap.Error(e))
		return models.ErrPersistenceUnavailable
	}
	tmpName := tmp.Name()
	_, e = tmp.WriteString(raw)
	if cerr := tmp.Close(); e == nil {
		e = cerr
	}
	if e != nil {
		os.Remove(tmpName)
		f.logger.Error("SetCart: write failed", zap.String("key", key), zap.Error(e))
		return models.ErrPersistenceUnavailable
	}

	f.mu.Lock()
	prev, hadPrev := f.written[key]
	f.written[key] = raw
	f.mu.Unlock()

	if e = os.Rename(tmpName, target); e != nil {
		os.Remove(tmpName)
		f.mu.Lock()
		if hadPrev {
			f.written[key] = prev
		} else {
			delete(f.written, key)
		}
		f.mu.Unlock()
		f.logger.Error("SetCart: rename failed", zap.String("key", key), zap.Error(e))
		return models.ErrPersistenceUnavailable
	}
	return nil
}

// IsOwnWrite reports whether raw is the last value this repo wrote under key.
func (f *FileCartRepo) IsOwnWrite(key string, raw string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	last, ok := f.written[key]
	return ok && last == raw
}
