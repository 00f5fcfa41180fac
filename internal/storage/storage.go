// Package storage keeps the encoded record, tensor and package batches that
// packing jobs read and write.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Common errors.
var (
	ErrNotFound      = errors.New("blob not found")
	ErrStorageFull   = errors.New("storage capacity exceeded")
	ErrInvalidHandle = errors.New("invalid blob handle")
)

// Handle is the hex SHA-256 of a blob's stored bytes.
type Handle string

// ComputeHandle returns the content address of data.
func ComputeHandle(data []byte) Handle {
	hash := sha256.Sum256(data)
	return Handle(hex.EncodeToString(hash[:]))
}

// Validate reports whether h looks like a handle produced by ComputeHandle.
func (h Handle) Validate() error {
	if len(h) != 2*sha256.Size {
		return fmt.Errorf("%w: %q", ErrInvalidHandle, string(h))
	}
	if _, err := hex.DecodeString(string(h)); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidHandle, string(h))
	}
	return nil
}

// Storage is a content-addressed blob store.
type Storage interface {
	// Store saves a blob and returns its handle. Storing the same bytes twice
	// returns the same handle.
	Store(ctx context.Context, data []byte) (Handle, error)
	// Load retrieves a blob by handle.
	Load(ctx context.Context, handle Handle) ([]byte, error)
	// Delete removes a blob.
	Delete(ctx context.Context, handle Handle) error
	// Exists checks if a blob exists.
	Exists(ctx context.Context, handle Handle) (bool, error)
	// Close releases the storage.
	Close() error
}

// MemoryStorage keeps blobs in process up to a byte capacity.
type MemoryStorage struct {
	mu       sync.RWMutex
	data     map[Handle][]byte
	capacity int64
	size     int64
}

// NewMemoryStorage creates an in-memory storage holding at most capacityMB
// megabytes.
func NewMemoryStorage(capacityMB int64) *MemoryStorage {
	return &MemoryStorage{
		data:     make(map[Handle][]byte),
		capacity: capacityMB * 1024 * 1024,
	}
}

func (s *MemoryStorage) Store(ctx context.Context, data []byte) (Handle, error) {
	handle := ComputeHandle(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[handle]; ok {
		return handle, nil
	}
	if s.size+int64(len(data)) > s.capacity {
		return "", fmt.Errorf("%w: %d of %d bytes used", ErrStorageFull, s.size, s.capacity)
	}

	s.data[handle] = append([]byte(nil), data...)
	s.size += int64(len(data))
	return handle, nil
}

func (s *MemoryStorage) Load(ctx context.Context, handle Handle) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.data[handle]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStorage) Delete(ctx context.Context, handle Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.data[handle]
	if !ok {
		return ErrNotFound
	}
	s.size -= int64(len(data))
	delete(s.data, handle)
	return nil
}

func (s *MemoryStorage) Exists(ctx context.Context, handle Handle) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.data[handle]
	return ok, nil
}

// Size returns the number of bytes held.
func (s *MemoryStorage) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[Handle][]byte)
	s.size = 0
	return nil
}

// FileStorage stores blobs as files sharded by handle prefix.
type FileStorage struct {
	baseDir string
}

// NewFileStorage creates baseDir if needed and stores blobs beneath it.
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if err := os.MkdirAll(baseDir, 0750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStorage{baseDir: baseDir}, nil
}

func (s *FileStorage) path(handle Handle) (string, error) {
	if err := handle.Validate(); err != nil {
		return "", err
	}
	h := string(handle)
	return filepath.Join(s.baseDir, h[:2], h), nil
}

func (s *FileStorage) Store(ctx context.Context, data []byte) (Handle, error) {
	handle := ComputeHandle(data)
	path, err := s.path(handle)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(path); err == nil {
		return handle, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return "", fmt.Errorf("create shard dir: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(path), handle.short()+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename temp file: %w", err)
	}
	return handle, nil
}

func (s *FileStorage) Load(ctx context.Context, handle Handle) ([]byte, error) {
	path, err := s.path(handle)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

func (s *FileStorage) Delete(ctx context.Context, handle Handle) error {
	path, err := s.path(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

func (s *FileStorage) Exists(ctx context.Context, handle Handle) (bool, error) {
	path, err := s.path(handle)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat blob: %w", err)
}

func (s *FileStorage) Close() error {
	return nil
}

func (h Handle) short() string {
	if len(h) > 12 {
		return string(h[:12])
	}
	return string(h)
}
