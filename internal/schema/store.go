package schema

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rpossan/asktive-record/internal/storage"
)

var ErrSchemaNotFound = errors.New("schema not found")

// Store reads and writes schema descriptions by project-relative path.
type Store interface {
	ReadSchema(ctx context.Context, path string) ([]byte, error)
	WriteSchema(ctx context.Context, path string, data []byte) error
}

// FileStore resolves relative paths against Root.
type FileStore struct {
	Root string
}

func (s FileStore) ReadSchema(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(s.resolve(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrSchemaNotFound
	}
	return data, err
}

func (s FileStore) WriteSchema(_ context.Context, path string, data []byte) error {
	target := s.resolve(path)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create schema dir: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("write schema file: %w", err)
	}
	return nil
}

func (s FileStore) resolve(path string) string {
	if filepath.IsAbs(path) || s.Root == "" {
		return path
	}
	return filepath.Join(s.Root, path)
}

// ObjectStore keeps schema snapshots in an object store, keyed by path.
type ObjectStore struct {
	Objects storage.ObjectStore
}

func (s ObjectStore) ReadSchema(ctx context.Context, path string) ([]byte, error) {
	data, err := storage.ReadObject(ctx, s.Objects, path)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, ErrSchemaNotFound
	}
	return data, err
}

func (s ObjectStore) WriteSchema(ctx context.Context, path string, data []byte) error {
	_, err := storage.WriteObject(ctx, s.Objects, path, data, "text/plain; charset=utf-8")
	return err
}
