package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

var ErrObjectNotFound = errors.New("object not found")

// MaxObjectSize bounds ReadObject; schema snapshots are plain text.
const MaxObjectSize = 32 << 20

type ObjectInfo struct {
	Key  string
	Size int64
	ETag string
}

type PutOptions struct {
	ContentType string
}

type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// ReadObject returns the full object body, or ErrObjectNotFound.
func ReadObject(ctx context.Context, store ObjectStore, key string) ([]byte, error) {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(io.LimitReader(reader, MaxObjectSize+1))
	if err != nil {
		return nil, fmt.Errorf("read object %q: %w", key, err)
	}
	if len(data) > MaxObjectSize {
		return nil, fmt.Errorf("object %q exceeds %d bytes", key, MaxObjectSize)
	}
	return data, nil
}

func WriteObject(ctx context.Context, store ObjectStore, key string, data []byte, contentType string) (ObjectInfo, error) {
	return store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), PutOptions{ContentType: contentType})
}
