package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/kailas-cloud/tokenwatch/internal/domain/usage"
)

// File stores the document as a JSON file, zstd-compressed when the path ends in .zst.
type File struct {
	path     string
	compress bool
}

// NewFile creates a file backend.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("snapshot path is required")
	}
	return &File{
		path:     path,
		compress: strings.HasSuffix(path, ".zst"),
	}, nil
}

// Load reads the document.
func (f *File) Load(_ context.Context) (*usage.State, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read snapshot file: %w", err)
	}
	if f.compress {
		zr, err := zstd.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("open zstd reader: %w", err)
		}
		defer zr.Close()
		if raw, err = io.ReadAll(zr); err != nil {
			return nil, fmt.Errorf("decompress snapshot: %w", err)
		}
	}
	return decode(raw)
}

// Save writes the document to a temp file and renames it over the snapshot.
func (f *File) Save(_ context.Context, state *usage.State) error {
	data, err := encode(state)
	if err != nil {
		return err
	}
	if f.compress {
		if data, err = compress(data); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("mkdir snapshot dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := writeSynced(tmp, data); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename snapshot file: %w", err)
	}
	return nil
}

// writeSynced writes data to path and flushes it to disk before returning.
func writeSynced(path string, data []byte) error {
	fh, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create snapshot temp: %w", err)
	}
	if _, err := fh.Write(data); err != nil {
		_ = fh.Close()
		return fmt.Errorf("write snapshot temp: %w", err)
	}
	if err := fh.Sync(); err != nil {
		_ = fh.Close()
		return fmt.Errorf("sync snapshot temp: %w", err)
	}
	if err := fh.Close(); err != nil {
		return fmt.Errorf("close snapshot temp: %w", err)
	}
	return nil
}

// Ping checks that the snapshot directory is reachable.
func (f *File) Ping(_ context.Context) error {
	dir := filepath.Dir(f.path)
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		// created on first save
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat snapshot dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("snapshot dir %s is not a directory", dir)
	}
	return nil
}

// Close is a no-op.
func (f *File) Close() error { return nil }

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("open zstd writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		_ = zw.Close()
		return nil, fmt.Errorf("compress snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("flush zstd writer: %w", err)
	}
	return buf.Bytes(), nil
}
