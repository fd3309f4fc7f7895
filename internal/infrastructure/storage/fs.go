// Package storage implements ports.BlobStore on the local filesystem.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/crmhub/crm-api/internal/core/domain"
	"github.com/crmhub/crm-api/internal/core/ports"
)

var errInvalidKey = errors.New("storage: invalid blob key")

// FSStore keeps blobs as files under a root directory. Writes go to a temp
// file in the target directory and are renamed into place, so readers never
// observe a partial file.
type FSStore struct {
	root string
}

// NewFSStore creates the root directory when missing.
func NewFSStore(root string) (*FSStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage root: %w", err)
	}
	return &FSStore{root: abs}, nil
}

// path maps key to a file under root. Keys that would escape root are
// rejected.
func (s *FSStore) path(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", errInvalidKey
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errInvalidKey
	}
	return filepath.Join(s.root, clean), nil
}

func (s *FSStore) Put(ctx context.Context, key string, r io.Reader, _ string) error {
	dst, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("storage mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("storage temp file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := io.Copy(tmp, contextReader{ctx: ctx, r: r}); err != nil {
		return fmt.Errorf("storage write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage close: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("storage chmod: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("storage rename: %w", err)
	}
	committed = true
	return nil
}

func (s *FSStore) Open(_ context.Context, key string) (io.ReadCloser, *ports.BlobInfo, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, nil, domain.ErrBlobNotFound
	}

	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, domain.ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("storage open: %w", err)
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("storage stat: %w", err)
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, nil, domain.ErrBlobNotFound
	}

	return f, &ports.BlobInfo{
		Size:        st.Size(),
		ContentType: mime.TypeByExtension(filepath.Ext(p)),
		ModTime:     st.ModTime(),
	}, nil
}

func (s *FSStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage delete: %w", err)
	}
	return nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
