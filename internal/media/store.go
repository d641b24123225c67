// Package media keeps quote attachments on local disk and serves them under
// a public URL prefix.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store saves and removes attachments referenced by quote media_urls.
type Store interface {
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
	Remove(ctx context.Context, urls []string) error
}

type LocalStore struct {
	dir    string
	prefix string
}

// NewLocalStore stores files under dir and returns URLs beginning with prefix.
func NewLocalStore(dir, prefix string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &LocalStore{dir: dir, prefix: "/" + strings.Trim(prefix, "/") + "/"}, nil
}

func (s *LocalStore) Dir() string    { return s.dir }
func (s *LocalStore) Prefix() string { return s.prefix }

func (s *LocalStore) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := uuid.NewString() + strings.ToLower(filepath.Ext(filename))
	f, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("create media file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write media file: %w", err)
	}
	return s.prefix + name, nil
}

// Remove deletes every file owned by this store. URLs pointing elsewhere and
// files already gone are skipped.
func (s *LocalStore) Remove(ctx context.Context, urls []string) error {
	var errs []error
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !strings.HasPrefix(u, s.prefix) {
			continue
		}
		name := filepath.Base(strings.TrimPrefix(u, s.prefix))
		if name == "." || name == "/" {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
