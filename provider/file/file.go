// Package file is the default provider: one file per key, where the key is a
// filesystem path. Writes go through natefinch/atomic (temp file + rename),
// so readers never observe a half-written record.
package file

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	pr "github.com/unkn0wn-root/memocache/provider"
)

type Provider struct {
	root    string
	dirPerm os.FileMode
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	// Root is prepended to relative keys. Empty means the working directory.
	Root string
	// DirPerm is used for missing parent directories; 0 => 0o755.
	DirPerm os.FileMode
}

func New(cfg Config) *Provider {
	perm := cfg.DirPerm
	if perm == 0 {
		perm = 0o755
	}
	return &Provider{root: cfg.Root, dirPerm: perm}
}

// Path returns the file a key maps to.
func (p *Provider) Path(key string) string {
	if p.root == "" || filepath.IsAbs(key) {
		return filepath.Clean(key)
	}
	return filepath.Join(p.root, key)
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := os.ReadFile(p.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte) (bool, error) {
	path := p.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), p.dirPerm); err != nil {
		return false, err
	}
	if err := atomic.WriteFile(path, bytes.NewReader(value)); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	err := os.Remove(p.Path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (p *Provider) Close(context.Context) error { return nil }
