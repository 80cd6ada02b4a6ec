package store

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "golang.org/x/image/bmp"
)

// supportedExtensions are the file extensions the filesystem store indexes.
var supportedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
}

// FSStore serves images from a directory tree. Asset ids are paths relative
// to the root, using forward slashes. The directory is walked once at
// construction; ids keep that walk order so candidate listings are stable.
type FSStore struct {
	root string
	ids  []ID

	mu   sync.RWMutex
	meta map[ID]*Metadata // lazily populated metadata cache
}

// NewFSStore indexes the image files under root.
func NewFSStore(root string) (*FSStore, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open store root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("store root %s is not a directory", root)
	}

	s := &FSStore{
		root: root,
		meta: make(map[ID]*Metadata),
	}

	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !supportedExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		s.ids = append(s.ids, ID(filepath.ToSlash(rel)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk store root: %w", err)
	}

	// filepath.Walk visits lexically, but sort explicitly so ordering does
	// not depend on the filesystem.
	sort.Slice(s.ids, func(i, j int) bool { return s.ids[i] < s.ids[j] })

	return s, nil
}

// Fetch returns the encoded image bytes for an asset.
func (s *FSStore) Fetch(ctx context.Context, id ID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(string(id))))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read asset %s: %w", id, err)
	}
	return data, nil
}

// Metadata returns image dimensions using a header-only decode.
func (s *FSStore) Metadata(ctx context.Context, id ID) (*Metadata, error) {
	s.mu.RLock()
	m, ok := s.meta[id]
	s.mu.RUnlock()
	if ok {
		return m, nil
	}

	data, err := s.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read image header for %s: %w", id, err)
	}
	if cfg.Height == 0 {
		return nil, fmt.Errorf("asset %s has zero height", id)
	}

	m = &Metadata{
		Width:       cfg.Width,
		Height:      cfg.Height,
		AspectRatio: float64(cfg.Width) / float64(cfg.Height),
	}

	s.mu.Lock()
	s.meta[id] = m
	s.mu.Unlock()

	return m, nil
}

// List returns indexed asset ids matching the filter.
func (s *FSStore) List(ctx context.Context, filter Filter) ([]ID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(filter.Extensions))
	for _, ext := range filter.Extensions {
		wanted[strings.ToLower(ext)] = true
	}

	var out []ID
	for _, id := range s.ids {
		if len(wanted) > 0 && !wanted[strings.ToLower(filepath.Ext(string(id)))] {
			continue
		}
		out = append(out, id)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}
