// Package blobstore is the object-storage side of the metadata store:
// large per-chunk OCR results, merged document text, and per-page
// bounding box payloads are too big to keep inline on a MongoDB
// document, so they're written here and referenced by a storage_path
// string on the owning row, mirroring this codebase's storage_service
// path convention (matter-scoped subfolders). No S3-compatible client
// is wired into this module, so this speaks directly to local disk
// under a configured root — the same shape a real deployment would get
// by mounting an S3 bucket at that path.
package blobstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store writes and reads content-addressed-ish blobs rooted at a
// single base directory, namespaced by matter so a matter's documents
// can be bulk-deleted without touching another matter's data.
type Store struct {
	root string
}

func New(root string) *Store {
	return &Store{root: root}
}

// Subfolder mirrors storage_service.py's VALID_SUBFOLDERS convention,
// scoped to what this pipeline actually produces.
type Subfolder string

const (
	SubfolderOCRChunks Subfolder = "ocr_chunks"
	SubfolderMerged    Subfolder = "merged"
	SubfolderUploads   Subfolder = "uploads"
)

func (s *Store) path(matterID string, sub Subfolder, key string) string {
	return filepath.Join(s.root, matterID, string(sub), key)
}

// Put writes content under a matter/subfolder-scoped, collision-proof
// key and returns the storage_path to persist on the owning row.
func (s *Store) Put(matterID string, sub Subfolder, filename string, content []byte) (storagePath string, err error) {
	key := uniqueKey(filename)
	fullPath := s.path(matterID, sub, key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("blobstore: creating directory: %w", err)
	}
	if err := os.WriteFile(fullPath, content, 0o644); err != nil {
		return "", fmt.Errorf("blobstore: writing blob: %w", err)
	}
	return filepath.Join(matterID, string(sub), key), nil
}

// Get reads back a blob by the storage_path Put returned.
func (s *Store) Get(storagePath string) ([]byte, error) {
	full := filepath.Join(s.root, storagePath)
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("blobstore: reading blob: %w", err)
	}
	return data, nil
}

// Delete removes a single blob; absent files are not an error since
// cleanup sweepers may race with a prior manual deletion.
func (s *Store) Delete(storagePath string) error {
	full := filepath.Join(s.root, storagePath)
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blobstore: deleting blob: %w", err)
	}
	return nil
}

// DeleteMatter removes every blob belonging to a matter in one pass —
// used when a matter is deleted outright rather than swept chunk by
// chunk.
func (s *Store) DeleteMatter(matterID string) error {
	dir := filepath.Join(s.root, matterID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("blobstore: deleting matter tree: %w", err)
	}
	return nil
}

func uniqueKey(filename string) string {
	suffix := uuid.New().String()[:8]
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filepath.Base(filename), ext)
	if base == "" {
		base = "blob"
	}
	return fmt.Sprintf("%s_%s%s", base, suffix, ext)
}
