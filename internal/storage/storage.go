/*
Copyright 2025 SuperCV Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package storage persists uploaded documents on local disk. The stored path
// is server-internal: it is written to the submission record and read back by
// the worker, never returned to clients.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store writes and reads uploaded files under a base directory.
type Store struct {
	baseDir string
}

// NewStore creates the base directory if needed and returns a Store rooted
// there.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir %s: %w", baseDir, err)
	}
	return &Store{baseDir: baseDir}, nil
}

// Save writes the file under a collision-resistant name derived from the
// sanitized filename and returns the stored path.
func (s *Store) Save(sanitizedName string, data []byte) (string, error) {
	storedName := fmt.Sprintf("%d_%s", time.Now().UnixNano(), sanitizedName)
	path := filepath.Join(s.baseDir, storedName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing upload %s: %w", path, err)
	}
	return path, nil
}

// Read returns the stored bytes. A missing file is a normal error for the
// caller to treat as fatal for the current attempt.
func (s *Store) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading stored file %s: %w", path, err)
	}
	return data, nil
}

// Exists reports whether the stored file is still present on disk.
func (s *Store) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
