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

// Package fileval validates uploaded CV documents before anything touches
// disk or the queue: size cap, magic-number check against the declared MIME
// type, filename sanitation and a SHA-256 content fingerprint.
package fileval

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/supercvhq/supercv/internal/apierror"
)

// MaxFileSize is the upload cap (10 MiB).
const MaxFileSize = 10 * 1024 * 1024

const maxFilenameLength = 100

const fallbackBaseName = "cv_file"

// magicNumbers maps declared MIME types to their leading-byte signatures.
// A declared type with no entry here is allowed through on content grounds
// (fail open); the extension allow-list and size cap still apply.
var magicNumbers = map[string][]byte{
	"application/pdf": []byte("%PDF"),
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {0x50, 0x4b, 0x03, 0x04},
	"application/msword": {0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1},
	"application/rtf":    []byte(`{\rtf`),
}

var allowedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".doc":  true,
	".rtf":  true,
}

var dangerousChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// Result carries the outcome of a successful validation.
type Result struct {
	SanitizedName string
	Fingerprint   string
}

// MatchesMagicNumber reports whether the file's leading bytes match the
// signature registered for the declared MIME type. Unknown declared types
// pass.
func MatchesMagicNumber(data []byte, mimeType string) bool {
	signature, ok := magicNumbers[mimeType]
	if !ok {
		return true
	}
	if len(data) < len(signature) {
		return false
	}
	return bytes.Equal(data[:len(signature)], signature)
}

// SanitizeFilename validates the extension against the allow-list and returns
// a safe, bounded, non-empty filename preserving that extension.
func SanitizeFilename(originalName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))

	if !allowedExtensions[ext] {
		return "", apierror.NewAPIError(apierror.ErrInvalidInput,
			"Invalid file type. Allowed: .pdf, .docx, .doc, .rtf",
			fmt.Sprintf("extension %q is not allowed", ext))
	}

	baseName := strings.TrimSuffix(filepath.Base(originalName), filepath.Ext(originalName))
	baseName = dangerousChars.ReplaceAllString(baseName, "_")
	baseName = strings.Trim(baseName, " .")

	// Leave room for the extension and a storage prefix.
	if len(baseName) > maxFilenameLength-20 {
		baseName = baseName[:maxFilenameLength-20]
	}

	if baseName == "" {
		baseName = fallbackBaseName
	}

	return baseName + ext, nil
}

// Fingerprint returns the hex-encoded SHA-256 hash of the file contents,
// used to identify identical uploads.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Validate runs the full intake check over the raw bytes and declared
// metadata. It is a pure function: no side effects, a single typed error on
// failure.
func Validate(data []byte, size int64, mimeType, originalName string) (*Result, error) {
	if len(data) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "No file provided", nil)
	}

	if size > MaxFileSize {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput,
			"File size exceeds 10MB limit", fmt.Sprintf("size %d", size))
	}

	if !MatchesMagicNumber(data, mimeType) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput,
			"File content does not match declared type. Possible file spoofing detected.",
			fmt.Sprintf("declared type %s", mimeType))
	}

	sanitized, err := SanitizeFilename(originalName)
	if err != nil {
		return nil, err
	}

	return &Result{
		SanitizedName: sanitized,
		Fingerprint:   Fingerprint(data),
	}, nil
}
