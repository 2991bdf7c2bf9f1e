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

package fileval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/supercvhq/supercv/internal/apierror"
)

func pdfBytes() []byte {
	return []byte("%PDF-1.4 fake document body")
}

func TestMatchesMagicNumber(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		mimeType string
		want     bool
	}{
		{"pdf matches", pdfBytes(), "application/pdf", true},
		{"pdf spoofed", []byte("not a real pdf"), "application/pdf", false},
		{"docx matches", []byte{0x50, 0x4b, 0x03, 0x04, 0x00}, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", true},
		{"doc matches", []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1, 0x00}, "application/msword", true},
		{"rtf matches", []byte(`{\rtf1\ansi`), "application/rtf", true},
		{"rtf spoofed", []byte("plain text"), "application/rtf", false},
		{"unknown declared type passes", []byte("anything at all"), "text/x-unknown", true},
		{"short file fails signature", []byte("%P"), "application/pdf", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesMagicNumber(tt.data, tt.mimeType))
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	name, err := SanitizeFilename("My Resume (2025).pdf")
	assert.NoError(t, err)
	assert.Equal(t, "My Resume (2025).pdf", name)

	name, err = SanitizeFilename(`..\..\evil<script>.pdf`)
	assert.NoError(t, err)
	assert.True(t, strings.HasSuffix(name, ".pdf"))
	assert.NotContains(t, name, "<")
	assert.NotContains(t, name, `\`)

	// Sanitation emptying the base name falls back to a default
	name, err = SanitizeFilename("....pdf")
	assert.NoError(t, err)
	assert.Equal(t, "cv_file.pdf", name)

	// Over-length names are truncated but keep the extension
	long := strings.Repeat("a", 300) + ".docx"
	name, err = SanitizeFilename(long)
	assert.NoError(t, err)
	assert.True(t, strings.HasSuffix(name, ".docx"))
	assert.LessOrEqual(t, len(name), 100)

	// Disallowed or missing extensions always fail
	for _, bad := range []string{"malware.exe", "resume.txt", "noextension", ""} {
		_, err = SanitizeFilename(bad)
		assert.Error(t, err, "expected rejection for %q", bad)
		apiErr, ok := err.(apierror.APIError)
		assert.True(t, ok)
		assert.Equal(t, apierror.ErrInvalidInput, apiErr.Code)
	}
}

func TestValidate_HappyPath(t *testing.T) {
	data := pdfBytes()
	res, err := Validate(data, int64(len(data)), "application/pdf", "resume.pdf")
	assert.NoError(t, err)
	assert.Equal(t, "resume.pdf", res.SanitizedName)
	assert.Len(t, res.Fingerprint, 64)
	assert.Equal(t, Fingerprint(data), res.Fingerprint)
}

func TestValidate_SpoofedFile(t *testing.T) {
	data := []byte("not a real pdf")
	_, err := Validate(data, int64(len(data)), "application/pdf", "resume.pdf")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "does not match declared type")
}

func TestValidate_SizeCap(t *testing.T) {
	data := pdfBytes()
	_, err := Validate(data, MaxFileSize+1, "application/pdf", "resume.pdf")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "File size exceeds 10MB limit")
}

func TestValidate_EmptyFile(t *testing.T) {
	_, err := Validate(nil, 0, "application/pdf", "resume.pdf")
	assert.Error(t, err)
}

func TestValidate_UnknownTypeStillEnforcesExtension(t *testing.T) {
	data := []byte("opaque bytes")
	// fail-open on content grounds, but the extension list still applies
	_, err := Validate(data, int64(len(data)), "application/x-unknown", "resume.xyz")
	assert.Error(t, err)

	res, err := Validate(data, int64(len(data)), "application/x-unknown", "resume.rtf")
	assert.NoError(t, err)
	assert.Equal(t, "resume.rtf", res.SanitizedName)
}
