package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSaveAndRead(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	path, err := s.Save("resume.pdf", []byte("%PDF-1.4 body"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_resume.pdf"))
	assert.True(t, s.Exists(path))

	data, err := s.Read(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 body"), data)
}

func TestStoreCollisionResistantNames(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	p1, err := s.Save("resume.pdf", []byte("one"))
	require.NoError(t, err)
	p2, err := s.Save("resume.pdf", []byte("two"))
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
}

func TestStoreReadMissingFile(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	assert.False(t, s.Exists("/nonexistent/file.pdf"))
	_, err = s.Read("/nonexistent/file.pdf")
	assert.Error(t, err)
}
