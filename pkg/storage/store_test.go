package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	key := "evidence/org-1/2026/08/doc.pdf"
	data := []byte("annex iv supporting document")

	require.NoError(t, fs.Put(ctx, key, data, "application/pdf"))

	got, err := fs.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	exists, err := fs.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	sum, err := fs.Checksum(ctx, key)
	require.NoError(t, err)
	assert.Len(t, sum, 64)

	dl, err := fs.PresignDownload(ctx, key, 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dl, "file://"))

	require.NoError(t, fs.Delete(ctx, key))
	exists, err = fs.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	// Deleting a missing object is not an error.
	require.NoError(t, fs.Delete(ctx, key))
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	err = fs.Put(ctx, "../outside.txt", []byte("x"), "")
	assert.Error(t, err)

	_, err = fs.Get(ctx, "/etc/passwd")
	assert.Error(t, err)
}
