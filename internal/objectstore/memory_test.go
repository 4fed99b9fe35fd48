package objectstore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutGetDelete(t *testing.T) {
	s := NewMemoryStore("https://cdn.example.com/")
	ctx := context.Background()

	url, err := s.Put(ctx, "reports/abc.png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/reports/abc.png", url)

	b, ok := s.Get("reports/abc.png")
	require.True(t, ok)
	assert.Equal(t, "png-bytes", string(b))

	require.NoError(t, s.Delete(ctx, "reports/abc.png"))
	_, ok = s.Get("reports/abc.png")
	assert.False(t, ok)
}

func TestFTPStore_RemotePath(t *testing.T) {
	s := NewFTPStore("ftp.local", "21", "u", "p", "https://img.example.com/", "/report-images/")
	assert.Equal(t, "report-images/a/b.jpg", s.remotePath("a/b.jpg"))

	bare := NewFTPStore("ftp.local", "21", "u", "p", "https://img.example.com", "")
	assert.Equal(t, "b.jpg", bare.remotePath("b.jpg"))
}
