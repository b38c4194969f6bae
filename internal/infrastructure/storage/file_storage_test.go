package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalFileStorage_SaveReadDelete(t *testing.T) {
	base := t.TempDir()
	s := NewLocalFileStorage(base, zap.NewNop())
	ctx := context.Background()

	path := filepath.Join("2024-05-01", "01HXA_bill.jpg")
	require.NoError(t, s.Save(ctx, path, []byte("jpeg")))

	content, err := s.Read(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), content)
	assert.FileExists(t, filepath.Join(base, path))

	assert.Error(t, s.Save(ctx, path, []byte("again")), "existing files are not overwritten")

	require.NoError(t, s.Delete(ctx, path))
	_, err = os.Stat(filepath.Join(base, path))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, s.Delete(ctx, path), "deleting twice is fine")
}

func TestLocalFileStorage_RejectsEscapes(t *testing.T) {
	s := NewLocalFileStorage(t.TempDir(), zap.NewNop())
	ctx := context.Background()

	for _, p := range []string{"../outside.jpg", "a/../../outside.jpg", "."} {
		t.Run(p, func(t *testing.T) {
			assert.ErrorIs(t, s.Save(ctx, p, []byte("x")), ErrPathEscapesBase)
			assert.ErrorIs(t, s.Delete(ctx, p), ErrPathEscapesBase)
		})
	}
}
