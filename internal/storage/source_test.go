package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/anime-shed/image-eval-go/internal/errors"
)

func TestLocalSourceList(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b_base.png", "a_base.png", ".DS_Store"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	names, err := NewLocalSource(dir).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a_base.png", "b_base.png"}, names)
}

func TestLocalSourceMissingDirectory(t *testing.T) {
	_, err := NewLocalSource(filepath.Join(t.TempDir(), "nope")).List(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeDirectoryNotFound))
}

func TestLocalSourceMaterialize(t *testing.T) {
	src := NewLocalSource("/data/base")
	path, cleanup, err := src.Materialize(context.Background(), "x_base.png")
	require.NoError(t, err)
	require.NotNil(t, cleanup)
	cleanup()
	assert.Equal(t, filepath.Join("/data/base", "x_base.png"), path)
	assert.Equal(t, "/data/base", src.Location())
}

func TestParseAzureURI(t *testing.T) {
	container, prefix, err := ParseAzureURI("az://images/runs/base/")
	require.NoError(t, err)
	assert.Equal(t, "images", container)
	assert.Equal(t, "runs/base", prefix)

	container, prefix, err = ParseAzureURI("az://images")
	require.NoError(t, err)
	assert.Equal(t, "images", container)
	assert.Equal(t, "", prefix)

	_, _, err = ParseAzureURI("s3://bucket/x")
	assert.Error(t, err)
	_, _, err = ParseAzureURI("az:///nohost")
	assert.Error(t, err)
}

func TestAzureSourceLocation(t *testing.T) {
	assert.Equal(t, "az://images/runs/base/", NewAzureSource(nil, "images", "/runs/base").Location())
	assert.Equal(t, "az://images/", NewAzureSource(nil, "images", "").Location())
}
