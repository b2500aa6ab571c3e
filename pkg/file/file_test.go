package file_test

import (
	"path/filepath"
	"testing"

	"github.com/benmeehan/proximity-agent/pkg/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string  `json:"name" yaml:"name"`
	Value float64 `json:"value" yaml:"value"`
}

func TestFileService_JsonRoundTrip(t *testing.T) {
	fs := file.NewFileService()
	path := filepath.Join(t.TempDir(), "nested", "data.json")

	exists, err := fs.IsFileExists(path)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, fs.WriteJsonFile(path, sample{Name: "marker", Value: 58.00937}))

	exists, err = fs.IsFileExists(path)
	require.NoError(t, err)
	assert.True(t, exists)

	var got sample
	require.NoError(t, fs.ReadJsonFile(path, &got))
	assert.Equal(t, sample{Name: "marker", Value: 58.00937}, got)

	exists, err = fs.IsFileExists(path + ".tmp")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFileService_ReadMissing(t *testing.T) {
	fs := file.NewFileService()
	_, err := fs.ReadFileRaw(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	var v sample
	assert.Error(t, fs.ReadYamlFile(filepath.Join(t.TempDir(), "missing.yaml"), &v))
}
