package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeWriteFileCreatesParents(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out", "nested", "a.csv")
	require.NoError(t, SafeWriteFile(p, []byte("x,y\n")))
	got, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "x,y\n", string(got))
	entries, err := os.ReadDir(filepath.Dir(p))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "staging file is renamed away")

	require.NoError(t, SafeWriteFile(p, []byte("z\n")))
	got, err = os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "z\n", string(got))
}

func TestPrettyJSON(t *testing.T) {
	b, err := PrettyJSON(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1\n}", string(b))

	_, err = PrettyJSON(func() {})
	assert.Error(t, err)
}
