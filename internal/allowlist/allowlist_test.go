package allowlist_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/Portunus/door/internal/allowlist"
)

func TestParse_WhitespaceSeparated(t *testing.T) {
	keys, err := allowlist.Parse(strings.NewReader("13\n4211  99\r\n\n\t0013\n13\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"13", "4211", "99", "0013"}, keys)
}

func TestParse_Empty(t *testing.T) {
	keys, err := allowlist.Parse(strings.NewReader("   \n\n"))
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.txt")
	require.NoError(t, os.WriteFile(path, []byte("13\n77\n"), 0o600))

	keys, err := allowlist.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"13", "77"}, keys)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := allowlist.Load(filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}
