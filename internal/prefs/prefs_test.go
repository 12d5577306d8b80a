package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memchat/api/internal/client"
)

func TestOpenMissingFileIsEmpty(t *testing.T) {
	f, err := Open(filepath.Join(t.TempDir(), "prefs.yaml"))
	require.NoError(t, err)
	assert.Empty(t, f.LastWorkspace())
	assert.Equal(t, client.Tokens{}, f.Tokens())
}

func TestValuesPersistAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.yaml")
	f, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, f.SetLastWorkspace("ws-1"))
	require.NoError(t, f.SetLastChat("chat-9"))
	require.NoError(t, f.SetTokens(client.Tokens{Access: "a", Refresh: "r"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "ws-1", reopened.LastWorkspace())
	assert.Equal(t, "chat-9", reopened.LastChat())
	assert.Equal(t, client.Tokens{Access: "a", Refresh: "r"}, reopened.Tokens())
}

func TestOpenRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("last_workspace: [unclosed"), 0o600))
	_, err := Open(path)
	require.Error(t, err)
}
