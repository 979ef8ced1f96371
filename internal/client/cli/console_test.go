package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/adminvault/internal/client/config"
	"github.com/dmitrijs2005/adminvault/internal/client/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	// grpc dials lazily, so nothing needs to listen here
	cfg.IdentityEndpoint = "127.0.0.1:1"
	cfg.RequestTimeout = time.Second
	return cfg
}

func TestNewConsole_MemoryBackend(t *testing.T) {
	cfg := testConfig(t)
	lines := capturePrint(t)
	var logs bytes.Buffer

	c, err := NewConsole(context.Background(), cfg, strings.NewReader("help\nexit\n"), &bytes.Buffer{}, &logs)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(cfg.DataDir, storage.FileName))

	c.Run(context.Background())
	assert.Contains(t, *lines, helpSignedOut+"\n")
	assert.Contains(t, *lines, "Bye!\n")
	assert.Contains(t, logs.String(), "in-memory records store")

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestNewConsole_UnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.StoreBackend = "mongo"

	_, err := NewConsole(context.Background(), cfg, strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{})
	require.ErrorContains(t, err, `unknown records backend "mongo"`)
}

func TestNewConsole_BadDataDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.DataDir = filepath.Join(cfg.DataDir, string([]byte{0}))

	_, err := NewConsole(context.Background(), cfg, strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{})
	require.Error(t, err)
}
