package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cabot/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body += "log:\n  file: " + filepath.Join(dir, "cabot.log") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(bytes.NewReader(nil))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestIngestRejectsMemoryStore(t *testing.T) {
	path := writeConfig(t, "vector_store:\n  type: memory\n")
	_, err := execute(t, "--config", path, "ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persistent vector store")
}

func TestChatWithoutAPIKeyFailsToInitialize(t *testing.T) {
	t.Setenv("CABOT_TEST_MISSING_KEY", "")
	path := writeConfig(t, "embedder:\n  api_key_env: CABOT_TEST_MISSING_KEY\n")
	_, err := execute(t, "--config", path, "chat", "--plain")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthentication)
	assert.Contains(t, err.Error(), "failed to initialize CA Bot")
}

func TestInvalidConfig(t *testing.T) {
	path := writeConfig(t, "retrieval:\n  top_k: -3\n")
	_, err := execute(t, "--config", path, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}
