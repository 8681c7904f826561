package cmd

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjenkins/edinet/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setRegistryEnv(t *testing.T) {
	t.Helper()
	t.Setenv(config.EnvEndpoint, "http://127.0.0.1:1/api/v2")
	t.Setenv(config.EnvAPIKey, "test-key")
	t.Setenv(config.EnvDatabaseURL, "")
}

func TestSetupReturnsConfigErrors(t *testing.T) {
	t.Setenv(config.EnvEndpoint, "")
	t.Setenv(config.EnvAPIKey, "")

	env, err := setup(context.Background(), discardLogger(), nil)
	require.Error(t, err)
	assert.Nil(t, env)

	var cfgErr *config.Error
	assert.True(t, errors.As(err, &cfgErr))
}

func TestSetupRejectsUnknownDocType(t *testing.T) {
	setRegistryEnv(t)

	_, err := setup(context.Background(), discardLogger(), &pipelineFlags{docTypes: "120,999"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "999")
}

func TestCloseStopsMetricsListener(t *testing.T) {
	setRegistryEnv(t)
	metricsAddr = "127.0.0.1:0"
	t.Cleanup(func() { metricsAddr = "" })

	env, err := setup(context.Background(), discardLogger(), nil)
	require.NoError(t, err)
	require.NotNil(t, env.server)

	env.Close()
	assert.ErrorIs(t, env.server.ListenAndServe(), http.ErrServerClosed)
}

func TestDownloadReturnsManifestError(t *testing.T) {
	setRegistryEnv(t)
	downloadFlags = pipelineFlags{manifest: filepath.Join(t.TempDir(), "missing.json")}
	t.Cleanup(func() { downloadFlags = pipelineFlags{} })

	err := runDownload(downloadCmd, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
