package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sb-console/engine/pkg/config"
)

func TestEnvFileRoundTripPreservesUnknownLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	initial := "# comment\nTENANT_ID=abc-123\nCUSTOM_VAR=keepme\nCONNECTION_STRING=\"Endpoint=sb://x;SharedAccessKey=y\"\n"
	require.NoError(t, os.WriteFile(path, []byte(initial), 0o600))

	ef, err := config.LoadEnvFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", ef.TenantID)
	assert.Equal(t, "Endpoint=sb://x;SharedAccessKey=y", ef.ConnectionString)

	ef.ClientID = "new-client"
	require.NoError(t, ef.Save(path))

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(out)
	assert.Contains(t, content, "# comment")
	assert.Contains(t, content, "CUSTOM_VAR=keepme")
	assert.Contains(t, content, `CONNECTION_STRING="Endpoint=sb://x;SharedAccessKey=y"`)
	assert.Contains(t, content, "CLIENT_ID=new-client")
}

func TestAuthMethodRoundTripPreservesOtherSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	initial := "[theme]\nname = \"dark\"\n\n[azure_ad]\nauth_method = \"connection_string\"\n"
	require.NoError(t, os.WriteFile(path, []byte(initial), 0o600))

	method, ok, err := config.LoadAuthMethod(path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, config.AuthMethodConnectionString, method)

	require.NoError(t, config.SaveAuthMethod(path, config.AuthMethodDeviceCode))

	method, ok, err = config.LoadAuthMethod(path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, config.AuthMethodDeviceCode, method)

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(out), "dark")
}

func TestAuthMethodMissingFileIsNotError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	_, ok, err := config.LoadAuthMethod(path)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPageSizeValidation(t *testing.T) {
	assert.True(t, config.IsValidPageSize(100))
	assert.True(t, config.IsValidPageSize(1000))
	assert.False(t, config.IsValidPageSize(150))
	assert.False(t, config.IsValidPageSize(1100))
	assert.Len(t, config.ValidPageSizes(), 10)
}
