package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptSecretsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	secrets := map[string]string{
		"GITHUB_TOKEN":      "ghp_test123456789",
		"ANTHROPIC_API_KEY": "sk-ant-test123",
	}

	require.NoError(t, EncryptSecretsFile(dir, "hunter2-password", secrets))
	assert.True(t, SecretsFileExists(dir))

	info, err := os.Stat(secretsPath(dir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := DecryptSecretsFile(dir, "hunter2-password")
	require.NoError(t, err)
	assert.Equal(t, secrets, got)
}

func TestDecryptWithWrongPassword(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EncryptSecretsFile(dir, "right", map[string]string{"A": "1"}))

	_, err := DecryptSecretsFile(dir, "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrong password")
}

func TestCorruptedSecretsFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EncryptSecretsFile(dir, "pw", map[string]string{"A": "1"}))
	require.NoError(t, os.WriteFile(secretsPath(dir), []byte("short"), 0600))

	_, err := DecryptSecretsFile(dir, "pw")
	assert.Error(t, err)
}

func TestGetSecretPrecedence(t *testing.T) {
	t.Cleanup(func() { SetDecryptedSecrets(nil) })
	t.Setenv("GITHUB_TOKEN", "from-env")

	SetDecryptedSecrets(nil)
	v, err := GetSecret("GITHUB_TOKEN")
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)

	SetDecryptedSecrets(map[string]string{"GITHUB_TOKEN": "from-file"})
	v, err = GetSecret("GITHUB_TOKEN")
	require.NoError(t, err)
	assert.Equal(t, "from-file", v)

	_, err = GetSecret("DEVAGENT_SURELY_UNSET_SECRET")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestResolveCredential(t *testing.T) {
	t.Cleanup(func() { SetDecryptedSecrets(nil) })
	SetDecryptedSecrets(map[string]string{"OPENAI_API_KEY": "sk-file"})

	v, err := ResolveCredential(ProviderOpenAI, "")
	require.NoError(t, err)
	assert.Equal(t, "sk-file", v)

	v, err = ResolveCredential(ProviderOpenAI, "flag-token")
	require.NoError(t, err)
	assert.Equal(t, "flag-token", v)

	v, err = ResolveCredential(ProviderOllama, "")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestLoadSecretsFileAndSave(t *testing.T) {
	t.Cleanup(func() { SetDecryptedSecrets(nil) })
	dir := t.TempDir()

	SetDecryptedSecrets(nil)
	SetSecret("GEMINI_API_KEY", "g-key")
	require.NoError(t, SaveSecretsToFile(dir, "pw"))

	SetDecryptedSecrets(nil)
	require.NoError(t, LoadSecretsFile(dir, "pw"))
	assert.Equal(t, []string{"GEMINI_API_KEY"}, GetDecryptedSecretNames())
}
