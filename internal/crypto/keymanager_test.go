package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptSecret(t *testing.T) {
	secret := []byte("correct horse battery staple")

	blob, err := EncryptSecret(secret, "hunter2-hunter2")
	require.NoError(t, err)

	got, err := DecryptSecret(blob, "hunter2-hunter2")
	require.NoError(t, err)
	assert.Equal(t, secret, got)
}

func TestEncryptSecret_Rejects(t *testing.T) {
	_, err := EncryptSecret([]byte("long enough secret value"), "")
	assert.Error(t, err)

	_, err = EncryptSecret([]byte("short"), "passphrase")
	assert.Error(t, err)
}

func TestDecryptSecret_WrongPassphrase(t *testing.T) {
	blob, err := EncryptSecret([]byte("correct horse battery staple"), "right passphrase")
	require.NoError(t, err)

	_, err = DecryptSecret(blob, "wrong passphrase")
	assert.Error(t, err)
}

func TestDecryptSecret_Tampered(t *testing.T) {
	blob, err := EncryptSecret([]byte("correct horse battery staple"), "passphrase")
	require.NoError(t, err)

	// Flip one base64 character of the ciphertext.
	tampered := make([]byte, len(blob))
	copy(tampered, blob)
	for i := len(tampered) - 1; i >= 0; i-- {
		if tampered[i] == 'A' {
			tampered[i] = 'B'
			break
		}
		if tampered[i] == 'a' {
			tampered[i] = 'b'
			break
		}
	}

	_, err = DecryptSecret(tampered, "passphrase")
	assert.Error(t, err)
}

func TestLoadSecret(t *testing.T) {
	t.Run("raw secret wins", func(t *testing.T) {
		got, err := LoadSecret(SecretConfig{RawSecret: "a development secret", EncryptedSecretPath: "/nonexistent"})
		require.NoError(t, err)
		assert.Equal(t, []byte("a development secret"), got)
	})

	t.Run("raw secret too short", func(t *testing.T) {
		_, err := LoadSecret(SecretConfig{RawSecret: "tiny"})
		assert.Error(t, err)
	})

	t.Run("encrypted file", func(t *testing.T) {
		blob, err := EncryptSecret([]byte("the production secret"), "passphrase")
		require.NoError(t, err)

		path := filepath.Join(t.TempDir(), "secret.json")
		require.NoError(t, os.WriteFile(path, blob, 0o600))

		got, err := LoadSecret(SecretConfig{EncryptedSecretPath: path, Passphrase: "passphrase"})
		require.NoError(t, err)
		assert.Equal(t, []byte("the production secret"), got)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadSecret(SecretConfig{EncryptedSecretPath: filepath.Join(t.TempDir(), "absent.json"), Passphrase: "p"})
		assert.Error(t, err)
	})

	t.Run("nothing configured", func(t *testing.T) {
		_, err := LoadSecret(SecretConfig{})
		assert.Error(t, err)
	})
}
