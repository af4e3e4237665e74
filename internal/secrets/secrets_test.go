package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	box, err := New("correct horse battery staple")
	require.NoError(t, err)

	token := "7213841:AAF3xyzBotTokenExample"
	sealed, err := box.Encrypt(token)
	require.NoError(t, err)
	require.NotEmpty(t, sealed)
	assert.NotContains(t, sealed, token)

	assert.Equal(t, token, box.Decrypt(sealed))
}

func TestEncryptionIsNonDeterministic(t *testing.T) {
	box, err := New("key")
	require.NoError(t, err)

	a, err := box.Encrypt("same plaintext")
	require.NoError(t, err)
	b, err := box.Encrypt("same plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "fresh nonce per encryption")
	assert.Equal(t, "same plaintext", box.Decrypt(a))
	assert.Equal(t, "same plaintext", box.Decrypt(b))
}

func TestDecryptWithWrongKeyReturnsEmpty(t *testing.T) {
	box1, err := New("passphrase one")
	require.NoError(t, err)
	box2, err := New("passphrase two")
	require.NoError(t, err)

	sealed, err := box1.Encrypt("secret token")
	require.NoError(t, err)

	assert.Equal(t, "", box2.Decrypt(sealed))
}

func TestDecryptGarbageReturnsEmpty(t *testing.T) {
	box, err := New("key")
	require.NoError(t, err)

	assert.Equal(t, "", box.Decrypt("not base64 !!"))
	assert.Equal(t, "", box.Decrypt("aGVsbG8=")) // valid base64, too short
	assert.Equal(t, "", box.Decrypt(""))
}

func TestDecryptTamperedCiphertextReturnsEmpty(t *testing.T) {
	box, err := New("key")
	require.NoError(t, err)

	sealed, err := box.Encrypt("secret token")
	require.NoError(t, err)

	tampered := []byte(sealed)
	tampered[len(tampered)-5] ^= 'x'
	assert.Equal(t, "", box.Decrypt(string(tampered)))
}

func TestEmptyPlaintext(t *testing.T) {
	box, err := New("key")
	require.NoError(t, err)

	sealed, err := box.Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", sealed)
	assert.Equal(t, "", box.Decrypt(""))
}
