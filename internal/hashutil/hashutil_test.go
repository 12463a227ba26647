package hashutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashStringsIsOrderSensitive(t *testing.T) {
	assert.Equal(t, HashStrings("a", "b"), HashStrings("a", "b"))
	assert.NotEqual(t, HashStrings("a", "b"), HashStrings("b", "a"))
	assert.NotEqual(t, HashStrings("ab"), HashStrings("a", "b"))
}

func TestVerifyPINSHA256(t *testing.T) {
	digest := DigestPIN("4821")
	assert.True(t, VerifyPIN(digest, "4821"))
	assert.False(t, VerifyPIN(digest, "wrong"))
	assert.False(t, VerifyPIN(digest, ""))
	assert.False(t, VerifyPIN("", "4821"))
}

func TestVerifyPINBcrypt(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("4821"), bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, VerifyPIN(string(hash), "4821"))
	assert.False(t, VerifyPIN(string(hash), "1111"))
}
