package hashutil

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashStrings returns a SHA256 hash of the provided strings with newline separators.
func HashStrings(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// DigestPIN returns the hex SHA256 digest of a PIN.
func DigestPIN(pin string) string {
	sum := sha256.Sum256([]byte(pin))
	return hex.EncodeToString(sum[:])
}

// VerifyPIN reports whether pin matches digest. Digests starting with "$2"
// are treated as bcrypt hashes, anything else as hex SHA256.
func VerifyPIN(digest, pin string) bool {
	digest = strings.TrimSpace(digest)
	if digest == "" || pin == "" {
		return false
	}
	if strings.HasPrefix(digest, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(digest), []byte(pin)) == nil
	}
	got := DigestPIN(pin)
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(digest)), []byte(got)) == 1
}
