package security

// Vault encrypts credentials at rest. Implementations fail with a vault
// error when no master key is configured or a token is malformed.
type Vault interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(token string) (string, error)
}

// Last4 is the displayable tail of a secret, stored alongside the token so
// operators can tell keys apart without decrypting.
func Last4(secret string) string {
	if len(secret) <= 4 {
		return secret
	}
	return secret[len(secret)-4:]
}
