package domain

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for passwords and developer client secrets.
const (
	Argon2Memory      uint32 = 16384 // KB
	Argon2Time        uint32 = 2
	Argon2Parallelism uint8  = 2
	Argon2KeyLen      uint32 = 32
	Argon2SaltLen            = 16
)

// HashSecret computes an Argon2id hash of secret.
// Format: $argon2id$v=19$m=16384,t=2,p=2$<salt>$<hash>
func HashSecret(secret string) (string, error) {
	salt := make([]byte, Argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", ErrInternal.WithCause(err)
	}

	hash := argon2.IDKey([]byte(secret), salt, Argon2Time, Argon2Memory, Argon2Parallelism, Argon2KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, Argon2Memory, Argon2Time, Argon2Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

// VerifySecret checks secret against an encoded Argon2id hash in constant time.
// Parameters are read from the encoded string so old hashes stay verifiable.
func VerifySecret(secret, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		return false
	}

	computed := argon2.IDKey([]byte(secret), salt, iterations, memory, parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1
}

// dummyHash is verified against when a principal does not exist.
var dummyHash, _ = HashSecret("tokgate-dummy-secret")

// BurnVerify performs a throwaway verification and always returns false.
func BurnVerify(secret string) bool {
	VerifySecret(secret, dummyHash)
	return false
}
