// Package token provides opaque credential generation and keyed hashing.
//
// Credentials are 32 random bytes from crypto/rand, Base64 RawURL encoded
// and carried behind a short type prefix (for example "tgrt_" for refresh
// tokens). Only keyed hashes are ever persisted:
//
//	hash = hex(HMAC-SHA256(pepper, credential))
//
// The pepper is a server secret, so a leaked store alone cannot be used to
// mount offline guessing against stored hashes. Comparisons are constant-time.
package token
