// Package crypto provides key derivation and entry encryption for zecret.
//
// Key derivation runs one slow, memory-hard function per password check:
//   - argon2id (default, t=3, m=64 MiB, p=4) or pbkdf2-sha256 for constrained machines
//   - 32-byte random salt, stored in the credential record
//   - HKDF-SHA256 splits the result into a verification hash and an entry key
//     under different labels, so the stored hash never works as a key
//
// Entry encryption is authenticated:
//   - XChaCha20-Poly1305 (default) or AES-256-GCM
//   - fresh random nonce for every Encrypt call
//   - record header and entry id are bound as associated data
//
// Memory safety:
//   - Keys live in memguard locked buffers; call Key.Destroy when done
//   - Use ClearBytes() to zero passwords and plaintext after use
package crypto
