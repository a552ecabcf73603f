// Package storage provides the on-disk layout of a zecret vault.
//
// A vault directory holds numbered generations and a CURRENT file naming the
// committed one. Each generation contains:
//   - vault.db: BBolt database with a single config bucket holding the
//     credential (salt, verification hash, KDF params), the entry cipher,
//     vault id and timestamps (unencrypted, no secrets)
//   - entries/: one encrypted record file per entry
//   - foreign/: imported records that do not decrypt under the vault key
//
// Replacing CURRENT is the only commit point of a password change, so a crash
// leaves either the old or the new generation in effect. BBolt's file lock
// keeps a second process out of an open generation.
package storage
