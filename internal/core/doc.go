// Package core provides the zecret vault engine.
//
// Core operations include:
//   - Vault.Create / Vault.Open: initialize a vault, unlock it into a Session
//   - Session.List/Read/Write/Delete: entry access, one encrypted record per entry
//   - Session.ChangePassword: re-encrypt every entry in a staged generation,
//     committed by a single atomic pointer swap
//   - Session.Export/Import: portable bundles of encrypted records
//   - Session.Foreign/AdoptForeign/DeleteForeign: quarantine of imported
//     records that do not decrypt under the vault key
//
// Known failure causes are reported as the exported sentinels and typed
// errors, testable with errors.Is and errors.As. Filesystem and storage
// errors are returned as they are, or wrapped with the failing operation.
package core
