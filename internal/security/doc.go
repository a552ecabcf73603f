// Package security confines vault file access to known directories.
//
// Names of entries, generations and pointer files are validated before use:
// a single path component of [A-Za-z0-9._-], not starting with a dot. Entry
// ids are further limited to 128 bytes. All file operations go through os.Root so a crafted name cannot
// escape the vault even via symlinks.
//
// WriteFileAtomic implements the temp-file, fsync, rename, directory-fsync
// sequence used for every persistent write.
package security
