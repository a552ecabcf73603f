// Package git reports whether a vault directory sits inside a git work tree.
//
// Entries are encrypted at rest, so committing a vault does not leak note
// content. It does publish entry ids, timestamps and every past generation,
// so zecret status points out a vault that git would pick up by accident.
package git
