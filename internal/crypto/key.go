package crypto

import (
	"github.com/awnumar/memguard"
)

// Key is symmetric key material kept in a locked, guarded memory region.
// The zero value is not usable; keys come from Initialize and Verify.
type Key struct {
	buf *memguard.LockedBuffer
}

// newKey moves b into guarded memory. b is wiped.
func newKey(b []byte) *Key {
	return &Key{buf: memguard.NewBufferFromBytes(b)}
}

// bytes exposes the key for cipher construction. The slice must not be retained.
func (k *Key) bytes() ([]byte, error) {
	if !k.Alive() {
		return nil, ErrKeyDestroyed
	}
	return k.buf.Bytes(), nil
}

// Alive reports whether the key can still be used.
func (k *Key) Alive() bool {
	return k != nil && k.buf != nil && k.buf.IsAlive()
}

// Equal reports whether two keys hold the same material, in constant time.
func (k *Key) Equal(other *Key) bool {
	if !k.Alive() || !other.Alive() {
		return false
	}
	return k.buf.EqualTo(other.buf.Bytes())
}

// Destroy wipes the key and releases its memory. It is safe to call more than once.
func (k *Key) Destroy() {
	if k == nil || k.buf == nil {
		return
	}
	k.buf.Destroy()
}
