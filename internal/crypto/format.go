package crypto

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// Entry record layout:
//
//	magic "ZENT" (4) | version (1) | algorithm (1) | created (8) | modified (8) | nonce | ciphertext || tag
//
// Timestamps are big-endian Unix nanoseconds. The header and the entry id are
// authenticated as associated data.
const (
	RecordVersion = 1
	HeaderSize    = 22
	TagSize       = 16
	MaxIDLength   = 128
)

var recordMagic = []byte("ZENT")

// Header is the unencrypted prefix of an entry record.
type Header struct {
	Version   uint8
	Algorithm Algorithm
	Created   time.Time
	Modified  time.Time
}

// Entry is one encrypted note as produced by Encrypt.
type Entry struct {
	ID         string
	Algorithm  Algorithm
	Created    time.Time
	Modified   time.Time
	Nonce      []byte
	Ciphertext []byte // sealed body, authentication tag included
}

// AuthTag returns the authentication tag at the end of the ciphertext.
func (e *Entry) AuthTag() []byte {
	if len(e.Ciphertext) < TagSize {
		return nil
	}
	return e.Ciphertext[len(e.Ciphertext)-TagSize:]
}

// Header returns the record header of e.
func (e *Entry) Header() Header {
	return Header{
		Version:   RecordVersion,
		Algorithm: e.Algorithm,
		Created:   e.Created,
		Modified:  e.Modified,
	}
}

// MarshalBinary encodes the entry as a self-contained record.
func (e *Entry) MarshalBinary() ([]byte, error) {
	if e.Algorithm.NonceSize() == 0 {
		return nil, fmt.Errorf("unknown algorithm %d", e.Algorithm)
	}
	if len(e.Nonce) != e.Algorithm.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.Algorithm.NonceSize(), len(e.Nonce))
	}

	buf := make([]byte, 0, HeaderSize+len(e.Nonce)+len(e.Ciphertext))
	buf = append(buf, e.Header().encode()...)
	buf = append(buf, e.Nonce...)
	buf = append(buf, e.Ciphertext...)
	return buf, nil
}

// ParseEntry decodes a record stored under id. Malformed records fail with
// ErrIntegrity before any decryption is attempted.
func ParseEntry(id string, data []byte) (*Entry, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	nonceSize := h.Algorithm.NonceSize()
	body := data[HeaderSize:]
	if len(body) < nonceSize+TagSize {
		return nil, fmt.Errorf("%w: record too short", ErrIntegrity)
	}

	return &Entry{
		ID:         id,
		Algorithm:  h.Algorithm,
		Created:    h.Created,
		Modified:   h.Modified,
		Nonce:      append([]byte(nil), body[:nonceSize]...),
		Ciphertext: append([]byte(nil), body[nonceSize:]...),
	}, nil
}

// IsRecord reports whether data starts like an entry record.
func IsRecord(data []byte) bool {
	return bytes.HasPrefix(data, recordMagic)
}

// ParseHeader decodes the fixed-size record prefix. data may be longer than
// HeaderSize.
func ParseHeader(data []byte) (Header, error) {
	var h Header
	if len(data) < HeaderSize {
		return h, fmt.Errorf("%w: record too short", ErrIntegrity)
	}
	if !bytes.Equal(data[:4], recordMagic) {
		return h, fmt.Errorf("%w: not an entry record", ErrIntegrity)
	}
	if data[4] != RecordVersion {
		return h, fmt.Errorf("%w: unsupported record version %d", ErrIntegrity, data[4])
	}

	h.Version = data[4]
	h.Algorithm = Algorithm(data[5])
	if h.Algorithm.NonceSize() == 0 {
		return h, fmt.Errorf("%w: unknown algorithm %d", ErrIntegrity, data[5])
	}
	h.Created = time.Unix(0, int64(binary.BigEndian.Uint64(data[6:14]))).UTC()
	h.Modified = time.Unix(0, int64(binary.BigEndian.Uint64(data[14:22]))).UTC()
	return h, nil
}

func (h Header) encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf, recordMagic)
	buf[4] = h.Version
	buf[5] = byte(h.Algorithm)
	binary.BigEndian.PutUint64(buf[6:14], uint64(h.Created.UnixNano()))
	binary.BigEndian.PutUint64(buf[14:22], uint64(h.Modified.UnixNano()))
	return buf
}

// associatedData binds the header and the entry id to the ciphertext.
func associatedData(h Header, id string) []byte {
	ad := make([]byte, 0, HeaderSize+2+len(id))
	ad = append(ad, h.encode()...)
	ad = binary.BigEndian.AppendUint16(ad, uint16(len(id)))
	ad = append(ad, id...)
	return ad
}
