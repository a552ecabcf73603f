package core

import (
	"bytes"
	"strings"
)

const (
	notePrefix    = "TITLE:"
	noteSeparator = "\n--CONTENT--\n"
)

// Note is the plaintext layout of a diary entry: a one-line title and a body.
type Note struct {
	Title string
	Body  string
}

// EncodeNote renders n as entry plaintext. Line breaks in the title are
// folded into spaces.
func EncodeNote(n Note) []byte {
	title := strings.Join(strings.Fields(n.Title), " ")
	var buf bytes.Buffer
	buf.Grow(len(notePrefix) + len(title) + len(noteSeparator) + len(n.Body))
	buf.WriteString(notePrefix)
	buf.WriteString(title)
	buf.WriteString(noteSeparator)
	buf.WriteString(n.Body)
	return buf.Bytes()
}

// ParseNote splits entry plaintext into title and body. Plaintext without a
// title header is all body.
func ParseNote(data []byte) Note {
	s := string(data)
	if !strings.HasPrefix(s, notePrefix) {
		return Note{Body: s}
	}
	title, body, ok := strings.Cut(s[len(notePrefix):], noteSeparator)
	if !ok {
		return Note{Body: s}
	}
	return Note{Title: title, Body: body}
}
