package core

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	BinarySampleSize   = 8192 // Bytes to sample for text/binary detection
	BinaryThresholdPct = 10   // Max % non-printable chars for text content
)

// DetectFileType determines if content is likely text.
// Returns true if the content appears to be text.
//
// Detection heuristic (in order):
//  1. Null bytes present → binary
//  2. Invalid UTF-8 → binary
//  3. >10% non-printable control chars → binary
func DetectFileType(data []byte) bool {
	if len(data) == 0 {
		return true
	}

	if bytes.IndexByte(data, 0) != -1 {
		return false
	}

	sample := data[:min(len(data), BinarySampleSize)]

	// A multi-byte rune cut at the sample boundary is still text.
	if len(data) > len(sample) {
		for i := 0; i < utf8.UTFMax-1 && !utf8.Valid(sample); i++ {
			sample = sample[:len(sample)-1]
		}
	}
	if !utf8.Valid(sample) {
		return false
	}

	nonPrintable := 0
	for _, b := range sample {
		// Allow common whitespace: tab, newline, carriage return
		if b < 32 && b != 9 && b != 10 && b != 13 {
			nonPrintable++
		}
		if b == 127 {
			nonPrintable++
		}
	}

	threshold := len(sample) * BinaryThresholdPct / 100
	return nonPrintable <= threshold
}

// SameContent checks if two plaintexts are identical
func SameContent(a, b []byte) bool {
	ha := sha256.Sum256(a)
	hb := sha256.Sum256(b)
	return bytes.Equal(ha[:], hb[:])
}

// GenerateUnifiedDiff renders the change from the stored entry to the new
// content as a patch. Returns an empty string if they are identical.
func GenerateUnifiedDiff(id string, vaultData, newData []byte) (string, error) {
	if SameContent(vaultData, newData) {
		return "", nil
	}

	if !DetectFileType(vaultData) || !DetectFileType(newData) {
		return fmt.Sprintf("Binary entry %s has changed\n", id), nil
	}

	dmp := diffmatchpatch.New()

	// Line-mode diff for readable output
	vaultStr, newStr := string(vaultData), string(newData)
	a, b, lineArray := dmp.DiffLinesToChars(vaultStr, newStr)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	patches := dmp.PatchMake(vaultStr, diffs)
	if len(patches) == 0 {
		return "", nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("--- vault/%s\n", id))
	result.WriteString(fmt.Sprintf("+++ new/%s\n", id))
	result.WriteString(dmp.PatchToText(patches))

	return result.String(), nil
}

// DiffStat counts inserted and deleted lines between two texts.
func DiffStat(oldData, newData []byte) (inserted, deleted int) {
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(string(oldData), string(newData))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lineArray)

	for _, d := range diffs {
		n := strings.Count(d.Text, "\n")
		if !strings.HasSuffix(d.Text, "\n") && d.Text != "" {
			n++
		}
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			inserted += n
		case diffmatchpatch.DiffDelete:
			deleted += n
		}
	}
	return inserted, deleted
}
