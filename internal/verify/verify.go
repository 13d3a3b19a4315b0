package verify

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"manyllmd/pkg/types"
)

// ErrNotFound indicates the artifact has no local path or the file is
// missing. Distinct from "present but invalid", which is a false result.
var ErrNotFound = errors.New("verify: artifact file not found")

var ggufMagic = []byte("GGUF")

// Verify decides whether the bytes at rest are a usable artifact of the
// declared format. It returns false for invalid content and errors only for
// operational faults. Pure read: lifecycle state is never mutated here, so
// the same check serves both download completion and on-demand re-checks.
func Verify(rec types.Artifact) (bool, error) {
	if rec.LocalPath == "" {
		return false, fmt.Errorf("%w: %s has no local path", ErrNotFound, rec.ID)
	}
	f, err := os.Open(rec.LocalPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, fmt.Errorf("%w: %s", ErrNotFound, rec.LocalPath)
		}
		return false, fmt.Errorf("verify %s: %w", rec.ID, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("verify %s: %w", rec.ID, err)
	}
	if ok := checkSignature(f, formatOf(rec), fi.Size()); !ok {
		return false, nil
	}
	if rec.Size > 0 && fi.Size() != rec.Size {
		return false, nil
	}
	if rec.Checksum != "" {
		ok, err := checksumMatches(f, rec.Checksum)
		if err != nil {
			return false, fmt.Errorf("verify %s: %w", rec.ID, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// formatOf picks the format to validate against: the declared format first,
// then the file extension. Declared metadata wins because completed transfers
// are verified while still under a scratch name.
func formatOf(rec types.Artifact) string {
	if len(rec.Formats) > 0 {
		return strings.ToLower(rec.Formats[0])
	}
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(rec.LocalPath), "."))
}

// checkSignature validates the minimal structural signature for the format
// before any declared size is trusted.
func checkSignature(f *os.File, format string, size int64) bool {
	switch format {
	case "gguf":
		var magic [4]byte
		if _, err := io.ReadFull(f, magic[:]); err != nil {
			return false
		}
		return bytes.Equal(magic[:], ggufMagic)
	case "safetensors":
		var hdr [9]byte
		if _, err := io.ReadFull(f, hdr[:]); err != nil {
			return false
		}
		headerLen := binary.LittleEndian.Uint64(hdr[:8])
		if headerLen == 0 || headerLen > uint64(size-8) {
			return false
		}
		return hdr[8] == '{'
	default:
		// No structural signature known; a usable artifact is at least non-empty.
		return size > 0
	}
}

// checksumMatches streams the whole file through SHA-256 and compares to the
// declared lowercase hex digest.
func checksumMatches(f *os.File, expected string) (bool, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false, err
	}
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	return hex.EncodeToString(h.Sum(nil)) == strings.ToLower(expected), nil
}
