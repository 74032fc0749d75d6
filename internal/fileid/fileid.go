// Package fileid computes the content hash stored as an image's hash_value.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// sampleSize is how much of each end of a large file is hashed.
const sampleSize = 8 * 1024

// ContentHash returns the hex sha256 of data. Files up to 16K are hashed whole; larger
// ones by their first and last 8K, which is enough to tell catalogue images apart.
func ContentHash(data []byte) string {
	h := sha256.New()
	if len(data) <= 2*sampleSize {
		h.Write(data)
	} else {
		h.Write(data[:sampleSize])
		h.Write(data[len(data)-sampleSize:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// FileHash returns ContentHash of the file at path without reading the middle of large files.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	h := sha256.New()
	if info.Size() <= 2*sampleSize {
		if _, err := io.Copy(h, f); err != nil {
			return "", fmt.Errorf("hash %s: %w", path, err)
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	}
	if _, err := io.CopyN(h, f, sampleSize); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	if _, err := f.Seek(-sampleSize, io.SeekEnd); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	if _, err := io.CopyN(h, f, sampleSize); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
