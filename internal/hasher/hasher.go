// Package hasher computes a streaming content hash over files without
// loading them fully into memory.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

const blockSize = 1 << 20 // 1 MiB

// Hash streams path through SHA-256 in fixed-size blocks and returns the
// hex digest. It fails only on I/O errors.
func Hash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hasher: open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, blockSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hasher: read %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
