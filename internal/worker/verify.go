package worker

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

// Verifier performs the optional post-completion integrity check, gated
// by config.GetEnableIntegrityCheck(), grounded on the teacher's
// internal/integrity/verifier.go and internal/core/verifier.go
// FileVerifier (both sha256/md5 streamed hashing; this merges the two
// into the one the rest of the corpus actually exercises).
type Verifier struct{}

func NewVerifier() *Verifier { return &Verifier{} }

// Verify hashes filePath with algo ("sha256" or "md5", default sha256)
// and compares against expectedHash. An empty expectedHash always
// passes, mirroring "nothing to verify".
func (v *Verifier) Verify(filePath, algo, expectedHash string) error {
	if expectedHash == "" {
		return nil
	}

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("worker: open file for verification: %w", err)
	}
	defer f.Close()

	var hasher hash.Hash
	switch algo {
	case "sha256", "":
		hasher = sha256.New()
	case "md5":
		hasher = md5.New()
	default:
		return fmt.Errorf("worker: unsupported hash algorithm: %s", algo)
	}

	buf := make([]byte, 4*1024*1024)
	if _, err := io.CopyBuffer(hasher, f, buf); err != nil {
		return fmt.Errorf("worker: hashing failed: %w", err)
	}

	actual := hex.EncodeToString(hasher.Sum(nil))
	if actual != expectedHash {
		return fmt.Errorf("worker: checksum mismatch: expected %s, got %s", expectedHash, actual)
	}
	return nil
}
