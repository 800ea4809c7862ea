package worker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerifierEmptyHashPasses(t *testing.T) {
	v := NewVerifier()
	require.NoError(t, v.Verify("/nonexistent", "sha256", ""))
}

func TestVerifierSHA256Match(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, os.WriteFile(tmp, []byte("hello world"), 0o644))

	v := NewVerifier()
	const expected = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	require.NoError(t, v.Verify(tmp, "sha256", expected))
}

func TestVerifierMismatch(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, os.WriteFile(tmp, []byte("hello world"), 0o644))

	v := NewVerifier()
	err := v.Verify(tmp, "sha256", "deadbeef")
	require.Error(t, err)
}

func TestVerifierUnsupportedAlgo(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, os.WriteFile(tmp, []byte("hello"), 0o644))

	v := NewVerifier()
	err := v.Verify(tmp, "crc32", "whatever")
	require.Error(t, err)
}
