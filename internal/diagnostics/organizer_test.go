package diagnostics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrganizeFileByCategory(t *testing.T) {
	tmpDir := t.TempDir()
	organizer := NewOrganizer()

	tests := []struct {
		filename string
		category string
	}{
		{"pic.jpg", "Images"},
		{"song.mp3", "Music"},
		{"doc.pdf", "Documents"},
		{"installer.exe", "Software"},
		{"movie.mp4", "Videos"},
		{"archive.zip", "Archives"},
		{"unknown.xyz", "Others"},
	}

	for _, tt := range tests {
		savePath := filepath.Join(tmpDir, tt.filename)
		require.NoError(t, os.WriteFile(savePath, []byte("dummy"), 0o644))

		newPath, err := organizer.OrganizeFile(savePath)
		require.NoError(t, err)

		expectedPath := filepath.Join(tmpDir, tt.category, tt.filename)
		require.Equal(t, expectedPath, newPath)

		_, statErr := os.Stat(newPath)
		require.NoError(t, statErr)
	}
}

func TestOrganizeFileCollision(t *testing.T) {
	tmpDir := t.TempDir()
	organizer := NewOrganizer()

	filename := "test.jpg"
	imgDir := filepath.Join(tmpDir, "Images")
	require.NoError(t, os.MkdirAll(imgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(imgDir, filename), []byte("existing"), 0o644))

	sourcePath := filepath.Join(tmpDir, filename)
	require.NoError(t, os.WriteFile(sourcePath, []byte("new"), 0o644))

	newPath, err := organizer.OrganizeFile(sourcePath)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(imgDir, "test (1).jpg"), newPath)
}

func TestOrganizeFileDisabled(t *testing.T) {
	tmpDir := t.TempDir()
	organizer := &Organizer{Enabled: false}

	savePath := filepath.Join(tmpDir, "pic.jpg")
	require.NoError(t, os.WriteFile(savePath, []byte("dummy"), 0o644))

	newPath, err := organizer.OrganizeFile(savePath)
	require.NoError(t, err)
	require.Equal(t, savePath, newPath)
}
