package evidence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evidencebot/internal/domain"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestWorkspaceCleanRemovesImagesOnly(t *testing.T) {
	root := t.TempDir()
	ws := NewWorkspace(root)
	writeFile(t, filepath.Join(root, "sucessos", "A-1.png"))
	writeFile(t, filepath.Join(root, "sucessos", "A-2.JPG"))
	writeFile(t, filepath.Join(root, "falhas", "B-1.gif"))
	writeFile(t, filepath.Join(root, "falhas", "notes.txt"))

	removed, err := ws.Clean()
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	left, err := os.ReadDir(filepath.Join(root, "falhas"))
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "notes.txt", left[0].Name())
}

func TestWorkspaceCleanCreatesMissingDirs(t *testing.T) {
	root := filepath.Join(t.TempDir(), "prints_tests")
	ws := NewWorkspace(root)
	removed, err := ws.Clean()
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.DirExists(t, filepath.Join(root, "sucessos"))
	assert.DirExists(t, filepath.Join(root, "falhas"))
}

func TestWorkspaceListAndStatus(t *testing.T) {
	root := t.TempDir()
	ws := NewWorkspace(root)
	writeFile(t, filepath.Join(root, "sucessos", "NEX-18.png"))
	writeFile(t, filepath.Join(root, "sucessos", "LOG-FLO_sucesso.png"))
	writeFile(t, filepath.Join(root, "falhas", "BC-123_falha.png"))
	writeFile(t, filepath.Join(root, "falhas", "ignored.txt"))

	files, err := ws.List()
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "BC-123", files[0].TicketKey)
	assert.Equal(t, "falha", files[0].Status)
	assert.Equal(t, domain.OutcomeFail, files[0].Outcome())
	assert.Equal(t, "LOG-FLO", files[1].TicketKey)
	assert.Equal(t, "NEX-18", files[2].TicketKey)
	assert.Equal(t, "sucessos", files[2].Dir)

	counts, err := ws.Status()
	require.NoError(t, err)
	assert.Equal(t, Counts{Failures: 1, Successes: 2, Total: 3, Processed: true}, counts)
}

func TestWorkspaceStatusEmpty(t *testing.T) {
	counts, err := NewWorkspace(t.TempDir()).Status()
	require.NoError(t, err)
	assert.Equal(t, Counts{}, counts)
}

func TestWorkspaceFind(t *testing.T) {
	root := t.TempDir()
	ws := NewWorkspace(root)
	writeFile(t, filepath.Join(root, "falhas", "BC-1_falha.png"))
	writeFile(t, filepath.Join(root, "sucessos", "BC-2.png"))

	f, ok := ws.Find("BC-1", "falhas")
	require.True(t, ok)
	assert.Equal(t, "BC-1_falha.png", f.Filename)

	f, ok = ws.Find("BC-2", "sucessos")
	require.True(t, ok)
	assert.Equal(t, "BC-2.png", f.Filename)

	_, ok = ws.Find("BC-2", "falhas")
	assert.False(t, ok)
	_, ok = ws.Find("BC-2", "other")
	assert.False(t, ok)
}

func TestTicketKeyFromFilename(t *testing.T) {
	tests := map[string]string{
		"NEX-18.png":          "NEX-18",
		"BC-1_sucesso.png":    "BC-1",
		"BC-1_falha.png":      "BC-1",
		"TESTE_001.png":       "TESTE_001",
		"TESTE_001_falha.png": "TESTE_001",
	}
	for in, want := range tests {
		assert.Equal(t, want, TicketKeyFromFilename(in), in)
	}
}
